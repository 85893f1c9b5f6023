// Package memory provides process-local Registry and ContactLedger
// implementations on sharded concurrent maps.
//
// Nothing survives a restart. Use it for development and tests, or when
// the Badger registry is not wanted.
package memory
