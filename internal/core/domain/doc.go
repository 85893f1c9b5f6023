// Package domain defines the core domain models for wamesh.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - SessionRecord: durable registry row used to restore tenants on boot
//   - SessionState/Status: the bring-up state machine vocabulary
//   - ContactEntry: inbound-contact ledger row and peer id normalisation
//   - Errors: coded domain errors shared by every layer
package domain
