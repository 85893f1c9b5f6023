// Package redisstore implements the contact ledger on Redis.
//
// All client traffic passes through CircuitBreakerHook, so a Redis outage
// fails sends fast with a storage error instead of stalling every handle
// on network timeouts.
package redisstore
