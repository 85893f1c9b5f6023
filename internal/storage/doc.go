// Package storage provides the durable stores behind wamesh.
//
// Everything here sits on one embedded Badger database:
//
//   - BlobStore: opaque per-tenant session blobs. Each save writes a new
//     object and then prunes every older one, keeping only the newest
//     by commit timestamp.
//   - Registry: known tenants, replayed on boot.
//   - ContactLedger: peers that have messaged each tenant.
//
// Keys are namespaced by prefix ("blob/", "registry/", "contact/") so the
// three stores share a single database and GC loop. Alternative
// Registry/ContactLedger backends live in the memory, postgres and
// redisstore sub-packages.
package storage
