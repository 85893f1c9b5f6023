// Package cmap provides a string-keyed concurrent map split into shards.
//
// Keys are spread over a power-of-two number of shards by their murmur3
// hash; each shard has its own RWMutex, so writers on different tenants
// rarely contend.
//
//	m := cmap.New[*domain.SessionRecord]()
//	m.SetIfAbsent("shop-1", rec)
//	rec, ok := m.Get("shop-1")
//
// Range and Keys lock one shard at a time and therefore do not observe a
// single consistent snapshot.
package cmap
