// Package storage holds the registry's view of the fleet: the enode
// records nodes publish to the bootnode service.
//
// # Overview
//
// Nodes re-register on a fixed interval, so a record that is not
// refreshed is stale. MemoryStore keeps each record in a
// github.com/patrickmn/go-cache with a time-to-live; a node that stops
// publishing drops out of the static peer list once its record expires.
//
// # Keys
//
// Records are keyed by network and enode id. Publishing the same id twice
// on one network replaces the record and restarts its TTL; the same id on
// two networks is two records.
//
//	network + "/" + enode id  ->  Record{Info, Seen}
//
// # Concurrency
//
// MemoryStore is safe for concurrent use. go-cache serialises access
// internally and List returns copies.
//
// # Example
//
//	store := storage.NewMemoryStore(2 * time.Minute)
//	if err := store.Put(info); err != nil {
//	    return err // the record has no usable address
//	}
//	peers := store.Addresses("kovan")
package storage
