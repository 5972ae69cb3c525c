package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/exp/slices"

	"github.com/dreamware/nodekeeper/internal/bootnode"
	"github.com/dreamware/nodekeeper/internal/enode"
)

// DefaultTTL is how long a record lives without being refreshed.
const DefaultTTL = 2 * time.Minute

// ErrInvalidRecord is returned by Put for a record without a dialable
// address or without a network.
var ErrInvalidRecord = errors.New("invalid enode record")

// Store defines the registry storage.
// All implementations must be safe for concurrent access.
type Store interface {
	// Put stores or refreshes a record.
	Put(info bootnode.EnodeInfo) error

	// List returns the live records of one network, ordered by enode id.
	List(network string) []Record

	// Delete removes a record. No error if it does not exist.
	Delete(network, id string)

	// Stats returns storage statistics.
	Stats() StoreStats
}

// Record is a stored enode announcement.
type Record struct {
	Info bootnode.EnodeInfo `json:"info"` // As published
	Seen time.Time          `json:"seen"` // Last Put
}

// StoreStats contains statistics about the store.
type StoreStats struct {
	Records  int `json:"records"`  // Live records across networks
	Networks int `json:"networks"` // Distinct networks with live records
}

// MemoryStore implements Store on an expiring in-memory cache.
type MemoryStore struct {
	cache *gocache.Cache // network/id -> Record
	now   func() time.Time
	ttl   time.Duration
}

// NewMemoryStore creates a store whose records expire ttl after their last
// Put. A non-positive ttl means DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		cache: gocache.New(ttl, ttl),
		now:   time.Now,
		ttl:   ttl,
	}
}

func key(network, id string) string {
	return network + "/" + id
}

// Put validates info and stores it, replacing any record with the same
// network and enode id.
func (m *MemoryStore) Put(info bootnode.EnodeInfo) error {
	if strings.TrimSpace(info.Network) == "" {
		return fmt.Errorf("%w: no network", ErrInvalidRecord)
	}
	if _, err := info.Address(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	m.cache.Set(key(info.Network, info.Enode), Record{Info: info, Seen: m.now()}, m.ttl)
	return nil
}

// List returns the unexpired records of network ordered by enode id.
func (m *MemoryStore) List(network string) []Record {
	records := make([]Record, 0)
	for _, item := range m.cache.Items() {
		if rec, ok := item.Object.(Record); ok && rec.Info.Network == network {
			records = append(records, rec)
		}
	}
	slices.SortFunc(records, func(a, b Record) int {
		return strings.Compare(a.Info.Enode, b.Info.Enode)
	})
	return records
}

// Addresses returns the dialable enode of every live record in network.
// Miners come first so new nodes peer with sealers before transactors.
func (m *MemoryStore) Addresses(network string) []enode.Address {
	records := m.List(network)
	slices.SortStableFunc(records, func(a, b Record) int {
		switch {
		case a.Info.Miner == b.Info.Miner:
			return 0
		case a.Info.Miner:
			return -1
		default:
			return 1
		}
	})

	addrs := make([]enode.Address, 0, len(records))
	for _, rec := range records {
		addr, err := rec.Info.Address()
		if err != nil {
			continue
		}
		addrs = append(addrs, addr)
	}
	return addrs
}

// Delete removes a record.
func (m *MemoryStore) Delete(network, id string) {
	m.cache.Delete(key(network, id))
}

// Stats returns the number of live records and networks.
func (m *MemoryStore) Stats() StoreStats {
	networks := make(map[string]struct{})
	items := m.cache.Items()
	for _, item := range items {
		if rec, ok := item.Object.(Record); ok {
			networks[rec.Info.Network] = struct{}{}
		}
	}
	return StoreStats{Records: len(items), Networks: len(networks)}
}

var _ Store = (*MemoryStore)(nil)
