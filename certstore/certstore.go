// Package certstore implements the external CertStore from spec §4.1/§28:
// "a stateless-looking interface: insert, lookup by identifier, update.
// Backed by an opaque blob store." It also holds the PKI User Record store
// spec §4.3/§6 describes as living inside the CertStore, since both are
// just keyed blob storage over an identifier.ID key.
//
// Grounded on identifier.ID as the key type throughout (nameID/certID are
// both already SHA-1-sized IDs from that package), and on ca/ca.go's
// pattern of a narrow storage interface the issuer depends on rather than
// a concrete database type.
package certstore

import (
	"sync"

	"github.com/aox/pkicore/berrors"
	"github.com/aox/pkicore/identifier"
)

// Store is the external CertStore contract: insert a new blob under id,
// look it up, or update an existing one. All three operations are keyed by
// identifier.ID (nameID, certID, or a PKI user's userID padded/hashed to
// the same width), never by a raw database row number.
type Store interface {
	Insert(id identifier.ID, blob []byte) error
	Lookup(id identifier.ID) ([]byte, error)
	Update(id identifier.ID, blob []byte) error
}

// Memory is the default in-memory Store, used by unit tests and any
// deployment that doesn't need durability across restarts.
type Memory struct {
	mu      sync.RWMutex
	records map[identifier.ID][]byte
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[identifier.ID][]byte)}
}

func (m *Memory) Insert(id identifier.ID, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; ok {
		return berrors.New(berrors.Duplicate, "certstore: record %x already exists", id.Bytes())
	}
	cp := append([]byte(nil), blob...)
	m.records[id] = cp
	return nil
}

func (m *Memory) Lookup(id identifier.ID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.records[id]
	if !ok {
		return nil, berrors.New(berrors.NotFound, "certstore: no record for %x", id.Bytes())
	}
	return append([]byte(nil), blob...), nil
}

func (m *Memory) Update(id identifier.ID, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return berrors.New(berrors.NotFound, "certstore: no record for %x", id.Bytes())
	}
	cp := append([]byte(nil), blob...)
	m.records[id] = cp
	return nil
}
