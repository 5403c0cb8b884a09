package certstore

import (
	"bytes"
	"crypto/sha1"
	"encoding/gob"

	"github.com/aox/pkicore/berrors"
	"github.com/aox/pkicore/identifier"
	"github.com/aox/pkicore/pkiuser"
)

// PKIUserStore adapts a Store into the PKI User Record store spec §4.3/§6
// describes: "held in the CertStore" rather than a separate table. It
// satisfies scep.UserStore's shape (FindByTransactionID) structurally,
// without importing the scep package -- certstore sits below scep in the
// dependency order.
type PKIUserStore struct {
	backing Store
}

// NewPKIUserStore wraps backing for PKI User Record storage.
func NewPKIUserStore(backing Store) *PKIUserStore {
	return &PKIUserStore{backing: backing}
}

// Register inserts record under its own userID, encoding it as the opaque
// blob the underlying Store deals in.
func (p *PKIUserStore) Register(record *pkiuser.Record) error {
	blob, err := encodeRecord(record)
	if err != nil {
		return err
	}
	return p.backing.Insert(userRecordID(record.UserID), blob)
}

// FindByTransactionID looks up the PKI User Record whose userID matches
// transID, per spec §4.7 step 5's authentication lookup. transID is hashed
// the same way Register keys a record, so the two agree regardless of
// whether the caller ever holds a Record's exact userID bytes versus a raw
// transaction identifier believed to carry the same value.
func (p *PKIUserStore) FindByTransactionID(transID []byte) (*pkiuser.Record, error) {
	blob, err := p.backing.Lookup(userRecordID(transID))
	if err != nil {
		return nil, err
	}
	return decodeRecord(blob)
}

// userRecordID derives the storage key for a PKI User Record from its raw
// userID (or transaction-ID candidate): SHA1, the same width every other
// identifier.ID already uses, so PKIUserStore can share a Store instance
// with certificate records without key collisions being meaningfully more
// likely than within either keyspace alone.
func userRecordID(userID []byte) identifier.ID {
	return identifier.ID(sha1.Sum(userID))
}

func encodeRecord(record *pkiuser.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(record); err != nil {
		return nil, berrors.New(berrors.Write, "encoding PKI user record: %v", err)
	}
	return buf.Bytes(), nil
}

func decodeRecord(blob []byte) (*pkiuser.Record, error) {
	var record pkiuser.Record
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&record); err != nil {
		return nil, berrors.New(berrors.Read, "decoding PKI user record: %v", err)
	}
	return &record, nil
}
