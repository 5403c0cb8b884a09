package ocspproto

import (
	"bytes"
	"encoding/gob"
	"errors"
	"math/big"

	"github.com/aox/pkicore/berrors"
	"github.com/aox/pkicore/certobj"
	"github.com/aox/pkicore/certstore"
	"github.com/aox/pkicore/identifier"
)

// CertStoreLookup backs a Responder's RevocationLookup with a
// certstore.Store, the same opaque-blob storage scep.Engine's
// PKIUserStore sits on top of. Entries are keyed by issuerID (SHA1 of
// SEQUENCE { issuerDN, INTEGER serial }) so a shared Store instance can hold issuance
// records, PKI user records, and revocation status without collisions.
type CertStoreLookup struct {
	Store    certstore.Store
	IssuerDN []byte
}

// NewCertStoreLookup wraps store for revocation lookups against the
// issuer identified by issuerDN (its DER-encoded Name).
func NewCertStoreLookup(store certstore.Store, issuerDN []byte) *CertStoreLookup {
	return &CertStoreLookup{Store: store, IssuerDN: issuerDN}
}

// Record marks serial's status, inserting a fresh entry or overwriting an
// existing one.
func (c *CertStoreLookup) Record(entry certobj.ValidityEntry) error {
	id, err := identifier.NewIssuerID(c.IssuerDN, entry.Serial)
	if err != nil {
		return err
	}
	blob, err := encodeValidityEntry(entry)
	if err != nil {
		return err
	}
	if err := c.Store.Insert(id, blob); err != nil {
		if errors.Is(err, berrors.Duplicate) {
			return c.Store.Update(id, blob)
		}
		return err
	}
	return nil
}

// Lookup implements RevocationLookup, reporting StatusUnknown for any
// serial this store has no record of rather than surfacing a storage
// error, matching RFC 6960's allowance for an "unknown" status on
// certificates outside the responder's knowledge.
func (c *CertStoreLookup) Lookup(serial *big.Int) (certobj.ValidityEntry, error) {
	serialBytes := serial.Bytes()
	id, err := identifier.NewIssuerID(c.IssuerDN, serialBytes)
	if err != nil {
		return certobj.ValidityEntry{}, err
	}
	blob, err := c.Store.Lookup(id)
	if err != nil {
		if errors.Is(err, berrors.NotFound) {
			return certobj.ValidityEntry{Serial: serialBytes, Status: certobj.StatusUnknown}, nil
		}
		return certobj.ValidityEntry{}, err
	}
	return decodeValidityEntry(blob)
}

// HashCertStoreLookup backs HashLookup with a certstore.Store, keyed
// directly by a certificate's own hash (HashCertificate) rather than
// identifier.NewIssuerID -- RTCS has no issuer/serial pair to derive a key
// from, only the certificate's own digest.
type HashCertStoreLookup struct {
	Store certstore.Store
}

// NewHashCertStoreLookup wraps store for RTCS lookups.
func NewHashCertStoreLookup(store certstore.Store) *HashCertStoreLookup {
	return &HashCertStoreLookup{Store: store}
}

// Record marks the certificate identified by certHash with the given
// status, inserting a fresh entry or overwriting an existing one.
func (h *HashCertStoreLookup) Record(certHash []byte, entry certobj.ValidityEntry) error {
	id := hashID(certHash)
	blob, err := encodeValidityEntry(entry)
	if err != nil {
		return err
	}
	if err := h.Store.Insert(id, blob); err != nil {
		if errors.Is(err, berrors.Duplicate) {
			return h.Store.Update(id, blob)
		}
		return err
	}
	return nil
}

// LookupByHash implements HashLookup, reporting StatusUnknown for any
// certificate hash the store has no record of.
func (h *HashCertStoreLookup) LookupByHash(certHash []byte) (certobj.ValidityEntry, error) {
	blob, err := h.Store.Lookup(hashID(certHash))
	if err != nil {
		if errors.Is(err, berrors.NotFound) {
			return certobj.ValidityEntry{Status: certobj.StatusUnknown}, nil
		}
		return certobj.ValidityEntry{}, err
	}
	return decodeValidityEntry(blob)
}

func hashID(certHash []byte) identifier.ID {
	var id identifier.ID
	copy(id[:], certHash)
	return id
}

func encodeValidityEntry(entry certobj.ValidityEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return nil, berrors.New(berrors.Write, "encoding validity entry: %v", err)
	}
	return buf.Bytes(), nil
}

func decodeValidityEntry(blob []byte) (certobj.ValidityEntry, error) {
	var entry certobj.ValidityEntry
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&entry); err != nil {
		return certobj.ValidityEntry{}, berrors.New(berrors.Read, "decoding validity entry: %v", err)
	}
	return entry, nil
}
