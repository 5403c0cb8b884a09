// Package identifier implements the IdentifierService layer from spec §4.3:
// deriving lookup keys (nameID, issuerID, certID, keyID) from a DN and
// comparing them with braindamage-tolerant equality, so that an untrusted
// CertStore can act as a black-box oracle without exposing its internals.
//
// Grounded on original_source/cryptlib/cert/certschk.c's generateCertID
// (nameID is SHA1(DN), issuerID is SHA1(SEQUENCE{DN, INTEGER serial})) and
// re-shaped with the naming conventions of boulder's identifier package
// (New*/From*/To* functions, a named fixed-size byte-array type with methods).
package identifier

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // SHA-1 is the wire-mandated hash for these IDs, not a security boundary
	"crypto/subtle"

	"github.com/aox/pkicore/asn1io"
	"github.com/aox/pkicore/berrors"
)

// Size is the fixed byte length of every identifier this package produces,
// per spec §6 ("Identifier sizes ... all 20 bytes (SHA-1)").
const Size = sha1.Size

// MaxSerialSize bounds accepted serial numbers, per spec §6's
// MAX_SERIALNO_SIZE.
const MaxSerialSize = 32

// ID is a 20-byte SHA-1-derived lookup key.
type ID [Size]byte

// IsZero reports whether id is the zero value (never computed by this
// package, but a convenient sentinel for "not yet derived").
func (id ID) IsZero() bool { return id == ID{} }

// Bytes returns id as a byte slice.
func (id ID) Bytes() []byte { return id[:] }

// Equal compares two identifiers for equality, using a constant-time byte
// comparison, per spec §4.3's "braindamage-tolerant" equality -- tolerant
// of the serial-number leading-zero quirk handled separately by
// CompareSerial, not of sloppy comparison logic.
func (id ID) Equal(other ID) bool {
	return subtle.ConstantTimeCompare(id[:], other[:]) == 1
}

// NewNameID derives the nameID of a DN from its canonical DER encoding:
// nameID = SHA1(DN-as-encoded). Used for CertObject subject/issuer lookup
// and is also the certID of a subject, per spec §3.
func NewNameID(dnDER []byte) ID {
	return ID(sha1.Sum(dnDER))
}

// NewCertID is an alias for NewNameID, named separately because spec §3
// defines certID as "nameID of subject" -- a distinct concept at the
// CertObject layer even though the derivation is identical.
func NewCertID(subjectDNDER []byte) ID {
	return NewNameID(subjectDNDER)
}

// NewIssuerID derives issuerID = SHA1(SEQUENCE { issuerDN, INTEGER
// serialNumber }), matching certschk.c's generateCertID when a serial
// number is supplied. serial is the raw big-endian magnitude (no leading
// zero padding required; WriteBignum adds it where DER requires it).
func NewIssuerID(issuerDNDER []byte, serial []byte) (ID, error) {
	if len(serial) > MaxSerialSize {
		return ID{}, berrors.New(berrors.Overflow, "serial number of %d bytes exceeds max %d", len(serial), MaxSerialSize)
	}
	inner := asn1io.NewWriter()
	if _, err := inner.WriteRaw(issuerDNDER); err != nil {
		return ID{}, err
	}
	if err := inner.WriteBignum(serial); err != nil {
		return ID{}, err
	}
	return ID(sha1.Sum(asn1io.WrapSequence(inner.Bytes()))), nil
}

// NewKeyID derives a keyID from a SubjectPublicKeyInfo's BIT STRING payload
// (the subjectPublicKey bits, excluding tag/length/unused-bits-count), per
// spec §3: "keyID: taken from the SPKI". Because CA key rollovers can
// legitimately change keyID, a keyID mismatch alone must not be treated as
// a hard trust failure; see sigengine's fallback (spec §4.6) for the
// surveyed comparison this produces a false non-match for.
func NewKeyID(spkiBitStringPayload []byte) ID {
	return ID(sha1.Sum(spkiBitStringPayload))
}

// CompareSerial implements spec §4.3 and §8's length-tolerant serial
// comparison: a leading 0x00 byte is stripped before comparison as long as
// doing so doesn't change the represented magnitude (i.e. the next byte's
// high bit must be clear, since a set high bit means the leading zero was
// required by DER to keep the INTEGER non-negative and is therefore
// significant).
func CompareSerial(a, b []byte) bool {
	return bytes.Equal(normalizeSerial(a), normalizeSerial(b))
}

func normalizeSerial(s []byte) []byte {
	for len(s) > 1 && s[0] == 0x00 && s[1]&0x80 == 0 {
		s = s[1:]
	}
	return s
}
