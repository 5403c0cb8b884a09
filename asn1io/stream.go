// Package asn1io implements the PrimitiveIO layer from spec §4.1: a byte
// codec with an explicit cursor and a sticky error flag, grounded on
// cryptlib's misc/stream.c and misc/asn1.h (sread/swrite/sgetc, the
// read*/write* family) and re-expressed over golang.org/x/crypto/cryptobyte,
// the same byte-string-with-cursor abstraction boulder uses in
// ca/ca.go's tbsCertIsDeterministic to pick apart a DER certificate by hand.
//
// Every read advances the cursor on success and leaves it untouched on
// failure. Once an error has been recorded, every subsequent call is a
// no-op that returns the same error ("sticky error"), matching the
// cryptlib STREAM.status behavior referenced throughout asn1.h.
package asn1io

import (
	"encoding/asn1"

	"github.com/aox/pkicore/berrors"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// PartialRead, when true on a ByteStream backed by a bounded buffer, makes
// an underflowing read return the partial byte count instead of an
// Underflow error, matching spec §5's "PartialRead flag on the stream".
type ByteStream struct {
	buf        []byte
	pos        int
	err        error
	null       bool // a null sink: writes succeed and only grow count
	count      int
	PartialRead bool
}

// NewReader wraps buf for reading. The returned stream does not copy buf.
func NewReader(buf []byte) *ByteStream {
	return &ByteStream{buf: buf}
}

// NewWriter returns an empty stream that accumulates written bytes.
func NewWriter() *ByteStream {
	return &ByteStream{}
}

// NewNullWriter returns a stream whose writes always succeed and only grow
// a counter, used to compute sizeofObject without allocating (spec §4.1).
func NewNullWriter() *ByteStream {
	return &ByteStream{null: true}
}

// Err returns the stream's sticky error, or nil.
func (s *ByteStream) Err() error { return s.err }

// setErr records the sticky error if none is set yet, and returns it.
func (s *ByteStream) setErr(err error) error {
	if s.err == nil {
		s.err = err
	}
	return s.err
}

// Pos returns the current cursor position.
func (s *ByteStream) Pos() int { return s.pos }

// Bytes returns the bytes written so far (writer streams) or the full
// backing buffer (reader streams).
func (s *ByteStream) Bytes() []byte { return s.buf }

// Count returns the number of bytes that would have been written to a null
// stream, i.e. sizeofObject.
func (s *ByteStream) Count() int { return s.count }

// Remaining reports how many unconsumed bytes remain in a reader stream.
func (s *ByteStream) Remaining() int {
	if s.pos > len(s.buf) {
		return 0
	}
	return len(s.buf) - s.pos
}

// Rewind resets the cursor to the given position, used by the deenveloping
// state machine (spec §4.4) to back out to the last successful element
// boundary after an Underflow.
func (s *ByteStream) Rewind(pos int) {
	s.pos = pos
}

// ReadRaw reads n raw bytes, advancing the cursor only on success. If the
// stream has PartialRead enabled and fewer than n bytes remain, it returns
// whatever is available with no error; otherwise it returns Underflow.
func (s *ByteStream) ReadRaw(n int) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if n < 0 {
		return nil, s.setErr(berrors.New(berrors.BadData, "negative read length"))
	}
	avail := s.Remaining()
	if avail < n {
		if s.PartialRead {
			out := s.buf[s.pos : s.pos+avail]
			s.pos += avail
			return out, nil
		}
		return nil, berrors.New(berrors.Underflow, "need %d bytes, have %d", n, avail)
	}
	out := s.buf[s.pos : s.pos+n]
	s.pos += n
	return out, nil
}

// WriteRaw appends p to a writer stream, or just counts it on a null stream.
func (s *ByteStream) WriteRaw(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.null {
		s.count += len(p)
		return len(p), nil
	}
	s.buf = append(s.buf, p...)
	s.count += len(p)
	return len(p), nil
}

// PeekTag returns the next object's tag without consuming any bytes.
func (s *ByteStream) PeekTag() (cryptobyte_asn1.Tag, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.Remaining() < 1 {
		return 0, berrors.New(berrors.Underflow, "need 1 byte for tag, have 0")
	}
	return cryptobyte_asn1.Tag(s.buf[s.pos]), nil
}

// ReadRawObject reads one complete TLV (tag, length, value), returning the
// tag and the content bytes only (tag and length octets stripped), matching
// cryptlib's readRawObjectTag. maxLen bounds the accepted length to guard
// against a hostile length field (spec §4.1 Overflow). Use ReadFullObject
// instead when the header bytes themselves are needed (e.g. re-hashing a
// signed body, which must include its own SEQUENCE tag+length).
func (s *ByteStream) ReadRawObject(maxLen int) (tag cryptobyte_asn1.Tag, value []byte, err error) {
	if s.err != nil {
		return 0, nil, s.err
	}
	start := s.pos
	input := cryptobyte.String(s.buf[s.pos:])
	var inner cryptobyte.String
	var outerTag cryptobyte_asn1.Tag
	if !input.ReadAnyASN1(&inner, &outerTag) {
		return 0, nil, s.setErr(berrors.New(berrors.Underflow, "incomplete TLV at offset %d", s.pos))
	}
	if maxLen > 0 && len(inner) > maxLen {
		return 0, nil, s.setErr(berrors.New(berrors.Overflow, "object of %d bytes exceeds max %d", len(inner), maxLen))
	}
	consumed := len(s.buf[s.pos:]) - len(input)
	s.pos = start + consumed
	return outerTag, []byte(inner), nil
}

// ReadFullObject reads one complete TLV like ReadRawObject, but returns the
// header (tag+length octets) and content together verbatim -- the form
// needed when the bytes are destined to be re-hashed or re-embedded
// (e.g. extracting a TBSCertificate to feed to a signature engine).
func (s *ByteStream) ReadFullObject(maxLen int) (tag cryptobyte_asn1.Tag, value []byte, err error) {
	if s.err != nil {
		return 0, nil, s.err
	}
	start := s.pos
	input := cryptobyte.String(s.buf[s.pos:])
	var inner cryptobyte.String
	var outerTag cryptobyte_asn1.Tag
	if !input.ReadAnyASN1Element(&inner, &outerTag) {
		return 0, nil, s.setErr(berrors.New(berrors.Underflow, "incomplete TLV at offset %d", s.pos))
	}
	if maxLen > 0 && len(inner) > maxLen {
		return 0, nil, s.setErr(berrors.New(berrors.Overflow, "object of %d bytes exceeds max %d", len(inner), maxLen))
	}
	consumed := len(s.buf[s.pos:]) - len(input)
	s.pos = start + consumed
	return outerTag, []byte(inner), nil
}

// ReadSequenceHeader reads a SEQUENCE tag+length header and returns the
// length of its content, leaving the cursor positioned at the first
// content byte, matching cryptlib's readSequence.
func (s *ByteStream) ReadSequenceHeader() (int, error) {
	return s.readHeader(cryptobyte_asn1.SEQUENCE)
}

// ReadConstructed reads a constructed tag+length header for an arbitrary
// context-specific or universal tag.
func (s *ByteStream) ReadConstructed(tag cryptobyte_asn1.Tag) (int, error) {
	return s.readHeader(tag)
}

func (s *ByteStream) readHeader(tag cryptobyte_asn1.Tag) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	start := s.pos
	input := cryptobyte.String(s.buf[s.pos:])
	var inner cryptobyte.String
	if !input.ReadASN1(&inner, tag) {
		return 0, s.setErr(berrors.New(berrors.Underflow, "incomplete header at offset %d", s.pos))
	}
	consumed := len(s.buf[s.pos:]) - len(input) - len(inner)
	s.pos = start + consumed
	return len(inner), nil
}

// ReadUniversal skips exactly one complete object, matching cryptlib's
// readUniversal. Used when a field is present in the DER but not of
// interest to the caller.
func (s *ByteStream) ReadUniversal() error {
	_, _, err := s.ReadRawObject(0)
	return err
}

// ReadGenericHole reads a tag+length header, returning the content length,
// for a generic "hole" whose shape the caller already knows. The tag must
// equal expectedTag; any other tag fails like a truncated header.
func (s *ByteStream) ReadGenericHole(expectedTag cryptobyte_asn1.Tag) (int, error) {
	return s.readHeader(expectedTag)
}

// ReadShortInteger reads a small ASN.1 INTEGER into an int64, matching
// cryptlib's readShortInteger.
func (s *ByteStream) ReadShortInteger() (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	start := s.pos
	input := cryptobyte.String(s.buf[s.pos:])
	var v int64
	if !input.ReadASN1Integer(&v) {
		return 0, s.setErr(berrors.New(berrors.BadData, "malformed short integer at offset %d", s.pos))
	}
	consumed := len(s.buf[s.pos:]) - len(input)
	s.pos = start + consumed
	return v, nil
}

// WriteShortInteger writes a small ASN.1 INTEGER.
func (s *ByteStream) WriteShortInteger(v int64) error {
	if s.err != nil {
		return s.err
	}
	var b cryptobyte.Builder
	b.AddASN1Int64(v)
	out, err := b.Bytes()
	if err != nil {
		return s.setErr(berrors.New(berrors.BadData, "encoding integer: %s", err))
	}
	_, werr := s.WriteRaw(out)
	return werr
}

// ReadBignum reads an arbitrary-precision ASN.1 INTEGER as big-endian bytes
// (sign-magnitude, minus the leading 00 padding byte DER may require),
// matching cryptlib's readBignum / writeBignum pair used for serial
// numbers and RSA components.
func (s *ByteStream) ReadBignum(maxLen int) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	start := s.pos
	input := cryptobyte.String(s.buf[s.pos:])
	var raw cryptobyte.String
	if !input.ReadASN1(&raw, cryptobyte_asn1.INTEGER) {
		return nil, s.setErr(berrors.New(berrors.BadData, "malformed integer at offset %d", s.pos))
	}
	if len(raw) > 1 && raw[0] == 0x00 && raw[1]&0x80 != 0 {
		raw = raw[1:]
	}
	if maxLen > 0 && len(raw) > maxLen {
		return nil, s.setErr(berrors.New(berrors.Overflow, "integer of %d bytes exceeds max %d", len(raw), maxLen))
	}
	consumed := len(s.buf[s.pos:]) - len(input)
	s.pos = start + consumed
	return []byte(raw), nil
}

// WriteBignum DER-encodes value as an ASN.1 INTEGER, adding a leading zero
// byte if needed to keep it non-negative.
func (s *ByteStream) WriteBignum(value []byte) error {
	if s.err != nil {
		return s.err
	}
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.INTEGER, func(child *cryptobyte.Builder) {
		v := value
		if len(v) == 0 {
			v = []byte{0}
		}
		if v[0]&0x80 != 0 {
			child.AddBytes([]byte{0})
		}
		child.AddBytes(v)
	})
	out, err := b.Bytes()
	if err != nil {
		return s.setErr(berrors.New(berrors.BadData, "encoding bignum: %s", err))
	}
	_, werr := s.WriteRaw(out)
	return werr
}

// ReadBoolean reads an ASN.1 BOOLEAN.
func (s *ByteStream) ReadBoolean() (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	tag, value, rerr := s.ReadRawObject(1)
	if rerr != nil {
		return false, rerr
	}
	if tag != cryptobyte_asn1.BOOLEAN || len(value) != 1 {
		return false, s.setErr(berrors.New(berrors.BadData, "malformed boolean"))
	}
	return value[0] != 0x00, nil
}

// WriteBoolean writes an ASN.1 BOOLEAN.
func (s *ByteStream) WriteBoolean(v bool) error {
	if s.err != nil {
		return s.err
	}
	var b cryptobyte.Builder
	b.AddASN1Boolean(v)
	out, err := b.Bytes()
	if err != nil {
		return s.setErr(err)
	}
	_, werr := s.WriteRaw(out)
	return werr
}

// ReadOctetString reads an ASN.1 OCTET STRING, bounded by maxLen (0 means
// unbounded) to support the "long-length variants for CRLs" case in spec
// §4.1.
func (s *ByteStream) ReadOctetString(maxLen int) ([]byte, error) {
	tag, value, err := s.ReadRawObject(maxLen)
	if err != nil {
		return nil, err
	}
	if tag != cryptobyte_asn1.OCTET_STRING {
		return nil, s.setErr(berrors.New(berrors.BadData, "expected OCTET STRING, got tag %d", tag))
	}
	return value, nil
}

// WriteOctetString writes an ASN.1 OCTET STRING.
func (s *ByteStream) WriteOctetString(value []byte) error {
	if s.err != nil {
		return s.err
	}
	var b cryptobyte.Builder
	b.AddASN1OctetString(value)
	out, err := b.Bytes()
	if err != nil {
		return s.setErr(err)
	}
	_, werr := s.WriteRaw(out)
	return werr
}

// ReadBitString reads an ASN.1 BIT STRING, returning the content bytes
// (without the leading unused-bits-count byte) and the unused-bit count
// separately.
func (s *ByteStream) ReadBitString(maxLen int) (bits []byte, unused int, err error) {
	tag, value, err := s.ReadRawObject(maxLen)
	if err != nil {
		return nil, 0, err
	}
	if tag != cryptobyte_asn1.BIT_STRING || len(value) < 1 {
		return nil, 0, s.setErr(berrors.New(berrors.BadData, "malformed bit string"))
	}
	return value[1:], int(value[0]), nil
}

// WriteBitString writes an ASN.1 BIT STRING with zero unused bits.
func (s *ByteStream) WriteBitString(bits []byte) error {
	if s.err != nil {
		return s.err
	}
	var b cryptobyte.Builder
	b.AddASN1BitString(bits)
	out, err := b.Bytes()
	if err != nil {
		return s.setErr(err)
	}
	_, werr := s.WriteRaw(out)
	return werr
}

// ReadOIDFromTable reads an OBJECT IDENTIFIER and matches it against table,
// returning the matching entry's selector (its index), or BadData if no
// entry matches -- mirroring cryptlib's readOID(stream, oidSelection,...)
// used throughout the certificate and envelope layers to recognize
// algorithm and attribute OIDs.
func (s *ByteStream) ReadOIDFromTable(table []asn1.ObjectIdentifier) (int, asn1.ObjectIdentifier, error) {
	if s.err != nil {
		return -1, nil, s.err
	}
	tag, value, err := s.ReadRawObject(64)
	if err != nil {
		return -1, nil, err
	}
	if tag != cryptobyte_asn1.OBJECT_IDENTIFIER {
		return -1, nil, s.setErr(berrors.New(berrors.BadData, "expected OID, got tag %d", tag))
	}
	oid, ok := decodeOID(value)
	if !ok {
		return -1, nil, s.setErr(berrors.New(berrors.BadData, "malformed OID encoding"))
	}
	for i, candidate := range table {
		if candidate.Equal(oid) {
			return i, oid, nil
		}
	}
	return -1, oid, berrors.New(berrors.BadData, "OID %s not in expected table", oid)
}

// WriteOID writes an ASN.1 OBJECT IDENTIFIER.
func (s *ByteStream) WriteOID(oid asn1.ObjectIdentifier) error {
	if s.err != nil {
		return s.err
	}
	var b cryptobyte.Builder
	b.AddASN1ObjectIdentifier(oid)
	out, err := b.Bytes()
	if err != nil {
		return s.setErr(err)
	}
	_, werr := s.WriteRaw(out)
	return werr
}

// decodeOID decodes the base-128 arc encoding used by ASN.1 OBJECT
// IDENTIFIER content bytes, enforcing the arc-0/arc-1 ranges from spec
// §4.1: 0<=a0<=2, 1<=a1<=39 for a0<2, 1<=a1<=175 for a0==2.
func decodeOID(content []byte) (asn1.ObjectIdentifier, bool) {
	if len(content) == 0 {
		return nil, false
	}
	var arcs []int
	val := 0
	for _, b := range content {
		val = val<<7 | int(b&0x7f)
		if b&0x80 == 0 {
			arcs = append(arcs, val)
			val = 0
		}
	}
	if len(arcs) == 0 {
		return nil, false
	}
	first := arcs[0]
	var a0, a1 int
	switch {
	case first < 80:
		a0 = first / 40
		a1 = first % 40
		if a0 > 1 && a1 > 39 {
			// first/40 saturates at 2 per the X.690 encoding rule.
			a0 = 2
			a1 = first - 80
		}
	default:
		a0 = 2
		a1 = first - 80
	}
	if a0 > 2 || a1 < 1 || (a0 < 2 && a1 > 39) || (a0 == 2 && a1 > 175) {
		return nil, false
	}
	out := asn1.ObjectIdentifier{a0, a1}
	out = append(out, arcs[1:]...)
	return out, true
}

// SizeofObject returns the DER length, including tag and length octets, of
// a value of the given content length -- cryptlib's sizeofObject, used to
// size buffers before writing without a second encode pass.
func SizeofObject(contentLen int) int {
	switch {
	case contentLen < 0x80:
		return 2 + contentLen
	case contentLen < 0x100:
		return 3 + contentLen
	case contentLen < 0x10000:
		return 4 + contentLen
	case contentLen < 0x1000000:
		return 5 + contentLen
	default:
		return 6 + contentLen
	}
}

// EncodeLength renders n as a DER length octet sequence (short or long
// form), without any accompanying tag byte.
func EncodeLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var tmp []byte
	for n > 0 {
		tmp = append([]byte{byte(n & 0xff)}, tmp...)
		n >>= 8
	}
	return append([]byte{byte(0x80 | len(tmp))}, tmp...)
}

// WrapSequence prepends a DER SEQUENCE tag+length header to content.
func WrapSequence(content []byte) []byte {
	out := make([]byte, 0, 1+len(EncodeLength(len(content)))+len(content))
	out = append(out, 0x30)
	out = append(out, EncodeLength(len(content))...)
	return append(out, content...)
}

// WrapExplicit prepends a constructed context-specific [tag] header to
// content, for CMS/PKCS structures using EXPLICIT tagging.
func WrapExplicit(tag int, content []byte) []byte {
	out := make([]byte, 0, 1+len(EncodeLength(len(content)))+len(content))
	out = append(out, byte(0xa0|tag))
	out = append(out, EncodeLength(len(content))...)
	return append(out, content...)
}
