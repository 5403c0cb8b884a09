package asn1io

import (
	"encoding/asn1"
	"testing"

	"github.com/aox/pkicore/berrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

func mustOID(arcs ...int) asn1.ObjectIdentifier {
	return asn1.ObjectIdentifier(arcs)
}

func TestReadWriteOctetStringRoundTrip(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.WriteOctetString([]byte("hello")))

	r := NewReader(w.Bytes())
	got, err := r.ReadOctetString(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
	assert.Equal(t, 0, r.Remaining())
}

func TestReadRawObjectUnderflowDoesNotAdvanceCursor(t *testing.T) {
	// A SEQUENCE header claiming 10 bytes of content but supplying only 2.
	r := NewReader([]byte{0x30, 0x0a, 0x01, 0x02})
	_, _, err := r.ReadRawObject(0)
	require.Error(t, err)
	assert.Equal(t, berrors.Underflow, berrors.Of(err))
	assert.Equal(t, 0, r.Pos())
}

func TestStickyErrorNoOpsFurtherCalls(t *testing.T) {
	r := NewReader([]byte{0x30, 0x0a, 0x01, 0x02})
	_, _, err1 := r.ReadRawObject(0)
	require.Error(t, err1)
	_, _, err2 := r.ReadRawObject(0)
	assert.Same(t, err1, err2)
}

func TestNullWriterOnlyCounts(t *testing.T) {
	w := NewNullWriter()
	require.NoError(t, w.WriteOctetString([]byte("abcdefgh")))
	assert.Nil(t, w.Bytes())
	assert.Equal(t, 10, w.Count())
}

func TestBignumRoundTripWithLeadingZero(t *testing.T) {
	w := NewWriter()
	// High bit set, so DER requires a leading zero byte to stay non-negative.
	require.NoError(t, w.WriteBignum([]byte{0x80, 0x01}))

	r := NewReader(w.Bytes())
	tag, value, err := r.ReadRawObject(0)
	require.NoError(t, err)
	assert.Equal(t, cryptobyte_asn1.INTEGER, tag)
	assert.Equal(t, []byte{0x00, 0x80, 0x01}, value)
}

func TestOIDFromTableMatchesAndRejectsUnknown(t *testing.T) {
	scepTransID := mustOID(2, 16, 840, 1, 113733, 1, 9, 7)
	scepMsgType := mustOID(2, 16, 840, 1, 113733, 1, 9, 2)
	table := []asn1.ObjectIdentifier{scepTransID, scepMsgType}

	w := NewWriter()
	require.NoError(t, w.WriteOID(scepMsgType))
	r := NewReader(w.Bytes())
	idx, oid, err := r.ReadOIDFromTable(table)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.True(t, oid.Equal(scepMsgType))

	w2 := NewWriter()
	require.NoError(t, w2.WriteOID(mustOID(1, 2, 3, 4)))
	r2 := NewReader(w2.Bytes())
	_, _, err2 := r2.ReadOIDFromTable(table)
	require.Error(t, err2)
	assert.Equal(t, berrors.BadData, berrors.Of(err2))
}

func TestReadFullObjectIncludesHeaderReadRawObjectDoesNot(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.WriteOctetString([]byte("hi")))
	encoded := w.Bytes()

	r1 := NewReader(encoded)
	_, raw, err := r1.ReadRawObject(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), raw)

	r2 := NewReader(encoded)
	_, full, err := r2.ReadFullObject(0)
	require.NoError(t, err)
	assert.Equal(t, encoded, full)
}

func TestSizeofObjectMatchesActualEncoding(t *testing.T) {
	w := NewWriter()
	content := make([]byte, 200)
	require.NoError(t, w.WriteOctetString(content))
	assert.Equal(t, len(w.Bytes()), SizeofObject(len(content)))
}
