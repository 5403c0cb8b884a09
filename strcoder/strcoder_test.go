package strcoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBMPNarrowsToPrintableOnDecode(t *testing.T) {
	// BMPString "ABC": 00 41 00 42 00 43
	content := []byte{0x00, 0x41, 0x00, 0x42, 0x00, 0x43}
	ts, err := DecodeASN1(TagBMP, content, false)
	require.NoError(t, err)
	assert.Equal(t, TagPrintable, ts.Tag)
	assert.Equal(t, []byte("ABC"), ts.Bytes)

	tag, enc, err := EncodeASN1("ABC")
	require.NoError(t, err)
	assert.Equal(t, TagPrintable, tag)
	assert.Equal(t, []byte("ABC"), enc)
	assert.Less(t, len(enc), len(content))
}

func TestT61UmlautCollapse(t *testing.T) {
	// T61 "\xC8ax" -> Latin-1 "\xE4x" ("äx")
	content := []byte{0xC8, 0x61, 0x78}
	ts, err := DecodeASN1(TagT61, content, true)
	require.NoError(t, err)
	assert.Equal(t, TagT61, ts.Tag)
	assert.Equal(t, []byte{0xE4, 0x78}, ts.Bytes)
	assert.Len(t, ts.Bytes, len(content)-1)
}

func TestT61UmlautCollapseDisabledByDefault(t *testing.T) {
	content := []byte{0xC8, 0x61, 0x78}
	ts, err := DecodeASN1(TagT61, content, false)
	require.NoError(t, err)
	assert.Equal(t, content, ts.Bytes)
}

func TestEncodeDecodeRoundTripIA5(t *testing.T) {
	tag, enc, err := EncodeASN1("user@example.com")
	require.NoError(t, err)
	assert.Equal(t, TagIA5, tag)

	ts, err := DecodeASN1(tag, enc, false)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", string(ts.Bytes))
}

func TestEncodeFailsForUnrepresentableCodePoint(t *testing.T) {
	_, _, err := EncodeASN1(string(rune(0x10000)))
	require.Error(t, err)
}

func TestCanonicalUTF8RejectsOverlong(t *testing.T) {
	// Overlong encoding of U+002F ('/') as two bytes: 0xC0 0xAF.
	_, err := DecodeASN1(TagUTF8, []byte{0xC0, 0xAF}, false)
	require.Error(t, err)
}

func TestCanonicalUTF8RejectsAboveBMP(t *testing.T) {
	// Valid 4-byte UTF-8 for U+10000, which is above the BMP ceiling.
	_, err := DecodeASN1(TagUTF8, []byte{0xF0, 0x90, 0x80, 0x80}, false)
	require.Error(t, err)
}

func TestCanonicalUTF8AcceptsMinimalEncoding(t *testing.T) {
	ts, err := DecodeASN1(TagUTF8, []byte("hello"), false)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(ts.Bytes))
}
