package pkiuser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a}
	presentation, err := Encode(payload)
	require.NoError(t, err)
	assert.Contains(t, presentation, "-")

	decoded, err := Decode(presentation)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestEncodeRejectsWrongPayloadSize(t *testing.T) {
	_, err := Encode([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestDecodeRejectsForeignCharacter(t *testing.T) {
	payload := make([]byte, PayloadSize)
	presentation, err := Encode(payload)
	require.NoError(t, err)
	corrupted := []byte(presentation)
	corrupted[0] = '0' // '0' is outside the confusable-free alphabet
	_, err = Decode(string(corrupted))
	require.Error(t, err)
}

func TestDecodeRejectsChecksumMismatch(t *testing.T) {
	payload := []byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80, 0x90, 0xa0}
	presentation, err := Encode(payload)
	require.NoError(t, err)

	mutated := []rune(presentation)
	for i, c := range mutated {
		if c != '-' {
			if c == alphabet[0] {
				mutated[i] = rune(alphabet[1])
			} else {
				mutated[i] = rune(alphabet[0])
			}
			break
		}
	}
	_, err = Decode(string(mutated))
	require.Error(t, err)
}

func TestMatchesUserIDAcceptsPresentationForm(t *testing.T) {
	payload := []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x11, 0x22, 0x33, 0x44}
	presentation, err := Encode(payload)
	require.NoError(t, err)

	rec := &Record{UserID: payload}
	assert.True(t, rec.MatchesUserID([]byte(presentation)))
	assert.True(t, rec.MatchesUserID(payload))
	assert.False(t, rec.MatchesUserID([]byte("not-a-match")))
}

func TestComparePasswordByteForByte(t *testing.T) {
	rec := &Record{IssuePassword: []byte("correct-horse-battery-staple")}
	assert.True(t, rec.ComparePassword([]byte("correct-horse-battery-staple")))
	assert.False(t, rec.ComparePassword([]byte("wrong")))
}
