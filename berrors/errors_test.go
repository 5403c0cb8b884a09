package berrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKindOnly(t *testing.T) {
	err := New(NotFound, "user %s", "AAAA-AAAA-AAAA-A")
	assert.True(t, errors.Is(err, NotFound))
	assert.False(t, errors.Is(err, BadData))
}

func TestWithLocusPreservesKind(t *testing.T) {
	err := New(Permission, "cannot write signed cert")
	err = WithLocus(err, "subjectDN", AttrValue)
	assert.True(t, errors.Is(err, Permission))
	var pe *PKICoreError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, "subjectDN", pe.ErrorLocus)
	assert.Equal(t, AttrValue, pe.AttrType)
}

func TestRecodeBadDataToSignature(t *testing.T) {
	original := New(BadData, "garbage signature bytes")
	recoded := Recode(Signature, original)
	assert.True(t, errors.Is(recoded, Signature))
	assert.NotEqual(t, Of(BadData), Of(recoded))
	assert.ErrorIs(t, recoded, errors.Unwrap(recoded))
}

func TestErrorMessageIncludesLocus(t *testing.T) {
	err := WithLocus(New(Invalid, "constraint violated"), "keyUsage", Constraint)
	assert.Equal(t, fmt.Sprintf("%s", err), "Invalid: constraint violated (keyUsage)")
}
