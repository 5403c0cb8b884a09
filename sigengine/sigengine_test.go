package sigengine

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/aox/pkicore/berrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndVerifyRoundTrip(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	body := []byte("tbsCertificate placeholder bytes")
	signed, err := CreateX509Signature(body, key, crypto.SHA256, Plain, 0, false)
	require.NoError(t, err)

	require.NoError(t, VerifyX509(signed, &key.PublicKey))
}

func TestVerifyFailsOnTamperedBody(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	signed, err := CreateX509Signature([]byte("original body"), key, crypto.SHA256, Plain, 0, false)
	require.NoError(t, err)

	parsed, err := Parse(Plain, signed)
	require.NoError(t, err)
	parsed.Body = []byte("tampered body!!")
	assert.Error(t, Verify(parsed, &key.PublicKey))
}

func TestSideChannelSelfCheckPasses(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	signed, err := CreateX509Signature([]byte("body"), key, crypto.SHA256, Plain, 0, true)
	require.NoError(t, err)
	assert.NotEmpty(t, signed)
}

func TestImplicitTagWrapperRoundTrip(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	wrapper := ImplicitTag(0)
	signed, err := CreateX509Signature([]byte("crmf pop body"), key, crypto.SHA256, wrapper, 0, false)
	require.NoError(t, err)

	parsed, err := Parse(wrapper, signed)
	require.NoError(t, err)
	require.NoError(t, Verify(parsed, &key.PublicKey))
}

func TestResolveChainFaultDistinguishesBadDataFromSignature(t *testing.T) {
	skid := []byte("0123456789abcdefghij")
	assert.True(t, errors.Is(ResolveChainFault(skid, skid), berrors.BadData))

	akid := []byte("zzzzzzzzzzzzzzzzzzzz")
	assert.True(t, errors.Is(ResolveChainFault(akid, skid), berrors.Signature))
}

func TestGenerateSKIDIsStableForSameKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	skid1, err := GenerateSKID(&key.PublicKey)
	require.NoError(t, err)
	skid2, err := GenerateSKID(&key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, skid1, skid2)
	assert.Len(t, skid1, 20)
}
