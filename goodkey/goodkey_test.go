package goodkey

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoodKeyAcceptsRSA2048(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	assert.NoError(t, DefaultPolicy().GoodKey(&key.PublicKey))
}

func TestGoodKeyRejectsSmallRSAModulus(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	assert.Error(t, DefaultPolicy().GoodKey(&key.PublicKey))
}

func TestGoodKeyRejectsOversizedRSAModulus(t *testing.T) {
	p := DefaultPolicy()
	p.MaxRSAModulusBits = 2048
	key, err := rsa.GenerateKey(rand.Reader, 3072)
	require.NoError(t, err)
	assert.Error(t, p.GoodKey(&key.PublicKey))
}

func TestGoodKeyAcceptsP256(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	assert.NoError(t, DefaultPolicy().GoodKey(&key.PublicKey))
}

func TestGoodKeyRejectsDisallowedCurve(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P224(), rand.Reader)
	require.NoError(t, err)
	assert.Error(t, DefaultPolicy().GoodKey(&key.PublicKey))
}

func TestGoodKeyRejectsUnsupportedKeyType(t *testing.T) {
	assert.Error(t, DefaultPolicy().GoodKey("not a key"))
}
