package envelope

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mozilla.org/pkcs7"
)

func selfSignedCert(t *testing.T) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}

func TestSignProducesParseableSignedData(t *testing.T) {
	cert, key := selfSignedCert(t)
	signed, err := Sign([]byte("hello world"), cert, key, nil, cert)
	require.NoError(t, err)
	assert.NotEmpty(t, signed)

	p7, err := pkcs7.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), p7.Content)
}

func TestDigestedDataRoundTripsThroughContentInfo(t *testing.T) {
	out, err := DigestedData([]byte("payload"))
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	ci, err := unwrapContentInfo(out)
	require.NoError(t, err)
	assert.True(t, ci.ContentType.Equal(oidDigestedData))
}

func TestCompressedDataRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog, repeated many times for better compression ratio testing")
	out, err := CompressedData(payload)
	require.NoError(t, err)

	decompressed, err := DecompressData(out)
	require.NoError(t, err)
	assert.Equal(t, payload, decompressed)
}

func TestConsumerWalksCompressedDataToDone(t *testing.T) {
	c := NewConsumer()
	compressed, err := CompressedData([]byte("abc"))
	require.NoError(t, err)
	c.Feed(compressed)

	for i := 0; i < 10 && c.State() != StateDone; i++ {
		err := c.Step()
		require.NoError(t, err)
	}
	assert.Equal(t, StateDone, c.State())
}
