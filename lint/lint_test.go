package lint

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func minimalSelfSignedCert(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "minimal.example"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

func TestLintRejectsMinimalCertificateMissingBaselineExtensions(t *testing.T) {
	l := New()
	findings, err := l.Lint(minimalSelfSignedCert(t))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrLinting))
	require.NotEmpty(t, findings)
}

func TestNewExcludingBuildsAFilteredLinter(t *testing.T) {
	l := NewExcluding("e_qcstatem_qctype_web")
	require.NotNil(t, l)
	require.NotNil(t, l.registry)
}
