package ocspproto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/aox/pkicore/certobj"
	"github.com/aox/pkicore/certstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuerAndLeaf(t *testing.T) (*x509.Certificate, *rsa.PrivateKey, *x509.Certificate) {
	t.Helper()

	issuerKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	issuerTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test issuer"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	issuerDER, err := x509.CreateCertificate(rand.Reader, issuerTemplate, issuerTemplate, &issuerKey.PublicKey, issuerKey)
	require.NoError(t, err)
	issuerCert, err := x509.ParseCertificate(issuerDER)
	require.NoError(t, err)

	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "leaf"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, issuerCert, &leafKey.PublicKey, issuerKey)
	require.NoError(t, err)
	leafCert, err := x509.ParseCertificate(leafDER)
	require.NoError(t, err)

	return issuerCert, issuerKey, leafCert
}

type stubLookup struct {
	entry certobj.ValidityEntry
	err   error
}

func (s stubLookup) Lookup(*big.Int) (certobj.ValidityEntry, error) {
	return s.entry, s.err
}

func TestResponderRespondSignsGoodStatus(t *testing.T) {
	issuerCert, issuerKey, leafCert := issuerAndLeaf(t)

	requestDER, err := ocsp.CreateRequest(leafCert, issuerCert, nil)
	require.NoError(t, err)

	responder := &Responder{
		IssuerCert: issuerCert,
		Signer:     issuerKey,
		Store:      stubLookup{entry: certobj.ValidityEntry{Serial: leafCert.SerialNumber.Bytes(), Status: certobj.StatusGood}},
		Validity:   time.Hour,
	}

	respDER, obj, err := responder.Respond(requestDER)
	require.NoError(t, err)
	require.NotEmpty(t, respDER)

	assert.Equal(t, certobj.KindOcspResp, obj.Kind)
	require.Len(t, obj.ValidityList, 1)
	assert.Equal(t, certobj.StatusGood, obj.ValidityList[0].Status)
	assert.True(t, obj.Flags.Has(certobj.FlagSigChecked))

	parsed, err := ocsp.ParseResponse(respDER, issuerCert)
	require.NoError(t, err)
	assert.Equal(t, ocsp.Good, parsed.Status)
	assert.Equal(t, 0, leafCert.SerialNumber.Cmp(parsed.SerialNumber))
}

func TestResponderRespondSignsRevokedStatus(t *testing.T) {
	issuerCert, issuerKey, leafCert := issuerAndLeaf(t)

	requestDER, err := ocsp.CreateRequest(leafCert, issuerCert, nil)
	require.NoError(t, err)

	revokedAt := time.Now().Add(-time.Minute)
	responder := &Responder{
		IssuerCert: issuerCert,
		Signer:     issuerKey,
		Store: stubLookup{entry: certobj.ValidityEntry{
			Serial:         leafCert.SerialNumber.Bytes(),
			Status:         certobj.StatusRevoked,
			RevocationTime: revokedAt,
		}},
		Validity: time.Hour,
	}

	respDER, _, err := responder.Respond(requestDER)
	require.NoError(t, err)

	parsed, err := ocsp.ParseResponse(respDER, issuerCert)
	require.NoError(t, err)
	assert.Equal(t, ocsp.Revoked, parsed.Status)
}

func TestResponderRejectsRequestForWrongIssuer(t *testing.T) {
	issuerCert, issuerKey, leafCert := issuerAndLeaf(t)
	otherIssuerCert, _, _ := issuerAndLeaf(t)

	requestDER, err := ocsp.CreateRequest(leafCert, otherIssuerCert, nil)
	require.NoError(t, err)

	responder := &Responder{
		IssuerCert: issuerCert,
		Signer:     issuerKey,
		Store:      stubLookup{entry: certobj.ValidityEntry{Status: certobj.StatusGood}},
		Validity:   time.Hour,
	}

	_, _, err = responder.Respond(requestDER)
	require.Error(t, err)
}

func TestCertStoreLookupReportsUnknownForUnrecordedSerial(t *testing.T) {
	lookup := NewCertStoreLookup(certstore.NewMemory(), []byte("issuer dn"))

	entry, err := lookup.Lookup(big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, certobj.StatusUnknown, entry.Status)
}

func TestCertStoreLookupRecordThenLookupRoundTrips(t *testing.T) {
	lookup := NewCertStoreLookup(certstore.NewMemory(), []byte("issuer dn"))
	serial := big.NewInt(99).Bytes()

	require.NoError(t, lookup.Record(certobj.ValidityEntry{Serial: serial, Status: certobj.StatusRevoked}))

	entry, err := lookup.Lookup(big.NewInt(99))
	require.NoError(t, err)
	assert.Equal(t, certobj.StatusRevoked, entry.Status)
}

func TestCertStoreLookupRecordTwiceOverwrites(t *testing.T) {
	lookup := NewCertStoreLookup(certstore.NewMemory(), []byte("issuer dn"))
	serial := big.NewInt(5).Bytes()

	require.NoError(t, lookup.Record(certobj.ValidityEntry{Serial: serial, Status: certobj.StatusGood}))
	require.NoError(t, lookup.Record(certobj.ValidityEntry{Serial: serial, Status: certobj.StatusRevoked}))

	entry, err := lookup.Lookup(big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, certobj.StatusRevoked, entry.Status)
}
