// Package integration drives a full server-side SCEP transaction across
// package boundaries the way a deployed scepd would: a PKI User Record
// registered through certstore, a PKCS#10 request built and enveloped the
// way a SCEP client does, and the resulting certificate checked against
// the CA that issued it. Unlike scep.TestHandleTransaction*, which calls
// the engine directly with in-package helpers, this package only uses the
// same exported surface cmd/scepd wires together.
package integration

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"go.mozilla.org/pkcs7"

	"github.com/aox/pkicore/asn1io"
	"github.com/aox/pkicore/certstore"
	"github.com/aox/pkicore/envelope"
	"github.com/aox/pkicore/log"
	"github.com/aox/pkicore/pkiuser"
	"github.com/aox/pkicore/scep"
	"github.com/aox/pkicore/sigengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	oidChallengePwd  = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 7}
	oidMessageType   = asn1.ObjectIdentifier{2, 16, 840, 1, 113733, 1, 9, 2}
	oidSenderNonce   = asn1.ObjectIdentifier{2, 16, 840, 1, 113733, 1, 9, 5}
	oidTransactionID = asn1.ObjectIdentifier{2, 16, 840, 1, 113733, 1, 9, 7}
)

func ia5(s string) asn1.RawValue {
	return asn1.RawValue{Class: asn1.ClassUniversal, Tag: 22, Bytes: []byte(s)}
}

func selfSignedCA(t *testing.T) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "integration test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}

func ephemeralSigner(t *testing.T) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "ephemeral"},
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

// buildCSR hand-assembles a PKCS#10 CertificationRequest carrying a
// challengePassword attribute, the same field-by-field asn1io shape
// scep.challengePassword parses and scep_test.go's buildCSR produces --
// the stdlib's deprecated CertificateRequest.Attributes field can't
// represent a bare-string attribute value the way this wire format needs.
func buildCSR(t *testing.T, commonName, challenge string) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	spkiDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	subjectDER, err := asn1.Marshal(pkix.Name{CommonName: commonName}.ToRDNSequence())
	require.NoError(t, err)

	oidWriter := asn1io.NewWriter()
	require.NoError(t, oidWriter.WriteOID(oidChallengePwd))
	valueDER, err := asn1.Marshal(challenge)
	require.NoError(t, err)
	set := append([]byte{0x31}, asn1io.EncodeLength(len(valueDER))...)
	set = append(set, valueDER...)
	attribute := asn1io.WrapSequence(append(append([]byte{}, oidWriter.Bytes()...), set...))
	attrsDER := append([]byte{0xa0}, append(asn1io.EncodeLength(len(attribute)), attribute...)...)

	tbsWriter := asn1io.NewWriter()
	_, err = tbsWriter.WriteRaw([]byte{0x02, 0x01, 0x00})
	require.NoError(t, err)
	_, err = tbsWriter.WriteRaw(subjectDER)
	require.NoError(t, err)
	_, err = tbsWriter.WriteRaw(spkiDER)
	require.NoError(t, err)
	_, err = tbsWriter.WriteRaw(attrsDER)
	require.NoError(t, err)
	tbs := asn1io.WrapSequence(tbsWriter.Bytes())

	der, err := sigengine.CreateX509Signature(tbs, key, crypto.SHA256, sigengine.Plain, 0, false)
	require.NoError(t, err)
	return der
}

// buildPKCSReq encrypts csrDER to caCert and signs the result with a fresh
// ephemeral identity, matching a SCEP client's PKCSReq message shape. The
// returned signer cert/key are also the recipient identity the CA's
// encrypted reply is addressed to, so a caller can decrypt the response.
func buildPKCSReq(t *testing.T, caCert *x509.Certificate, csrDER []byte, transID string) ([]byte, *x509.Certificate, *rsa.PrivateKey) {
	t.Helper()
	signerCert, signerKey := ephemeralSigner(t)

	encrypted, err := pkcs7.Encrypt(csrDER, []*x509.Certificate{caCert})
	require.NoError(t, err)

	sd, err := pkcs7.NewSignedData(encrypted)
	require.NoError(t, err)
	nonce := make([]byte, 16)
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	err = sd.AddSigner(signerCert, signerKey, pkcs7.SignerInfoConfig{
		ExtraSignedAttributes: []pkcs7.Attribute{
			{Type: oidTransactionID, Value: transID},
			{Type: oidMessageType, Value: ia5(string(scep.MessageTypePKCSReq))},
			{Type: oidSenderNonce, Value: nonce},
		},
	})
	require.NoError(t, err)

	raw, err := sd.Finish()
	require.NoError(t, err)
	return raw, signerCert, signerKey
}

// TestSCEPTransactionIssuesCertificateThroughStoredPKIUser exercises the
// full chain a deployed scepd would drive: a PKI User Record registered
// through certstore.PKIUserStore, a client-shaped PKCSReq message built
// and enveloped against the CA's own certificate, and scep.Engine
// resolving, authenticating, and issuing the leaf -- then checks the
// returned certificate chains to the same CA key that signed it.
func TestSCEPTransactionIssuesCertificateThroughStoredPKIUser(t *testing.T) {
	caCert, caKey := selfSignedCA(t)

	store := certstore.NewPKIUserStore(certstore.NewMemory())
	record := &pkiuser.Record{
		UserID:        []byte("integration-transaction-id"),
		IssuePassword: []byte("hunter2"),
		ProfileConstraints: pkiuser.ProfileConstraints{
			FillSubjectCN: "enrolled.example",
		},
	}
	require.NoError(t, store.Register(record))

	engine, err := scep.NewEngine(scep.Config{
		CACert: caCert,
		CAKey:  caKey,
		Users:  store,
		Log:    log.UseMock(),
	})
	require.NoError(t, err)

	csr := buildCSR(t, "requested.example", "hunter2")
	raw, signerCert, signerKey := buildPKCSReq(t, caCert, csr, "integration-transaction-id")

	outcome, err := engine.HandleTransaction(raw)
	require.NoError(t, err)
	require.False(t, outcome.SilentClose)
	require.Equal(t, scep.StatusSuccess, outcome.Status)
	require.NotEmpty(t, outcome.Response)

	p7, err := pkcs7.Parse(outcome.Response)
	require.NoError(t, err)
	decrypted, err := envelope.Decrypt(p7.Content, signerCert, signerKey)
	require.NoError(t, err)
	degenerate, err := pkcs7.Parse(decrypted)
	require.NoError(t, err)
	require.NotEmpty(t, degenerate.Certificates)

	leaf := degenerate.Certificates[0]
	assert.Equal(t, "enrolled.example", leaf.Subject.CommonName)
	require.NoError(t, leaf.CheckSignatureFrom(caCert))
}

// TestSCEPTransactionRejectsUnregisteredTransactionID confirms a
// transaction naming a PKI User Record that was never registered through
// certstore is rejected rather than silently issued.
func TestSCEPTransactionRejectsUnregisteredTransactionID(t *testing.T) {
	caCert, caKey := selfSignedCA(t)
	store := certstore.NewPKIUserStore(certstore.NewMemory())

	engine, err := scep.NewEngine(scep.Config{
		CACert: caCert,
		CAKey:  caKey,
		Users:  store,
		Log:    log.UseMock(),
	})
	require.NoError(t, err)

	csr := buildCSR(t, "requested.example", "hunter2")
	raw, _, _ := buildPKCSReq(t, caCert, csr, "never-registered")

	outcome, err := engine.HandleTransaction(raw)
	require.NoError(t, err)
	assert.Equal(t, scep.StatusFailure, outcome.Status)
}
