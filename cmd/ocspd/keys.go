package main

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/letsencrypt/pkcs11key/v4"

	"github.com/aox/pkicore/berrors"
)

// loadCert reads a single PEM-encoded certificate from path, the same
// helper cmd/scepd's loadCACert provides for its own CA certificate.
func loadCert(path string) (*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, berrors.New(berrors.Read, "ocspd: reading %s: %v", path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, berrors.New(berrors.BadData, "ocspd: no CERTIFICATE PEM block found in %s", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, berrors.New(berrors.BadData, "ocspd: parsing %s: %v", path, err)
	}
	return cert, nil
}

// loadSigner builds the OCSP responder's signer either from a PEM private
// key file or, when pkcs11Module is set, from an HSM-resident key via
// pkcs11key -- the same two paths cmd/scepd's loadCAKey offers for the CA
// signer, duplicated rather than shared across the two main packages.
func loadSigner(keyPath, pkcs11Module, pkcs11TokenLabel, pkcs11PIN string, pub crypto.PublicKey) (crypto.Signer, error) {
	if pkcs11Module != "" {
		signer, err := pkcs11key.New(pkcs11Module, pkcs11TokenLabel, pkcs11PIN, pub)
		if err != nil {
			return nil, berrors.New(berrors.Failed, "ocspd: opening PKCS#11 signer: %v", err)
		}
		return signer, nil
	}

	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, berrors.New(berrors.Read, "ocspd: reading %s: %v", keyPath, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, berrors.New(berrors.BadData, "ocspd: no PEM block found in %s", keyPath)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, berrors.New(berrors.BadData, "ocspd: signer key does not implement crypto.Signer")
		}
		return signer, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, berrors.New(berrors.BadData, "ocspd: %s is not a recognised PKCS#8/PKCS#1/EC private key", keyPath)
}
