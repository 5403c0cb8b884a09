package main

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/letsencrypt/pkcs11key/v4"

	"github.com/aox/pkicore/berrors"
)

// loadCACert reads a single PEM-encoded certificate from path.
func loadCACert(path string) (*x509.Certificate, error) {
	der, err := readPEMBlock(path, "CERTIFICATE")
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, berrors.New(berrors.BadData, "scepd: parsing CA certificate: %v", err)
	}
	return cert, nil
}

// loadCAChain reads every CERTIFICATE block out of path, in file order.
func loadCAChain(path string) ([]*x509.Certificate, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, berrors.New(berrors.Read, "scepd: reading CA chain file: %v", err)
	}
	var chain []*x509.Certificate
	rest := raw
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, berrors.New(berrors.BadData, "scepd: parsing CA chain certificate: %v", err)
		}
		chain = append(chain, cert)
	}
	return chain, nil
}

// loadCAKey builds the CA's signer either from a PEM private key file or,
// when pkcs11Module is set, from an HSM-resident key via pkcs11key. pub is
// the CA certificate's own public key, which pkcs11key.New uses to confirm
// the token's key handle matches the certificate being used alongside it.
func loadCAKey(keyPath, pkcs11Module, pkcs11TokenLabel, pkcs11PIN string, pub crypto.PublicKey) (crypto.Signer, error) {
	if pkcs11Module != "" {
		signer, err := pkcs11key.New(pkcs11Module, pkcs11TokenLabel, pkcs11PIN, pub)
		if err != nil {
			return nil, berrors.New(berrors.Failed, "scepd: opening PKCS#11 signer: %v", err)
		}
		return signer, nil
	}

	der, err := readPEMBlock(keyPath, "")
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, berrors.New(berrors.BadData, "scepd: CA key does not implement crypto.Signer")
		}
		return signer, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, berrors.New(berrors.BadData, "scepd: CA key file is not a recognised PKCS#8/PKCS#1/EC private key")
}

// readPEMBlock reads path and returns the bytes of its first PEM block,
// optionally requiring a specific block type.
func readPEMBlock(path, wantType string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, berrors.New(berrors.Read, "scepd: reading %s: %v", path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, berrors.New(berrors.BadData, "scepd: no PEM block found in %s", path)
	}
	if wantType != "" && block.Type != wantType {
		return nil, berrors.New(berrors.BadData, "scepd: %s: expected PEM type %s, got %s", path, wantType, block.Type)
	}
	return block.Bytes, nil
}
