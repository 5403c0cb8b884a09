// Package goodkey implements a KeyPolicy check gating public keys before
// CertObject admits them into a TBSCertificate, adapted from boulder's
// `keyPolicy goodkey.KeyPolicy` field on `certificateAuthorityImpl`
// (ca/ca.go) into a standalone check scep.Engine's issue step calls on an
// incoming CSR's public key.
package goodkey

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"

	"github.com/titanous/rocacheck"

	"github.com/aox/pkicore/berrors"
)

// Policy bounds the RSA key sizes and ECDSA curves a KeyPolicy will
// accept.
type Policy struct {
	MinRSAModulusBits int
	MaxRSAModulusBits int
	AllowedCurves     []elliptic.Curve
}

// DefaultPolicy matches widely deployed CA/Browser Forum baseline
// requirements: RSA 2048-4096 bits, NIST P-256/P-384/P-521.
func DefaultPolicy() Policy {
	return Policy{
		MinRSAModulusBits: 2048,
		MaxRSAModulusBits: 4096,
		AllowedCurves:     []elliptic.Curve{elliptic.P256(), elliptic.P384(), elliptic.P521()},
	}
}

// GoodKey reports whether pub is acceptable for certificate issuance:
// within this Policy's size/curve bounds, and -- for RSA -- not an
// Infineon ROCA-vulnerable key.
func (p Policy) GoodKey(pub any) error {
	switch key := pub.(type) {
	case *rsa.PublicKey:
		return p.goodRSAKey(key)
	case *ecdsa.PublicKey:
		return p.goodECDSAKey(key)
	default:
		return berrors.New(berrors.BadData, "goodkey: unsupported public key type %T", pub)
	}
}

func (p Policy) goodRSAKey(key *rsa.PublicKey) error {
	bits := key.N.BitLen()
	if bits < p.MinRSAModulusBits {
		return berrors.New(berrors.BadData, "goodkey: RSA modulus too small: %d bits, minimum %d", bits, p.MinRSAModulusBits)
	}
	if bits > p.MaxRSAModulusBits {
		return berrors.New(berrors.BadData, "goodkey: RSA modulus too large: %d bits, maximum %d", bits, p.MaxRSAModulusBits)
	}
	if key.E <= 2 {
		return berrors.New(berrors.BadData, "goodkey: RSA public exponent %d is not usable", key.E)
	}
	if rocacheck.IsWeak(key) {
		return berrors.New(berrors.BadData, "goodkey: RSA key is vulnerable to the ROCA factorization weakness")
	}
	return nil
}

func (p Policy) goodECDSAKey(key *ecdsa.PublicKey) error {
	for _, c := range p.AllowedCurves {
		if key.Curve == c {
			if !key.Curve.IsOnCurve(key.X, key.Y) {
				return berrors.New(berrors.BadData, "goodkey: ECDSA public key point is not on its declared curve")
			}
			return nil
		}
	}
	return berrors.New(berrors.BadData, "goodkey: ECDSA curve %s is not in the allowed set", key.Curve.Params().Name)
}
