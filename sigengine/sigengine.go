// Package sigengine implements the SignatureEngine component from spec
// §4.6: creation and verification of the X.509-style signed envelope
// `SEQUENCE { body, AlgorithmIdentifier, BIT STRING signature }`, with
// optional nonstandard outer wrappers for CRMF and OCSP, a sign-then-verify
// self-check under side-channel-protection mode, and a keyID-based
// BadData-vs-Signature disambiguation fallback.
//
// Grounded on ca/ca.go's issuance cycle (generateSKID's RFC 7093 method and
// tbsCertIsDeterministic's cryptobyte-based TBS extraction) for the shape
// of "parse the signed structure back out and compare bytes", and on
// golang.org/x/crypto/ocsp's explicit AlgorithmIdentifier + BIT STRING
// signature assembly for OCSP-style responses, which is exactly the
// ImplicitTag wrapper_spec case this engine needs to support.
package sigengine

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/asn1"

	"github.com/aox/pkicore/asn1io"
	"github.com/aox/pkicore/berrors"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// WrapperKind selects one of the outer wrapper shapes CRMF and OCSP
// require around the otherwise-standard SEQUENCE{body,algo,sig}, per spec
// §4.6's wrapper_spec.
type WrapperKind int

const (
	// WrapperPlain emits SEQUENCE { body, algo, sig } with no outer wrapper,
	// the ordinary X.509 Certificate/CRL shape.
	WrapperPlain WrapperKind = iota
	// WrapperImplicitTag re-tags the outer SEQUENCE as an IMPLICIT
	// context-specific constructed tag, as CRMF's POPOSigningKey and
	// similar structures require.
	WrapperImplicitTag
	// WrapperImplicitTagInnerSequence additionally retains an inner plain
	// SEQUENCE tag just inside the IMPLICIT wrapper, the shape OCSP's
	// BasicOCSPResponse embedding requires.
	WrapperImplicitTagInnerSequence
)

// WrapperSpec selects the outer framing for CreateX509Signature/Verify.
type WrapperSpec struct {
	Kind WrapperKind
	Tag  int
}

// Plain is the ordinary unwrapped signature shape.
var Plain = WrapperSpec{Kind: WrapperPlain}

// ImplicitTag builds a WrapperSpec for the CRMF-style IMPLICIT outer tag.
func ImplicitTag(tag int) WrapperSpec { return WrapperSpec{Kind: WrapperImplicitTag, Tag: tag} }

// ImplicitTagInnerSequence builds a WrapperSpec for the OCSP-style
// IMPLICIT-tag-wrapping-an-inner-SEQUENCE shape.
func ImplicitTagInnerSequence(tag int) WrapperSpec {
	return WrapperSpec{Kind: WrapperImplicitTagInnerSequence, Tag: tag}
}

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

// AlgorithmIdentifierDER returns the DER encoding of the AlgorithmIdentifier
// CreateX509Signature will embed for pub/hash, so a caller building a
// TBSCertificate's self-referential `signature` field ahead of time (as
// certobj does) produces exactly the bytes the outer signature wrapper will
// also carry.
func AlgorithmIdentifierDER(pub crypto.PublicKey, hash crypto.Hash) ([]byte, error) {
	oid, err := signatureAlgorithmOID(pub, hash)
	if err != nil {
		return nil, err
	}
	der, err := asn1.Marshal(algorithmIdentifier{Algorithm: oid})
	if err != nil {
		return nil, berrors.New(berrors.Failed, "marshaling AlgorithmIdentifier: %v", err)
	}
	return der, nil
}

// signatureAlgorithmOID maps a public key and hash to the X.509
// AlgorithmIdentifier OID the signature was (or will be) produced under.
// Only the combinations this toolkit actually issues are supported; an
// unrecognized pairing is BadData, matching an engine that never silently
// guesses at a signing algorithm.
func signatureAlgorithmOID(pub crypto.PublicKey, hash crypto.Hash) (asn1.ObjectIdentifier, error) {
	switch pub.(type) {
	case *rsa.PublicKey:
		switch hash {
		case crypto.SHA256:
			return asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}, nil
		case crypto.SHA384:
			return asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}, nil
		case crypto.SHA512:
			return asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}, nil
		}
	case *ecdsa.PublicKey:
		switch hash {
		case crypto.SHA256:
			return asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}, nil
		case crypto.SHA384:
			return asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}, nil
		case crypto.SHA512:
			return asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}, nil
		}
	case ed25519.PublicKey:
		return asn1.ObjectIdentifier{1, 3, 101, 112}, nil
	}
	return nil, berrors.New(berrors.BadData, "unsupported public key / hash combination for signature algorithm")
}

func signerHashAlgo(pub crypto.PublicKey, hash crypto.Hash) (crypto.Hash, bool) {
	if _, ok := pub.(ed25519.PublicKey); ok {
		return 0, true
	}
	return hash, hash != 0
}

func digest(hash crypto.Hash, body []byte) []byte {
	h := hash.New()
	h.Write(body)
	return h.Sum(nil)
}

func signDigest(signer crypto.Signer, hash crypto.Hash, body []byte) ([]byte, error) {
	if _, isEd := signer.Public().(ed25519.PublicKey); isEd {
		return signer.Sign(rand.Reader, body, crypto.Hash(0))
	}
	return signer.Sign(rand.Reader, digest(hash, body), hash)
}

func verifyDigest(pub crypto.PublicKey, hash crypto.Hash, body, sig []byte) error {
	switch key := pub.(type) {
	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(key, hash, digest(hash, body), sig); err != nil {
			return berrors.New(berrors.Signature, "RSA signature verification failed: %v", err)
		}
		return nil
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, digest(hash, body), sig) {
			return berrors.New(berrors.Signature, "ECDSA signature verification failed")
		}
		return nil
	case ed25519.PublicKey:
		if !ed25519.Verify(key, body, sig) {
			return berrors.New(berrors.Signature, "Ed25519 signature verification failed")
		}
		return nil
	default:
		return berrors.New(berrors.BadData, "unsupported public key type for signature verification")
	}
}

func applyWrapper(spec WrapperSpec, inner []byte) []byte {
	switch spec.Kind {
	case WrapperImplicitTag:
		// IMPLICIT tagging replaces the universal SEQUENCE tag byte with
		// the context-specific constructed tag, keeping the length and
		// content untouched.
		return replaceOuterTag(inner, byte(0xa0|spec.Tag))
	case WrapperImplicitTagInnerSequence:
		return asn1io.WrapExplicit(spec.Tag, inner)
	default:
		return inner
	}
}

func replaceOuterTag(der []byte, newTag byte) []byte {
	out := append([]byte(nil), der...)
	if len(out) > 0 {
		out[0] = newTag
	}
	return out
}

func stripWrapper(spec WrapperSpec, wrapped []byte) ([]byte, error) {
	switch spec.Kind {
	case WrapperImplicitTag:
		return replaceOuterTag(wrapped, 0x30), nil
	case WrapperImplicitTagInnerSequence:
		r := asn1io.NewReader(wrapped)
		if _, err := r.ReadConstructed(cryptobyte_asn1.Tag(0xa0 | spec.Tag)); err != nil {
			return nil, berrors.New(berrors.BadData, "malformed outer wrapper: %v", err)
		}
		return wrapped[r.Pos():], nil
	default:
		return wrapped, nil
	}
}

// CreateX509Signature emits SEQUENCE { body, AlgorithmIdentifier, BIT
// STRING signature }, optionally reframed per wrapper, with room reserved
// at the tail for extraTrailingBytes the caller writes afterward (e.g. an
// appended certificate chain). When sideChannelProtect is set, the
// just-produced signature is independently re-verified before being
// returned; any mismatch zeroises the output and reports Failed, per spec
// §4.6's side-channel protection self-check.
func CreateX509Signature(body []byte, signer crypto.Signer, hash crypto.Hash, wrapper WrapperSpec, extraTrailingBytes int, sideChannelProtect bool) ([]byte, error) {
	pub := signer.Public()
	oid, err := signatureAlgorithmOID(pub, hash)
	if err != nil {
		return nil, err
	}
	effectiveHash, ok := signerHashAlgo(pub, hash)
	if !ok {
		return nil, berrors.New(berrors.BadData, "hash algorithm required for this key type")
	}

	sig, err := signDigest(signer, effectiveHash, body)
	if err != nil {
		return nil, berrors.New(berrors.Failed, "signing failed: %v", err)
	}

	if sideChannelProtect {
		if verr := verifyDigest(pub, effectiveHash, body, sig); verr != nil {
			for i := range sig {
				sig[i] = 0
			}
			return nil, berrors.New(berrors.Failed, "side-channel self-check failed, output zeroised: %v", verr)
		}
	}

	w := asn1io.NewWriter()
	if _, err := w.WriteRaw(body); err != nil {
		return nil, err
	}
	algoDER, err := asn1.Marshal(algorithmIdentifier{Algorithm: oid})
	if err != nil {
		return nil, berrors.New(berrors.Failed, "marshaling AlgorithmIdentifier: %v", err)
	}
	if _, err := w.WriteRaw(algoDER); err != nil {
		return nil, err
	}
	if err := w.WriteBitString(sig); err != nil {
		return nil, err
	}

	sequence := asn1io.WrapSequence(w.Bytes())
	wrapped := applyWrapper(wrapper, sequence)
	if extraTrailingBytes > 0 {
		wrapped = append(wrapped, make([]byte, extraTrailingBytes)...)
	}
	return wrapped, nil
}

// ParsedSignature is the result of splitting a signed structure into its
// three parts without verifying anything yet.
type ParsedSignature struct {
	Body      []byte
	Algorithm asn1.ObjectIdentifier
	Signature []byte
}

// Parse reads body/algorithm/signature out of a SEQUENCE{body,algo,sig}
// possibly wrapped per spec, without verifying.
func Parse(wrapper WrapperSpec, signed []byte) (ParsedSignature, error) {
	unwrapped, err := stripWrapper(wrapper, signed)
	if err != nil {
		return ParsedSignature{}, err
	}
	r := asn1io.NewReader(unwrapped)
	if _, err := r.ReadSequenceHeader(); err != nil {
		return ParsedSignature{}, berrors.New(berrors.BadData, "malformed signed structure: %v", err)
	}
	_, bodyBytes, err := r.ReadFullObject(0)
	if err != nil {
		return ParsedSignature{}, berrors.New(berrors.BadData, "malformed signed body: %v", err)
	}
	_, algoBytes, err := r.ReadFullObject(0)
	if err != nil {
		return ParsedSignature{}, berrors.New(berrors.BadData, "malformed AlgorithmIdentifier: %v", err)
	}
	var algo algorithmIdentifier
	if _, err := asn1.Unmarshal(algoBytes, &algo); err != nil {
		return ParsedSignature{}, berrors.New(berrors.BadData, "malformed AlgorithmIdentifier: %v", err)
	}
	sigBits, _, err := r.ReadBitString(0)
	if err != nil {
		return ParsedSignature{}, berrors.New(berrors.BadData, "malformed signature BIT STRING: %v", err)
	}
	return ParsedSignature{Body: bodyBytes, Algorithm: algo.Algorithm, Signature: sigBits}, nil
}

// hashForOID inverts signatureAlgorithmOID for the subset of algorithms
// this engine produces.
func hashForOID(oid asn1.ObjectIdentifier) (crypto.Hash, bool) {
	switch {
	case oid.Equal(asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}):
		return crypto.SHA256, true
	case oid.Equal(asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}):
		return crypto.SHA384, true
	case oid.Equal(asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}):
		return crypto.SHA512, true
	case oid.Equal(asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}):
		return crypto.SHA256, true
	case oid.Equal(asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}):
		return crypto.SHA384, true
	case oid.Equal(asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}):
		return crypto.SHA512, true
	case oid.Equal(asn1.ObjectIdentifier{1, 3, 101, 112}):
		return 0, true
	default:
		return 0, false
	}
}

// Verify re-hashes Body and checks Signature against expectedKey under the
// algorithm the structure itself declares. If that declared algorithm does
// not correspond to expectedKey's family, the result is Signature (a
// verification failure) rather than BadData, per spec §4.6.
func Verify(parsed ParsedSignature, expectedKey crypto.PublicKey) error {
	hash, ok := hashForOID(parsed.Algorithm)
	if !ok {
		return berrors.New(berrors.Signature, "unrecognized or mismatched signature algorithm OID")
	}
	if _, err := signatureAlgorithmOID(expectedKey, hash); err != nil {
		return berrors.New(berrors.Signature, "signature algorithm does not match signing key type")
	}
	return verifyDigest(expectedKey, hash, parsed.Body, parsed.Signature)
}

// VerifyX509 is a convenience wrapper combining Parse and Verify for the
// common case of an unwrapped X.509-shaped signed structure.
func VerifyX509(signed []byte, expectedKey crypto.PublicKey) error {
	parsed, err := Parse(Plain, signed)
	if err != nil {
		return err
	}
	return Verify(parsed, expectedKey)
}

// ResolveChainFault implements spec §4.6's BadData-vs-Signature
// disambiguation: when verification against the presumed issuer key fails
// with what looks like ciphertext garbage, compare the child's
// authorityKeyIdentifier against the issuer's subjectKeyIdentifier. Equal
// keyIDs means the chain linkage was correct and the underlying fault is
// data corruption (BadData); unequal keyIDs means the wrong signing key
// was used to attempt verification (Signature). This is only meaningful
// as a fallback after an initial verification failure -- it is not a
// general trust-by-keyID path.
func ResolveChainFault(childAKID, issuerSKID []byte) error {
	if len(childAKID) == 0 || len(issuerSKID) == 0 {
		return berrors.New(berrors.Signature, "no key identifiers available to disambiguate verification failure")
	}
	if subtle.ConstantTimeCompare(childAKID, issuerSKID) == 1 {
		return berrors.New(berrors.BadData, "key identifiers match; verification failure attributed to data corruption")
	}
	return berrors.New(berrors.Signature, "key identifiers differ; verification failure attributed to wrong signing key")
}

// GenerateSKID computes a Subject Key Identifier using RFC 7093 §2's
// method: the leftmost 160 bits of the SHA-256 hash of the subjectPublicKey
// BIT STRING payload (excluding tag, length, and unused-bits count).
// Grounded on ca/ca.go's generateSKID.
func GenerateSKID(pub crypto.PublicKey) ([]byte, error) {
	pkixDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, berrors.New(berrors.BadData, "marshaling SubjectPublicKeyInfo: %v", err)
	}
	var spki struct {
		Algo      algorithmIdentifier
		BitString asn1.BitString
	}
	if _, err := asn1.Unmarshal(pkixDER, &spki); err != nil {
		return nil, berrors.New(berrors.BadData, "parsing SubjectPublicKeyInfo: %v", err)
	}
	sum := sha256.Sum256(spki.BitString.Bytes)
	return sum[0:20:20], nil
}
