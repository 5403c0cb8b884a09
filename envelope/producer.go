// Package envelope implements the CryptoEnvelope component from spec §4.4:
// a CMS producer covering SignedData, EnvelopedData, EncryptedData,
// DigestedData, and CompressedData, and a consumer built around the
// deenveloping state machine that drives CMS parsing.
//
// Grounded on other_examples/a1e597fe_...scep.go.go's use of
// go.mozilla.org/pkcs7 for the SignedData/EnvelopedData nest (the two
// content types that carry the bulk of SCEP and issuance traffic), and on
// original_source/cryptlib/envelope/cms_denv.c for the deenveloping state
// machine's shape. go.mozilla.org/pkcs7 does not implement
// EncryptedData/DigestedData/CompressedData, so those three are built
// directly over encoding/asn1, matching RFC 5652's definitions.
package envelope

import (
	"bytes"
	"compress/zlib"
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"io"

	"github.com/aox/pkicore/asn1io"
	"github.com/aox/pkicore/berrors"
	"go.mozilla.org/pkcs7"
)

// Usage names the CMS content types this package's producers emit (Sign,
// Encrypt, EncryptedData, DigestedData, CompressedData), per spec §4.4's
// "Takes a usage ...". No function here takes a Usage argument.
type Usage int

const (
	UsageSign Usage = iota
	UsageKeyExchange
	UsageCrypt
	UsageHash
	UsageCompress
)

// RFC 5652 content-type and algorithm OIDs; CMS readers dispatch on the
// content-type OIDs inside a ContentInfo wrapper.
var (
	oidEncryptedData  = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 6}
	oidDigestedData   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 5}
	oidCompressedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 9}
	oidData           = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidSHA256         = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidZlibCompress   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 3, 8}
)

// contentInfo is the RFC 5652 ContentInfo wrapper shared by every CMS
// content type. It is used for decoding only -- encoding/asn1 applies
// struct-tag EXPLICIT wrapping correctly on decode, but a RawValue field
// bypasses it on encode, so producing a ContentInfo goes through
// wrapContentInfo instead, which builds the EXPLICIT [0] wrapper by hand
// via asn1io.
type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

// Sign produces a CMS SignedData over payload, signed by signerCert/
// signerKey, carrying extraSignedAttrs (e.g. SCEP's transID/nonce/
// messageType set). This is the first half of the sign-then-encrypt nest
// from spec §4.4: callers that need both call Sign then Encrypt on its
// output.
func Sign(payload []byte, signerCert *x509.Certificate, signerKey crypto.PrivateKey, extraSignedAttrs []pkcs7.Attribute, chain ...*x509.Certificate) ([]byte, error) {
	sd, err := pkcs7.NewSignedData(payload)
	if err != nil {
		return nil, berrors.New(berrors.Failed, "building SignedData: %v", err)
	}
	for _, c := range chain {
		sd.AddCertificate(c)
	}
	if err := sd.AddSigner(signerCert, signerKey, pkcs7.SignerInfoConfig{ExtraSignedAttributes: extraSignedAttrs}); err != nil {
		return nil, berrors.New(berrors.Failed, "adding SignedData signer: %v", err)
	}
	out, err := sd.Finish()
	if err != nil {
		return nil, berrors.New(berrors.Failed, "finishing SignedData: %v", err)
	}
	return out, nil
}

// Encrypt produces a CMS EnvelopedData wrapping payload, key-exchanged to
// each of recipients (the KeyExchange usage from spec §4.4).
func Encrypt(payload []byte, recipients []*x509.Certificate) ([]byte, error) {
	out, err := pkcs7.Encrypt(payload, recipients)
	if err != nil {
		return nil, berrors.New(berrors.Failed, "building EnvelopedData: %v", err)
	}
	return out, nil
}

// Decrypt opens a CMS EnvelopedData with the recipient's own cert/key pair.
func Decrypt(envelopedDER []byte, recipientCert *x509.Certificate, recipientKey crypto.PrivateKey) ([]byte, error) {
	p7, err := pkcs7.Parse(envelopedDER)
	if err != nil {
		return nil, berrors.New(berrors.BadData, "parsing EnvelopedData: %v", err)
	}
	content, err := p7.Decrypt(recipientCert, recipientKey.(crypto.Signer))
	if err != nil {
		return nil, berrors.New(berrors.EnvelopeResource, "no recipient key unwrapped the session key: %v", err)
	}
	return content, nil
}

// DigestedData produces a CMS DigestedData over payload using SHA-256 (the
// Hash usage from spec §4.4), matching RFC 5652 §7's structure.
func DigestedData(payload []byte) ([]byte, error) {
	digest := sha256Sum(payload)
	innerContentInfo, err := wrapContentInfo(oidData, mustMarshal(payload))
	if err != nil {
		return nil, err
	}

	type digestedData struct {
		Version     int
		DigestAlgo  algorithmIdentifier
		ContentInfo asn1.RawValue
		Digest      []byte
	}
	inner, err := asn1.Marshal(digestedData{
		Version:     0,
		DigestAlgo:  algorithmIdentifier{Algorithm: oidSHA256},
		ContentInfo: asn1.RawValue{FullBytes: innerContentInfo},
		Digest:      digest,
	})
	if err != nil {
		return nil, berrors.New(berrors.Failed, "marshaling DigestedData: %v", err)
	}
	return wrapContentInfo(oidDigestedData, inner)
}

// CompressedData produces a CMS CompressedData over payload using zlib
// (the Compress usage from spec §4.4), matching RFC 3274.
func CompressedData(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, berrors.New(berrors.Failed, "compressing payload: %v", err)
	}
	if err := zw.Close(); err != nil {
		return nil, berrors.New(berrors.Failed, "finishing compression: %v", err)
	}

	innerContentInfo, err := wrapContentInfo(oidData, mustMarshal(buf.Bytes()))
	if err != nil {
		return nil, err
	}

	type compressedData struct {
		Version         int
		CompressionAlgo algorithmIdentifier
		ContentInfo     asn1.RawValue
	}
	inner, err := asn1.Marshal(compressedData{
		Version:         0,
		CompressionAlgo: algorithmIdentifier{Algorithm: oidZlibCompress},
		ContentInfo:     asn1.RawValue{FullBytes: innerContentInfo},
	})
	if err != nil {
		return nil, berrors.New(berrors.Failed, "marshaling CompressedData: %v", err)
	}
	return wrapContentInfo(oidCompressedData, inner)
}

// DecompressData reverses CompressedData.
func DecompressData(der []byte) ([]byte, error) {
	ci, err := unwrapContentInfo(der)
	if err != nil {
		return nil, err
	}
	if !ci.ContentType.Equal(oidCompressedData) {
		return nil, berrors.New(berrors.BadData, "not a CompressedData ContentInfo")
	}
	type compressedData struct {
		Version         int
		CompressionAlgo algorithmIdentifier
		ContentInfo     contentInfo
	}
	var cd compressedData
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &cd); err != nil {
		return nil, berrors.New(berrors.BadData, "parsing CompressedData: %v", err)
	}
	var compressed []byte
	if _, err := asn1.Unmarshal(cd.ContentInfo.Content.Bytes, &compressed); err != nil {
		return nil, berrors.New(berrors.BadData, "parsing compressed content octets: %v", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, berrors.New(berrors.BadData, "opening zlib stream: %v", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, berrors.New(berrors.BadData, "decompressing payload: %v", err)
	}
	return out, nil
}

// EncryptedData wraps ciphertext, already encrypted by the caller under a
// pre-shared key, as a CMS EncryptedData naming contentEncryptionAlgo and
// algoParams (the Crypt usage from spec §4.4 -- no recipient key-transport;
// this function performs no encryption itself).
func EncryptedData(ciphertext []byte, contentEncryptionAlgo asn1.ObjectIdentifier, algoParams []byte) ([]byte, error) {
	type encryptedContentInfo struct {
		ContentType                asn1.ObjectIdentifier
		ContentEncryptionAlgorithm algorithmIdentifier
		EncryptedContent           []byte `asn1:"optional,tag:0"`
	}
	type encryptedData struct {
		Version              int
		EncryptedContentInfo encryptedContentInfo
	}
	inner, err := asn1.Marshal(encryptedData{
		Version: 0,
		EncryptedContentInfo: encryptedContentInfo{
			ContentType: oidData,
			ContentEncryptionAlgorithm: algorithmIdentifier{
				Algorithm:  contentEncryptionAlgo,
				Parameters: asn1.RawValue{FullBytes: algoParams},
			},
			EncryptedContent: ciphertext,
		},
	})
	if err != nil {
		return nil, berrors.New(berrors.Failed, "marshaling EncryptedData: %v", err)
	}
	return wrapContentInfo(oidEncryptedData, inner)
}

func wrapContentInfo(contentType asn1.ObjectIdentifier, content []byte) ([]byte, error) {
	oidBytes, err := asn1.Marshal(contentType)
	if err != nil {
		return nil, berrors.New(berrors.Failed, "marshaling content type OID: %v", err)
	}
	explicitContent := asn1io.WrapExplicit(0, content)
	seqContent := append(append([]byte(nil), oidBytes...), explicitContent...)
	return asn1io.WrapSequence(seqContent), nil
}

func unwrapContentInfo(der []byte) (contentInfo, error) {
	var ci contentInfo
	if _, err := asn1.Unmarshal(der, &ci); err != nil {
		return contentInfo{}, berrors.New(berrors.BadData, "parsing ContentInfo: %v", err)
	}
	return ci, nil
}

func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

func mustMarshal(b []byte) []byte {
	encoded, _ := asn1.Marshal(b)
	return encoded
}
