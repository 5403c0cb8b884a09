// Package ocspproto implements the OCSP/RTCS validity-check protocol
// session from spec §4.6 using golang.org/x/crypto/ocsp for the RFC 6960
// wire format, with certobj.Object's ValidityList sub-record (spec §3,
// shared by the RtcsResp and OcspResp variants) as the pre-signing status
// record both protocols write to.
//
// certobj.Object.Sign only ever builds an RFC 5280 TBSCertificate, and
// PseudoSign's kind allow-list (OcspReq, RtcsReq, RevReq) covers requests,
// not responses: neither shape fits a BasicOCSPResponse. A Responder here
// signs through ocsp.CreateResponse directly instead, and stores the
// result into an Object's EncodedBytes by hand -- the same way
// certobj.Import populates an Object from bytes it didn't sign itself.
package ocspproto

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"math/big"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/aox/pkicore/asn1io"
	"github.com/aox/pkicore/berrors"
	"github.com/aox/pkicore/certobj"
)

// RevocationLookup resolves the current status of one certificate serial,
// backing a Responder the way certstore.Store backs scep.Engine's
// PKI User Record lookups.
type RevocationLookup interface {
	Lookup(serial *big.Int) (certobj.ValidityEntry, error)
}

// Responder answers OCSP requests per RFC 6960, signing through
// ocsp.CreateResponse and recording the same decision in a CertObject's
// ValidityList so callers get the same view of validity data spec §3
// gives every other variant.
type Responder struct {
	IssuerCert    *x509.Certificate
	ResponderCert *x509.Certificate // nil: IssuerCert signs its own responses
	Signer        crypto.Signer
	Store         RevocationLookup
	Validity      time.Duration
	Now           func() time.Time // nil: time.Now
}

// Respond parses a DER-encoded OCSP request, checks that it names
// r.IssuerCert, resolves the named certificate's status via Store, and
// returns the signed DER response plus a CertObject recording the same
// ValidityEntry.
func (r *Responder) Respond(requestDER []byte) ([]byte, *certobj.Object, error) {
	req, err := ocsp.ParseRequest(requestDER)
	if err != nil {
		return nil, nil, berrors.New(berrors.BadData, "ocspproto: parsing request: %v", err)
	}

	if err := r.checkIssuerMatches(req); err != nil {
		return nil, nil, err
	}

	entry, err := r.Store.Lookup(req.SerialNumber)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	thisUpdate := now()

	template := ocsp.Response{
		Status:       statusToOCSP(entry.Status),
		SerialNumber: req.SerialNumber,
		ThisUpdate:   thisUpdate,
		NextUpdate:   thisUpdate.Add(r.Validity),
		Certificate:  r.ResponderCert,
	}
	if entry.Status == certobj.StatusRevoked {
		template.RevokedAt = entry.RevocationTime
		template.RevocationReason = ocsp.Unspecified
	}

	signerCert := r.ResponderCert
	if signerCert == nil {
		signerCert = r.IssuerCert
	}
	respDER, err := ocsp.CreateResponse(r.IssuerCert, signerCert, template, r.Signer)
	if err != nil {
		return nil, nil, berrors.New(berrors.Failed, "ocspproto: signing response: %v", err)
	}

	obj := certobj.New(certobj.KindOcspResp)
	if err := obj.AddValidityEntry(entry); err != nil {
		return nil, nil, err
	}
	obj.EncodedBytes = respDER
	obj.Flags |= certobj.FlagSigChecked

	return respDER, obj, nil
}

// checkIssuerMatches verifies req names r.IssuerCert by recomputing the
// name/key hashes the way RFC 6960 §4.1.1 defines CertID, rather than
// trusting the request's claimed serial against the wrong issuer.
func (r *Responder) checkIssuerMatches(req *ocsp.Request) error {
	nameHash, keyHash, err := issuerHashes(r.IssuerCert, req.HashAlgorithm)
	if err != nil {
		return err
	}
	if !bytes.Equal(nameHash, req.IssuerNameHash) || !bytes.Equal(keyHash, req.IssuerKeyHash) {
		return berrors.New(berrors.NotFound, "ocspproto: request does not name this responder's issuer")
	}
	return nil
}

func issuerHashes(issuer *x509.Certificate, hashAlg crypto.Hash) (nameHash, keyHash []byte, err error) {
	if !hashAlg.Available() {
		return nil, nil, berrors.New(berrors.BadData, "ocspproto: unsupported hash algorithm in request")
	}

	h := hashAlg.New()
	h.Write(issuer.RawSubject)
	nameHash = h.Sum(nil)

	keyBits, err := subjectPublicKeyBits(issuer.RawSubjectPublicKeyInfo)
	if err != nil {
		return nil, nil, err
	}
	h = hashAlg.New()
	h.Write(keyBits)
	keyHash = h.Sum(nil)

	return nameHash, keyHash, nil
}

// subjectPublicKeyBits extracts the subjectPublicKey BIT STRING's content
// octets (unused-bits count byte stripped) from a DER SubjectPublicKeyInfo,
// the slice RFC 6960's IssuerKeyHash is defined over.
func subjectPublicKeyBits(spkiDER []byte) ([]byte, error) {
	r := asn1io.NewReader(spkiDER)
	if _, err := r.ReadSequenceHeader(); err != nil {
		return nil, berrors.New(berrors.BadData, "ocspproto: parsing SubjectPublicKeyInfo: %v", err)
	}
	if err := r.ReadUniversal(); err != nil {
		return nil, berrors.New(berrors.BadData, "ocspproto: skipping AlgorithmIdentifier: %v", err)
	}
	bits, _, err := r.ReadBitString(0)
	if err != nil {
		return nil, berrors.New(berrors.BadData, "ocspproto: parsing subjectPublicKey: %v", err)
	}
	return bits, nil
}

func statusToOCSP(s certobj.ValidityStatus) int {
	switch s {
	case certobj.StatusGood:
		return ocsp.Good
	case certobj.StatusRevoked:
		return ocsp.Revoked
	default:
		return ocsp.Unknown
	}
}
