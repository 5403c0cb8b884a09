// RTCS (Real-Time Certificate Status) has no public wire-format standard
// the way OCSP does: it's cryptlib's own protocol, identifying certificates
// by a hash of their full DER encoding rather than OCSP's
// {issuerNameHash, issuerKeyHash, serialNumber} CertID. This file gives it
// a minimal wire format in the same byte-codec idiom cmpproto's framing and
// certobj's parser use (asn1io.ByteStream), rather than borrowing OCSP's
// shape for a protocol that doesn't share it.
package ocspproto

import (
	"crypto/sha1" //nolint:gosec // matching identifier.ID's wire-mandated hash, not a security boundary

	"github.com/aox/pkicore/asn1io"
	"github.com/aox/pkicore/berrors"
	"github.com/aox/pkicore/certobj"
)

// RTCSRequest names one or more certificates to check, per spec C's
// "single/multi revocation-entry validity-list sub-record".
type RTCSRequest struct {
	CertHashes [][]byte
}

// RTCSResponseEntry is one certificate's reported status.
type RTCSResponseEntry struct {
	CertHash []byte
	Status   certobj.ValidityStatus
}

// RTCSResponse is the full set of per-certificate results for a request.
type RTCSResponse struct {
	Entries []RTCSResponseEntry
}

// HashCertificate derives the identifier an RTCS request/response uses for
// one certificate, from its full DER encoding.
func HashCertificate(certDER []byte) []byte {
	sum := sha1.Sum(certDER)
	return sum[:]
}

// EncodeRTCSRequest renders req as SEQUENCE OF OCTET STRING.
func EncodeRTCSRequest(req RTCSRequest) ([]byte, error) {
	inner := asn1io.NewWriter()
	for _, hash := range req.CertHashes {
		if err := inner.WriteOctetString(hash); err != nil {
			return nil, err
		}
	}
	return asn1io.WrapSequence(inner.Bytes()), nil
}

// DecodeRTCSRequest parses the wire format EncodeRTCSRequest produces.
func DecodeRTCSRequest(der []byte) (RTCSRequest, error) {
	r := asn1io.NewReader(der)
	n, err := r.ReadSequenceHeader()
	if err != nil {
		return RTCSRequest{}, berrors.New(berrors.BadData, "rtcs: parsing request: %v", err)
	}
	body, err := r.ReadRaw(n)
	if err != nil {
		return RTCSRequest{}, berrors.New(berrors.BadData, "rtcs: parsing request: %v", err)
	}

	inner := asn1io.NewReader(body)
	var hashes [][]byte
	for inner.Remaining() > 0 {
		hash, err := inner.ReadOctetString(0)
		if err != nil {
			return RTCSRequest{}, berrors.New(berrors.BadData, "rtcs: parsing cert hash: %v", err)
		}
		hashes = append(hashes, hash)
	}
	return RTCSRequest{CertHashes: hashes}, nil
}

// EncodeRTCSResponse renders resp as SEQUENCE OF SEQUENCE { certHash
// OCTET STRING, status INTEGER }.
func EncodeRTCSResponse(resp RTCSResponse) ([]byte, error) {
	outer := asn1io.NewWriter()
	for _, entry := range resp.Entries {
		inner := asn1io.NewWriter()
		if err := inner.WriteOctetString(entry.CertHash); err != nil {
			return nil, err
		}
		if err := inner.WriteShortInteger(int64(entry.Status)); err != nil {
			return nil, err
		}
		if _, err := outer.WriteRaw(asn1io.WrapSequence(inner.Bytes())); err != nil {
			return nil, err
		}
	}
	return asn1io.WrapSequence(outer.Bytes()), nil
}

// DecodeRTCSResponse parses the wire format EncodeRTCSResponse produces.
func DecodeRTCSResponse(der []byte) (RTCSResponse, error) {
	r := asn1io.NewReader(der)
	n, err := r.ReadSequenceHeader()
	if err != nil {
		return RTCSResponse{}, berrors.New(berrors.BadData, "rtcs: parsing response: %v", err)
	}
	body, err := r.ReadRaw(n)
	if err != nil {
		return RTCSResponse{}, berrors.New(berrors.BadData, "rtcs: parsing response: %v", err)
	}

	outer := asn1io.NewReader(body)
	var entries []RTCSResponseEntry
	for outer.Remaining() > 0 {
		entryLen, err := outer.ReadSequenceHeader()
		if err != nil {
			return RTCSResponse{}, berrors.New(berrors.BadData, "rtcs: parsing response entry: %v", err)
		}
		entryBody, err := outer.ReadRaw(entryLen)
		if err != nil {
			return RTCSResponse{}, berrors.New(berrors.BadData, "rtcs: parsing response entry: %v", err)
		}
		inner := asn1io.NewReader(entryBody)
		hash, err := inner.ReadOctetString(0)
		if err != nil {
			return RTCSResponse{}, berrors.New(berrors.BadData, "rtcs: parsing entry cert hash: %v", err)
		}
		status, err := inner.ReadShortInteger()
		if err != nil {
			return RTCSResponse{}, berrors.New(berrors.BadData, "rtcs: parsing entry status: %v", err)
		}
		entries = append(entries, RTCSResponseEntry{CertHash: hash, Status: certobj.ValidityStatus(status)})
	}
	return RTCSResponse{Entries: entries}, nil
}

// HashLookup resolves validity status by certificate hash rather than by
// issuer+serial, backing an RTCSResponder the way CertStoreLookup backs an
// OCSP Responder.
type HashLookup interface {
	LookupByHash(certHash []byte) (certobj.ValidityEntry, error)
}

// RTCSResponder answers RTCS requests, recording each decision in a
// CertObject's ValidityList the same way Responder does for OCSP.
type RTCSResponder struct {
	Store HashLookup
}

// Respond decodes requestDER, resolves each named certificate's status,
// and returns the encoded response plus a CertObject recording the
// resulting ValidityList.
func (r *RTCSResponder) Respond(requestDER []byte) ([]byte, *certobj.Object, error) {
	req, err := DecodeRTCSRequest(requestDER)
	if err != nil {
		return nil, nil, err
	}

	obj := certobj.New(certobj.KindRtcsResp)
	var entries []RTCSResponseEntry
	for _, hash := range req.CertHashes {
		entry, err := r.Store.LookupByHash(hash)
		if err != nil {
			return nil, nil, err
		}
		if err := obj.AddValidityEntry(entry); err != nil {
			return nil, nil, err
		}
		entries = append(entries, RTCSResponseEntry{CertHash: hash, Status: entry.Status})
	}

	respDER, err := EncodeRTCSResponse(RTCSResponse{Entries: entries})
	if err != nil {
		return nil, nil, err
	}
	obj.EncodedBytes = respDER
	obj.Flags |= certobj.FlagSigChecked

	return respDER, obj, nil
}
