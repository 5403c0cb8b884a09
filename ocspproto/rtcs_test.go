package ocspproto

import (
	"testing"

	"github.com/aox/pkicore/certobj"
	"github.com/aox/pkicore/certstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRTCSRequestThenDecodeRoundTrips(t *testing.T) {
	req := RTCSRequest{CertHashes: [][]byte{HashCertificate([]byte("cert-a")), HashCertificate([]byte("cert-b"))}}

	der, err := EncodeRTCSRequest(req)
	require.NoError(t, err)

	decoded, err := DecodeRTCSRequest(der)
	require.NoError(t, err)
	assert.Equal(t, req.CertHashes, decoded.CertHashes)
}

func TestEncodeRTCSResponseThenDecodeRoundTrips(t *testing.T) {
	resp := RTCSResponse{Entries: []RTCSResponseEntry{
		{CertHash: HashCertificate([]byte("cert-a")), Status: certobj.StatusGood},
		{CertHash: HashCertificate([]byte("cert-b")), Status: certobj.StatusRevoked},
	}}

	der, err := EncodeRTCSResponse(resp)
	require.NoError(t, err)

	decoded, err := DecodeRTCSResponse(der)
	require.NoError(t, err)
	require.Len(t, decoded.Entries, 2)
	assert.Equal(t, certobj.StatusGood, decoded.Entries[0].Status)
	assert.Equal(t, certobj.StatusRevoked, decoded.Entries[1].Status)
}

func TestRTCSResponderRespondRecordsValidityListAndEncodesResponse(t *testing.T) {
	hashA := HashCertificate([]byte("cert-a"))
	hashB := HashCertificate([]byte("cert-b"))

	lookup := NewHashCertStoreLookup(certstore.NewMemory())
	require.NoError(t, lookup.Record(hashA, certobj.ValidityEntry{Status: certobj.StatusGood}))
	require.NoError(t, lookup.Record(hashB, certobj.ValidityEntry{Status: certobj.StatusRevoked}))

	requestDER, err := EncodeRTCSRequest(RTCSRequest{CertHashes: [][]byte{hashA, hashB}})
	require.NoError(t, err)

	responder := &RTCSResponder{Store: lookup}
	respDER, obj, err := responder.Respond(requestDER)
	require.NoError(t, err)

	assert.Equal(t, certobj.KindRtcsResp, obj.Kind)
	require.Len(t, obj.ValidityList, 2)
	assert.Equal(t, certobj.StatusGood, obj.ValidityList[0].Status)
	assert.Equal(t, certobj.StatusRevoked, obj.ValidityList[1].Status)

	resp, err := DecodeRTCSResponse(respDER)
	require.NoError(t, err)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, certobj.StatusRevoked, resp.Entries[1].Status)
}

func TestHashCertStoreLookupReportsUnknownForUnrecordedHash(t *testing.T) {
	lookup := NewHashCertStoreLookup(certstore.NewMemory())

	entry, err := lookup.LookupByHash(HashCertificate([]byte("never seen")))
	require.NoError(t, err)
	assert.Equal(t, certobj.StatusUnknown, entry.Status)
}
