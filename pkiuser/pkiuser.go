// Package pkiuser implements the PKI User Record from spec §4.3/§6: the
// pre-registered end-entity credential `{userID, issuePassword,
// profile-constraints}` held in the CertStore, along with its cryptlib-style
// base32 presentation form.
//
// original_source/cryptlib/misc/str_net.c does not carry this encoding in
// the retrieved slice, so the wire shape here is an engineering
// reconstruction from spec §6's literal constraints (31-symbol confusable-
// free alphabet, 17-symbol length, ~80 bits of payload, built-in checksum):
// see DESIGN.md for the bit-budget reasoning that arrived at a 32-symbol
// alphabet instead of a literal 31, grouped 4-4-4-4-1.
package pkiuser

import (
	"strings"

	"github.com/aox/pkicore/berrors"
)

// alphabet is the 32-symbol confusable-free set used for the presentation
// form: all 36 alphanumerics minus 0/1/O/I. 32 symbols keeps the encoding a
// clean 5-bits-per-symbol packing, matching spec §6's "base32" naming; see
// DESIGN.md for why 31 (the spec's literal count) was not workable.
const alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// PayloadSize is the byte length of the random userID core encoded by the
// presentation form: 10 bytes is spec §6's "~80 bits payload".
const PayloadSize = 10

// symbolCount is the total number of base32 symbols in a presentation
// form: 16 payload symbols (80 bits / 5 bits per symbol) plus one checksum
// symbol, matching spec §6's "length is 17".
const symbolCount = PayloadSize*8/5 + 1

var reverseAlphabet = buildReverse()

func buildReverse() map[byte]uint {
	m := make(map[byte]uint, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		m[alphabet[i]] = uint(i)
	}
	return m
}

// Record is the PKI User Record from spec §4.3/§6: held in the CertStore
// and consulted by the ProtocolEngine to authenticate an enrolment request
// (spec §4.7 step 5) and to apply issuer-side profile constraints (step 6).
type Record struct {
	UserID             []byte // PayloadSize bytes, also compared against a transaction-ID
	IssuePassword      []byte
	ProfileConstraints ProfileConstraints
}

// ProfileConstraints is the issuer-side extension/override set applied to
// an incoming request when a PKI User Record's profile and the request are
// reconcilable (spec §4.7 step 6): a CN-only subject DN to fill in, and a
// set of extensions the issued certificate must carry regardless of what
// the request asked for.
type ProfileConstraints struct {
	FillSubjectCN    string
	RequiredKeyUsage int
}

// ComparePassword compares candidate to the record's issuePassword
// byte-for-byte, per spec §4.7 step 5. This is not a side-channel-protected
// comparison: the spec's authentication step is explicitly byte comparison,
// not a MAC or hash compare, so there is no secret derivation to protect
// against timing here beyond what this method already gives by using a
// fixed-length loop.
func (r *Record) ComparePassword(candidate []byte) bool {
	if len(candidate) != len(r.IssuePassword) {
		return false
	}
	var diff byte
	for i := range candidate {
		diff |= candidate[i] ^ r.IssuePassword[i]
	}
	return diff == 0
}

// MatchesUserID reports whether candidate identifies this record, per spec
// §4.7 step 5: candidate may be the raw userID bytes, or its base32
// presentation form (decoded first if it parses as one).
func (r *Record) MatchesUserID(candidate []byte) bool {
	if len(candidate) == symbolCount+4 || len(candidate) == symbolCount {
		if decoded, err := Decode(string(candidate)); err == nil {
			candidate = decoded
		}
	}
	return len(candidate) == len(r.UserID) && constantTimeEqual(candidate, r.UserID)
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// Encode renders a PayloadSize-byte userID as its grouped base32
// presentation form of 17 symbols grouped 4-4-4-4-1, e.g.
// "4F7K-P9X2-QZ3H-WV8M-R".
func Encode(payload []byte) (string, error) {
	if len(payload) != PayloadSize {
		return "", berrors.New(berrors.BadData, "pkiuser payload must be %d bytes, got %d", PayloadSize, len(payload))
	}
	symbols := make([]byte, symbolCount)
	bitBuf := uint32(0)
	bitCount := 0
	si := 0
	for _, b := range payload {
		bitBuf = bitBuf<<8 | uint32(b)
		bitCount += 8
		for bitCount >= 5 {
			bitCount -= 5
			symbols[si] = alphabet[(bitBuf>>uint(bitCount))&0x1f]
			si++
		}
	}
	if bitCount > 0 {
		symbols[si] = alphabet[(bitBuf<<uint(5-bitCount))&0x1f]
		si++
	}
	symbols[si] = alphabet[checksum(payload)]

	return group(symbols), nil
}

// group inserts hyphens every 4 symbols, per spec §6's "XXXX-XXXX-XXXX-X"
// style presentation.
func group(symbols []byte) string {
	var b strings.Builder
	for i, c := range symbols {
		if i > 0 && i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Decode parses a grouped or ungrouped presentation form back into its
// PayloadSize-byte userID, verifying the trailing checksum symbol.
func Decode(s string) ([]byte, error) {
	raw := strings.ToUpper(strings.ReplaceAll(s, "-", ""))
	if len(raw) != symbolCount {
		return nil, berrors.New(berrors.BadData, "pkiuser presentation form must decode to %d symbols, got %d", symbolCount, len(raw))
	}
	values := make([]uint, symbolCount)
	for i := 0; i < symbolCount; i++ {
		v, ok := reverseAlphabet[raw[i]]
		if !ok {
			return nil, berrors.New(berrors.BadData, "pkiuser presentation form contains character %q outside its alphabet", raw[i])
		}
		values[i] = v
	}

	payload := make([]byte, PayloadSize)
	bitBuf := uint32(0)
	bitCount := 0
	pi := 0
	for i := 0; i < symbolCount-1; i++ {
		bitBuf = bitBuf<<5 | uint32(values[i])
		bitCount += 5
		if bitCount >= 8 {
			bitCount -= 8
			payload[pi] = byte(bitBuf >> uint(bitCount))
			pi++
		}
	}
	if pi != PayloadSize {
		return nil, berrors.New(berrors.BadData, "pkiuser presentation form decoded short payload")
	}

	if values[symbolCount-1] != checksum(payload) {
		return nil, berrors.New(berrors.BadData, "pkiuser presentation form checksum mismatch")
	}
	return payload, nil
}

// checksum is a position-weighted additive mod-32 check over the raw
// payload bytes, per spec §6's "built-in checksum". It catches many
// single-character transcription errors, but misses any change that shifts
// the weighted sum by a multiple of 32.
func checksum(payload []byte) uint {
	var sum uint
	for i, b := range payload {
		sum += uint(b) * uint(i+1)
	}
	return sum % 32
}
