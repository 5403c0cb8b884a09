package envelope

import (
	"encoding/asn1"

	"github.com/aox/pkicore/asn1io"
	"github.com/aox/pkicore/berrors"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// State is one node of the deenveloping state machine from spec §4.4,
// named after original_source/cryptlib/envelope/cms_denv.c's DEENVSTATE_*
// constants.
type State int

const (
	StateNone State = iota
	StateSetEncr
	StateEncr
	StateEncrContent
	StateSetHash
	StateHash
	StateContent
	StateData
	StateCertSet
	StateSetSig
	StateSig
	StateDone
)

// ContentKind is what the outer header announced, driving which branch of
// the state machine StateNone transitions into.
type ContentKind int

const (
	ContentUnknown ContentKind = iota
	ContentEncrypted
	ContentSigned
	ContentCompressed
	ContentPlainData
)

// Consumer drives the deenveloping state machine described in spec §4.4.
// It operates on whatever bytes have been pushed via Feed; when the
// current state needs more bytes than are available it returns
// berrors.Underflow and leaves its internal buffer and state untouched, so
// the caller can Feed more data and call Step again -- the resume-from-
// same-state contract from spec §4.4's buffer-management rule.
//
// Grounded on cms_denv.c's queryEnvelope/processDeenvelopePacket state
// transitions; operates over DER (definite-length) CMS objects, the form
// every producer in this package emits and the form go.mozilla.org/pkcs7
// both emits and expects -- cms_denv.c's indefinite-length/EOC handling
// has no counterpart here since golang.org/x/crypto/cryptobyte (the
// ASN.1 primitive this consumer is built on, via asn1io) is DER-only.
type Consumer struct {
	buf   []byte
	state State
	kind  ContentKind

	recipientCount  int
	digestAlgos     []asn1.ObjectIdentifier
	content         []byte
	detachedContent bool
	haveSessionKey  bool
}

// NewConsumer returns a Consumer in its initial StateNone.
func NewConsumer() *Consumer {
	return &Consumer{state: StateNone}
}

// Feed appends newly-received bytes to the consumer's buffer. Per spec
// §4.4's buffer-management rule, bytes already consumed by a completed
// Step are never retained -- the cursor-rewind behaviour of asn1io.ByteStream
// means a failed (Underflow) Step leaves buf untouched for replay with more
// data appended.
func (c *Consumer) Feed(data []byte) {
	c.buf = append(c.buf, data...)
}

// State reports the consumer's current state.
func (c *Consumer) State() State { return c.state }

// Content returns the accumulated payload content once StateData has been
// reached; before that it is empty.
func (c *Consumer) Content() []byte { return c.content }

// SetSessionKey records whether a recipient key has been matched and
// unwrapped, which decides the StateData EnvelopeResource contract.
func (c *Consumer) SetSessionKey(have bool) { c.haveSessionKey = have }

// Step advances the state machine by exactly one transition. Callers drive
// a loop: `for c.State() != StateDone { if err := c.Step(); err != nil {
// if errors.Is(err, berrors.Underflow) { feed more, continue }; return err } }`.
func (c *Consumer) Step() error {
	switch c.state {
	case StateNone:
		return c.stepNone()
	case StateSetEncr:
		return c.stepSetEncr()
	case StateEncr:
		return c.stepEncr()
	case StateEncrContent:
		return c.stepEncrContent()
	case StateSetHash:
		return c.stepSetHash()
	case StateHash:
		return c.stepHash()
	case StateContent:
		return c.stepContent()
	case StateData:
		return c.stepData()
	case StateCertSet, StateSetSig, StateSig:
		// Trailer states for Signed content with an attached signer/cert
		// set. No step in this consumer enters them: Signed content goes
		// from StateContent straight to StateDone, and the certificate and
		// SignerInfo sets are not read. A state set to one of these
		// passes straight to StateDone.
		c.state = StateDone
		return nil
	case StateDone:
		return nil
	default:
		return berrors.New(berrors.Invalid, "deenveloping state machine in unknown state %d", c.state)
	}
}

func (c *Consumer) reader() *asn1io.ByteStream {
	r := asn1io.NewReader(c.buf)
	r.PartialRead = true
	return r
}

func (c *Consumer) stepNone() error {
	r := c.reader()
	_, content, err := r.ReadRawObject(0)
	if err != nil {
		return err
	}

	inner := asn1io.NewReader(content)
	inner.PartialRead = true
	var oid asn1.ObjectIdentifier
	oidTag, oidContent, err := inner.ReadRawObject(0)
	if err != nil {
		return err
	}
	if oidTag != cryptobyte_asn1.OBJECT_IDENTIFIER {
		return berrors.New(berrors.BadData, "ContentInfo does not begin with a contentType OID")
	}
	if _, err := asn1.Unmarshal(append([]byte{0x06, byte(len(oidContent))}, oidContent...), &oid); err != nil {
		return berrors.New(berrors.BadData, "malformed contentType OID: %v", err)
	}

	switch {
	case oid.Equal(oidEncryptedData):
		c.kind = ContentEncrypted
		c.state = StateSetEncr
	case asn1ObjectIdentifierEqualAny(oid, signedDataOIDs()):
		c.kind = ContentSigned
		c.state = StateSetHash
	case oid.Equal(oidCompressedData):
		c.kind = ContentCompressed
		c.state = StateContent
	case oid.Equal(oidData):
		c.kind = ContentPlainData
		c.state = StateData
	default:
		return berrors.New(berrors.BadData, "unrecognized CMS content type OID %v", oid)
	}
	// Step inside the [0] content and, below plain Data, past the inner
	// SEQUENCE header and version (and CompressedData's algorithm).
	body := asn1io.NewReader(content[inner.Pos():])
	body.ReadConstructed(cryptobyte_asn1.Tag(0xa0))
	if c.kind != ContentPlainData {
		body.ReadSequenceHeader()
		body.ReadShortInteger()
	}
	if c.kind == ContentCompressed {
		body.ReadUniversal()
	}
	if err := body.Err(); err != nil {
		c.kind, c.state = ContentUnknown, StateNone
		return err
	}
	c.buf = content[inner.Pos()+body.Pos():]
	return nil
}

func signedDataOIDs() []asn1.ObjectIdentifier {
	return []asn1.ObjectIdentifier{{1, 2, 840, 113549, 1, 7, 2}}
}

func asn1ObjectIdentifierEqualAny(oid asn1.ObjectIdentifier, candidates []asn1.ObjectIdentifier) bool {
	for _, c := range candidates {
		if oid.Equal(c) {
			return true
		}
	}
	return false
}

// stepSetEncr consumes the SET OF RecipientInfo for EncryptedData/
// EnvelopedData. A SET whose announced length exceeds the buffer's
// remaining declared size is BadData, per spec §4.4.
func (c *Consumer) stepSetEncr() error {
	r := c.reader()
	setLen, err := r.ReadConstructed(cryptobyte_asn1.SET)
	if err != nil {
		return err
	}
	end := r.Pos() + setLen
	if end > len(c.buf) {
		return berrors.New(berrors.BadData, "RecipientInfo SET length exceeds remaining envelope size")
	}
	for r.Pos() < end {
		if _, _, err := r.ReadRawObject(0); err != nil {
			return err
		}
		c.recipientCount++
	}
	c.buf = c.buf[r.Pos():]
	c.state = StateEncr
	return nil
}

func (c *Consumer) stepEncr() error {
	c.state = StateEncrContent
	return nil
}

func (c *Consumer) stepEncrContent() error {
	r := c.reader()
	_, content, err := r.ReadRawObject(0)
	if err != nil {
		return err
	}
	c.content = content
	c.buf = c.buf[r.Pos():]
	c.state = StateData
	return nil
}

// stepSetHash consumes the SET OF DigestAlgorithmIdentifier for
// SignedData, de-duplicating repeated algorithm OIDs per spec §4.4's
// "Hash-set de-duplication" rule.
func (c *Consumer) stepSetHash() error {
	r := c.reader()
	setLen, err := r.ReadConstructed(cryptobyte_asn1.SET)
	if err != nil {
		return err
	}
	end := r.Pos() + setLen
	seen := make(map[string]bool)
	for r.Pos() < end {
		tag, err := r.PeekTag()
		if err != nil {
			break
		}
		if tag != cryptobyte_asn1.SEQUENCE {
			break
		}
		_, content, err := r.ReadRawObject(0)
		if err != nil {
			return err
		}
		var oid asn1.ObjectIdentifier
		inner := asn1io.NewReader(content)
		_, oidContent, err := inner.ReadRawObject(0)
		if err == nil {
			asn1.Unmarshal(append([]byte{0x06, byte(len(oidContent))}, oidContent...), &oid)
		}
		key := oid.String()
		if !seen[key] {
			seen[key] = true
			c.digestAlgos = append(c.digestAlgos, oid)
		}
	}
	c.buf = c.buf[r.Pos():]
	c.state = StateHash
	return nil
}

func (c *Consumer) stepHash() error {
	c.state = StateContent
	return nil
}

// stepContent consumes the encapsulated ContentInfo. A detached Signed
// payload carries a zero-length content and transitions straight to
// StateDone, per spec §4.4; the caller later supplies the detached payload
// out of band for hash completion.
func (c *Consumer) stepContent() error {
	r := c.reader()
	_, content, err := r.ReadRawObject(0)
	if err != nil {
		return err
	}
	c.buf = c.buf[r.Pos():]

	// The eContent is itself wrapped in an explicit [0] when present;
	// an absent eContent (detached signature) leaves content empty.
	if len(content) == 0 {
		c.detachedContent = true
		c.state = StateDone
		return nil
	}

	inner := asn1io.NewReader(content)
	if _, _, err := inner.ReadRawObject(0); err != nil {
		return err
	}
	if inner.Remaining() == 0 {
		c.detachedContent = true
		c.state = StateDone
		return nil
	}
	_, eContent, err := inner.ReadRawObject(0)
	if err != nil {
		c.detachedContent = true
		c.state = StateDone
		return nil
	}
	octReader := asn1io.NewReader(eContent)
	payload, err := octReader.ReadOctetString(0)
	if err != nil {
		c.content = eContent
	} else {
		c.content = payload
	}
	if c.kind == ContentCompressed {
		c.state = StateData
		return nil
	}
	c.state = StateDone
	return nil
}

// stepData is reached either directly (plain Data, EncryptedData) or after
// ENCRCONTENT; per spec §4.4, if no session key is yet derivable the
// machine returns EnvelopeResource rather than a fatal error, telling the
// caller to attempt a recipient match first.
func (c *Consumer) stepData() error {
	if (c.kind == ContentEncrypted) && !c.haveSessionKey {
		return berrors.New(berrors.EnvelopeResource, "no recipient key has unwrapped a session key yet")
	}
	c.state = StateDone
	return nil
}
