// Package cmpproto implements the CMP-over-TCP framing supplemented from
// original_source/cryptlib/io/cmp_tcp.c: a 7-byte header kludged onto the
// RFC 2510 CMP protocol by cryptlib's own admission, ahead of each
// PKIMessage, carrying a declared length, a fixed protocol version, a
// last-message flag, and a message type.
package cmpproto

import (
	"encoding/binary"
	"io"

	"github.com/aox/pkicore/berrors"
)

// MessageType is the CMP-over-TCP header's message type byte.
// cryptlib's cmp_tcp.c enumerates seven values; this server only
// produces PkiRep, and ReadFrame accepts only PkiReq, PkiRep and
// ErrorMsgRep -- the poll/finished values exist for cryptlib's own polling transaction
// model, which this tree's one-message-in-one-message-out
// TransactionHandler has no use for.
type MessageType byte

const (
	PkiReq      MessageType = 0
	PollRep     MessageType = 1
	PollReq     MessageType = 2
	FinRep      MessageType = 3
	cmpDummy    MessageType = 4
	PkiRep      MessageType = 5
	ErrorMsgRep MessageType = 6
)

// tcpVersion is cryptlib's "artificially huge version number" kludge,
// chosen specifically to be incompatible with earlier CMP-over-TCP
// implementations; there is no negotiation of this value (spec §9's Open
// Question on CMP version negotiation is resolved as "not implemented").
const tcpVersion = 10

// headerSize is the fixed 4-byte length + version + flags + type header.
const headerSize = 7

// minPacketSize is the smallest declared length accepted: the length
// must cover at least the 3-byte version/flags/type trailer, even for an
// otherwise-empty payload.
const minPacketSize = 3

// Frame is one decoded CMP-over-TCP message.
type Frame struct {
	Payload     []byte
	LastMessage bool
	Type        MessageType
}

// WriteFrame writes one frame: a 7-byte header followed by payload.
// length, as cryptlib's writeHeader computes it, is the payload length
// plus 3 (the version/flags/type bytes the length field was defined, for
// historical reasons, to include).
func WriteFrame(w io.Writer, payload []byte, lastMessage bool, msgType MessageType) error {
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(payload)+3))
	header[4] = tcpVersion
	if lastMessage {
		header[5] = 1
	}
	header[6] = byte(msgType)

	if _, err := w.Write(header); err != nil {
		return berrors.New(berrors.Write, "cmpproto: writing frame header: %v", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return berrors.New(berrors.Write, "cmpproto: writing frame payload: %v", err)
		}
	}
	return nil
}

// ReadFrame reads one frame from r. maxLength bounds the declared length
// field against a caller-supplied ceiling, mirroring readHeader's own
// maxLength parameter, which guards against a peer claiming an
// unreasonably large payload before any of it has been read.
//
// Per cryptlib's own readHeader, an ErrorMsgRep frame never yields a
// payload to the caller: cryptlib treats the CMP-over-TCP layer as
// unauthenticated and untrusted, so an ErrorMsgRep is surfaced as a
// transport-level error rather than application data, exactly as
// readHeader's own comment explains.
func ReadFrame(r io.Reader, maxLength int) (Frame, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, berrors.New(berrors.Read, "cmpproto: reading frame header: %v", err)
	}

	length := int(binary.BigEndian.Uint32(header[0:4]))
	if length < minPacketSize || length > maxLength {
		return Frame{}, berrors.New(berrors.BadData, "cmpproto: declared frame length %d out of bounds", length)
	}
	if header[4] != tcpVersion {
		return Frame{}, berrors.New(berrors.BadData, "cmpproto: unsupported CMP-over-TCP version %d", header[4])
	}
	lastMessage := header[5] != 0
	msgType := MessageType(header[6])
	payloadLen := length - 3

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, berrors.New(berrors.Read, "cmpproto: reading frame payload: %v", err)
		}
	}

	switch msgType {
	case PkiReq, PkiRep:
		return Frame{Payload: payload, LastMessage: lastMessage, Type: msgType}, nil
	case ErrorMsgRep:
		return Frame{}, parseErrorMsgRep(payload)
	default:
		return Frame{}, berrors.New(berrors.BadData, "cmpproto: message type %d is not handled", msgType)
	}
}

// parseErrorMsgRep reports cryptlib's own two-byte error code, mapping
// a 0x3xx-class code to a read error and everything else to bad data,
// matching readHeader's `(errorCode & 0x0F00) == 0x0300` classification.
func parseErrorMsgRep(payload []byte) error {
	if len(payload) < 2 {
		return berrors.New(berrors.BadData, "cmpproto: transport-level protocol error encountered")
	}
	errorCode := binary.BigEndian.Uint16(payload[0:2])
	if errorCode&0x0F00 == 0x0300 {
		return berrors.New(berrors.Read, "cmpproto: peer reported transport error code %#x", errorCode)
	}
	return berrors.New(berrors.BadData, "cmpproto: peer reported transport error code %#x", errorCode)
}
