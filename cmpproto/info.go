package cmpproto

import "github.com/aox/pkicore/session"

// contentType is the MIME type RFC 2510/4210 assign CMP PKIMessages,
// carried here purely as metadata for ProtocolInfo's ContentTypes table
// -- this transport is the raw TCP framing in cmp_tcp.c, not CMP-over-HTTP,
// so nothing in this package inspects it.
const contentType = "application/pkixcmp"

// Info builds the session.ProtocolInfo for a CMP-over-TCP session.
// maxPayload bounds both the largest PKIMessage this server will accept
// (passed through to Conn.Read via ReadFrame's maxLength) and the
// session's receive buffer sizing.
func Info(maxPayload int) session.ProtocolInfo {
	return session.ProtocolInfo{
		MinVersion:        tcpVersion,
		MaxVersion:        tcpVersion,
		ContentTypes:      []string{contentType},
		IsHTTPTransport:   false,
		IsRequestResponse: true,
		SendBufferSize:    maxPayload,
		RecvBufferSize:    maxPayload,
	}
}
