package web

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/aox/pkicore/log"
)

type userAgentContextKey struct{}

func UserAgent(ctx context.Context) string {
	// The below type assertion is safe because this context key can only be
	// set by this package and is only set to a string.
	val, ok := ctx.Value(userAgentContextKey{}).(string)
	if !ok {
		return ""
	}
	return val
}

func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, ua)
}

// RequestEvent is a structured record of the metadata we care about for a
// single request against a protocol session handler (SCEP, CMP, OCSP,
// RTCS). It is generated when a request is received, passed to the handler
// which can populate its fields as appropriate, and then logged when the
// request completes.
type RequestEvent struct {
	// These fields are not rendered in JSON; instead, they are rendered
	// whitespace-separated ahead of the JSON. This saves bytes in the logs
	// since we don't have to include field names, quotes, or commas -- all
	// of these fields are known to not include whitespace.
	Method   string  `json:"-"`
	Endpoint string  `json:"-"`
	Code     int     `json:"-"`
	Latency  float64 `json:"-"`
	RealIP   string  `json:"-"`

	Slug           string   `json:",omitempty"`
	InternalErrors []string `json:",omitempty"`
	Error          string   `json:",omitempty"`
	UserAgent      string   `json:"ua,omitempty"`
	// Origin is sent by the browser from XHR-based clients of the RA
	// front end; unused by raw SCEP/CMP clients but harmless to record.
	Origin string                 `json:",omitempty"`
	Extra  map[string]interface{} `json:",omitempty"`

	// TransactionID is the protocol transaction identifier of the request
	// being served -- SCEP's transactionId attribute, or a CMP
	// senderNonce/transactionID pair rendered as hex.
	TransactionID string `json:",omitempty"`
	// PKIStatus and FailInfo mirror the outcome a session handler reports
	// back to its caller, recorded here for audit even though the
	// response itself was already returned to the client.
	PKIStatus string `json:",omitempty"`
	FailInfo  string `json:",omitempty"`

	// suppressed controls whether this event will be logged when the request
	// completes. If true, no log line will be emitted. Can only be set by
	// calling .Suppress(); automatically unset by adding an internal error.
	suppressed bool `json:"-"`
}

// AddError formats the given message with the given args and appends it to the
// list of internal errors that have occurred as part of handling this event.
// If the RequestEvent has been suppressed, this un-suppresses it.
func (e *RequestEvent) AddError(msg string, args ...interface{}) {
	e.InternalErrors = append(e.InternalErrors, fmt.Sprintf(msg, args...))
	e.suppressed = false
}

// Suppress causes the RequestEvent to not be logged at all when the request
// is complete. This is a no-op if an internal error has been added to the event
// (logging errors takes precedence over suppressing output).
func (e *RequestEvent) Suppress() {
	if len(e.InternalErrors) == 0 {
		e.suppressed = true
	}
}

type HandlerFunc func(context.Context, *RequestEvent, http.ResponseWriter, *http.Request)

func (f HandlerFunc) ServeHTTP(e *RequestEvent, w http.ResponseWriter, r *http.Request) {
	f(r.Context(), e, w, r)
}

type sessionHandler interface {
	ServeHTTP(e *RequestEvent, w http.ResponseWriter, r *http.Request)
}

// TopHandler wraps a protocol session's HTTP handler, timing every request
// and logging a single structured line when it completes.
type TopHandler struct {
	inner sessionHandler
	log   log.Logger
}

func NewTopHandler(logger log.Logger, inner sessionHandler) *TopHandler {
	return &TopHandler{
		inner: inner,
		log:   logger,
	}
}

// responseWriterWithStatus satisfies http.ResponseWriter, but keeps track of the
// status code for logging.
type responseWriterWithStatus struct {
	http.ResponseWriter
	code int
}

// WriteHeader stores a status code for generating stats.
func (r *responseWriterWithStatus) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (th *TopHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Check that this header is well-formed, since we assume it is when logging.
	realIP := r.Header.Get("X-Real-IP")
	_, err := netip.ParseAddr(realIP)
	if err != nil {
		realIP = "0.0.0.0"
	}

	userAgent := r.Header.Get("User-Agent")

	logEvent := &RequestEvent{
		RealIP:    realIP,
		Method:    r.Method,
		UserAgent: userAgent,
		Origin:    r.Header.Get("Origin"),
		Extra:     make(map[string]interface{}),
	}

	ctx := WithUserAgent(r.Context(), userAgent)
	r = r.WithContext(ctx)

	// Clients shouldn't be able to cancel a signing operation mid-flight by
	// closing their connection; we apply our own timeouts instead.
	r = r.WithContext(context.WithoutCancel(r.Context()))

	// Some clients send an HTTP Host header that includes the default port
	// for the scheme they're using; strip it so any URL we echo back doesn't
	// carry a redundant port.
	r.Host = strings.TrimSuffix(r.Host, ":443")
	r.Host = strings.TrimSuffix(r.Host, ":80")

	begin := time.Now()
	rwws := &responseWriterWithStatus{w, 0}
	defer func() {
		logEvent.Code = rwws.code
		if logEvent.Code == 0 {
			// If we haven't explicitly set a status code golang will set it
			// to 200 itself when writing to the wire
			logEvent.Code = http.StatusOK
		}
		logEvent.Latency = time.Since(begin).Seconds()
		th.logEvent(logEvent)
	}()
	th.inner.ServeHTTP(logEvent, rwws, r)
}

func (th *TopHandler) logEvent(logEvent *RequestEvent) {
	if logEvent.suppressed {
		return
	}
	var msg string
	jsonEvent, err := json.Marshal(logEvent)
	if err != nil {
		th.log.AuditErrf("failed to marshal logEvent - %s - %#v", msg, err)
		return
	}
	th.log.Infof("%s %s %d %d %s JSON=%s",
		logEvent.Method, logEvent.Endpoint, logEvent.Code,
		int(logEvent.Latency*1000), logEvent.RealIP, jsonEvent)
}

// GetClientAddr returns a comma-separated list of HTTP clients involved in
// making this request, starting with the original requester and ending with the
// remote end of our TCP connection (which is typically our own proxy).
func GetClientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff + "," + r.RemoteAddr
	}
	return r.RemoteAddr
}

func KeyTypeToString(pub crypto.PublicKey) string {
	switch pk := pub.(type) {
	case *rsa.PublicKey:
		return fmt.Sprintf("RSA %d", pk.N.BitLen())
	case *ecdsa.PublicKey:
		return fmt.Sprintf("ECDSA %s", pk.Params().Name)
	}
	return "unknown"
}
