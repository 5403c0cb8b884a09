package session

import (
	"io"
	"sync"
	"time"

	"github.com/aox/pkicore/berrors"
	"github.com/jmhodges/clock"
)

// ProtocolInfo is the per-protocol configuration table from spec §4.8:
// version bounds, accepted content types, and a pair of transport-shape
// flags. SessionDispatcher sizes its send/receive buffers from this table
// rather than growing them on demand.
type ProtocolInfo struct {
	MinVersion        int
	MaxVersion        int
	ContentTypes      []string
	IsHTTPTransport   bool
	IsRequestResponse bool
	SendBufferSize    int
	RecvBufferSize    int
}

// Transport is the byte-level pipe a Session drives. Deadline is a no-op
// for transports that don't support one (e.g. an in-memory pipe in tests).
type Transport interface {
	io.ReadWriteCloser
	SetDeadline(t time.Time) error
}

// TransactionHandler runs one request-to-response transaction -- the role
// scep.Engine.HandleTransaction fills in production. SilentClose mirrors
// scep.Outcome.SilentClose: the session must close without writing
// anything.
type TransactionHandler interface {
	HandleTransaction(request []byte) (response []byte, silentClose bool, err error)
}

// Session is the SessionDispatcher state from spec §4.8: one message in,
// one message out per transaction, with attribute-ordering enforcement via
// its embedded AttributeList and two independent timeouts.
type Session struct {
	mu sync.Mutex

	Info       ProtocolInfo
	Attributes *AttributeList

	transport Transport
	handler   TransactionHandler
	clk       clock.Clock

	sendBuf []byte
	recvBuf []byte

	isOpen           bool
	isServer         bool
	sendClosed       bool
	active           bool
	connectionActive bool
	lastMessage      time.Time

	handshakeDone  bool
	connectTimeout time.Duration
	dataTimeout    time.Duration

	awaitingAuthResponse bool
	authResponseAttr     AttributeID
}

// Config collects the construction-time parameters for a Session.
type Config struct {
	Info                ProtocolInfo
	Transport           Transport
	Handler             TransactionHandler
	Clock               clock.Clock
	IsServer            bool
	ConnectTimeout      time.Duration
	DataTimeout         time.Duration
	AuthResponseAttr    AttributeID
	PairingRules        []PairSpec
}

// NewSession builds a Session whose send/receive buffers are sized per
// cfg.Info, ready for its first activate.
func NewSession(cfg Config) *Session {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Session{
		Info:             cfg.Info,
		Attributes:       NewAttributeList(cfg.PairingRules...),
		transport:        cfg.Transport,
		handler:          cfg.Handler,
		clk:              clk,
		sendBuf:          make([]byte, 0, cfg.Info.SendBufferSize),
		recvBuf:          make([]byte, 0, cfg.Info.RecvBufferSize),
		isOpen:           true,
		isServer:         cfg.IsServer,
		connectionActive: true,
		connectTimeout:   cfg.ConnectTimeout,
		dataTimeout:      cfg.DataTimeout,
		authResponseAttr: cfg.AuthResponseAttr,
	}
}

// RequireAuthorisation arms the "partially open" state spec §4.8
// describes: the next SetActive(true) is rejected unless authResponseAttr
// has been written to the session's attribute list in the meantime.
func (s *Session) RequireAuthorisation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awaitingAuthResponse = true
}

// currentTimeout returns the connect/handshake timeout until the protocol
// has completed its first transaction, then the data timeout thereafter --
// a one-way switch, per spec §5.
func (s *Session) currentTimeout() time.Duration {
	if !s.handshakeDone {
		return s.connectTimeout
	}
	return s.dataTimeout
}

// SetActive implements spec §4.8's transition rules. active=false is
// always permitted and only clears the outstanding-transaction flag.
// active=true runs one synchronous transaction: read request, invoke the
// handler, write response (unless the handler signals a silent close);
// afterwards connectionActive stays set only for IsRequestResponse
// protocols, so the socket stays open for a further transaction.
func (s *Session) SetActive(active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !active {
		s.active = false
		return nil
	}
	if s.active {
		return berrors.New(berrors.Permission, "a transaction is already outstanding on this session")
	}
	if s.awaitingAuthResponse && !s.Attributes.Has(s.authResponseAttr) {
		return berrors.WithLocus(
			berrors.New(berrors.Permission, "session is awaiting authResponse before it may re-activate"),
			"authResponse", berrors.AttrAbsent,
		)
	}
	s.awaitingAuthResponse = false
	s.active = true

	err := s.runTransaction()

	s.active = false
	s.lastMessage = s.clk.Now()
	s.handshakeDone = true
	if !s.Info.IsRequestResponse {
		s.connectionActive = false
	}
	return err
}

func (s *Session) runTransaction() error {
	if err := s.transport.SetDeadline(s.clk.Now().Add(s.currentTimeout())); err != nil {
		return berrors.New(berrors.Timeout, "setting transport deadline: %v", err)
	}

	buf := make([]byte, cap(s.recvBuf))
	if cap(buf) == 0 {
		buf = make([]byte, 64*1024)
	}
	n, err := s.transport.Read(buf)
	if err != nil {
		return berrors.New(berrors.Read, "reading request: %v", err)
	}
	s.recvBuf = buf[:n]

	resp, silentClose, err := s.handler.HandleTransaction(s.recvBuf)
	if err != nil && !silentClose {
		return berrors.New(berrors.Failed, "handling transaction: %v", err)
	}
	if silentClose {
		s.sendClosed = true
		return s.closeLocked()
	}

	s.sendBuf = resp
	if _, err := s.transport.Write(s.sendBuf); err != nil {
		return berrors.New(berrors.Write, "writing response: %v", err)
	}
	return nil
}

// Destroy implements spec §5's cancellation/zeroisation contract: the
// send/receive buffers are zeroised, the attribute list (which may hold a
// password) is zeroised, and the transport is closed.
func (s *Session) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	zeroise(s.sendBuf)
	zeroise(s.recvBuf)
	s.Attributes.Zeroise()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if !s.isOpen {
		return nil
	}
	s.isOpen = false
	s.connectionActive = false
	return s.transport.Close()
}

// IsOpen, IsActive, and ConnectionActive expose the state bits spec §4.8
// lists, for a dispatcher deciding whether to keep polling a session.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOpen
}

func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) ConnectionActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionActive
}

func zeroise(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
