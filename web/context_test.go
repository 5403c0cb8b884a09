package web

import (
	"bytes"
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aox/pkicore/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type myHandler struct{}

func (m myHandler) ServeHTTP(e *RequestEvent, w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(201)
	e.Endpoint = "/endpoint"
	_, _ = w.Write([]byte("hi"))
}

func TestLogCode(t *testing.T) {
	mockLog := log.UseMock()
	th := NewTopHandler(mockLog, myHandler{})
	req, err := http.NewRequest("GET", "/thisisignored", &bytes.Reader{})
	require.NoError(t, err)
	th.ServeHTTP(httptest.NewRecorder(), req)
	expected := `INFO: GET /endpoint 201 0 0.0.0.0 JSON={}`
	assert.Len(t, mockLog.GetAllMatching(expected), 1,
		"expected exactly one log line matching %q, got\n%s", expected, strings.Join(mockLog.GetAll(), "\n"))
}

type codeHandler struct{}

func (ch codeHandler) ServeHTTP(e *RequestEvent, w http.ResponseWriter, r *http.Request) {
	e.Endpoint = "/endpoint"
	_, _ = w.Write([]byte("hi"))
}

func TestStatusCodeLogging(t *testing.T) {
	mockLog := log.UseMock()
	th := NewTopHandler(mockLog, codeHandler{})
	req, err := http.NewRequest("GET", "/thisisignored", &bytes.Reader{})
	require.NoError(t, err)
	th.ServeHTTP(httptest.NewRecorder(), req)
	expected := `INFO: GET /endpoint 200 0 0.0.0.0 JSON={}`
	assert.Len(t, mockLog.GetAllMatching(expected), 1,
		"expected exactly one log line matching %q, got\n%s", expected, strings.Join(mockLog.GetAll(), "\n"))
}

func TestOrigin(t *testing.T) {
	mockLog := log.UseMock()
	th := NewTopHandler(mockLog, myHandler{})
	req, err := http.NewRequest("GET", "/thisisignored", &bytes.Reader{})
	require.NoError(t, err)
	req.Header.Add("Origin", "https://example.com")
	th.ServeHTTP(httptest.NewRecorder(), req)
	expected := `INFO: GET /endpoint 201 0 0.0.0.0 JSON={.*"Origin":"https://example.com"}`
	assert.Len(t, mockLog.GetAllMatching(expected), 1,
		"expected exactly one log line matching %q, got\n%s", expected, strings.Join(mockLog.GetAll(), "\n"))
}

type hostHeaderHandler struct {
	f func(*RequestEvent, http.ResponseWriter, *http.Request)
}

func (hhh hostHeaderHandler) ServeHTTP(e *RequestEvent, w http.ResponseWriter, r *http.Request) {
	hhh.f(e, w, r)
}

func TestHostHeaderRewrite(t *testing.T) {
	mockLog := log.UseMock()
	hhh := hostHeaderHandler{f: func(_ *RequestEvent, _ http.ResponseWriter, r *http.Request) {
		t.Helper()
		assert.Equal(t, "localhost", r.Host)
	}}
	th := NewTopHandler(mockLog, &hhh)

	req, err := http.NewRequest("GET", "/", &bytes.Reader{})
	require.NoError(t, err)
	req.Host = "localhost:80"
	th.ServeHTTP(httptest.NewRecorder(), req)

	req, err = http.NewRequest("GET", "/", &bytes.Reader{})
	require.NoError(t, err)
	req.Host = "localhost:443"
	req.TLS = &tls.ConnectionState{}
	th.ServeHTTP(httptest.NewRecorder(), req)

	req, err = http.NewRequest("GET", "/", &bytes.Reader{})
	require.NoError(t, err)
	req.Host = "localhost:443"
	req.TLS = nil
	th.ServeHTTP(httptest.NewRecorder(), req)

	hhh.f = func(_ *RequestEvent, _ http.ResponseWriter, r *http.Request) {
		t.Helper()
		assert.Equal(t, "localhost:123", r.Host)
	}
	req, err = http.NewRequest("GET", "/", &bytes.Reader{})
	require.NoError(t, err)
	req.Host = "localhost:123"
	th.ServeHTTP(httptest.NewRecorder(), req)
}

type cancelHandler struct {
	res chan string
}

func (ch cancelHandler) ServeHTTP(e *RequestEvent, w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
		ch.res <- r.Context().Err().Error()
	case <-time.After(300 * time.Millisecond):
		ch.res <- "300 ms passed"
	}
}

// TestCancelNotPropagated confirms a client closing its connection does not
// cancel the in-flight signing operation TopHandler wraps.
func TestCancelNotPropagated(t *testing.T) {
	mockLog := log.UseMock()
	res := make(chan string)
	th := NewTopHandler(mockLog, cancelHandler{res})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		req, err := http.NewRequestWithContext(ctx, "GET", "/thisisignored", &bytes.Reader{})
		if err != nil {
			t.Error(err)
		}
		th.ServeHTTP(httptest.NewRecorder(), req)
	}()
	cancel()
	result := <-res
	assert.Equal(t, "300 ms passed", result)
}
