package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsMultipleSessionsConcurrently(t *testing.T) {
	const n = 4
	sessions := make([]*Session, n)
	clients := make([]net.Conn, n)
	for i := 0; i < n; i++ {
		server, client := net.Pipe()
		sessions[i] = NewSession(Config{
			Info:           ProtocolInfo{RecvBufferSize: 256},
			Transport:      server,
			Handler:        &echoHandler{response: []byte("ok")},
			Clock:          clock.NewFake(),
			ConnectTimeout: time.Second,
			DataTimeout:    time.Second,
		})
		clients[i] = client
	}
	t.Cleanup(func() {
		for _, c := range clients {
			_ = c.Close()
		}
	})

	d := NewDispatcher(2)
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(context.Background(), sessions) }()

	for _, c := range clients {
		_, err := c.Write([]byte("req"))
		require.NoError(t, err)
		_, err = c.Read(make([]byte, 32))
		require.NoError(t, err)
	}

	require.NoError(t, <-errCh)
	for _, s := range sessions {
		assert.False(t, s.ConnectionActive())
	}
}

func TestDispatcherTearsDownSessionsOnCancellation(t *testing.T) {
	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	s := NewSession(Config{
		Info:              ProtocolInfo{RecvBufferSize: 256, IsRequestResponse: true},
		Transport:         server,
		Handler:           &echoHandler{response: []byte("ok")},
		Clock:             clock.NewFake(),
		ConnectTimeout:    time.Second,
		DataTimeout:       time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(0)
	err := d.Run(ctx, []*Session{s})
	require.NoError(t, err)
	assert.False(t, s.IsOpen())
}
