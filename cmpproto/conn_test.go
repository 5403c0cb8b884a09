package cmpproto

import (
	"net"
	"testing"

	"github.com/aox/pkicore/session"
	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct{}

func (echoHandler) HandleTransaction(request []byte) ([]byte, bool, error) {
	return append([]byte("echo:"), request...), false, nil
}

func TestConnRoundTripsThroughSession(t *testing.T) {
	serverRaw, clientRaw := net.Pipe()
	serverConn := NewConn(serverRaw, 4096)

	s := session.NewSession(session.Config{
		Info:      Info(4096),
		Transport: serverConn,
		Handler:  echoHandler{},
		Clock:    clock.NewFake(),
		IsServer: true,
	})

	done := make(chan error, 1)
	go func() { done <- s.SetActive(true) }()

	require.NoError(t, WriteFrame(clientRaw, []byte("hello"), false, PkiReq))

	frame, err := ReadFrame(clientRaw, 4096)
	require.NoError(t, err)
	assert.Equal(t, "echo:hello", string(frame.Payload))
	assert.Equal(t, PkiRep, frame.Type)

	require.NoError(t, <-done)
}

func TestConnReadRejectsPayloadLargerThanBuffer(t *testing.T) {
	serverRaw, clientRaw := net.Pipe()
	defer serverRaw.Close()
	defer clientRaw.Close()
	c := NewConn(serverRaw, 4096)

	go func() { _ = WriteFrame(clientRaw, make([]byte, 100), false, PkiReq) }()

	buf := make([]byte, 10)
	_, err := c.Read(buf)
	require.Error(t, err)
}

func TestConnLastMessageReflectsMostRecentFrame(t *testing.T) {
	serverRaw, clientRaw := net.Pipe()
	defer serverRaw.Close()
	defer clientRaw.Close()
	c := NewConn(serverRaw, 4096)

	go func() { _ = WriteFrame(clientRaw, []byte("x"), true, PkiReq) }()

	buf := make([]byte, 16)
	_, err := c.Read(buf)
	require.NoError(t, err)
	assert.True(t, c.LastMessage())
}
