package cmpproto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/aox/pkicore/berrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrameThenReadFrameRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("a PKIMessage would go here")
	require.NoError(t, WriteFrame(&buf, payload, true, PkiReq))

	frame, err := ReadFrame(&buf, 4096)
	require.NoError(t, err)
	assert.Equal(t, payload, frame.Payload)
	assert.True(t, frame.LastMessage)
	assert.Equal(t, PkiReq, frame.Type)
}

func TestReadFrameRejectsWrongVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("x"), false, PkiReq))
	raw := buf.Bytes()
	raw[4] = 9

	_, err := ReadFrame(bytes.NewReader(raw), 4096)
	require.Error(t, err)
	assert.True(t, errors.Is(err, berrors.BadData))
}

func TestReadFrameRejectsOversizedDeclaredLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, make([]byte, 100), false, PkiReq))

	_, err := ReadFrame(&buf, 16)
	require.Error(t, err)
}

func TestReadFrameRejectsUnhandledMessageType(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("x"), false, PollReq))

	_, err := ReadFrame(&buf, 4096)
	require.Error(t, err)
}

func TestReadFrameSurfacesErrorMsgRepAsTransportError(t *testing.T) {
	var buf bytes.Buffer
	errPayload := make([]byte, 4)
	binary.BigEndian.PutUint16(errPayload[0:2], 0x0300)
	require.NoError(t, WriteFrame(&buf, errPayload, false, ErrorMsgRep))

	_, err := ReadFrame(&buf, 4096)
	require.Error(t, err)
}
