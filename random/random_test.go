package random

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFillsRequestedLength(t *testing.T) {
	p := NewPool()
	b, err := p.Bytes(32)
	require.NoError(t, err)
	assert.Len(t, b, 32)
}

func TestConsecutiveDrawsDiffer(t *testing.T) {
	p := NewPool()
	a, err := p.Bytes(16)
	require.NoError(t, err)
	b, err := p.Bytes(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCheckForkedDetectsPidChange(t *testing.T) {
	p := NewPool()
	assert.False(t, p.checkForked())
	p.pid = os.Getpid() + 1
	assert.True(t, p.checkForked())
	assert.False(t, p.checkForked())
}

func TestReadReseedsOnDetectedFork(t *testing.T) {
	p := NewPool()
	_, err := p.Bytes(16)
	require.NoError(t, err)
	before := p.state

	p.pid = os.Getpid() + 1
	_, err = p.Bytes(16)
	require.NoError(t, err)
	assert.NotEqual(t, before, p.state)
}
