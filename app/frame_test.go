package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeDecode(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 32)
	in := frame{producer: 3, flags: frameUrgent, seq: 0x01020304}
	got, intact, err := decodeFrame(in.encode(buf))
	require.NoError(t, err)
	assert.True(t, intact)
	assert.Equal(t, in, got)
}

func TestFrameDetectsCorruption(t *testing.T) {
	t.Parallel()

	buf := frame{producer: 1, seq: 9}.encode(make([]byte, 16))
	buf[12] ^= 0xff

	f, intact, err := decodeFrame(buf)
	require.NoError(t, err)
	assert.False(t, intact)
	assert.Equal(t, uint32(9), f.seq)
}

func TestFrameTooShort(t *testing.T) {
	t.Parallel()

	_, _, err := decodeFrame(make([]byte, frameHeaderSize-1))
	require.ErrorIs(t, err, errShortFrame)
}
