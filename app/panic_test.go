package app

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparkrt/hal"
	"sparkrt/sparkos/kernel"
)

func TestPanicHandlerWritesAndForwards(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := hal.New(&buf, 0)
	ch := make(chan kernel.PanicInfo, 1)

	fn := panicHandler(h.Logger(), ch)
	fn(kernel.PanicInfo{Thread: "consumer-0", Value: "boom", Stack: []byte("frame one\n\nframe two\n")})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"sparkrt panic: thread=consumer-0 panic=boom",
		"frame one",
		"frame two",
	}, lines)

	select {
	case info := <-ch:
		assert.Equal(t, "consumer-0", info.Thread)
	default:
		require.Fail(t, "panic info not forwarded")
	}
}

func TestPanicHandlerNeverBlocks(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ch := make(chan kernel.PanicInfo, 1)
	fn := panicHandler(hal.New(&buf, 0).Logger(), ch)

	fn(kernel.PanicInfo{Value: "first"})
	fn(kernel.PanicInfo{Value: "second"})

	assert.Contains(t, buf.String(), "thread=- panic=first")
	assert.Contains(t, buf.String(), "stack: unavailable")
	assert.Equal(t, "first", (<-ch).Value)
}
