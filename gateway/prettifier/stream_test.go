package prettifier

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainFragment(t *testing.T, a *StreamAssembler) StreamFragment {
	t.Helper()
	select {
	case f := <-a.Fragments():
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fragment")
		return StreamFragment{}
	}
}

func TestStreamAssembler_FlushesOnClosedCodeFence(t *testing.T) {
	a := NewStreamAssembler(4096)
	ctx := context.Background()

	require.NoError(t, a.Push(ctx, "here is code:\n```go\nfunc main() {}\n```"))

	frag := drainFragment(t, a)
	assert.True(t, strings.HasSuffix(frag.Text, "```"))
	assert.False(t, frag.Dropped)
}

func TestStreamAssembler_FlushesOnBalancedBraces(t *testing.T) {
	a := NewStreamAssembler(4096)
	ctx := context.Background()

	require.NoError(t, a.Push(ctx, `call: {"city":"tokyo"}`))

	frag := drainFragment(t, a)
	assert.True(t, strings.HasSuffix(frag.Text, "}"))
}

func TestStreamAssembler_ForceFlushesOnOverflow(t *testing.T) {
	a := NewStreamAssembler(32)
	ctx := context.Background()

	require.NoError(t, a.Push(ctx, strings.Repeat("a", 40)))

	frag := drainFragment(t, a)
	assert.True(t, frag.Dropped)
}

func TestStreamAssembler_CloseStopsChannel(t *testing.T) {
	a := NewStreamAssembler(4096)
	a.Close()
	_, ok := <-a.Fragments()
	assert.False(t, ok)
}
