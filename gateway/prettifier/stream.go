package prettifier

import (
	"context"
	"strings"
	"sync"

	"github.com/jeffersonwarrior/aimux-sub001/internal/channel"
)

// StreamFragment is one incrementally assembled artifact chunk the
// StreamAssembler emits.
type StreamFragment struct {
	Text    string
	Dropped bool // true when this fragment was forced out by backpressure
}

// StreamAssembler maintains a per-stream buffer over chunked provider output,
// emitting a fragment when a code fence closes, a tool-call JSON object
// balances its braces, or a sentence terminator is seen past the flush
// threshold. It owns a single internal/channel.TunableChannel, matching the
// "single owner per stream, no cross-stream sharing" resource-model guarantee.
// The assembler never calls the channel's Tune, so the channel keeps its
// initial capacity for the life of the stream.
type StreamAssembler struct {
	mu             sync.Mutex
	buf            strings.Builder
	maxBufferBytes int
	flushThreshold int
	braceDepth     int
	inFence        bool
	backtickRun    int
	out            *channel.TunableChannel[StreamFragment]
}

// NewStreamAssembler creates an assembler whose buffer is force-flushed once
// it reaches maxBufferBytes (the BackpressureDrop case).
func NewStreamAssembler(maxBufferBytes int) *StreamAssembler {
	if maxBufferBytes <= 0 {
		maxBufferBytes = 64 * 1024
	}
	cfg := channel.DefaultTunableConfig()
	return &StreamAssembler{
		maxBufferBytes: maxBufferBytes,
		flushThreshold: maxBufferBytes / 4,
		out:            channel.NewTunableChannel[StreamFragment](cfg),
	}
}

// Fragments exposes the assembled-fragment channel for a consumer's select loop.
func (a *StreamAssembler) Fragments() <-chan StreamFragment {
	return a.out.Chan()
}

// Push appends a chunk of raw provider output, flushing whenever a boundary
// condition is satisfied or the buffer exceeds maxBufferBytes.
func (a *StreamAssembler) Push(ctx context.Context, chunk string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range chunk {
		a.buf.WriteRune(r)

		if r == '`' {
			a.backtickRun++
			if a.backtickRun == 3 {
				a.inFence = !a.inFence
				a.backtickRun = 0
			}
		} else {
			a.backtickRun = 0
		}

		if !a.inFence {
			switch r {
			case '{':
				a.braceDepth++
			case '}':
				if a.braceDepth > 0 {
					a.braceDepth--
				}
			}
		}

		if a.shouldFlush(a.buf.String()) {
			if err := a.flushLocked(ctx, false); err != nil {
				return err
			}
		}
	}

	if a.buf.Len() >= a.maxBufferBytes {
		return a.flushLocked(ctx, true)
	}
	return nil
}

// shouldFlush reports a natural boundary: a balanced fenced code block, a
// balanced brace run following an opening brace, or a sentence terminator
// once the buffer has grown past the flush threshold.
func (a *StreamAssembler) shouldFlush(content string) bool {
	if a.inFence {
		return false
	}
	if strings.HasSuffix(content, "```") {
		return true
	}
	if a.braceDepth == 0 && strings.HasSuffix(content, "}") && strings.Contains(content, "{") {
		return true
	}
	if len(content) >= a.flushThreshold {
		trimmed := strings.TrimRight(content, " \t\n")
		if trimmed != "" {
			switch trimmed[len(trimmed)-1] {
			case '.', '!', '?':
				return true
			}
		}
	}
	return false
}

func (a *StreamAssembler) flushLocked(ctx context.Context, dropped bool) error {
	text := a.buf.String()
	a.buf.Reset()
	a.braceDepth = 0
	a.backtickRun = 0
	if text == "" {
		return nil
	}
	return a.out.Send(ctx, StreamFragment{Text: text, Dropped: dropped})
}

// Close releases the underlying channel. Callers must stop calling Push first.
func (a *StreamAssembler) Close() {
	a.out.Close()
}
