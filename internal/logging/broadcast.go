package logging

import (
	"container/ring"
	"fmt"
	"io"
	"os"
	"sync"
)

// DefaultBufferSize is the number of recent log lines a LogBroadcaster
// keeps for newly-attached subscribers.
const DefaultBufferSize = 256

// broadcastWarnWriter receives the warning emitted when a subscriber falls
// behind and a message has to be dropped for it. Overridable for tests.
var broadcastWarnWriter io.Writer = os.Stderr

// LogBroadcaster wraps an io.Writer and fans every write out to a set of
// subscriber channels, in addition to passing it through unchanged. A
// subscriber that isn't draining its channel never blocks logging: its
// message is dropped and a warning is emitted instead.
type LogBroadcaster struct {
	mu          sync.Mutex
	out         io.Writer
	buffer      *ring.Ring
	subscribers map[string]chan string
}

// newLogBroadcaster wraps out, which may be nil.
func newLogBroadcaster(out io.Writer) *LogBroadcaster {
	return &LogBroadcaster{
		out:         out,
		buffer:      ring.New(DefaultBufferSize),
		subscribers: make(map[string]chan string),
	}
}

// Write implements io.Writer: it forwards p to the wrapped writer (if any),
// records it in the ring buffer, and fans it out to every subscriber.
func (b *LogBroadcaster) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	var err error
	if b.out != nil {
		n, err = b.out.Write(p)
	}

	line := string(p)
	if b.buffer == nil {
		b.buffer = ring.New(DefaultBufferSize)
	}
	b.buffer.Value = line
	b.buffer = b.buffer.Next()

	for id, ch := range b.subscribers {
		select {
		case ch <- line:
		default:
			fmt.Fprintf(broadcastWarnWriter, "reason=subscriber_blocked subscriber_id=%s action=drop_message\n", id)
		}
	}

	return n, err
}

// Subscribe registers a new subscriber and returns its channel along with
// an unsubscribe function. buffer sizes the subscriber's channel; a small
// buffer tolerates brief stalls before messages start getting dropped.
func (b *LogBroadcaster) Subscribe(id string, buffer int) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan string, buffer)
	b.subscribers[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subscribers[id]; ok && existing == ch {
			delete(b.subscribers, id)
			close(ch)
		}
	}
}

// History returns the buffered log lines in chronological order.
func (b *LogBroadcaster) History() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines := make([]string, 0, DefaultBufferSize)
	b.buffer.Do(func(v any) {
		if s, ok := v.(string); ok && s != "" {
			lines = append(lines, s)
		}
	})
	return lines
}

// GoString gives LogBroadcaster a debuggable %#v representation that
// names the wrapped writer without dumping its unexported internals: a
// bare pointer's address for *os.File (matching what %p would print for
// it directly), and the default Go-syntax form for everything else.
func (b *LogBroadcaster) GoString() string {
	return fmt.Sprintf("logging.LogBroadcaster{out:%s}", goStringForWriter(b.out))
}

func goStringForWriter(w io.Writer) string {
	if f, ok := w.(*os.File); ok {
		return fmt.Sprintf("(%p)", f)
	}
	return fmt.Sprintf("%#v", w)
}
