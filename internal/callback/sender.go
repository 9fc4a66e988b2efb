package callback

import (
	"context"
	"log/slog"
	"sync"
)

// Sender receives progress updates for one operation
type Sender interface {
	// SendProgress delivers one update
	SendProgress(ctx context.Context, update ProgressUpdate) error
	// ShouldCancel reports whether the operation should stop
	ShouldCancel() bool
}

// SendBatch delivers updates in order, stopping at the first error
func SendBatch(ctx context.Context, s Sender, updates []ProgressUpdate) error {
	for _, u := range updates {
		if err := s.SendProgress(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

// OrNoOp returns s, or a NoOp sender when s is nil
func OrNoOp(s Sender) Sender {
	if s == nil {
		return NoOp{}
	}
	return s
}

// NoOp discards every update
type NoOp struct{}

func (NoOp) SendProgress(context.Context, ProgressUpdate) error { return nil }
func (NoOp) ShouldCancel() bool                                 { return false }

// Logging writes updates to a structured logger at debug level
type Logging struct {
	name   string
	logger *slog.Logger
}

// NewLogging creates a logging sender labelled with the operation name
func NewLogging(name string, logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{name: name, logger: logger}
}

func (l *Logging) SendProgress(ctx context.Context, update ProgressUpdate) error {
	l.logger.DebugContext(ctx, update.String(),
		"operation", l.name,
		"operation_id", update.OperationID,
		"kind", update.Kind,
	)
	return nil
}

func (l *Logging) ShouldCancel() bool { return false }

// Channel forwards updates to a Go channel.
// A positive capacity gives a bounded buffer whose sends block (honouring ctx);
// zero capacity gives an unbounded queue whose sends never block on the reader.
type Channel struct {
	in     chan ProgressUpdate
	out    chan ProgressUpdate
	done   <-chan struct{}
	quit   chan struct{}
	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewChannel creates a channel sender and the receive side for its updates.
// done is the cancellation signal of the operation (may be nil).
func NewChannel(capacity int, done <-chan struct{}) (*Channel, <-chan ProgressUpdate) {
	c := &Channel{
		done: done,
		quit: make(chan struct{}),
	}
	if capacity > 0 {
		c.in = make(chan ProgressUpdate, capacity)
		c.out = c.in
	} else {
		c.in = make(chan ProgressUpdate)
		c.out = make(chan ProgressUpdate)
		go c.pump()
	}
	return c, c.out
}

// SendProgress enqueues the update
func (c *Channel) SendProgress(ctx context.Context, update ProgressUpdate) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrDisconnected
	}

	select {
	case c.in <- update:
		return nil
	case <-c.quit:
		return ErrDisconnected
	case <-ctx.Done():
		return &TimeoutError{Detail: ctx.Err().Error()}
	}
}

// ShouldCancel reports whether the operation's cancellation signal fired
func (c *Channel) ShouldCancel() bool {
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close stops accepting updates. Updates already queued are still delivered
// before the receive channel is closed.
func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.quit)
		c.mu.Lock()
		c.closed = true
		close(c.in)
		c.mu.Unlock()
	})
}

func (c *Channel) pump() {
	defer close(c.out)

	var queue []ProgressUpdate
	for {
		var out chan ProgressUpdate
		var next ProgressUpdate
		if len(queue) > 0 {
			out = c.out
			next = queue[0]
		}

		select {
		case u, ok := <-c.in:
			if !ok {
				for _, pending := range queue {
					c.out <- pending
				}
				return
			}
			queue = append(queue, u)
		case out <- next:
			queue = queue[1:]
		}
	}
}
