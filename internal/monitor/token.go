package monitor

import "context"

// Token is the cancellation signal shared between an operation record and
// the work executing it. Cancelling is one-way and idempotent.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewToken creates an uncancelled token
func NewToken() *Token {
	ctx, cancel := context.WithCancel(context.Background())
	return &Token{ctx: ctx, cancel: cancel}
}

// Cancel signals cancellation
func (t *Token) Cancel() {
	t.cancel()
}

// IsCancelled reports whether Cancel has been called
func (t *Token) IsCancelled() bool {
	return t.ctx.Err() != nil
}

// Done is closed once the token is cancelled
func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Context returns a context that is cancelled together with the token
func (t *Token) Context() context.Context {
	return t.ctx
}
