package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AltairaLabs/async-cargo-mcp/internal/callback"
)

const notifyTimeout = 5 * time.Second

// WorkFunc performs the work of one operation. ctx is cancelled when the
// operation times out or its token is cancelled. A non-nil error becomes
// the stored failure message verbatim.
type WorkFunc func(ctx context.Context, id string, token *Token) (string, error)

// ExecuteWithMonitoring registers, starts and runs work under a hard
// timeout, then returns the terminal record.
func (m *Monitor) ExecuteWithMonitoring(ctx context.Context, req Request, sender callback.Sender, work WorkFunc) OperationInfo {
	id := m.Register(req)
	return m.ExecuteRegistered(ctx, id, sender, work)
}

// ExecuteRegistered runs work for an operation that is already registered,
// typically under an id handed to a remote caller before the work starts.
// The sender hears Started and then Completed, Failed or Cancelled.
// Cancelling ctx cancels the operation.
func (m *Monitor) ExecuteRegistered(ctx context.Context, id string, sender callback.Sender, work WorkFunc) OperationInfo {
	sender = callback.OrNoOp(sender)

	if err := m.Start(id); err != nil {
		m.logger.Warn("Cannot start operation", "operation_id", id, "error", err)
		return m.snapshotOrMissing(id)
	}
	op, ok := m.live(id)
	if !ok {
		return m.snapshotOrMissing(id)
	}

	m.notify(ctx, sender, callback.Started(id, op.Command, op.Description))

	runCtx, cancel := context.WithTimeout(op.token.Context(), op.Timeout)
	defer cancel()

	done := make(chan *Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Failure(fmt.Sprintf("operation panicked: %v", r))
			}
		}()
		out, err := work(runCtx, id, op.token)
		if err != nil {
			done <- Failure(err.Error())
			return
		}
		done <- Success(out)
	}()

	var err error
	select {
	case result := <-done:
		err = m.Complete(id, result)
	case <-runCtx.Done():
		if !op.token.IsCancelled() {
			err = m.Timeout(id)
		}
	case <-ctx.Done():
		err = m.Cancel(id)
	}
	if err != nil && !errors.Is(err, ErrInvalidTransition) {
		m.logger.Warn("Failed to record operation outcome", "operation_id", id, "error", err)
	}

	final := m.snapshotOrMissing(id)
	m.notify(ctx, sender, outcomeUpdate(final))
	return final
}

func outcomeUpdate(op OperationInfo) callback.ProgressUpdate {
	d := op.Duration()
	switch op.State {
	case StateCompleted:
		return callback.Completed(op.ID, op.Result.Text(), d)
	case StateCancelled:
		return callback.Cancelled(op.ID, op.Result.Text(), d)
	default:
		return callback.Failed(op.ID, op.Result.Text(), d)
	}
}

func (m *Monitor) notify(ctx context.Context, sender callback.Sender, update callback.ProgressUpdate) {
	// delivery is best effort; a departed listener must not fail the operation
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := sender.SendProgress(sendCtx, update); err != nil {
		m.logger.Debug("Progress update not delivered",
			"operation_id", update.OperationID,
			"kind", update.Kind,
			"error", err,
		)
	}
}
