package session

import (
	"context"
	"errors"
	"time"

	"lanchat/protocol"
)

// Receiver is a background goroutine feeding received messages to a
// callback.
type Receiver struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartReceiver loops on ReceiveNext until ctx is cancelled, the receiver is
// stopped or the session is closed. Timeouts only re-check for cancellation.
// Other errors are passed to onError, if set, followed by a short pause.
func (s *Session) StartReceiver(ctx context.Context, deliver func(protocol.Message), onError func(error)) *Receiver {
	ctx, cancel := context.WithCancel(ctx)
	r := &Receiver{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(r.done)
		for ctx.Err() == nil {
			msg, err := s.ReceiveNext()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, ErrClosed) {
					return
				}
				if IsTimeout(err) {
					continue
				}
				s.log.Warn().Err(err).Msg("receive failed")
				if onError != nil {
					onError(err)
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.opts.ErrorBackoff):
				}
				continue
			}
			if ctx.Err() != nil {
				return
			}
			deliver(msg)
		}
	}()

	return r
}

// Stop cancels the receiver and waits up to wait for it to exit. It reports
// whether the goroutine finished within the window.
func (r *Receiver) Stop(wait time.Duration) bool {
	r.cancel()
	select {
	case <-r.done:
		return true
	case <-time.After(wait):
		return false
	}
}

// Done is closed when the receiver goroutine has exited.
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}
