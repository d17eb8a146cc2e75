package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultSendTimeout = 10 * time.Second

// Async dispatches every send on its own goroutine and returns immediately.
//
// Sends are detached from the caller's cancellation (the HTTP request is
// usually finished before the mail goes out) but keep its values, and each
// one is bounded by a timeout. Close waits for in-flight sends.
type Async struct {
	next    Mailer
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsync(next Mailer, logger *slog.Logger) *Async {
	return &Async{next: next, logger: logger, timeout: defaultSendTimeout}
}

func (a *Async) SendWelcome(ctx context.Context, email, name string) error {
	a.dispatch(ctx, "welcome", email, func(ctx context.Context) error {
		return a.next.SendWelcome(ctx, email, name)
	})
	return nil
}

func (a *Async) SendGoodbye(ctx context.Context, email, name string) error {
	a.dispatch(ctx, "goodbye", email, func(ctx context.Context) error {
		return a.next.SendGoodbye(ctx, email, name)
	})
	return nil
}

func (a *Async) dispatch(parent context.Context, kind, to string, send func(context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), a.timeout)
		defer cancel()

		if err := send(ctx); err != nil {
			a.logger.Warn("email delivery failed",
				slog.String("kind", kind),
				slog.String("to", to),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Close blocks until all dispatched sends have finished.
func (a *Async) Close() {
	a.wg.Wait()
}
