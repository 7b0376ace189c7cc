package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WithInterrupt returns a context that is cancelled on SIGINT or SIGTERM.
// onSignal, when non-nil, is called with the received signal before the
// context is cancelled. The returned stop function releases the handler.
func WithInterrupt(parent context.Context, onSignal func(os.Signal)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			if onSignal != nil {
				onSignal(sig)
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
