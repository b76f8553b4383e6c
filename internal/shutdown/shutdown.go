// Package shutdown turns termination signals into a cooperative stop flag.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Coordinator is polled at loop boundaries. In-flight work is never interrupted:
// WorkContext is detached from the stop signal.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc
	sigs   chan os.Signal
	once   sync.Once
	logger *slog.Logger
}

// New listens for SIGTERM and SIGINT until Close is called.
func New(parent context.Context, logger *slog.Logger) *Coordinator {
	c := newCoordinator(parent, logger)
	signal.Notify(c.sigs, syscall.SIGTERM, syscall.SIGINT)
	go c.watch()
	return c
}

// Manual builds a coordinator that only stops through Request; used by tests
// and one-shot commands.
func Manual(parent context.Context) *Coordinator {
	return newCoordinator(parent, nil)
}

func newCoordinator(parent context.Context, logger *slog.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{
		ctx:    ctx,
		cancel: cancel,
		sigs:   make(chan os.Signal, 1),
		logger: logger,
	}
}

func (c *Coordinator) watch() {
	select {
	case sig := <-c.sigs:
		// A second signal falls through to the default handler and kills the process.
		signal.Stop(c.sigs)
		if c.logger != nil {
			c.logger.Info("shutdown signal received", "signal", sig.String())
		}
		c.cancel()
	case <-c.ctx.Done():
	}
}

// Request sets the stop flag.
func (c *Coordinator) Request() {
	c.cancel()
}

// Stopping reports whether a stop was requested.
func (c *Coordinator) Stopping() bool {
	return c.ctx.Err() != nil
}

// Done is closed once a stop is requested.
func (c *Coordinator) Done() <-chan struct{} {
	return c.ctx.Done()
}

// WorkContext carries the parent's values but never observes the stop.
func (c *Coordinator) WorkContext() context.Context {
	return context.WithoutCancel(c.ctx)
}

// Close stops listening for signals.
func (c *Coordinator) Close() {
	c.once.Do(func() {
		signal.Stop(c.sigs)
		c.cancel()
	})
}
