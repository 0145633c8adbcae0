package bootstrap

import (
	"context"
	"sync/atomic"

	"github.com/wippyai/wasm-host/errors"
)

// Handoff moves a Bundle from one goroutine to another exactly once. The
// sender gives up the bundle on Send; the receiver is its sole owner.
type Handoff struct {
	ch   chan *Bundle
	sent atomic.Bool
}

// NewHandoff creates an empty handoff.
func NewHandoff() *Handoff {
	return &Handoff{ch: make(chan *Bundle, 1)}
}

// Send hands b over. It never blocks. A second Send fails.
func (h *Handoff) Send(b *Bundle) error {
	if b == nil {
		return errors.InvalidInput(errors.PhaseBootstrap, "bundle is nil")
	}
	if !h.sent.CompareAndSwap(false, true) {
		return errors.New(errors.PhaseBootstrap, errors.KindInvalidInput).
			Detail("bundle already handed off").
			Build()
	}
	h.ch <- b
	close(h.ch)
	return nil
}

// Receive waits for the bundle. It returns once per handoff; later calls
// fail with KindClosed.
func (h *Handoff) Receive(ctx context.Context) (*Bundle, error) {
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(errors.PhaseBootstrap, errors.KindClosed, ctx.Err(), "waiting for phase one")
	case b, ok := <-h.ch:
		if !ok {
			return nil, errors.Closed(errors.PhaseBootstrap, "handoff")
		}
		return b, nil
	}
}

// reclaim returns a bundle that was sent but never received, so the
// coordinator can release it after a failed run.
func (h *Handoff) reclaim() *Bundle {
	select {
	case b, ok := <-h.ch:
		if ok {
			return b
		}
	default:
	}
	return nil
}
