package bootstrap

import (
	"context"
	"sync"

	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/sandbox"
)

// Bundle is the state phase one builds and phase two consumes.
type Bundle struct {
	Engine   *engine.Engine
	Artifact *engine.Artifact
	Context  *sandbox.Context

	once   sync.Once
	report sandbox.LeakReport
	err    error
}

// Close tears down the context and then the engine. It is safe to call
// more than once.
func (b *Bundle) Close(ctx context.Context) error {
	b.once.Do(func() {
		if b.Context != nil {
			b.report = b.Context.Close()
		}
		if b.Engine != nil {
			b.err = b.Engine.Close(ctx)
		}
	})
	return b.err
}

// Leaks returns the resources the context still held when the bundle was
// closed.
func (b *Bundle) Leaks() sandbox.LeakReport { return b.report }
