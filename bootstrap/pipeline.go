package bootstrap

import (
	"context"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-host/capability"
	"github.com/wippyai/wasm-host/descriptor"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/sandbox"
)

// Mode selects how the two phases are scheduled.
type Mode int

const (
	// ModeSingle runs both phases on the calling goroutine.
	ModeSingle Mode = iota
	// ModePipelined runs each phase on its own goroutine and hands the
	// bundle over between them.
	ModePipelined
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModePipelined:
		return "pipelined"
	}
	return "unknown"
}

// Source is where the guest artifact comes from. Path wins over Bytes.
type Source struct {
	Path  string
	Bytes []byte
	// WIT is the interface descriptor. Empty uses the one embedded in the
	// artifact.
	WIT string
}

// NamedBinding is a binding and the interface it serves.
type NamedBinding struct {
	Binding capability.Binding
	Name    string
}

// Pipeline describes one bootstrap run: load, link, instantiate, call.
type Pipeline struct {
	Engine    *engine.Config
	Logger    *zap.Logger
	Source    Source
	Operation string
	Bindings  []NamedBinding
	Args      []any
	// ArgsFor, when set, builds the arguments from the export's declared
	// signature once the artifact is loaded. It replaces Args.
	ArgsFor func(fn *descriptor.Func) ([]any, error)
	Effects sandbox.Config
	Mode    Mode
	// Stdout and Stderr receive the guest output the context captured.
	Stdout io.Writer
	Stderr io.Writer
	// RuntimeEffects wires the standard effect bindings matching the
	// context's kind.
	RuntimeEffects bool
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return zap.NewNop()
}

// Run executes the pipeline and returns the operation's result. Both
// modes produce the same result for the same pipeline.
func Run(ctx context.Context, p Pipeline) (any, error) {
	log := p.logger().With(zap.Stringer("mode", p.Mode))

	switch p.Mode {
	case ModeSingle:
		b, err := Prepare(ctx, p)
		if err != nil {
			return nil, err
		}
		return Execute(ctx, p, b)

	case ModePipelined:
		h := NewHandoff()
		g, gctx := errgroup.WithContext(ctx)
		var result any

		g.Go(func() error {
			b, err := Prepare(gctx, p)
			if err != nil {
				return err
			}
			log.Debug("phase one handing off")
			return h.Send(b)
		})
		g.Go(func() error {
			b, err := h.Receive(gctx)
			if err != nil {
				return err
			}
			log.Debug("phase two took ownership")
			result, err = Execute(ctx, p, b)
			return err
		})

		err := g.Wait()
		if b := h.reclaim(); b != nil {
			_ = b.Close(ctx)
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	return nil, errors.InvalidInput(errors.PhaseBootstrap, "unknown mode "+p.Mode.String())
}

// Prepare is phase one: it builds the engine, loads the artifact and
// creates the execution context. On failure nothing is left open.
func Prepare(ctx context.Context, p Pipeline) (*Bundle, error) {
	log := p.logger()

	eng, err := engine.New(ctx, p.Engine)
	if err != nil {
		return nil, err
	}

	art, err := load(ctx, eng, p.Source)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}

	sctx, err := sandbox.New(p.Effects)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}

	log.Debug("phase one complete",
		zap.String("artifact", art.Digest()),
		zap.String("world", art.World().Name))
	return &Bundle{Engine: eng, Artifact: art, Context: sctx}, nil
}

func load(ctx context.Context, eng *engine.Engine, src Source) (*engine.Artifact, error) {
	switch {
	case src.Path != "":
		return eng.LoadArtifactFile(ctx, src.Path, src.WIT)
	case len(src.Bytes) > 0:
		return eng.LoadArtifact(ctx, src.Bytes, src.WIT)
	}
	return nil, errors.InvalidInput(errors.PhaseBootstrap, "artifact source is empty")
}

// Execute is phase two: it takes ownership of b, registers the bindings,
// instantiates and calls the operation. b is closed before Execute returns.
func Execute(ctx context.Context, p Pipeline, b *Bundle) (result any, err error) {
	if b == nil {
		return nil, errors.InvalidInput(errors.PhaseBootstrap, "bundle is nil")
	}
	log := p.logger()
	defer func() {
		p.flush(b.Context)
		if cerr := b.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
		if n := b.Leaks().Count(); n > 0 {
			log.Warn("resources leaked", zap.Int("count", n))
		}
	}()

	l := linker.New(b.Engine)
	for _, nb := range p.Bindings {
		if err := l.Register(nb.Name, nb.Binding); err != nil {
			return nil, err
		}
	}
	if p.RuntimeEffects {
		if err := l.RegisterRuntimeEffects(b.Context.Kind()); err != nil {
			return nil, err
		}
	}

	inst, err := l.Instantiate(ctx, b.Artifact, b.Context)
	if err != nil {
		return nil, err
	}
	defer inst.Close(ctx)

	args := p.Args
	if p.ArgsFor != nil {
		exp := b.Artifact.World().Export(p.Operation)
		if exp == nil {
			return nil, errors.NotFound(errors.PhaseCall, "export", p.Operation)
		}
		if args, err = p.ArgsFor(exp.Func); err != nil {
			return nil, err
		}
	}

	result, err = inst.Call(ctx, p.Operation, args...)
	if err != nil {
		return nil, err
	}
	log.Debug("phase two complete", zap.String("operation", p.Operation))
	return result, nil
}

func (p *Pipeline) flush(sctx *sandbox.Context) {
	if p.Stdout != nil {
		_, _ = p.Stdout.Write(sctx.Stdout())
	}
	if p.Stderr != nil {
		_, _ = p.Stderr.Write(sctx.Stderr())
	}
}
