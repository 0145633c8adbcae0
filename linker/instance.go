package linker

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/canon"
	"github.com/wippyai/wasm-host/capability"
	"github.com/wippyai/wasm-host/descriptor"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/sandbox"
)

// initializeFunc is the reactor entry point run once after instantiation.
const initializeFunc = "_initialize"

var instanceSeq atomic.Uint64

// Instance is a linked guest bound to one execution context.
//
// Calls are serialised by the context, so an Instance may be shared
// between goroutines, but a guest never runs two calls at once.
type Instance struct {
	runtime  wazero.Runtime
	module   api.Module
	artifact *engine.Artifact
	plan     *Plan
	sctx     *sandbox.Context
	name     string
	closed   atomic.Bool
}

// Instantiate links art against the registered bindings and instantiates
// it inside sctx. The context is bound to the new instance; it cannot back
// a second one.
func (l *Linker) Instantiate(ctx context.Context, art *engine.Artifact, sctx *sandbox.Context) (*Instance, error) {
	if sctx == nil {
		return nil, errors.InvalidInput(errors.PhaseLink, "execution context is nil")
	}
	if l.engine.Closed() {
		return nil, errors.Closed(errors.PhaseLink, "engine")
	}

	plan, err := l.Plan(art)
	if err != nil {
		return nil, err
	}
	if plan.NeedsEffects() && sctx.Kind() == sandbox.EffectsNone {
		return nil, errors.New(errors.PhaseLink, errors.KindUnsatisfiedImport).
			Name(wasi_snapshot_preview1.ModuleName).
			Detail("execution context has runtime effects disabled").
			Build()
	}

	inst := &Instance{
		artifact: art,
		plan:     plan,
		sctx:     sctx,
		name:     fmt.Sprintf("%s-%d", art.World().Name, instanceSeq.Add(1)),
	}
	if err := sctx.Bind(inst.name); err != nil {
		return nil, err
	}

	inst.runtime = wazero.NewRuntimeWithConfig(ctx, l.engine.RuntimeConfig())
	if err := inst.link(ctx); err != nil {
		_ = inst.runtime.Close(ctx)
		sctx.Unbind(inst.name)
		return nil, err
	}

	Logger().Debug("instance created",
		zap.String("instance", inst.name),
		zap.String("artifact", art.Digest()),
		zap.Int("imports", len(plan.entries)))
	return inst, nil
}

func (inst *Instance) link(ctx context.Context) error {
	if inst.plan.NeedsEffects() {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, inst.runtime); err != nil {
			return errors.Wrap(errors.PhaseLink, errors.KindUnsatisfiedImport, err, "instantiate runtime effects")
		}
	}

	// one host module per imported interface, in plan order
	var modules []string
	funcs := make(map[string][]Resolution)
	for _, r := range inst.plan.entries {
		if r.Effects {
			continue
		}
		if _, seen := funcs[r.Module]; !seen {
			modules = append(modules, r.Module)
		}
		funcs[r.Module] = append(funcs[r.Module], r)
	}

	for _, module := range modules {
		b := inst.runtime.NewHostModuleBuilder(module)
		for _, r := range funcs[module] {
			b.NewFunctionBuilder().
				WithGoModuleFunction(inst.hostFunc(r), r.Core.Params, r.Core.Results).
				WithName(r.Name).
				Export(r.Name)
		}
		if _, err := b.Instantiate(ctx); err != nil {
			return errors.Wrap(errors.PhaseLink, errors.KindUnsatisfiedImport, err, "instantiate host module "+module)
		}
	}

	compiled, err := inst.runtime.CompileModule(ctx, inst.artifact.Core())
	if err != nil {
		return errors.Malformed("compile", err)
	}

	cfg := inst.sctx.ModuleConfig(inst.name).WithStartFunctions(initializeFunc)
	mod, err := inst.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return errors.New(errors.PhaseLink, errors.KindTrapped).
			Name(inst.name).
			Cause(err).
			Detail("instantiate guest").
			Build()
	}
	inst.module = mod
	return nil
}

// hostFunc adapts a resolved operation to the core calling convention.
// Faults panic with a KindTrapped error; wazero unwinds the guest and
// returns the error from the export call.
func (inst *Instance) hostFunc(r Resolution) api.GoModuleFunc {
	path := r.Path()
	nparams := len(r.Core.Params)
	if r.Core.Indirect {
		nparams--
	}

	return func(ctx context.Context, mod api.Module, stack []uint64) {
		flat := stack[:nparams]
		args := make([]any, len(r.Func.Params))
		for i, p := range r.Func.Params {
			v, rest, err := canon.LiftFlat(p.Type, flat)
			if err != nil {
				panic(errors.Trapped(path, "invalid argument from guest", err))
			}
			args[i] = v
			flat = rest
		}

		ctx = capability.WithResources(ctx, inst.sctx.Resources())
		result, err := capability.Invoke(ctx, r.Operation, args)
		if err != nil {
			panic(err)
		}
		if r.Func.Result == nil {
			return
		}

		if r.Core.Indirect {
			retptr := uint32(stack[nparams])
			if err := canon.Store(canon.WrapMemory(mod.Memory()), r.Func.Result, retptr, result); err != nil {
				panic(errors.Trapped(path, "store result", err))
			}
			return
		}
		out, err := canon.LowerFlat(r.Func.Result, result, nil)
		if err != nil {
			panic(errors.Trapped(path, "lower result", err))
		}
		copy(stack, out)
	}
}

// Name returns the instance name the context is bound to.
func (inst *Instance) Name() string { return inst.name }

// Context returns the execution context backing the instance.
func (inst *Instance) Context() *sandbox.Context { return inst.sctx }

// Plan returns the link plan the instance was built from.
func (inst *Instance) Plan() *Plan { return inst.plan }

// Exports returns the declared exports in declaration order.
func (inst *Instance) Exports() []descriptor.Export {
	exps := inst.artifact.World().Exports
	out := make([]descriptor.Export, len(exps))
	for i, e := range exps {
		out[i] = *e
	}
	return out
}

// Call invokes an export. Arguments are checked against the declared
// signature before the guest is entered. An exported result<T, E> is
// unwrapped: ok returns T, err returns a KindGuestError carrying E.
func (inst *Instance) Call(ctx context.Context, name string, args ...any) (any, error) {
	exp, sig, ok := inst.artifact.Export(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseCall, "export", name)
	}
	if err := canon.CheckArgs(exp.Func, args); err != nil {
		return nil, err
	}

	release, err := inst.sctx.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	if inst.closed.Load() {
		return nil, errors.Closed(errors.PhaseCall, "instance")
	}

	var params []uint64
	for i, p := range exp.Func.Params {
		if params, err = canon.LowerFlat(p.Type, args[i], params); err != nil {
			return nil, err
		}
	}

	fn := inst.module.ExportedFunction(name)
	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, trap(name, err)
	}

	value, err := inst.lift(exp.Func, sig, results)
	if err != nil {
		return nil, errors.Trapped(name, "invalid result from guest", err)
	}

	if post := inst.module.ExportedFunction("cabi_post_" + name); post != nil {
		if _, err := post.Call(ctx, results...); err != nil {
			return nil, trap("cabi_post_"+name, err)
		}
	}

	if td, ok := exp.Func.Result.(*wit.TypeDef); ok {
		if _, ok := td.Kind.(*wit.Result); ok {
			r := value.(canon.Result)
			if r.IsErr {
				return nil, errors.GuestError(name, r.Value)
			}
			return r.Value, nil
		}
	}
	return value, nil
}

func (inst *Instance) lift(fn *descriptor.Func, sig *canon.CoreSignature, results []uint64) (any, error) {
	if fn.Result == nil {
		return nil, nil
	}
	if sig.Indirect {
		return canon.Load(canon.WrapMemory(inst.module.Memory()), fn.Result, uint32(results[0]))
	}
	v, _, err := canon.LiftFlat(fn.Result, results)
	return v, err
}

// trap turns an error from guest execution into a KindTrapped value.
// Host faults already are one and keep their cause.
func trap(name string, err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) && e.Kind == errors.KindTrapped {
		return e
	}
	var exit *sys.ExitError
	if stderrors.As(err, &exit) {
		return errors.Trapped(name, fmt.Sprintf("guest exited with code %d", exit.ExitCode()), err)
	}
	reason, _, _ := strings.Cut(err.Error(), "\n")
	reason = strings.TrimPrefix(reason, "wasm error: ")
	return errors.Trapped(name, reason, err)
}

// Close releases the instance's runtime. The execution context stays open;
// its owner closes it to collect the leak report.
func (inst *Instance) Close(ctx context.Context) error {
	if !inst.closed.CompareAndSwap(false, true) {
		return nil
	}
	release, err := inst.sctx.Enter()
	if err == nil {
		defer release()
	}
	Logger().Debug("instance closed", zap.String("instance", inst.name))
	return inst.runtime.Close(ctx)
}
