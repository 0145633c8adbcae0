package linker

import (
	"strconv"

	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/wippyai/wasm-host/canon"
	"github.com/wippyai/wasm-host/capability"
	"github.com/wippyai/wasm-host/descriptor"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/sandbox"
)

// Resolution binds one imported function.
type Resolution struct {
	// Func is the declared signature, or one derived from the operation for
	// core imports the descriptor does not declare. Nil for runtime effects.
	Func      *descriptor.Func
	Core      *canon.CoreSignature
	Module    string
	Name      string
	Binding   string
	Operation capability.Operation
	// Effects marks imports served by the runtime effect bindings.
	Effects bool
}

// Path returns "module#name".
func (r *Resolution) Path() string { return r.Module + "#" + r.Name }

// Plan is the resolution of every import of an artifact, in declaration
// order. A Plan is immutable.
type Plan struct {
	artifact *engine.Artifact
	entries  []Resolution
	effects  bool
}

// Artifact returns the planned artifact.
func (p *Plan) Artifact() *engine.Artifact { return p.artifact }

// Entries returns the resolutions in order.
func (p *Plan) Entries() []Resolution {
	out := make([]Resolution, len(p.entries))
	copy(out, p.entries)
	return out
}

// NeedsEffects reports whether the guest imports runtime effects.
func (p *Plan) NeedsEffects() bool { return p.effects }

type coreKey struct{ module, name string }

// Plan resolves every import of art: first the descriptor's imports in
// declaration order, then core imports the descriptor does not declare.
// The first import that cannot be resolved is reported.
func (l *Linker) Plan(art *engine.Artifact) (*Plan, error) {
	if art == nil {
		return nil, errors.InvalidInput(errors.PhaseLink, "artifact is nil")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	core := make(map[coreKey]engine.CoreImport)
	for _, ci := range art.Imports() {
		core[coreKey{ci.Module, ci.Name}] = ci
	}

	plan := &Plan{artifact: art}
	declared := make(map[coreKey]bool)

	for _, iface := range art.World().Imports {
		for _, fn := range iface.Funcs {
			key := coreKey{iface.Module, fn.Name}
			declared[key] = true

			r, err := l.resolveDeclared(art, iface, fn, core)
			if err != nil {
				return nil, err
			}
			plan.entries = append(plan.entries, r)
		}
	}

	for _, ci := range art.Imports() {
		if declared[coreKey{ci.Module, ci.Name}] {
			continue
		}
		r, err := l.resolveCore(art, ci)
		if err != nil {
			return nil, err
		}
		if r.Effects {
			plan.effects = true
		}
		plan.entries = append(plan.entries, r)
	}
	return plan, nil
}

func (l *Linker) resolveDeclared(art *engine.Artifact, iface *descriptor.Interface, fn *descriptor.Func, core map[coreKey]engine.CoreImport) (Resolution, error) {
	path := iface.Module + "#" + fn.Name

	reg, ok := l.lookup(iface.Module, iface.Name)
	if !ok {
		return Resolution{}, errors.UnsatisfiedImport(path)
	}
	op, ok := capability.Lookup(reg.binding, fn.Name)
	if !ok {
		return Resolution{}, errors.New(errors.PhaseLink, errors.KindUnsatisfiedImport).
			Name(path).
			Detail("binding %q has no operation %q", reg.name, fn.Name).
			Build()
	}
	if op.Signature() != fn.Signature() {
		return Resolution{}, errors.SignatureMismatch(path, fn.Signature(), op.Signature())
	}

	sig, err := canon.Signature(fn, canon.Lower)
	if err != nil {
		return Resolution{}, err
	}
	if ci, imported := core[coreKey{iface.Module, fn.Name}]; imported && !sig.Matches(ci.Params, ci.Results) {
		return Resolution{}, errors.New(errors.PhaseLink, errors.KindSignatureMismatch).
			Name(path).
			Detail("declared %s lowers to %s, guest imports %s",
				fn.Signature(), sig, canon.FormatCore(ci.Params, ci.Results)).
			Build()
	}
	if sig.Indirect && !art.ExportsMemory() {
		return Resolution{}, errors.New(errors.PhaseLink, errors.KindSignatureMismatch).
			Name(path).
			Detail("result is returned through guest memory but the guest exports none").
			Build()
	}

	return Resolution{
		Func:      fn,
		Core:      sig,
		Module:    iface.Module,
		Name:      fn.Name,
		Binding:   reg.name,
		Operation: op,
	}, nil
}

// resolveCore handles a core import the descriptor does not declare. WASI
// imports resolve to the runtime effects; anything else must match an
// operation of a binding registered under the import's module name.
func (l *Linker) resolveCore(art *engine.Artifact, ci engine.CoreImport) (Resolution, error) {
	path := ci.Module + "#" + ci.Name

	if ci.Module == wasi_snapshot_preview1.ModuleName {
		if l.effects == sandbox.EffectsNone {
			return Resolution{}, errors.New(errors.PhaseLink, errors.KindUnsatisfiedImport).
				Name(path).
				Detail("runtime effects are not registered").
				Build()
		}
		return Resolution{Module: ci.Module, Name: ci.Name, Effects: true}, nil
	}

	reg, ok := l.lookup(ci.Module, "")
	if !ok {
		return Resolution{}, errors.UnsatisfiedImport(path)
	}
	op, ok := capability.Lookup(reg.binding, ci.Name)
	if !ok {
		return Resolution{}, errors.New(errors.PhaseLink, errors.KindUnsatisfiedImport).
			Name(path).
			Detail("binding %q has no operation %q", reg.name, ci.Name).
			Build()
	}

	fn := &descriptor.Func{Name: op.Name, Result: op.Result}
	for i, p := range op.Params {
		fn.Params = append(fn.Params, descriptor.Param{Name: "arg" + strconv.Itoa(i), Type: p})
	}
	sig, err := canon.Signature(fn, canon.Lower)
	if err != nil {
		return Resolution{}, err
	}
	if !sig.Matches(ci.Params, ci.Results) {
		return Resolution{}, errors.SignatureMismatch(path, sig.String(), canon.FormatCore(ci.Params, ci.Results))
	}
	if sig.Indirect && !art.ExportsMemory() {
		return Resolution{}, errors.New(errors.PhaseLink, errors.KindSignatureMismatch).
			Name(path).
			Detail("result is returned through guest memory but the guest exports none").
			Build()
	}

	return Resolution{
		Func:      fn,
		Core:      sig,
		Module:    ci.Module,
		Name:      ci.Name,
		Binding:   reg.name,
		Operation: op,
	}, nil
}
