package linker

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/capability"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/sandbox"
)

type registration struct {
	binding capability.Binding
	name    string
}

// Linker holds the capability bindings guests are linked against.
// Thread-safe.
type Linker struct {
	engine   *engine.Engine
	byName   map[string]int
	bindings []registration
	effects  sandbox.EffectKind
	mu       sync.RWMutex
}

// New creates a linker for artifacts loaded by eng.
func New(eng *engine.Engine) *Linker {
	return &Linker{
		engine: eng,
		byName: make(map[string]int),
	}
}

// Engine returns the engine the linker instantiates with.
func (l *Linker) Engine() *engine.Engine { return l.engine }

// Register binds b to the imported interface called name. The name is
// either the short interface name ("host") or its full path
// ("example:convert/host"). Registering a name twice fails with
// KindDuplicateBinding and keeps the first binding.
func (l *Linker) Register(name string, b capability.Binding) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseLink, "interface name cannot be empty")
	}
	if err := capability.Validate(b); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.byName[name]; dup {
		return errors.DuplicateBinding(name)
	}
	l.byName[name] = len(l.bindings)
	l.bindings = append(l.bindings, registration{name: name, binding: b})

	Logger().Debug("binding registered",
		zap.String("interface", name),
		zap.Int("operations", len(b.Operations())))
	return nil
}

// RegisterHost registers a struct-based host under its namespace.
func (l *Linker) RegisterHost(h capability.Host) error {
	b, err := capability.FromHost(h)
	if err != nil {
		return err
	}
	return l.Register(h.Namespace(), b)
}

// RegisterRuntimeEffects wires the standard effect bindings for contexts
// of the given kind. It may be called once per linker.
func (l *Linker) RegisterRuntimeEffects(kind sandbox.EffectKind) error {
	if kind == sandbox.EffectsNone {
		return errors.InvalidInput(errors.PhaseLink, "no runtime effects to register for "+kind.String())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.effects != sandbox.EffectsNone {
		return errors.DuplicateBinding(kind.String())
	}
	l.effects = kind
	Logger().Debug("runtime effects registered", zap.Stringer("kind", kind))
	return nil
}

// Bindings returns the registered interface names in registration order.
func (l *Linker) Bindings() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, len(l.bindings))
	for i, r := range l.bindings {
		names[i] = r.name
	}
	return names
}

// Binding returns the binding registered under name.
func (l *Linker) Binding(name string) (capability.Binding, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.byName[name]
	if !ok {
		return nil, false
	}
	return l.bindings[i].binding, true
}

// lookup finds the binding for an interface imported from module, also
// known by its short name. Exact paths win over short names, which win over
// semver-compatible registrations. Callers hold l.mu.
func (l *Linker) lookup(module, short string) (registration, bool) {
	if i, ok := l.byName[module]; ok {
		return l.bindings[i], true
	}
	if short != "" {
		if i, ok := l.byName[short]; ok {
			return l.bindings[i], true
		}
	}
	for _, r := range l.bindings {
		if matchName(r.name, module) {
			return r, true
		}
	}
	return registration{}, false
}
