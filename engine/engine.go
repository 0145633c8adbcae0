package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/wasm-host/canon"
	"github.com/wippyai/wasm-host/descriptor"
	"github.com/wippyai/wasm-host/errors"
)

// Engine compiles and validates guest artifacts. It owns the compilation
// cache that every instance runtime shares, and a content-addressed cache
// of loaded artifacts.
//
// Engine is safe for concurrent use.
type Engine struct {
	cfg       Config
	cache     wazero.CompilationCache
	runtime   wazero.Runtime
	artifacts map[[32]byte]*Artifact
	loads     singleflight.Group
	mu        sync.RWMutex
	closed    atomic.Bool
}

// New creates an engine. A nil config uses DefaultConfig.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, errors.IO(cfg.CacheDir, err)
		}
		cache = c
	} else {
		cache = wazero.NewCompilationCache()
	}

	e := &Engine{
		cfg:       *cfg,
		cache:     cache,
		artifacts: make(map[[32]byte]*Artifact),
	}
	e.runtime = wazero.NewRuntimeWithConfig(ctx, e.RuntimeConfig())

	Logger().Debug("engine created",
		zap.Bool("component_model", cfg.ComponentModel),
		zap.Bool("strict", cfg.Strict),
		zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages))
	return e, nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// RuntimeConfig returns the wazero configuration for runtimes that should
// reuse this engine's compiled code.
func (e *Engine) RuntimeConfig() wazero.RuntimeConfig {
	return e.cfg.runtimeConfig(e.cache)
}

// LoadArtifactFile reads path and loads it.
func (e *Engine) LoadArtifactFile(ctx context.Context, path, witText string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IO(path, err)
	}
	return e.LoadArtifact(ctx, data, witText)
}

// LoadArtifact validates wasm against its descriptor. witText may be empty
// when the core module embeds its descriptor in a wit-world custom section.
//
// Loading the same bytes and descriptor twice returns the same Artifact.
// Concurrent loads of one artifact compile it once. Failed loads leave no
// trace in the cache.
func (e *Engine) LoadArtifact(ctx context.Context, wasm []byte, witText string) (*Artifact, error) {
	if e.closed.Load() {
		return nil, errors.Closed(errors.PhaseLoad, "engine")
	}
	if !isWasm(wasm) {
		return nil, errors.Malformed("not a WebAssembly binary", nil)
	}

	key := digest(wasm, witText)

	e.mu.RLock()
	art, ok := e.artifacts[key]
	e.mu.RUnlock()
	if ok {
		Logger().Debug("artifact cache hit", zap.String("digest", art.Digest()))
		return art, nil
	}

	// The shared compile outlives any single caller; each caller waits
	// under its own context.
	ch := e.loads.DoChan(hex.EncodeToString(key[:]), func() (any, error) {
		e.mu.RLock()
		art, ok := e.artifacts[key]
		e.mu.RUnlock()
		if ok {
			return art, nil
		}

		art, err := e.compile(context.WithoutCancel(ctx), wasm, witText)
		if err != nil {
			return nil, err
		}
		art.digest = key
		if err := e.store(key, art); err != nil {
			return nil, err
		}
		return art, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			Logger().Debug("artifact load failed", zap.Error(res.Err))
			return nil, res.Err
		}
		return res.Val.(*Artifact), nil
	case <-ctx.Done():
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindClosed, ctx.Err(), "load abandoned")
	}
}

// store caches art unless the engine closed while it was compiling, in
// which case the compiled code is released.
func (e *Engine) store(key [32]byte, art *Artifact) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		_ = art.compiled.Close(context.Background())
		return errors.Closed(errors.PhaseLoad, "engine")
	}
	e.artifacts[key] = art
	return nil
}

// CachedArtifacts returns the number of artifacts held by the cache.
func (e *Engine) CachedArtifacts() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.artifacts)
}

func digest(wasm []byte, witText string) [32]byte {
	h := sha256.New()
	h.Write(wasm)
	h.Write([]byte{0})
	h.Write([]byte(witText))
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

func (e *Engine) compile(ctx context.Context, wasm []byte, witText string) (*Artifact, error) {
	core := wasm
	isComponent := IsComponent(wasm)
	if isComponent {
		if !e.cfg.ComponentModel {
			return nil, errors.Unsupported(errors.PhaseLoad, "component binaries require the component model to be enabled")
		}
		var err error
		if core, err = extractCore(wasm); err != nil {
			return nil, err
		}
	}

	compiled, err := e.runtime.CompileModule(ctx, core)
	if err != nil {
		if strings.Contains(err.Error(), "is disabled") {
			return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
				Cause(err).
				Detail("guest needs a feature the engine has not enabled").
				Build()
		}
		return nil, errors.Malformed("compile", err)
	}

	art, err := e.inspect(compiled, witText)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}
	art.core = core
	art.component = isComponent
	return art, nil
}

// inspect parses the descriptor and checks every declared export against
// the compiled module. Imports are checked later, when a linker resolves
// them against its bindings.
func (e *Engine) inspect(compiled wazero.CompiledModule, witText string) (*Artifact, error) {
	if witText == "" {
		for _, cs := range compiled.CustomSections() {
			if cs.Name() == DescriptorSection {
				witText = string(cs.Data())
				break
			}
		}
	}
	if witText == "" {
		return nil, errors.Malformed("no interface descriptor given or embedded", nil)
	}
	world, err := descriptor.Parse(witText)
	if err != nil {
		return nil, errors.Malformed("interface descriptor", err)
	}

	art := &Artifact{
		world:       world,
		compiled:    compiled,
		exports:     make(map[string]*canon.CoreSignature, len(world.Exports)),
		coreExports: make(map[string]bool),
	}

	defs := compiled.ExportedFunctions()
	for name := range defs {
		art.coreExports[name] = true
	}
	_, art.memory = compiled.ExportedMemories()["memory"]

	for _, exp := range world.Exports {
		sig, err := canon.Signature(exp.Func, canon.Lift)
		if err != nil {
			return nil, err
		}
		def, ok := defs[exp.Name]
		if !ok {
			return nil, errors.New(errors.PhaseLoad, errors.KindMalformed).
				Name(exp.Name).
				Detail("declared export is not defined by the module").
				Build()
		}
		if !sig.Matches(def.ParamTypes(), def.ResultTypes()) {
			return nil, errors.New(errors.PhaseLoad, errors.KindMalformed).
				Name(exp.Name).
				Detail("declared %s lowers to %s, module defines %s",
					exp.Func.Signature(), sig, canon.FormatCore(def.ParamTypes(), def.ResultTypes())).
				Build()
		}
		if sig.Indirect && !art.memory {
			return nil, errors.New(errors.PhaseLoad, errors.KindMalformed).
				Name(exp.Name).
				Detail("result is returned through memory but the module exports none").
				Build()
		}
		art.exports[exp.Name] = sig
	}

	for _, imp := range world.Imports {
		for _, fn := range imp.Funcs {
			if _, err := canon.Signature(fn, canon.Lower); err != nil {
				return nil, err
			}
		}
	}

	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		art.imports = append(art.imports, CoreImport{
			Module:  module,
			Name:    name,
			Params:  def.ParamTypes(),
			Results: def.ResultTypes(),
		})
	}
	return art, nil
}

// Close releases compiled code and the compilation cache. Artifacts loaded
// from a closed engine must not be instantiated.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.mu.Lock()
	for key, art := range e.artifacts {
		_ = art.compiled.Close(ctx)
		delete(e.artifacts, key)
	}
	e.mu.Unlock()

	if err := e.runtime.Close(ctx); err != nil {
		return fmt.Errorf("close runtime: %w", err)
	}
	return e.cache.Close(ctx)
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool { return e.closed.Load() }
