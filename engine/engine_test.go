package engine

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/internal/guests"
	"github.com/wippyai/wasm-host/internal/wasmgen"
)

func newEngine(t *testing.T, cfg *Config) *Engine {
	t.Helper()
	ctx := context.Background()
	e, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func TestLoadArtifact_Convert(t *testing.T) {
	e := newEngine(t, nil)
	g := guests.Convert()

	art, err := e.LoadArtifact(context.Background(), g.Wasm, g.WIT)
	if err != nil {
		t.Fatalf("LoadArtifact: %v", err)
	}
	if art.Component() {
		t.Error("core module reported as component")
	}
	if art.World().Name != "convert" {
		t.Errorf("world = %q", art.World().Name)
	}

	exp, sig, ok := art.Export("convert-celsius-to-fahrenheit")
	if !ok {
		t.Fatal("export not found")
	}
	if exp.Func.Signature() != "func(f32) -> f32" {
		t.Errorf("signature = %s", exp.Func.Signature())
	}
	if sig.Indirect {
		t.Error("f32 result should be direct")
	}

	want := []CoreImport{{
		Module:  "example:convert/host",
		Name:    "multiply",
		Params:  []api.ValueType{api.ValueTypeF32, api.ValueTypeF32},
		Results: []api.ValueType{api.ValueTypeF32},
	}}
	if diff := cmp.Diff(want, art.Imports()); diff != "" {
		t.Errorf("imports mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadArtifact_Component(t *testing.T) {
	g := guests.ConvertComponent()

	t.Run("enabled", func(t *testing.T) {
		e := newEngine(t, nil)
		art, err := e.LoadArtifact(context.Background(), g.Wasm, "")
		if err != nil {
			t.Fatalf("LoadArtifact: %v", err)
		}
		if !art.Component() {
			t.Error("component not detected")
		}
		if art.World().Package != "example:convert" {
			t.Errorf("embedded descriptor not used, package = %q", art.World().Package)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		e := newEngine(t, &Config{})
		_, err := e.LoadArtifact(context.Background(), g.Wasm, "")
		if !stderrors.Is(err, errors.ErrUnsupported) {
			t.Fatalf("err = %v, want unsupported", err)
		}
	})

	t.Run("two core modules", func(t *testing.T) {
		e := newEngine(t, nil)
		core := guests.Boom().Wasm
		_, err := e.LoadArtifact(context.Background(), wasmgen.Component(core, core), guests.BoomWIT)
		if !stderrors.Is(err, errors.ErrUnsupported) {
			t.Fatalf("err = %v, want unsupported", err)
		}
	})

	t.Run("no core module", func(t *testing.T) {
		e := newEngine(t, nil)
		_, err := e.LoadArtifact(context.Background(), wasmgen.Component(), guests.BoomWIT)
		if !stderrors.Is(err, errors.ErrMalformed) {
			t.Fatalf("err = %v, want malformed", err)
		}
	})
}

func TestLoadArtifact_Malformed(t *testing.T) {
	e := newEngine(t, nil)
	boom := guests.Boom()

	tests := []struct {
		name string
		wit  string
		wasm []byte
	}{
		{name: "empty", wasm: nil, wit: guests.BoomWIT},
		{name: "not wasm", wasm: []byte("hello world!"), wit: guests.BoomWIT},
		{name: "truncated", wasm: boom.Wasm[:len(boom.Wasm)-3], wit: guests.BoomWIT},
		{name: "no descriptor", wasm: boom.Wasm},
		{name: "bad descriptor", wasm: boom.Wasm, wit: "world {"},
		{name: "undefined export", wasm: boom.Wasm, wit: "world w { export missing: func(); }"},
		{name: "export shape differs", wasm: boom.Wasm, wit: "world w { export answer: func() -> f64; }"},
		{name: "indirect result without memory", wasm: boom.Wasm, wit: "world w { export answer: func() -> result<s32, u8>; }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.LoadArtifact(context.Background(), tt.wasm, tt.wit)
			if !stderrors.Is(err, errors.ErrMalformed) {
				t.Fatalf("err = %v, want malformed", err)
			}
		})
	}

	if n := e.CachedArtifacts(); n != 0 {
		t.Errorf("failed loads cached %d artifacts", n)
	}

	// the engine stays usable after failures
	if _, err := e.LoadArtifact(context.Background(), boom.Wasm, boom.WIT); err != nil {
		t.Fatalf("load after failures: %v", err)
	}
}

func TestLoadArtifact_UnsupportedSignature(t *testing.T) {
	e := newEngine(t, nil)
	g := guests.Boom()
	_, err := e.LoadArtifact(context.Background(), g.Wasm, "world w { export answer: func() -> string; }")
	if !stderrors.Is(err, errors.ErrUnsupported) {
		t.Fatalf("err = %v, want unsupported", err)
	}
}

func TestLoadArtifact_Strict(t *testing.T) {
	// i32.extend8_s is a WebAssembly 2.0 instruction
	m := &wasmgen.Module{Funcs: []wasmgen.Func{{
		Export:  "answer",
		Results: []api.ValueType{api.ValueTypeI32},
		Body:    wasmgen.Code(wasmgen.I32Const(42), []byte{0xc0}),
	}}}
	wit := "world w { export answer: func() -> s32; }"

	if _, err := newEngine(t, nil).LoadArtifact(context.Background(), m.Encode(), wit); err != nil {
		t.Fatalf("default engine: %v", err)
	}

	strict := DefaultConfig()
	strict.Strict = true
	_, err := newEngine(t, strict).LoadArtifact(context.Background(), m.Encode(), wit)
	if !stderrors.Is(err, errors.ErrUnsupported) {
		t.Fatalf("err = %v, want unsupported", err)
	}
}

func TestLoadArtifact_Cache(t *testing.T) {
	e := newEngine(t, nil)
	g := guests.Convert()
	ctx := context.Background()

	var wg sync.WaitGroup
	arts := make([]*Artifact, 8)
	errs := make([]error, 8)
	for i := range arts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			arts[i], errs[i] = e.LoadArtifact(ctx, g.Wasm, g.WIT)
		}(i)
	}
	wg.Wait()

	for i := range arts {
		if errs[i] != nil {
			t.Fatalf("load %d: %v", i, errs[i])
		}
		if arts[i] != arts[0] {
			t.Errorf("load %d returned a different artifact", i)
		}
	}
	if n := e.CachedArtifacts(); n != 1 {
		t.Errorf("CachedArtifacts = %d, want 1", n)
	}

	// a different descriptor is a different artifact
	if _, err := e.LoadArtifact(ctx, g.Wasm, g.WIT+"\n"); err != nil {
		t.Fatal(err)
	}
	if n := e.CachedArtifacts(); n != 2 {
		t.Errorf("CachedArtifacts = %d, want 2", n)
	}
	if len(arts[0].Digest()) != 64 {
		t.Errorf("Digest = %q", arts[0].Digest())
	}
}

func TestLoadArtifact_CancelledCallerDoesNotFailOthers(t *testing.T) {
	e := newEngine(t, nil)
	g := guests.Convert()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.LoadArtifact(cancelled, g.Wasm, g.WIT)
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("cancelled load err = %v, want context.Canceled", err)
	}

	art, err := e.LoadArtifact(context.Background(), g.Wasm, g.WIT)
	if err != nil {
		t.Fatalf("load after a cancelled caller: %v", err)
	}
	if art.World().Name != "convert" {
		t.Errorf("World = %q", art.World().Name)
	}
	if n := e.CachedArtifacts(); n != 1 {
		t.Errorf("CachedArtifacts = %d, want 1", n)
	}
}

func TestEngine_StoreAfterClose(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	g := guests.Boom()
	art, err := e.compile(ctx, g.Wasm, g.WIT)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Close(ctx); err != nil {
		t.Fatal(err)
	}

	if err := e.store(digest(g.Wasm, g.WIT), art); errors.KindOf(err) != errors.KindClosed {
		t.Fatalf("store err = %v, want closed", err)
	}
	if n := e.CachedArtifacts(); n != 0 {
		t.Errorf("CachedArtifacts = %d after close, want 0", n)
	}
}

func TestLoadArtifactFile(t *testing.T) {
	e := newEngine(t, nil)
	g := guests.Boom()
	dir := t.TempDir()
	path := filepath.Join(dir, "boom.wasm")
	if err := os.WriteFile(path, g.Wasm, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := e.LoadArtifactFile(context.Background(), path, g.WIT); err != nil {
		t.Fatalf("LoadArtifactFile: %v", err)
	}

	_, err := e.LoadArtifactFile(context.Background(), filepath.Join(dir, "missing.wasm"), g.WIT)
	if !stderrors.Is(err, errors.ErrIO) {
		t.Fatalf("err = %v, want io", err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), &Config{MemoryLimitPages: 70000})
	if errors.KindOf(err) != errors.KindInvalidInput {
		t.Fatalf("err = %v, want invalid input", err)
	}
}

func TestEngine_Close(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	g := guests.Boom()
	if _, err := e.LoadArtifact(ctx, g.Wasm, g.WIT); errors.KindOf(err) != errors.KindClosed {
		t.Fatalf("err = %v, want closed", err)
	}
}

func TestIsComponent(t *testing.T) {
	if IsComponent(guests.Boom().Wasm) {
		t.Error("core module detected as component")
	}
	if !IsComponent(wasmgen.Component()) {
		t.Error("component not detected")
	}
	if IsComponent([]byte{0, 1}) {
		t.Error("short input detected as component")
	}
}
