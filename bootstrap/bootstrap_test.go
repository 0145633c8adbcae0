package bootstrap

import (
	"bytes"
	"context"
	stderrors "errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/wasm-host/descriptor"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/internal/guests"
	"github.com/wippyai/wasm-host/sandbox"
)

func convertPipeline(mode Mode) Pipeline {
	g := guests.Convert()
	return Pipeline{
		Source:    Source{Bytes: g.Wasm, WIT: g.WIT},
		Bindings:  []NamedBinding{{Name: "host", Binding: guests.Multiply()}},
		Operation: "convert-celsius-to-fahrenheit",
		Args:      []any{float32(23.4)},
		Mode:      mode,
	}
}

func TestRun_ModesAgree(t *testing.T) {
	ctx := context.Background()

	single, err := Run(ctx, convertPipeline(ModeSingle))
	if err != nil {
		t.Fatalf("single: %v", err)
	}
	pipelined, err := Run(ctx, convertPipeline(ModePipelined))
	if err != nil {
		t.Fatalf("pipelined: %v", err)
	}

	if single != pipelined {
		t.Errorf("single = %v, pipelined = %v", single, pipelined)
	}
	if math.Abs(float64(single.(float32))-74.12) > 1e-3 {
		t.Errorf("result = %v, want 74.12", single)
	}
}

func TestRun_ErrorsAgree(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Pipeline)
		want   *errors.Error
	}{
		{
			name:   "unsatisfied import",
			mutate: func(p *Pipeline) { p.Bindings = nil },
			want:   errors.ErrUnsatisfiedImport,
		},
		{
			name:   "malformed artifact",
			mutate: func(p *Pipeline) { p.Source.Bytes = []byte("not wasm") },
			want:   errors.ErrMalformed,
		},
		{
			name:   "type mismatch",
			mutate: func(p *Pipeline) { p.Args = []any{"hot"} },
			want:   errors.ErrTypeMismatch,
		},
		{
			name: "duplicate binding",
			mutate: func(p *Pipeline) {
				p.Bindings = append(p.Bindings, NamedBinding{Name: "host", Binding: guests.Multiply()})
			},
			want: errors.ErrDuplicateBinding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, mode := range []Mode{ModeSingle, ModePipelined} {
				p := convertPipeline(mode)
				tt.mutate(&p)
				_, err := Run(context.Background(), p)
				if !stderrors.Is(err, tt.want) {
					t.Errorf("%s: err = %v, want %v", mode, err, tt.want)
				}
			}
		})
	}
}

func TestRun_FromPath(t *testing.T) {
	g := guests.Convert()
	path := filepath.Join(t.TempDir(), "convert.wasm")
	if err := os.WriteFile(path, g.Wasm, 0o600); err != nil {
		t.Fatal(err)
	}

	p := convertPipeline(ModePipelined)
	p.Source = Source{Path: path, WIT: g.WIT}
	if _, err := Run(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	p.Source.Path = filepath.Join(t.TempDir(), "missing.wasm")
	if _, err := Run(context.Background(), p); !stderrors.Is(err, errors.ErrIO) {
		t.Fatalf("err = %v, want io", err)
	}
}

func TestRun_EmptySource(t *testing.T) {
	p := convertPipeline(ModeSingle)
	p.Source = Source{}
	if _, err := Run(context.Background(), p); errors.KindOf(err) != errors.KindInvalidInput {
		t.Fatalf("err = %v, want invalid input", err)
	}
}

func TestRun_CapturedOutput(t *testing.T) {
	g := guests.Hello()
	for _, mode := range []Mode{ModeSingle, ModePipelined} {
		var stdout bytes.Buffer
		_, err := Run(context.Background(), Pipeline{
			Source:         Source{Bytes: g.Wasm, WIT: g.WIT},
			Operation:      "greet",
			RuntimeEffects: true,
			Mode:           mode,
			Stdout:         &stdout,
		})
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		if stdout.String() != guests.HelloOutput {
			t.Errorf("%s: stdout = %q", mode, stdout.String())
		}
	}
}

func TestRun_EffectsDisabled(t *testing.T) {
	g := guests.Hello()
	_, err := Run(context.Background(), Pipeline{
		Source:         Source{Bytes: g.Wasm, WIT: g.WIT},
		Operation:      "greet",
		RuntimeEffects: true,
		Effects:        sandbox.Config{DisableEffects: true},
	})
	if errors.KindOf(err) != errors.KindInvalidInput {
		t.Fatalf("err = %v, want invalid input", err)
	}
}

func TestHandoff(t *testing.T) {
	h := NewHandoff()
	b := &Bundle{}

	if err := h.Send(nil); errors.KindOf(err) != errors.KindInvalidInput {
		t.Fatalf("Send(nil) = %v", err)
	}
	if err := h.Send(b); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := h.Send(b); errors.KindOf(err) != errors.KindInvalidInput {
		t.Fatalf("second Send = %v", err)
	}

	got, err := h.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got != b {
		t.Error("received a different bundle")
	}
	if _, err := h.Receive(context.Background()); errors.KindOf(err) != errors.KindClosed {
		t.Fatalf("second Receive = %v", err)
	}
}

func TestHandoff_ReceiveCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := NewHandoff().Receive(ctx)
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestHandoff_CrossGoroutine(t *testing.T) {
	h := NewHandoff()
	b, err := Prepare(context.Background(), convertPipeline(ModePipelined))
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := h.Send(b); err != nil {
			t.Error(err)
		}
	}()

	got, err := h.Receive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	<-done

	result, err := Execute(context.Background(), convertPipeline(ModePipelined), got)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Context.Closed() || !got.Engine.Closed() {
		t.Error("Execute did not release the bundle")
	}
	if math.Abs(float64(result.(float32))-74.12) > 1e-3 {
		t.Errorf("result = %v", result)
	}
}

func TestBundle_CloseTwice(t *testing.T) {
	b, err := Prepare(context.Background(), convertPipeline(ModeSingle))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(sandbox.LeakReport{}, b.Leaks()); diff != "" {
		t.Errorf("unexpected leaks (-want +got):\n%s", diff)
	}
}

func TestMode_String(t *testing.T) {
	if ModeSingle.String() != "single" || ModePipelined.String() != "pipelined" || Mode(9).String() != "unknown" {
		t.Error("unexpected mode names")
	}
}

func TestExecute_ArgsFor(t *testing.T) {
	ctx := context.Background()

	t.Run("built from the declared signature", func(t *testing.T) {
		p := convertPipeline(ModePipelined)
		p.Args = nil
		var seen string
		p.ArgsFor = func(fn *descriptor.Func) ([]any, error) {
			seen = fn.String()
			return []any{float32(0)}, nil
		}
		got, err := Run(ctx, p)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if got != float32(32) {
			t.Errorf("result = %v, want 32", got)
		}
		if seen != "convert-celsius-to-fahrenheit: func(x: f32) -> f32" {
			t.Errorf("ArgsFor saw %q", seen)
		}
	})

	t.Run("unknown export", func(t *testing.T) {
		p := convertPipeline(ModeSingle)
		p.Operation = "nope"
		p.ArgsFor = func(*descriptor.Func) ([]any, error) {
			t.Error("ArgsFor called for an unknown export")
			return nil, nil
		}
		if _, err := Run(ctx, p); errors.KindOf(err) != errors.KindNotFound {
			t.Fatalf("err = %v, want not found", err)
		}
	})

	t.Run("conversion error", func(t *testing.T) {
		p := convertPipeline(ModeSingle)
		boom := stderrors.New("bad argument")
		p.ArgsFor = func(*descriptor.Func) ([]any, error) { return nil, boom }
		if _, err := Run(ctx, p); !stderrors.Is(err, boom) {
			t.Fatalf("err = %v, want %v", err, boom)
		}
	})
}

func TestExecute_NilBundle(t *testing.T) {
	_, err := Execute(context.Background(), convertPipeline(ModeSingle), nil)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseBootstrap, Kind: errors.KindInvalidInput}) {
		t.Fatalf("err = %v, want bootstrap invalid input", err)
	}
}
