package capability

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/resource"
)

func multiply(ctx context.Context, args []any) (any, error) {
	return args[0].(float32) * args[1].(float32), nil
}

func TestFunc(t *testing.T) {
	b := Func("multiply", []wit.Type{wit.F32{}, wit.F32{}}, wit.F32{}, multiply)

	op, ok := Lookup(b, "multiply")
	if !ok {
		t.Fatal("multiply not found")
	}
	if got := op.Signature(); got != "func(f32, f32) -> f32" {
		t.Errorf("Signature = %q", got)
	}
	if err := Validate(b); err != nil {
		t.Errorf("Validate: %v", err)
	}

	out, err := Invoke(context.Background(), op, []any{float32(1.5), float32(2)})
	if err != nil || out != float32(3) {
		t.Errorf("Invoke = %v, %v", out, err)
	}

	if _, ok := Lookup(b, "divide"); ok {
		t.Error("Lookup found a missing operation")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		b    Binding
		kind errors.Kind
	}{
		{"nil", nil, errors.KindInvalidInput},
		{"empty name", Set{{Handler: multiply}}, errors.KindInvalidInput},
		{"no handler", Set{{Name: "x"}}, errors.KindInvalidInput},
		{"duplicate", Set{{Name: "x", Handler: multiply}, {Name: "x", Handler: multiply}}, errors.KindInvalidInput},
		{"string param", Set{{Name: "x", Handler: multiply, Params: []wit.Type{wit.String{}}}}, errors.KindUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.b)
			if errors.KindOf(err) != tt.kind {
				t.Errorf("err = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestInvoke_FailuresBecomeTraps(t *testing.T) {
	boom := stderrors.New("disk on fire")
	tests := []struct {
		name    string
		handler HandlerFunc
		result  wit.Type
	}{
		{"error", func(context.Context, []any) (any, error) { return nil, boom }, wit.U32{}},
		{"panic error", func(context.Context, []any) (any, error) { panic(boom) }, wit.U32{}},
		{"panic value", func(context.Context, []any) (any, error) { panic("nil map") }, wit.U32{}},
		{"wrong result type", func(context.Context, []any) (any, error) { return "x", nil }, wit.U32{}},
		{"result for void", func(context.Context, []any) (any, error) { return uint32(1), nil }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := Operation{Name: "op", Result: tt.result, Handler: tt.handler}
			out, err := Invoke(context.Background(), op, nil)
			if out != nil {
				t.Errorf("out = %v", out)
			}
			if !stderrors.Is(err, errors.ErrTrapped) {
				t.Fatalf("err = %v, want trapped", err)
			}
			var e *errors.Error
			if stderrors.As(err, &e) && e.Name != "op" {
				t.Errorf("Name = %q", e.Name)
			}
		})
	}

	op := Operation{Name: "op", Handler: func(context.Context, []any) (any, error) { return nil, boom }}
	if _, err := Invoke(context.Background(), op, nil); !stderrors.Is(err, boom) {
		t.Errorf("cause lost: %v", err)
	}
}

type celsius float32

type converter struct {
	calls int
}

func (c *converter) Namespace() string { return "host" }

func (c *converter) Multiply(a, b float32) float32 {
	c.calls++
	return a * b
}

func (c *converter) ToFahrenheit(ctx context.Context, v celsius) (float32, error) {
	if v < -273.15 {
		return 0, stderrors.New("below absolute zero")
	}
	return float32(v)*1.8 + 32, nil
}

func (c *converter) Lookup(id uint32) *uint64 {
	if id == 0 {
		return nil
	}
	v := uint64(id) * 10
	return &v
}

func (c *converter) Reset() { c.calls = 0 }

func TestFromHost(t *testing.T) {
	conv := &converter{}
	b, err := FromHost(conv)
	if err != nil {
		t.Fatalf("FromHost: %v", err)
	}
	if err := Validate(b); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var names []string
	sigs := map[string]string{}
	for _, op := range b.Operations() {
		names = append(names, op.Name)
		sigs[op.Name] = op.Signature()
	}
	want := []string{"lookup", "multiply", "reset", "to-fahrenheit"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("operation names mismatch (-want +got):\n%s", diff)
	}

	wantSigs := map[string]string{
		"lookup":        "func(u32) -> option<u64>",
		"multiply":      "func(f32, f32) -> f32",
		"reset":         "func()",
		"to-fahrenheit": "func(f32) -> f32",
	}
	if diff := cmp.Diff(wantSigs, sigs); diff != "" {
		t.Errorf("signatures mismatch (-want +got):\n%s", diff)
	}

	ctx := context.Background()
	mul, _ := Lookup(b, "multiply")
	if out, err := Invoke(ctx, mul, []any{float32(2), float32(4)}); err != nil || out != float32(8) {
		t.Errorf("multiply = %v, %v", out, err)
	}
	if conv.calls != 1 {
		t.Errorf("calls = %d", conv.calls)
	}

	toF, _ := Lookup(b, "to-fahrenheit")
	if out, err := Invoke(ctx, toF, []any{float32(100)}); err != nil || out != float32(212) {
		t.Errorf("to-fahrenheit = %v, %v", out, err)
	}
	if _, err := Invoke(ctx, toF, []any{float32(-300)}); !stderrors.Is(err, errors.ErrTrapped) {
		t.Errorf("error return = %v, want trapped", err)
	}

	lookup, _ := Lookup(b, "lookup")
	if out, err := Invoke(ctx, lookup, []any{uint32(0)}); err != nil || out != nil {
		t.Errorf("lookup(0) = %v, %v", out, err)
	}
	if out, err := Invoke(ctx, lookup, []any{uint32(3)}); err != nil || out != uint64(30) {
		t.Errorf("lookup(3) = %v, %v", out, err)
	}

	reset, _ := Lookup(b, "reset")
	if out, err := Invoke(ctx, reset, nil); err != nil || out != nil {
		t.Errorf("reset = %v, %v", out, err)
	}
	if conv.calls != 0 {
		t.Errorf("reset did not run")
	}
}

type explicitHost struct{}

func (explicitHost) Namespace() string { return "wasi:cli/environment" }

func (explicitHost) Register() map[string]any {
	return map[string]any{
		"[method]fields.append": func(a uint32) uint32 { return a + 1 },
		"get-arguments-count":   func() uint32 { return 0 },
	}
}

func TestFromHost_Explicit(t *testing.T) {
	b, err := FromHost(explicitHost{})
	if err != nil {
		t.Fatal(err)
	}
	ops := b.Operations()
	if len(ops) != 2 || ops[0].Name != "[method]fields.append" || ops[1].Name != "get-arguments-count" {
		t.Errorf("operations = %+v", ops)
	}
}

type badHost struct{}

func (badHost) Namespace() string  { return "bad" }
func (badHost) Size() int          { return 0 }
func (badHost) Pair() (bool, bool) { return false, false }

type emptyHost struct{}

func (emptyHost) Namespace() string { return "empty" }

func TestFromHost_Rejects(t *testing.T) {
	if _, err := FromHost(badHost{}); !stderrors.Is(err, &errors.Error{Kind: errors.KindUnsupported}) {
		t.Errorf("bad host = %v", err)
	}
	if _, err := FromHost(emptyHost{}); !stderrors.Is(err, &errors.Error{Kind: errors.KindInvalidInput}) {
		t.Errorf("empty host = %v", err)
	}
	if _, err := FromHost(nil); err == nil {
		t.Error("nil host accepted")
	}
	if _, err := FromFunc("x", 42); !stderrors.Is(err, &errors.Error{Kind: errors.KindTypeMismatch}) {
		t.Errorf("non-func = %v", err)
	}
	if _, err := FromFunc("", func() {}); err == nil {
		t.Error("empty name accepted")
	}
	if _, err := FromFunc("v", func(xs ...int32) {}); err == nil {
		t.Error("variadic accepted")
	}
}

func TestResources(t *testing.T) {
	if Resources(context.Background()) != nil {
		t.Error("Resources outside a call should be nil")
	}
	table := resource.New()
	ctx := WithResources(context.Background(), table)
	if Resources(ctx) != table {
		t.Error("table not attached")
	}
}

func TestToKebabCase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Multiply", "multiply"},
		{"ConvertCelsiusToFahrenheit", "convert-celsius-to-fahrenheit"},
		{"GetHTTPURL", "get-http-url"},
		{"HTTPServer", "http-server"},
		{"ID", "id"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := toKebabCase(tt.in); got != tt.want {
			t.Errorf("toKebabCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
