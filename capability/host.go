package capability

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/descriptor"
	"github.com/wippyai/wasm-host/errors"
)

// Host is a struct-based binding. Its exported methods, other than
// Namespace, become operations named in kebab-case.
type Host interface {
	// Namespace returns the imported interface name (e.g. "host").
	Namespace() string
}

// ExplicitRegistrar lets a host give exact operation names when the
// PascalCase to kebab-case conversion does not fit.
type ExplicitRegistrar interface {
	Register() map[string]any
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// FromHost builds a binding from h's methods, or from Register when h is an
// ExplicitRegistrar.
func FromHost(h any) (Binding, error) {
	if h == nil {
		return nil, errors.InvalidInput(errors.PhaseHost, "host cannot be nil")
	}

	if er, ok := h.(ExplicitRegistrar); ok {
		funcs := er.Register()
		names := make([]string, 0, len(funcs))
		for name := range funcs {
			names = append(names, name)
		}
		sort.Strings(names)

		set := make(Set, 0, len(names))
		for _, name := range names {
			op, err := FromFunc(name, funcs[name])
			if err != nil {
				return nil, err
			}
			set = append(set, op...)
		}
		return set, nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()
	var set Set
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Namespace" {
			continue
		}
		op, err := reflectOperation(toKebabCase(method.Name), rv.Method(i))
		if err != nil {
			return nil, err
		}
		set = append(set, op)
	}
	if len(set) == 0 {
		return nil, errors.New(errors.PhaseHost, errors.KindInvalidInput).
			GoType(rt.String()).
			Detail("host has no exported methods").
			Build()
	}
	return set, nil
}

// FromFunc builds a single-operation binding from a plain Go function such
// as func(a, b float32) float32.
func FromFunc(name string, fn any) (Set, error) {
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Name(name).
			GoType(reflect.TypeOf(fn).String()).
			Detail("handler must be a function").
			Build()
	}
	op, err := reflectOperation(name, rv)
	if err != nil {
		return nil, err
	}
	return Set{op}, nil
}

// reflectOperation accepts func([ctx,] params...) [(result)] [error].
func reflectOperation(name string, fn reflect.Value) (Operation, error) {
	ft := fn.Type()
	op := Operation{Name: name}

	first := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		first = 1
	}
	if ft.IsVariadic() {
		return Operation{}, unsupportedGo(name, ft, "variadic functions are not supported")
	}
	for i := first; i < ft.NumIn(); i++ {
		t, err := witTypeOf(ft.In(i))
		if err != nil {
			return Operation{}, unsupportedGo(name, ft, err.Error())
		}
		op.Params = append(op.Params, t)
	}

	outs := ft.NumOut()
	hasErr := outs > 0 && ft.Out(outs-1) == errorType
	if hasErr {
		outs--
	}
	switch outs {
	case 0:
	case 1:
		t, err := witTypeOf(ft.Out(0))
		if err != nil {
			return Operation{}, unsupportedGo(name, ft, err.Error())
		}
		op.Result = t
	default:
		return Operation{}, unsupportedGo(name, ft, "at most one result plus error")
	}

	op.Handler = func(ctx context.Context, args []any) (any, error) {
		in := make([]reflect.Value, 0, ft.NumIn())
		if first == 1 {
			in = append(in, reflect.ValueOf(ctx))
		}
		for i, a := range args {
			in = append(in, toGo(ft.In(first+i), a))
		}
		out := fn.Call(in)

		if hasErr {
			if errVal := out[len(out)-1]; !errVal.IsNil() {
				return nil, errVal.Interface().(error)
			}
		}
		if op.Result == nil {
			return nil, nil
		}
		return fromGo(out[0]), nil
	}
	return op, nil
}

func unsupportedGo(name string, ft reflect.Type, detail string) error {
	return errors.New(errors.PhaseHost, errors.KindUnsupported).
		Name(name).
		GoType(ft.String()).
		Detail("%s", detail).
		Build()
}

// witTypeOf maps Go types to WIT. A pointer to a scalar is option<T>.
func witTypeOf(t reflect.Type) (wit.Type, error) {
	switch t.Kind() {
	case reflect.Bool:
		return wit.Bool{}, nil
	case reflect.Int8:
		return wit.S8{}, nil
	case reflect.Uint8:
		return wit.U8{}, nil
	case reflect.Int16:
		return wit.S16{}, nil
	case reflect.Uint16:
		return wit.U16{}, nil
	case reflect.Int32:
		return wit.S32{}, nil
	case reflect.Uint32:
		return wit.U32{}, nil
	case reflect.Int64:
		return wit.S64{}, nil
	case reflect.Uint64:
		return wit.U64{}, nil
	case reflect.Float32:
		return wit.F32{}, nil
	case reflect.Float64:
		return wit.F64{}, nil
	case reflect.Pointer:
		inner, err := witTypeOf(t.Elem())
		if err != nil {
			return nil, err
		}
		if _, nested := inner.(*wit.TypeDef); nested {
			return nil, errors.InvalidInput(errors.PhaseHost, "nested pointer "+t.String())
		}
		return descriptor.Option(inner), nil
	}
	return nil, errors.InvalidInput(errors.PhaseHost, "no WIT type for Go type "+t.String())
}

// toGo converts a canon value to the declared Go parameter type.
func toGo(t reflect.Type, v any) reflect.Value {
	if t.Kind() == reflect.Pointer {
		if v == nil {
			return reflect.Zero(t)
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(reflect.ValueOf(v).Convert(t.Elem()))
		return p
	}
	return reflect.ValueOf(v).Convert(t)
}

// fromGo converts a Go result back to its canon form.
func fromGo(v reflect.Value) any {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return canonical(v)
}

// canonical strips named types (type Celsius float32) down to the builtin
// type canon expects.
func canonical(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.Int8:
		return int8(v.Int())
	case reflect.Int16:
		return int16(v.Int())
	case reflect.Int32:
		return int32(v.Int())
	case reflect.Int64:
		return v.Int()
	case reflect.Uint8:
		return uint8(v.Uint())
	case reflect.Uint16:
		return uint16(v.Uint())
	case reflect.Uint32:
		return uint32(v.Uint())
	case reflect.Uint64:
		return v.Uint()
	case reflect.Float32:
		return float32(v.Float())
	case reflect.Float64:
		return v.Float()
	}
	return v.Interface()
}

// toKebabCase converts PascalCase to kebab-case.
// Handles acronyms: GetHTTPURL -> get-http-url
func toKebabCase(s string) string {
	runes := []rune(s)
	var b strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}

		end := i + 1
		for end < len(runes) && unicode.IsUpper(runes[end]) {
			end++
		}
		// the last capital of a run starts the next word
		if end > i+1 && end < len(runes) && unicode.IsLower(runes[end]) {
			end--
		}

		if i > 0 {
			b.WriteByte('-')
		}
		for j := i; j < end; j++ {
			b.WriteRune(unicode.ToLower(runes[j]))
		}
		i = end - 1
	}
	return b.String()
}
