package descriptor

import (
	"fmt"

	"go.bytecodealliance.org/wit"
)

var primitives = map[string]func() wit.Type{
	"bool":   func() wit.Type { return wit.Bool{} },
	"s8":     func() wit.Type { return wit.S8{} },
	"u8":     func() wit.Type { return wit.U8{} },
	"s16":    func() wit.Type { return wit.S16{} },
	"u16":    func() wit.Type { return wit.U16{} },
	"s32":    func() wit.Type { return wit.S32{} },
	"u32":    func() wit.Type { return wit.U32{} },
	"s64":    func() wit.Type { return wit.S64{} },
	"u64":    func() wit.Type { return wit.U64{} },
	"f32":    func() wit.Type { return wit.F32{} },
	"f64":    func() wit.Type { return wit.F64{} },
	"char":   func() wit.Type { return wit.Char{} },
	"string": func() wit.Type { return wit.String{} },
	// pre-0.2 spellings still emitted by older toolchains
	"float32": func() wit.Type { return wit.F32{} },
	"float64": func() wit.Type { return wit.F64{} },
}

// Option builds option<t>.
func Option(t wit.Type) wit.Type {
	return &wit.TypeDef{Kind: &wit.Option{Type: t}}
}

// Result builds result<ok, err>; either side may be nil.
func Result(ok, err wit.Type) wit.Type {
	return &wit.TypeDef{Kind: &wit.Result{OK: ok, Err: err}}
}

// List builds list<t>.
func List(t wit.Type) wit.Type {
	return &wit.TypeDef{Kind: &wit.List{Type: t}}
}

// TypeString renders a WIT type.
func TypeString(t wit.Type) string {
	switch v := t.(type) {
	case nil:
		return "_"
	case wit.Bool:
		return "bool"
	case wit.S8:
		return "s8"
	case wit.U8:
		return "u8"
	case wit.S16:
		return "s16"
	case wit.U16:
		return "u16"
	case wit.S32:
		return "s32"
	case wit.U32:
		return "u32"
	case wit.S64:
		return "s64"
	case wit.U64:
		return "u64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		switch k := v.Kind.(type) {
		case *wit.Option:
			return "option<" + TypeString(k.Type) + ">"
		case *wit.Result:
			switch {
			case k.OK == nil && k.Err == nil:
				return "result"
			case k.Err == nil:
				return "result<" + TypeString(k.OK) + ">"
			default:
				return "result<" + TypeString(k.OK) + ", " + TypeString(k.Err) + ">"
			}
		case *wit.List:
			return "list<" + TypeString(k.Type) + ">"
		}
		if v.Name != nil {
			return *v.Name
		}
	}
	return fmt.Sprintf("%T", t)
}

// SameType reports whether two WIT types are structurally identical.
func SameType(a, b wit.Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return TypeString(a) == TypeString(b)
}

// ParseType parses a single WIT type expression such as "result<f32, u8>".
func ParseType(s string) (wit.Type, error) {
	p := &parser{toks: lex(s)}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, p.errorf("unexpected %q after type", p.peek().text)
	}
	return t, nil
}
