package canon

import (
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/descriptor"
	"github.com/wippyai/wasm-host/errors"
)

// Canonical ABI flattening limits
const (
	MaxFlatParams  = 16
	MaxFlatResults = 1
)

// Direction says which side of the boundary implements a function.
type Direction int

const (
	// Lift is a guest export called by the host.
	Lift Direction = iota
	// Lower is a host import called by the guest.
	Lower
)

// CoreSignature is the core wasm shape of a WIT function.
type CoreSignature struct {
	Params  []api.ValueType
	Results []api.ValueType
	// Flat holds the flattened result type. When Indirect is set the
	// result travels through memory instead.
	Flat     []api.ValueType
	Indirect bool
}

// Matches reports whether a core function has exactly this shape.
func (s *CoreSignature) Matches(params, results []api.ValueType) bool {
	return sameValueTypes(s.Params, params) && sameValueTypes(s.Results, results)
}

// String renders the signature in wasm text notation.
func (s *CoreSignature) String() string {
	return FormatCore(s.Params, s.Results)
}

// FormatCore renders core value types as "(i32, f32) -> (f32)".
func FormatCore(params, results []api.ValueType) string {
	out := "(" + valueTypeList(params) + ")"
	return out + " -> (" + valueTypeList(results) + ")"
}

func valueTypeList(types []api.ValueType) string {
	s := ""
	for i, t := range types {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(t)
	}
	return s
}

// Signature flattens fn for the given direction.
func Signature(fn *descriptor.Func, dir Direction) (*CoreSignature, error) {
	sig := &CoreSignature{}
	for _, p := range fn.Params {
		flat, err := Flatten(p.Type)
		if err != nil {
			return nil, err
		}
		sig.Params = append(sig.Params, flat...)
	}
	if len(sig.Params) > MaxFlatParams {
		return nil, errors.Unsupported(errors.PhaseLoad, fn.Name+": more than 16 flat parameters")
	}

	flat, err := Flatten(fn.Result)
	if err != nil {
		return nil, err
	}
	sig.Flat = flat

	if len(flat) <= MaxFlatResults {
		sig.Results = flat
		return sig, nil
	}

	sig.Indirect = true
	switch dir {
	case Lift:
		sig.Results = []api.ValueType{api.ValueTypeI32}
	case Lower:
		sig.Params = append(sig.Params, api.ValueTypeI32)
	}
	return sig, nil
}

// Flatten returns the core value types of t. A nil type flattens to nothing.
func Flatten(t wit.Type) ([]api.ValueType, error) {
	switch v := t.(type) {
	case nil:
		return nil, nil
	case wit.Bool, wit.U8, wit.U16, wit.U32, wit.S8, wit.S16, wit.S32, wit.Char:
		return []api.ValueType{api.ValueTypeI32}, nil
	case wit.U64, wit.S64:
		return []api.ValueType{api.ValueTypeI64}, nil
	case wit.F32:
		return []api.ValueType{api.ValueTypeF32}, nil
	case wit.F64:
		return []api.ValueType{api.ValueTypeF64}, nil
	case *wit.TypeDef:
		switch k := v.Kind.(type) {
		case *wit.Option:
			return flattenVariant(nil, k.Type)
		case *wit.Result:
			return flattenVariant(k.OK, k.Err)
		}
	}
	return nil, errors.Unsupported(errors.PhaseLoad, "type "+descriptor.TypeString(t)+" is outside the supported ABI subset")
}

// flattenVariant joins the case payloads behind an i32 discriminant.
func flattenVariant(cases ...wit.Type) ([]api.ValueType, error) {
	var payload []api.ValueType
	for _, c := range cases {
		flat, err := Flatten(c)
		if err != nil {
			return nil, err
		}
		for i, ft := range flat {
			if i < len(payload) {
				payload[i] = join(payload[i], ft)
			} else {
				payload = append(payload, ft)
			}
		}
	}
	return append([]api.ValueType{api.ValueTypeI32}, payload...), nil
}

func join(a, b api.ValueType) api.ValueType {
	if a == b {
		return a
	}
	if (a == api.ValueTypeI32 && b == api.ValueTypeF32) || (a == api.ValueTypeF32 && b == api.ValueTypeI32) {
		return api.ValueTypeI32
	}
	return api.ValueTypeI64
}

func sameValueTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
