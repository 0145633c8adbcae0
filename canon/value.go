package canon

import (
	"fmt"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/descriptor"
	"github.com/wippyai/wasm-host/errors"
)

// Result is the Go form of result<T, E>. Value is nil for a case without
// a payload.
type Result struct {
	Value any
	IsErr bool
}

// Ok builds the ok case of a result.
func Ok(v any) Result { return Result{Value: v} }

// Err builds the err case of a result.
func Err(v any) Result { return Result{Value: v, IsErr: true} }

func goTypeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}

func mismatch(path []string, v any, t wit.Type) error {
	return errors.TypeMismatch(path, goTypeName(v), descriptor.TypeString(t))
}

// Check verifies that v is exactly the Go form of t.
func Check(path []string, t wit.Type, v any) error {
	ok := false
	switch t.(type) {
	case nil:
		ok = v == nil
	case wit.Bool:
		_, ok = v.(bool)
	case wit.S8:
		_, ok = v.(int8)
	case wit.U8:
		_, ok = v.(uint8)
	case wit.S16:
		_, ok = v.(int16)
	case wit.U16:
		_, ok = v.(uint16)
	case wit.S32:
		_, ok = v.(int32)
	case wit.U32:
		_, ok = v.(uint32)
	case wit.S64:
		_, ok = v.(int64)
	case wit.U64:
		_, ok = v.(uint64)
	case wit.F32:
		_, ok = v.(float32)
	case wit.F64:
		_, ok = v.(float64)
	case wit.Char:
		r, isRune := v.(rune)
		ok = isRune && utf8.ValidRune(r)
	case *wit.TypeDef:
		return checkTypeDef(path, t.(*wit.TypeDef), v)
	}
	if !ok {
		return mismatch(path, v, t)
	}
	return nil
}

func checkTypeDef(path []string, td *wit.TypeDef, v any) error {
	switch k := td.Kind.(type) {
	case *wit.Option:
		if v == nil {
			return nil
		}
		return Check(append(path, "some"), k.Type, v)
	case *wit.Result:
		r, ok := v.(Result)
		if !ok {
			return mismatch(path, v, td)
		}
		if r.IsErr {
			return Check(append(path, "err"), k.Err, r.Value)
		}
		return Check(append(path, "ok"), k.OK, r.Value)
	}
	return mismatch(path, v, td)
}

// CheckArgs checks a full argument list against fn.
func CheckArgs(fn *descriptor.Func, args []any) error {
	if len(args) != len(fn.Params) {
		return errors.ArgCount(fn.Name, len(fn.Params), len(args))
	}
	for i, p := range fn.Params {
		if err := Check([]string{fmt.Sprintf("arg%d", i)}, p.Type, args[i]); err != nil {
			if e, ok := err.(*errors.Error); ok {
				e.Name = fn.Name
			}
			return err
		}
	}
	return nil
}

// LowerFlat appends the flat encoding of v to out. v must already have
// passed Check.
func LowerFlat(t wit.Type, v any, out []uint64) ([]uint64, error) {
	switch t.(type) {
	case nil:
		return out, nil
	case wit.Bool:
		if v.(bool) {
			return append(out, 1), nil
		}
		return append(out, 0), nil
	case wit.S8:
		return append(out, api.EncodeI32(int32(v.(int8)))), nil
	case wit.U8:
		return append(out, uint64(v.(uint8))), nil
	case wit.S16:
		return append(out, api.EncodeI32(int32(v.(int16)))), nil
	case wit.U16:
		return append(out, uint64(v.(uint16))), nil
	case wit.S32:
		return append(out, api.EncodeI32(v.(int32))), nil
	case wit.U32:
		return append(out, api.EncodeU32(v.(uint32))), nil
	case wit.S64:
		return append(out, api.EncodeI64(v.(int64))), nil
	case wit.U64:
		return append(out, v.(uint64)), nil
	case wit.F32:
		return append(out, api.EncodeF32(v.(float32))), nil
	case wit.F64:
		return append(out, api.EncodeF64(v.(float64))), nil
	case wit.Char:
		return append(out, api.EncodeU32(uint32(v.(rune)))), nil
	case *wit.TypeDef:
		disc, payloadType, payload, err := variantCase(t, v)
		if err != nil {
			return nil, err
		}
		flat, err := Flatten(t)
		if err != nil {
			return nil, err
		}
		out = append(out, uint64(disc))
		end := len(out) + len(flat) - 1
		if out, err = LowerFlat(payloadType, payload, out); err != nil {
			return nil, err
		}
		for len(out) < end {
			out = append(out, 0)
		}
		return out, nil
	}
	return nil, mismatch(nil, v, t)
}

// variantCase splits an option or result value into its discriminant and
// payload.
func variantCase(t wit.Type, v any) (uint32, wit.Type, any, error) {
	switch k := t.(*wit.TypeDef).Kind.(type) {
	case *wit.Option:
		if v == nil {
			return 0, nil, nil, nil
		}
		return 1, k.Type, v, nil
	case *wit.Result:
		r, ok := v.(Result)
		if !ok {
			return 0, nil, nil, mismatch(nil, v, t)
		}
		if r.IsErr {
			return 1, k.Err, r.Value, nil
		}
		return 0, k.OK, r.Value, nil
	}
	return 0, nil, nil, mismatch(nil, v, t)
}

func badValue(format string, args ...any) error {
	return errors.New(errors.PhaseCall, errors.KindTrapped).
		Detail("invalid canonical value: "+format, args...).
		Build()
}

// LiftFlat decodes one value of type t from the front of flat and returns
// the unconsumed rest.
func LiftFlat(t wit.Type, flat []uint64) (any, []uint64, error) {
	if t == nil {
		return nil, flat, nil
	}
	if _, ok := t.(*wit.TypeDef); !ok {
		if len(flat) == 0 {
			return nil, nil, badValue("missing value for %s", descriptor.TypeString(t))
		}
	}

	switch t.(type) {
	case wit.Bool:
		return uint32(flat[0]) != 0, flat[1:], nil
	case wit.S8:
		return int8(api.DecodeI32(flat[0])), flat[1:], nil
	case wit.U8:
		return uint8(flat[0]), flat[1:], nil
	case wit.S16:
		return int16(api.DecodeI32(flat[0])), flat[1:], nil
	case wit.U16:
		return uint16(flat[0]), flat[1:], nil
	case wit.S32:
		return api.DecodeI32(flat[0]), flat[1:], nil
	case wit.U32:
		return api.DecodeU32(flat[0]), flat[1:], nil
	case wit.S64:
		return int64(flat[0]), flat[1:], nil
	case wit.U64:
		return flat[0], flat[1:], nil
	case wit.F32:
		return api.DecodeF32(flat[0]), flat[1:], nil
	case wit.F64:
		return api.DecodeF64(flat[0]), flat[1:], nil
	case wit.Char:
		r := rune(api.DecodeU32(flat[0]))
		if !utf8.ValidRune(r) {
			return nil, nil, badValue("char %#x is not a unicode scalar value", uint32(r))
		}
		return r, flat[1:], nil
	case *wit.TypeDef:
		return liftVariantFlat(t, flat)
	}
	return nil, nil, badValue("unsupported type %s", descriptor.TypeString(t))
}

func liftVariantFlat(t wit.Type, flat []uint64) (any, []uint64, error) {
	layout, err := Flatten(t)
	if err != nil {
		return nil, nil, err
	}
	if len(flat) < len(layout) {
		return nil, nil, badValue("short variant %s", descriptor.TypeString(t))
	}
	disc := api.DecodeU32(flat[0])
	rest := flat[len(layout):]
	payload := flat[1:len(layout)]

	switch k := t.(*wit.TypeDef).Kind.(type) {
	case *wit.Option:
		switch disc {
		case 0:
			return nil, rest, nil
		case 1:
			v, _, err := LiftFlat(k.Type, payload)
			return v, rest, err
		}
	case *wit.Result:
		var caseType wit.Type
		switch disc {
		case 0:
			caseType = k.OK
		case 1:
			caseType = k.Err
		default:
			return nil, nil, badValue("result discriminant %d", disc)
		}
		v, _, err := LiftFlat(caseType, payload)
		if err != nil {
			return nil, nil, err
		}
		return Result{Value: v, IsErr: disc == 1}, rest, nil
	}
	return nil, nil, badValue("discriminant %d for %s", disc, descriptor.TypeString(t))
}

// Store writes v of type t to memory at offset.
func Store(mem wasmhost.Memory, t wit.Type, offset uint32, v any) error {
	switch t.(type) {
	case nil:
		return nil
	case *wit.TypeDef:
		disc, payloadType, payload, err := variantCase(t, v)
		if err != nil {
			return err
		}
		if err := mem.WriteU8(offset, uint8(disc)); err != nil {
			return err
		}
		return Store(mem, payloadType, offset+Layout(t).PayloadOffset, payload)
	}

	flat, err := LowerFlat(t, v, nil)
	if err != nil {
		return err
	}
	switch Layout(t).Size {
	case 1:
		return mem.WriteU8(offset, uint8(flat[0]))
	case 2:
		return mem.WriteU16(offset, uint16(flat[0]))
	case 4:
		return mem.WriteU32(offset, uint32(flat[0]))
	case 8:
		return mem.WriteU64(offset, flat[0])
	}
	return mismatch(nil, v, t)
}

// Load reads a value of type t from memory at offset.
func Load(mem wasmhost.Memory, t wit.Type, offset uint32) (any, error) {
	var raw uint64
	var err error

	switch t.(type) {
	case nil:
		return nil, nil
	case wit.Bool, wit.U8, wit.S8:
		var b uint8
		b, err = mem.ReadU8(offset)
		raw = uint64(b)
		if _, signed := t.(wit.S8); signed {
			raw = api.EncodeI32(int32(int8(b)))
		}
	case wit.U16, wit.S16:
		var h uint16
		h, err = mem.ReadU16(offset)
		raw = uint64(h)
		if _, signed := t.(wit.S16); signed {
			raw = api.EncodeI32(int32(int16(h)))
		}
	case wit.U32, wit.S32, wit.F32, wit.Char:
		var w uint32
		w, err = mem.ReadU32(offset)
		raw = uint64(w)
	case wit.U64, wit.S64, wit.F64:
		raw, err = mem.ReadU64(offset)
	case *wit.TypeDef:
		return loadVariant(mem, t, offset)
	default:
		return nil, badValue("unsupported type %s", descriptor.TypeString(t))
	}
	if err != nil {
		return nil, err
	}
	v, _, err := LiftFlat(t, []uint64{raw})
	return v, err
}

func loadVariant(mem wasmhost.Memory, t wit.Type, offset uint32) (any, error) {
	disc, err := mem.ReadU8(offset)
	if err != nil {
		return nil, err
	}
	at := offset + Layout(t).PayloadOffset

	switch k := t.(*wit.TypeDef).Kind.(type) {
	case *wit.Option:
		switch disc {
		case 0:
			return nil, nil
		case 1:
			return Load(mem, k.Type, at)
		}
	case *wit.Result:
		switch disc {
		case 0, 1:
			caseType := k.OK
			if disc == 1 {
				caseType = k.Err
			}
			v, err := Load(mem, caseType, at)
			if err != nil {
				return nil, err
			}
			return Result{Value: v, IsErr: disc == 1}, nil
		}
	}
	return nil, badValue("discriminant %d for %s", disc, descriptor.TypeString(t))
}
