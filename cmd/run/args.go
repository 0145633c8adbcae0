package main

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/canon"
	"github.com/wippyai/wasm-host/descriptor"
)

// convertArgs parses command line values into the Go forms fn expects.
func convertArgs(fn *descriptor.Func, values []string) ([]any, error) {
	if len(values) != len(fn.Params) {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", fn.Name, len(fn.Params), len(values))
	}
	args := make([]any, len(values))
	for i, p := range fn.Params {
		v, err := convertArg(values[i], p.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", p.Name, err)
		}
		args[i] = v
	}
	return args, nil
}

// convertArg parses value as t. Options take "none" or the payload;
// results take "ok:<value>" or "err:<value>".
func convertArg(value string, t wit.Type) (any, error) {
	switch t := t.(type) {
	case wit.Bool:
		return strconv.ParseBool(value)
	case wit.U8:
		v, err := strconv.ParseUint(value, 0, 8)
		return uint8(v), err
	case wit.U16:
		v, err := strconv.ParseUint(value, 0, 16)
		return uint16(v), err
	case wit.U32:
		v, err := strconv.ParseUint(value, 0, 32)
		return uint32(v), err
	case wit.U64:
		return strconv.ParseUint(value, 0, 64)
	case wit.S8:
		v, err := strconv.ParseInt(value, 0, 8)
		return int8(v), err
	case wit.S16:
		v, err := strconv.ParseInt(value, 0, 16)
		return int16(v), err
	case wit.S32:
		v, err := strconv.ParseInt(value, 0, 32)
		return int32(v), err
	case wit.S64:
		return strconv.ParseInt(value, 0, 64)
	case wit.F32:
		v, err := strconv.ParseFloat(value, 32)
		return float32(v), err
	case wit.F64:
		return strconv.ParseFloat(value, 64)
	case wit.Char:
		r, size := utf8.DecodeRuneInString(value)
		if r == utf8.RuneError || size != len(value) {
			return nil, fmt.Errorf("%q is not a single character", value)
		}
		return r, nil
	case *wit.TypeDef:
		return convertTypeDef(value, t)
	}
	return nil, fmt.Errorf("cannot parse %s from the command line", descriptor.TypeString(t))
}

func convertTypeDef(value string, td *wit.TypeDef) (any, error) {
	switch k := td.Kind.(type) {
	case *wit.Option:
		if value == "none" {
			return nil, nil
		}
		return convertArg(value, k.Type)

	case *wit.Result:
		tag, payload, _ := strings.Cut(value, ":")
		side := k.OK
		switch tag {
		case "ok":
		case "err":
			side = k.Err
		default:
			return nil, fmt.Errorf("result %q must start with ok: or err:", value)
		}
		var v any
		if side != nil {
			var err error
			if v, err = convertArg(payload, side); err != nil {
				return nil, err
			}
		}
		return canon.Result{Value: v, IsErr: tag == "err"}, nil
	}
	return nil, fmt.Errorf("cannot parse %s from the command line", descriptor.TypeString(td))
}
