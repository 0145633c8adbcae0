package wasmgen

import (
	"math"

	"github.com/tetratelabs/wazero/api"
)

// EncodeULEB128 encodes an unsigned value in LEB128 format.
func EncodeULEB128(v uint32) []byte {
	var result []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		result = append(result, b)
		if v == 0 {
			break
		}
	}
	return result
}

// EncodeSLEB128 encodes a signed value in LEB128 format.
func EncodeSLEB128[T int32 | int64](v T) []byte {
	var result []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			result = append(result, b)
			break
		}
		result = append(result, b|0x80)
	}
	return result
}

func encodeName(s string) []byte {
	return append(EncodeULEB128(uint32(len(s))), s...)
}

func encodeVec(n int, items []byte) []byte {
	return append(EncodeULEB128(uint32(n)), items...)
}

func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, EncodeULEB128(uint32(len(body)))...)
	return append(out, body...)
}

func valueTypes(types []api.ValueType) []byte {
	return encodeVec(len(types), append([]byte(nil), types...))
}

// Instructions. Each returns the encoded bytes so bodies read as a list.

func LocalGet(i uint32) []byte { return append([]byte{0x20}, EncodeULEB128(i)...) }
func Call(i uint32) []byte     { return append([]byte{0x10}, EncodeULEB128(i)...) }
func I32Const(v int32) []byte  { return append([]byte{0x41}, EncodeSLEB128(v)...) }
func I64Const(v int64) []byte  { return append([]byte{0x42}, EncodeSLEB128(v)...) }

func F32Const(v float32) []byte {
	bits := math.Float32bits(v)
	return []byte{0x43, byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)}
}

func memarg(op byte, align, offset uint32) []byte {
	out := []byte{op}
	out = append(out, EncodeULEB128(align)...)
	return append(out, EncodeULEB128(offset)...)
}

func I32Load(offset uint32) []byte   { return memarg(0x28, 2, offset) }
func I64Load(offset uint32) []byte   { return memarg(0x29, 3, offset) }
func I32Store(offset uint32) []byte  { return memarg(0x36, 2, offset) }
func I32Store8(offset uint32) []byte { return memarg(0x3a, 0, offset) }

var (
	Unreachable = []byte{0x00}
	If          = []byte{0x04, 0x40}
	Else        = []byte{0x05}
	End         = []byte{0x0b}
	Drop        = []byte{0x1a}
	I32Eqz      = []byte{0x45}
	I32Add      = []byte{0x6a}
	I32DivS     = []byte{0x6d}
	F32Add      = []byte{0x92}
)

// Code concatenates instructions.
func Code(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
