// Package wasmgen assembles small core WebAssembly modules and component
// wrappers in process, so tests and examples carry no binary fixtures.
package wasmgen

import (
	"github.com/tetratelabs/wazero/api"
)

// Import is an imported function.
type Import struct {
	Module  string
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Func is a defined function. Body holds its instructions without the
// final end opcode.
type Func struct {
	Export  string
	Params  []api.ValueType
	Results []api.ValueType
	Locals  []api.ValueType
	Body    []byte
}

// Memory is a defined linear memory.
type Memory struct {
	Export string
	Min    uint32
}

// Data is an active data segment for memory 0.
type Data struct {
	Bytes  []byte
	Offset int32
}

// Custom is a custom section.
type Custom struct {
	Name string
	Data []byte
}

// Module describes a core module. Function indices count imports first.
type Module struct {
	Memory  *Memory
	Imports []Import
	Funcs   []Func
	Data    []Data
	Custom  []Custom
}

// Encode returns the binary module.
func (m *Module) Encode() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// one type per import, then one per function
	var types []byte
	for _, im := range m.Imports {
		types = append(types, funcType(im.Params, im.Results)...)
	}
	for _, f := range m.Funcs {
		types = append(types, funcType(f.Params, f.Results)...)
	}
	if n := len(m.Imports) + len(m.Funcs); n > 0 {
		out = append(out, section(0x01, encodeVec(n, types))...)
	}

	if len(m.Imports) > 0 {
		var imports []byte
		for i, im := range m.Imports {
			imports = append(imports, encodeName(im.Module)...)
			imports = append(imports, encodeName(im.Name)...)
			imports = append(imports, 0x00)
			imports = append(imports, EncodeULEB128(uint32(i))...)
		}
		out = append(out, section(0x02, encodeVec(len(m.Imports), imports))...)
	}

	if len(m.Funcs) > 0 {
		var funcs []byte
		for i := range m.Funcs {
			funcs = append(funcs, EncodeULEB128(uint32(len(m.Imports)+i))...)
		}
		out = append(out, section(0x03, encodeVec(len(m.Funcs), funcs))...)
	}

	if m.Memory != nil {
		mem := append([]byte{0x00}, EncodeULEB128(m.Memory.Min)...)
		out = append(out, section(0x05, encodeVec(1, mem))...)
	}

	var exports []byte
	exportCount := 0
	if m.Memory != nil && m.Memory.Export != "" {
		exports = append(exports, encodeName(m.Memory.Export)...)
		exports = append(exports, 0x02, 0x00)
		exportCount++
	}
	for i, f := range m.Funcs {
		if f.Export == "" {
			continue
		}
		exports = append(exports, encodeName(f.Export)...)
		exports = append(exports, 0x00)
		exports = append(exports, EncodeULEB128(uint32(len(m.Imports)+i))...)
		exportCount++
	}
	if exportCount > 0 {
		out = append(out, section(0x07, encodeVec(exportCount, exports))...)
	}

	if len(m.Funcs) > 0 {
		var code []byte
		for _, f := range m.Funcs {
			body := encodeLocals(f.Locals)
			body = append(body, f.Body...)
			body = append(body, End...)
			code = append(code, EncodeULEB128(uint32(len(body)))...)
			code = append(code, body...)
		}
		out = append(out, section(0x0a, encodeVec(len(m.Funcs), code))...)
	}

	if len(m.Data) > 0 {
		var data []byte
		for _, d := range m.Data {
			data = append(data, 0x00)
			data = append(data, I32Const(d.Offset)...)
			data = append(data, End...)
			data = append(data, encodeVec(len(d.Bytes), d.Bytes)...)
		}
		out = append(out, section(0x0b, encodeVec(len(m.Data), data))...)
	}

	for _, c := range m.Custom {
		out = append(out, section(0x00, append(encodeName(c.Name), c.Data...))...)
	}
	return out
}

func funcType(params, results []api.ValueType) []byte {
	out := []byte{0x60}
	out = append(out, valueTypes(params)...)
	return append(out, valueTypes(results)...)
}

func encodeLocals(locals []api.ValueType) []byte {
	out := EncodeULEB128(uint32(len(locals)))
	for _, t := range locals {
		out = append(out, 0x01, t)
	}
	return out
}

// ComponentHeader is the preamble of a component binary.
var ComponentHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x0d, 0x00, 0x01, 0x00}

// Component wraps core modules in a component binary, one core module
// section each.
func Component(cores ...[]byte) []byte {
	out := append([]byte(nil), ComponentHeader...)
	for _, core := range cores {
		out = append(out, section(0x01, core)...)
	}
	return out
}
