// Package guests holds small guest modules assembled with wasmgen, each
// paired with its WIT descriptor.
package guests

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-host/internal/wasmgen"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
	f32 = api.ValueTypeF32
)

const wasiModule = "wasi_snapshot_preview1"

// Guest is a core module and the descriptor it was built against.
type Guest struct {
	Name string
	WIT  string
	Wasm []byte
}

// ConvertWIT declares the Celsius to Fahrenheit converter.
const ConvertWIT = `package example:convert;

interface host {
	multiply: func(a: f32, b: f32) -> f32;
}

world convert {
	import host;
	export convert-celsius-to-fahrenheit: func(x: f32) -> f32;
}
`

func convertModule() *wasmgen.Module {
	return &wasmgen.Module{
		Imports: []wasmgen.Import{
			{Module: "example:convert/host", Name: "multiply", Params: []api.ValueType{f32, f32}, Results: []api.ValueType{f32}},
		},
		Funcs: []wasmgen.Func{{
			Export:  "convert-celsius-to-fahrenheit",
			Params:  []api.ValueType{f32},
			Results: []api.ValueType{f32},
			Body: wasmgen.Code(
				wasmgen.LocalGet(0),
				wasmgen.F32Const(1.8),
				wasmgen.Call(0),
				wasmgen.F32Const(32),
				wasmgen.F32Add,
			),
		}},
	}
}

// Convert computes x * 1.8 + 32 with the multiplication done by the host.
func Convert() Guest {
	return Guest{Name: "convert", WIT: ConvertWIT, Wasm: convertModule().Encode()}
}

// ConvertComponent is Convert wrapped in a component binary with the
// descriptor embedded as a wit-world custom section.
func ConvertComponent() Guest {
	m := convertModule()
	m.Custom = append(m.Custom, wasmgen.Custom{Name: "wit-world", Data: []byte(ConvertWIT)})
	return Guest{Name: "convert", Wasm: wasmgen.Component(m.Encode())}
}

// CounterWIT declares a guest that opens and closes host resources.
const CounterWIT = `interface counter {
	open: func(id: u32) -> u32;
	value: func(handle: u32) -> u32;
	close: func(handle: u32);
}

world counter {
	import counter;
	export open: func(id: u32) -> u32;
	export value: func(handle: u32) -> u32;
	export close: func(handle: u32);
}
`

// Counter forwards each export to the matching counter import.
func Counter() Guest {
	m := &wasmgen.Module{
		Imports: []wasmgen.Import{
			{Module: "counter", Name: "open", Params: []api.ValueType{i32}, Results: []api.ValueType{i32}},
			{Module: "counter", Name: "value", Params: []api.ValueType{i32}, Results: []api.ValueType{i32}},
			{Module: "counter", Name: "close", Params: []api.ValueType{i32}},
		},
		Funcs: []wasmgen.Func{
			{Export: "open", Params: []api.ValueType{i32}, Results: []api.ValueType{i32}, Body: wasmgen.Code(wasmgen.LocalGet(0), wasmgen.Call(0))},
			{Export: "value", Params: []api.ValueType{i32}, Results: []api.ValueType{i32}, Body: wasmgen.Code(wasmgen.LocalGet(0), wasmgen.Call(1))},
			{Export: "close", Params: []api.ValueType{i32}, Body: wasmgen.Code(wasmgen.LocalGet(0), wasmgen.Call(2))},
		},
	}
	return Guest{Name: "counter", WIT: CounterWIT, Wasm: m.Encode()}
}

// BoomWIT declares a guest with a trapping export.
const BoomWIT = `world boom {
	export boom: func();
	export answer: func() -> s32;
}
`

// Boom traps in boom and returns 42 from answer.
func Boom() Guest {
	m := &wasmgen.Module{
		Funcs: []wasmgen.Func{
			{Export: "boom", Body: wasmgen.Unreachable},
			{Export: "answer", Results: []api.ValueType{i32}, Body: wasmgen.I32Const(42)},
		},
	}
	return Guest{Name: "boom", WIT: BoomWIT, Wasm: m.Encode()}
}

// InitTrapWIT declares a guest whose initialiser traps.
const InitTrapWIT = `world init-trap {
	export answer: func() -> s32;
}
`

// InitTrap traps in _initialize, so it never finishes instantiating.
func InitTrap() Guest {
	m := &wasmgen.Module{
		Funcs: []wasmgen.Func{
			{Export: "_initialize", Body: wasmgen.Unreachable},
			{Export: "answer", Results: []api.ValueType{i32}, Body: wasmgen.I32Const(42)},
		},
	}
	return Guest{Name: "init-trap", WIT: InitTrapWIT, Wasm: m.Encode()}
}

// DivideWIT declares a fallible export.
const DivideWIT = `world divide {
	export divide: func(a: s32, b: s32) -> result<s32, u8>;
}
`

// DivideByZero is the err payload divide returns for b == 0.
const DivideByZero = uint8(7)

// DivideRetArea is where divide writes its result; cabi_post_divide sets
// the byte at DividePostFlag.
const (
	DivideRetArea  = 16
	DividePostFlag = 0
)

// Divide returns result<s32, u8> through a return pointer.
func Divide() Guest {
	m := &wasmgen.Module{
		Memory: &wasmgen.Memory{Min: 1, Export: "memory"},
		Funcs: []wasmgen.Func{
			{
				Export:  "divide",
				Params:  []api.ValueType{i32, i32},
				Results: []api.ValueType{i32},
				Body: wasmgen.Code(
					wasmgen.LocalGet(1),
					wasmgen.I32Eqz,
					wasmgen.If,
					wasmgen.I32Const(DivideRetArea), wasmgen.I32Const(1), wasmgen.I32Store8(0),
					wasmgen.I32Const(DivideRetArea), wasmgen.I32Const(int32(DivideByZero)), wasmgen.I32Store8(4),
					wasmgen.Else,
					wasmgen.I32Const(DivideRetArea), wasmgen.I32Const(0), wasmgen.I32Store8(0),
					wasmgen.I32Const(DivideRetArea), wasmgen.LocalGet(0), wasmgen.LocalGet(1), wasmgen.I32DivS, wasmgen.I32Store(4),
					wasmgen.End,
					wasmgen.I32Const(DivideRetArea),
				),
			},
			{
				Export: "cabi_post_divide",
				Params: []api.ValueType{i32},
				Body: wasmgen.Code(
					wasmgen.I32Const(DividePostFlag), wasmgen.I32Const(1), wasmgen.I32Store8(0),
				),
			},
		},
	}
	return Guest{Name: "divide", WIT: DivideWIT, Wasm: m.Encode()}
}

// EnvCountWIT declares a guest that reads its environment size.
const EnvCountWIT = `world env-count {
	export env-count: func() -> u32;
}
`

// EnvCount returns the number of environment variables WASI reports.
func EnvCount() Guest {
	m := &wasmgen.Module{
		Imports: []wasmgen.Import{
			{Module: wasiModule, Name: "environ_sizes_get", Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}},
		},
		Memory: &wasmgen.Memory{Min: 1, Export: "memory"},
		Funcs: []wasmgen.Func{{
			Export:  "env-count",
			Results: []api.ValueType{i32},
			Body: wasmgen.Code(
				wasmgen.I32Const(0), wasmgen.I32Const(4), wasmgen.Call(0), wasmgen.Drop,
				wasmgen.I32Const(0), wasmgen.I32Load(0),
			),
		}},
	}
	return Guest{Name: "env-count", WIT: EnvCountWIT, Wasm: m.Encode()}
}

// HelloWIT declares a guest that prints.
const HelloWIT = `world hello {
	export greet: func();
}
`

// HelloOutput is what Hello writes to stdout.
const HelloOutput = "hello from the guest\n"

// Hello writes HelloOutput to stdout with fd_write.
func Hello() Guest {
	const text = 16
	iov := []byte{text, 0, 0, 0, byte(len(HelloOutput)), 0, 0, 0}
	m := &wasmgen.Module{
		Imports: []wasmgen.Import{
			{Module: wasiModule, Name: "fd_write", Params: []api.ValueType{i32, i32, i32, i32}, Results: []api.ValueType{i32}},
		},
		Memory: &wasmgen.Memory{Min: 1, Export: "memory"},
		Data: []wasmgen.Data{
			{Offset: 0, Bytes: iov},
			{Offset: text, Bytes: []byte(HelloOutput)},
		},
		Funcs: []wasmgen.Func{{
			Export: "greet",
			Body: wasmgen.Code(
				wasmgen.I32Const(1), wasmgen.I32Const(0), wasmgen.I32Const(1), wasmgen.I32Const(8),
				wasmgen.Call(0), wasmgen.Drop,
			),
		}},
	}
	return Guest{Name: "hello", WIT: HelloWIT, Wasm: m.Encode()}
}

// ClockWIT declares a guest that reads the wall clock.
const ClockWIT = `world clock {
	export now: func() -> u64;
}
`

// Clock returns the realtime clock in nanoseconds.
func Clock() Guest {
	m := &wasmgen.Module{
		Imports: []wasmgen.Import{
			{Module: wasiModule, Name: "clock_time_get", Params: []api.ValueType{i32, i64, i32}, Results: []api.ValueType{i32}},
		},
		Memory: &wasmgen.Memory{Min: 1, Export: "memory"},
		Funcs: []wasmgen.Func{{
			Export:  "now",
			Results: []api.ValueType{i64},
			Body: wasmgen.Code(
				wasmgen.I32Const(0), wasmgen.I64Const(1), wasmgen.I32Const(0), wasmgen.Call(0), wasmgen.Drop,
				wasmgen.I32Const(0), wasmgen.I64Load(0),
			),
		}},
	}
	return Guest{Name: "clock", WIT: ClockWIT, Wasm: m.Encode()}
}

// OrderedWIT imports two interfaces, beta before alpha.
const OrderedWIT = `interface alpha {
	a: func();
}

interface beta {
	b: func();
}

world ordered {
	import beta;
	import alpha;
	export run: func();
}
`

// Ordered calls beta.b then alpha.a.
func Ordered() Guest {
	m := &wasmgen.Module{
		Imports: []wasmgen.Import{
			{Module: "alpha", Name: "a"},
			{Module: "beta", Name: "b"},
		},
		Funcs: []wasmgen.Func{{
			Export: "run",
			Body:   wasmgen.Code(wasmgen.Call(1), wasmgen.Call(0)),
		}},
	}
	return Guest{Name: "ordered", WIT: OrderedWIT, Wasm: m.Encode()}
}

// Misdeclared imports host.multiply with integer types while the descriptor
// declares floats.
func Misdeclared() Guest {
	m := &wasmgen.Module{
		Imports: []wasmgen.Import{
			{Module: "example:convert/host", Name: "multiply", Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}},
		},
		Funcs: []wasmgen.Func{{
			Export:  "convert-celsius-to-fahrenheit",
			Params:  []api.ValueType{f32},
			Results: []api.ValueType{f32},
			Body:    wasmgen.Code(wasmgen.LocalGet(0)),
		}},
	}
	return Guest{Name: "misdeclared", WIT: ConvertWIT, Wasm: m.Encode()}
}
