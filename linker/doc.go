// Package linker resolves guest imports against host bindings and produces
// callable instances.
//
// # Main Types
//
//   - Linker: holds capability bindings keyed by interface name
//   - Plan: the ordered resolution of every import of one artifact
//   - Instance: a linked guest with typed Call
//
// # Thread Safety
//
// Linker and Plan are safe for concurrent use. Instance calls are
// serialised by the execution context; the guest never sees two calls at
// once.
//
// # Import Resolution Order
//
//  1. Descriptor imports, interface by interface, function by function
//  2. Core imports the descriptor does not declare, in module order
//     (wasi_snapshot_preview1 resolves to the runtime effects)
//  3. The first import that fails stops resolution
//
// A binding serves an interface when it was registered under the full path
// ("example:convert/host"), the short name ("host"), or a semver-compatible
// path ("wasi:cli/environment@0.2.3" serves an import of @0.2.0).
//
// # Example
//
//	l := linker.New(eng)
//	_ = l.Register("host", capability.Func("multiply",
//	    []wit.Type{wit.F32{}, wit.F32{}}, wit.F32{}, multiply))
//	inst, err := l.Instantiate(ctx, art, sctx)
//	if err != nil {
//	    return err
//	}
//	defer inst.Close(ctx)
//	result, err := inst.Call(ctx, "convert-celsius-to-fahrenheit", float32(23.4))
//
// Each instance gets its own wazero runtime that shares compiled code with
// the engine, so host module names never collide between instances.
package linker
