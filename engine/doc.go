// Package engine loads and validates guest artifacts.
//
// An Engine wraps a wazero compilation cache and a validating runtime.
// LoadArtifact accepts a core module, or a component binary carrying a single
// core module, together with the WIT descriptor the guest was built against:
//
//	eng, err := engine.New(ctx, engine.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer eng.Close(ctx)
//
//	art, err := eng.LoadArtifact(ctx, wasmBytes, witText)
//
// When witText is empty the descriptor is read from a "wit-world" custom
// section of the core module.
//
// # Validation
//
// Loading checks that every declared export is defined by the module with
// the core signature the canonical ABI assigns to it:
//
//	WIT Type        Core Representation
//	───────────────────────────────────
//	bool, s8-u32    i32
//	char            i32
//	s64, u64        i64
//	f32             f32
//	f64             f64
//	option<T>       i32 discriminant + flat(T)
//	result<T, E>    i32 discriminant + join(flat(T), flat(E))
//
// Results wider than one core value are returned through a pointer into
// guest memory. Imports are checked by the linker, which knows the bindings.
//
// # Errors
//
// Failures are *errors.Error values in PhaseLoad: KindMalformed for bytes
// that are not wasm or do not match their descriptor, KindUnsupported for
// components while Config.ComponentModel is off or features disabled by
// Config.Strict, and KindIO for unreadable files.
//
// # Caching
//
// Artifacts are keyed by the SHA-256 of their bytes and descriptor. Reads
// take a shared lock; concurrent first loads of the same artifact compile it
// once. Compiled code lives in a wazero.CompilationCache that instance
// runtimes reuse through RuntimeConfig.
//
// # Thread Safety
//
// Engine and Artifact are safe for concurrent use.
package engine
