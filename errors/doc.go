// Package errors provides structured error types for the wasm host.
//
// Errors are categorized by Phase (which stage failed) and Kind (error category).
// Every stage of the bootstrap pipeline returns one of three families:
//
//	load  - KindMalformed, KindUnsupported, KindIO
//	link  - KindUnsatisfiedImport, KindSignatureMismatch, KindDuplicateBinding
//	call  - KindTypeMismatch, KindTrapped, KindGuestError
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCall, errors.KindTypeMismatch).
//		Name("convert").
//		Path("arg0").
//		GoType("string").
//		WitType("f32").
//		Build()
//
// Or the convenience constructors:
//
//	err := errors.UnsatisfiedImport("host#multiply")
//
// Compare with the sentinels through the standard library:
//
//	if stderrors.Is(err, errors.ErrUnsatisfiedImport) { ... }
//
// Name carries the offending import, export or binding so callers can
// diagnose a failure without inspecting internals.
package errors
