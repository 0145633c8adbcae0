// Package bootstrap runs the host pipeline in two phases.
//
// Phase one builds an engine, loads the guest artifact and creates its
// execution context. Phase two registers capability bindings, instantiates
// the guest and calls one export. The phases may run on different
// goroutines: phase one hands its Bundle to phase two through a one-shot
// Handoff and keeps no reference to it, so the execution context always has
// exactly one owner.
//
//	result, err := bootstrap.Run(ctx, bootstrap.Pipeline{
//	    Source:    bootstrap.Source{Path: "convert.wasm", WIT: witText},
//	    Bindings:  []bootstrap.NamedBinding{{Name: "host", Binding: multiply}},
//	    Operation: "convert-celsius-to-fahrenheit",
//	    Args:      []any{float32(23.4)},
//	    Mode:      bootstrap.ModePipelined,
//	})
//
// ModeSingle and ModePipelined return the same result and the same errors.
// The first failure of either phase is the pipeline's error.
package bootstrap
