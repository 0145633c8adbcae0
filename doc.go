// Package wasmhost is a minimal embedding host for sandboxed, typed
// WebAssembly guests.
//
// A guest is an opaque compiled artifact plus a WIT interface descriptor that
// lists the capabilities it imports and the operations it exports. The host
// loads the artifact, builds an isolated execution context for it, binds the
// imported capabilities, instantiates it and calls one export with
// type-checked arguments.
//
// # Architecture Overview
//
//	wasmhost/            Root package with the Memory interface shared by canon
//	├── engine/          Engine (wazero config + compilation cache) and Artifact loading
//	├── descriptor/      WIT world parser and interface signatures
//	├── canon/           Canonical ABI subset: flattening, checks, lift/lower
//	├── sandbox/         Execution context: effect view + resource table
//	├── resource/        Generation-checked handle table
//	├── capability/      Host capability bindings
//	├── linker/          Registration, link plans, instances and calls
//	├── bootstrap/       Two-phase pipeline with one-shot ownership handoff
//	├── errors/          Structured load/link/call errors
//	└── cmd/run/         Command line runner
//
// # Quick Start
//
//	eng, _ := engine.New(ctx, engine.DefaultConfig())
//	defer eng.Close(ctx)
//
//	art, err := eng.LoadArtifact(ctx, wasmBytes, witText)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sctx, _ := sandbox.New(sandbox.Config{})
//	defer sctx.Close()
//
//	l := linker.New(eng)
//	_ = l.Register("host", capability.Func("multiply",
//	    []wit.Type{wit.F32{}, wit.F32{}}, wit.F32{},
//	    func(ctx context.Context, args []any) (any, error) {
//	        return args[0].(float32) * args[1].(float32), nil
//	    }))
//
//	inst, err := l.Instantiate(ctx, art, sctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	out, err := inst.Call(ctx, "convert-celsius-to-fahrenheit", float32(23.4))
//
// The same steps split across two goroutines are available as
// bootstrap.Run with bootstrap.ModePipelined.
package wasmhost
