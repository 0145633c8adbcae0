package main

import (
	"context"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/bootstrap"
	"github.com/wippyai/wasm-host/capability"
)

// builtins are the host interfaces the runner always offers. A guest that
// does not import them is unaffected.
func builtins() []bootstrap.NamedBinding {
	return []bootstrap.NamedBinding{
		{Name: "host", Binding: capability.Func("multiply", []wit.Type{wit.F32{}, wit.F32{}}, wit.F32{},
			func(_ context.Context, args []any) (any, error) {
				return args[0].(float32) * args[1].(float32), nil
			})},
	}
}
