package guests

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/capability"
	"github.com/wippyai/wasm-host/resource"
)

// Multiply is the "host" binding the convert guest imports.
func Multiply() capability.Binding {
	return capability.Func("multiply", []wit.Type{wit.F32{}, wit.F32{}}, wit.F32{},
		func(_ context.Context, args []any) (any, error) {
			return args[0].(float32) * args[1].(float32), nil
		})
}

// CounterType is the resource type id the counter binding uses.
const CounterType = 1

// Counters implements the counter interface on top of the calling
// instance's resource table. Each open inserts a handle, each close drops one.
type Counters struct {
	Opened atomic.Int32
	Closed atomic.Int32
}

func (c *Counters) table(ctx context.Context) (*resource.Table, error) {
	t := capability.Resources(ctx)
	if t == nil {
		return nil, fmt.Errorf("no resource table in context")
	}
	return t, nil
}

// Operations implements capability.Binding.
func (c *Counters) Operations() []capability.Operation {
	u32 := wit.U32{}
	return capability.Set{
		{
			Name:   "open",
			Params: []wit.Type{u32},
			Result: u32,
			Handler: func(ctx context.Context, args []any) (any, error) {
				t, err := c.table(ctx)
				if err != nil {
					return nil, err
				}
				h, err := t.Insert(CounterType, args[0].(uint32))
				if err != nil {
					return nil, err
				}
				c.Opened.Add(1)
				return uint32(h), nil
			},
		},
		{
			Name:   "value",
			Params: []wit.Type{u32},
			Result: u32,
			Handler: func(ctx context.Context, args []any) (any, error) {
				t, err := c.table(ctx)
				if err != nil {
					return nil, err
				}
				v, err := t.GetTyped(resource.Handle(args[0].(uint32)), CounterType)
				if err != nil {
					return nil, err
				}
				return v.(uint32), nil
			},
		},
		{
			Name:   "close",
			Params: []wit.Type{u32},
			Handler: func(ctx context.Context, args []any) (any, error) {
				t, err := c.table(ctx)
				if err != nil {
					return nil, err
				}
				if _, err := t.Drop(resource.Handle(args[0].(uint32))); err != nil {
					return nil, err
				}
				c.Closed.Add(1)
				return nil, nil
			},
		},
	}
}

// Noop binds each named operation, which takes and returns nothing, to a
// handler that does nothing.
func Noop(names ...string) capability.Binding {
	set := make(capability.Set, 0, len(names))
	for _, name := range names {
		set = append(set, capability.Operation{
			Name:    name,
			Handler: func(context.Context, []any) (any, error) { return nil, nil },
		})
	}
	return set
}
