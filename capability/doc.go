// Package capability defines host bindings for a guest's imported
// interfaces.
//
// A Binding is a set of Operations. Each operation declares its WIT
// parameter and result types and a HandlerFunc that receives checked
// arguments in their canon Go form:
//
//	b := capability.Func("multiply",
//		[]wit.Type{wit.F32{}, wit.F32{}}, wit.F32{},
//		func(ctx context.Context, args []any) (any, error) {
//			return args[0].(float32) * args[1].(float32), nil
//		})
//
// Plain Go functions and struct hosts are adapted by reflection:
//
//	set, _ := capability.FromFunc("multiply", func(a, b float32) float32 { return a * b })
//
//	type Counter struct{}
//	func (Counter) Namespace() string                  { return "counter" }
//	func (Counter) Open(ctx context.Context, id uint32) uint32 { ... }
//
//	b, _ := capability.FromHost(Counter{}) // operation "open"
//
// Handlers run synchronously on the calling goroutine. A handler error or
// panic is reported to the caller of the guest export as a trap; it never
// takes down the process. Handlers reach the calling instance's resource
// table through Resources(ctx).
package capability
