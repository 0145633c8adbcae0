package descriptor

import (
	"strings"

	"go.bytecodealliance.org/wit"
)

// RootModule is the core module name used for functions imported directly
// by a world rather than through an interface.
const RootModule = "$root"

// Param is a named, typed function parameter.
type Param struct {
	Type wit.Type
	Name string
}

// Func is an operation signature. Result is nil for functions without a result.
type Func struct {
	Result wit.Type
	Name   string
	Params []Param
}

// ParamTypes returns the parameter types in declaration order.
func (f *Func) ParamTypes() []wit.Type {
	types := make([]wit.Type, len(f.Params))
	for i, p := range f.Params {
		types[i] = p.Type
	}
	return types
}

// Signature renders the types of f without names. Two functions with equal
// signatures are interchangeable at link and call time.
func (f *Func) Signature() string {
	return FormatSignature(f.ParamTypes(), f.Result)
}

// String renders f the way it is written in WIT.
func (f *Func) String() string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteString(": func(")
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteString(": ")
		b.WriteString(TypeString(p.Type))
	}
	b.WriteByte(')')
	if f.Result != nil {
		b.WriteString(" -> ")
		b.WriteString(TypeString(f.Result))
	}
	return b.String()
}

// FormatSignature renders an anonymous function type.
func FormatSignature(params []wit.Type, result wit.Type) string {
	var b strings.Builder
	b.WriteString("func(")
	for i, p := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(TypeString(p))
	}
	b.WriteByte(')')
	if result != nil {
		b.WriteString(" -> ")
		b.WriteString(TypeString(result))
	}
	return b.String()
}

// Interface is a named group of functions.
type Interface struct {
	// Name is the interface name as declared ("host").
	Name string
	// Module is the core module name the guest imports it from:
	// "ns:pkg/host" when the descriptor declares a package, otherwise Name.
	Module string
	Funcs  []*Func
}

// Func looks up a function by name.
func (i *Interface) Func(name string) *Func {
	for _, f := range i.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Export is an operation the guest provides.
type Export struct {
	Func *Func
	// Name is the core export name: the function name, or "iface#func"
	// for functions of an exported interface.
	Name string
	// Interface is empty for functions exported directly by the world.
	Interface string
}

// World is a parsed interface descriptor.
type World struct {
	interfaces map[string]*Interface
	Package    string
	Name       string
	// Imports in declaration order. World-level function imports are
	// collected into a single interface with Module == RootModule.
	Imports []*Interface
	// Exports in declaration order.
	Exports []*Export
}

// Interface returns a declared interface by name.
func (w *World) Interface(name string) *Interface {
	return w.interfaces[name]
}

// Import finds an imported interface by core module name or short name.
func (w *World) Import(name string) *Interface {
	for _, imp := range w.Imports {
		if imp.Module == name || imp.Name == name {
			return imp
		}
	}
	return nil
}

// Export finds an export by its core name.
func (w *World) Export(name string) *Export {
	for _, e := range w.Exports {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// ImportNames returns "module#func" for every imported function in
// declaration order.
func (w *World) ImportNames() []string {
	var names []string
	for _, imp := range w.Imports {
		for _, f := range imp.Funcs {
			names = append(names, imp.Module+"#"+f.Name)
		}
	}
	return names
}
