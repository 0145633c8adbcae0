package capability

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/canon"
	"github.com/wippyai/wasm-host/descriptor"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/resource"
)

// HandlerFunc implements one operation. Arguments arrive in their canon Go
// form and have already been checked against the operation's parameters.
type HandlerFunc func(ctx context.Context, args []any) (any, error)

// Operation is one host function of an imported interface.
type Operation struct {
	Result  wit.Type
	Handler HandlerFunc
	Name    string
	Params  []wit.Type
}

// Signature renders the operation's types for comparison with a declared
// import.
func (o Operation) Signature() string {
	return descriptor.FormatSignature(o.Params, o.Result)
}

// Binding is the host implementation of one imported interface.
type Binding interface {
	Operations() []Operation
}

// Set is a Binding backed by a slice.
type Set []Operation

// Operations implements Binding.
func (s Set) Operations() []Operation { return s }

// Func builds a binding with a single operation.
func Func(name string, params []wit.Type, result wit.Type, handler HandlerFunc) Binding {
	return Set{{Name: name, Params: params, Result: result, Handler: handler}}
}

// Lookup finds an operation by name.
func Lookup(b Binding, name string) (Operation, bool) {
	for _, op := range b.Operations() {
		if op.Name == name {
			return op, true
		}
	}
	return Operation{}, false
}

// Validate checks that every operation is named, unique, has a handler and
// uses only types the canonical ABI subset supports.
func Validate(b Binding) error {
	if b == nil {
		return errors.InvalidInput(errors.PhaseHost, "binding is nil")
	}
	seen := make(map[string]bool)
	for _, op := range b.Operations() {
		if op.Name == "" {
			return errors.InvalidInput(errors.PhaseHost, "operation name cannot be empty")
		}
		if seen[op.Name] {
			return errors.New(errors.PhaseHost, errors.KindInvalidInput).
				Name(op.Name).
				Detail("operation defined twice").
				Build()
		}
		seen[op.Name] = true
		if op.Handler == nil {
			return errors.New(errors.PhaseHost, errors.KindInvalidInput).
				Name(op.Name).
				Detail("operation has no handler").
				Build()
		}
		for _, p := range append(append([]wit.Type(nil), op.Params...), op.Result) {
			if _, err := canon.Flatten(p); err != nil {
				return errors.New(errors.PhaseHost, errors.KindUnsupported).
					Name(op.Name).
					Cause(err).
					Detail("signature %s", op.Signature()).
					Build()
			}
		}
	}
	return nil
}

// Invoke runs op's handler. Handler errors, panics and results of the wrong
// type all come back as KindTrapped errors; they never escape as panics.
func Invoke(ctx context.Context, op Operation, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			result = nil
			err = errors.Trapped(op.Name, "host capability panicked", cause)
		}
	}()

	result, err = op.Handler(ctx, args)
	if err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) && e.Kind == errors.KindTrapped {
			return nil, err
		}
		return nil, errors.Trapped(op.Name, "host capability failed", err)
	}
	if err := canon.Check([]string{"result"}, op.Result, result); err != nil {
		return nil, errors.Trapped(op.Name, "host capability returned the wrong type", err)
	}
	return result, nil
}

type resourcesKey struct{}

// WithResources attaches the calling instance's resource table to ctx.
func WithResources(ctx context.Context, t *resource.Table) context.Context {
	return context.WithValue(ctx, resourcesKey{}, t)
}

// Resources returns the resource table of the instance whose call reached
// the handler, or nil outside a call.
func Resources(ctx context.Context) *resource.Table {
	t, _ := ctx.Value(resourcesKey{}).(*resource.Table)
	return t
}
