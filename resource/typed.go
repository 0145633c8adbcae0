package resource

import (
	"fmt"

	"github.com/wippyai/wasm-host/errors"
)

// Typed is a view of a Table restricted to one resource type.
type Typed[T any] struct {
	table  *Table
	typeID uint32
}

// NewTyped binds typeID to values of type T in table.
func NewTyped[T any](table *Table, typeID uint32) *Typed[T] {
	return &Typed[T]{table: table, typeID: typeID}
}

// Insert adds a value and returns its handle.
func (t *Typed[T]) Insert(value T) (Handle, error) {
	return t.table.Insert(t.typeID, value)
}

// Get retrieves a value by handle.
func (t *Typed[T]) Get(h Handle) (T, error) {
	var zero T
	v, err := t.table.GetTyped(h, t.typeID)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, errors.New(errors.PhaseResource, errors.KindTypeMismatch).
			GoType(fmt.Sprintf("%T", v)).
			Detail("handle %#x", uint32(h)).
			Build()
	}
	return typed, nil
}

// Drop removes the resource and returns its value.
func (t *Typed[T]) Drop(h Handle) (T, error) {
	var zero T
	if _, err := t.table.GetTyped(h, t.typeID); err != nil {
		return zero, err
	}
	v, err := t.table.Drop(h)
	if err != nil {
		return zero, err
	}
	typed, _ := v.(T)
	return typed, nil
}

// Len returns the number of live resources of this type.
func (t *Typed[T]) Len() int {
	n := 0
	t.table.Each(func(_ Handle, typeID uint32, _ any) bool {
		if typeID == t.typeID {
			n++
		}
		return true
	})
	return n
}
