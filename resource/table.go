package resource

import (
	"math"

	"github.com/wippyai/wasm-host/errors"
)

type slot struct {
	value  any
	typeID uint32
	gen    uint8
	live   bool
}

// Table is an arena of host values addressed by generation-checked handles.
//
// A Table is not safe for concurrent use. It belongs to one execution
// context, which serialises every call that can reach it.
type Table struct {
	slots     []slot
	free      []int
	observers []Observer
	stats     Stats
	closed    bool
}

// New creates an empty table.
func New() *Table {
	return &Table{
		slots: make([]slot, 0, 16),
	}
}

// Insert adds a value and returns its handle.
func (t *Table) Insert(typeID uint32, value any) (Handle, error) {
	if t.closed {
		return 0, errors.Closed(errors.PhaseResource, "resource table")
	}

	var idx int
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		if len(t.slots) >= MaxLive {
			return 0, errors.InvalidInput(errors.PhaseResource, "resource table is full")
		}
		t.slots = append(t.slots, slot{gen: 1})
		idx = len(t.slots) - 1
	}

	s := &t.slots[idx]
	s.value = value
	s.typeID = typeID
	s.live = true

	h := makeHandle(idx, s.gen)
	t.stats.Inserted++
	t.stats.Live++
	t.notify(Event{Type: EventCreated, Handle: h, TypeID: typeID, Value: value})
	return h, nil
}

func (t *Table) lookup(h Handle) (*slot, error) {
	idx := h.index()
	if h == 0 || idx < 0 || idx >= len(t.slots) {
		return nil, errors.StaleHandle(uint32(h))
	}
	s := &t.slots[idx]
	if !s.live || s.gen != h.gen() {
		return nil, errors.StaleHandle(uint32(h))
	}
	return s, nil
}

// Get retrieves a value by handle.
func (t *Table) Get(h Handle) (any, error) {
	s, err := t.lookup(h)
	if err != nil {
		return nil, err
	}
	return s.value, nil
}

// GetTyped retrieves a value only if it was inserted with typeID.
func (t *Table) GetTyped(h Handle, typeID uint32) (any, error) {
	s, err := t.lookup(h)
	if err != nil {
		return nil, err
	}
	if s.typeID != typeID {
		return nil, errors.New(errors.PhaseResource, errors.KindTypeMismatch).
			Value(uint32(h)).
			Detail("handle %#x has type %d, want %d", uint32(h), s.typeID, typeID).
			Build()
	}
	return s.value, nil
}

// Drop removes a resource, runs its Dropper and returns the value.
// The handle is invalid afterwards, even once its slot is reused.
// A slot is reused at most 254 times.
func (t *Table) Drop(h Handle) (any, error) {
	s, err := t.lookup(h)
	if err != nil {
		return nil, err
	}

	value, typeID := s.value, s.typeID
	s.value = nil
	s.live = false
	// a slot whose generation is exhausted is retired, never reissued
	if s.gen < math.MaxUint8 {
		s.gen++
		t.free = append(t.free, h.index())
	}
	t.stats.Dropped++
	t.stats.Live--

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{Type: EventDropped, Handle: h, TypeID: typeID, Value: value})
	return value, nil
}

// Len returns the number of live resources.
func (t *Table) Len() int {
	return t.stats.Live
}

// Stats returns insert and drop counters.
func (t *Table) Stats() Stats {
	return t.stats
}

// Each calls fn for every live resource in slot order until fn returns false.
func (t *Table) Each(fn func(h Handle, typeID uint32, value any) bool) {
	for i := range t.slots {
		s := &t.slots[i]
		if !s.live {
			continue
		}
		if !fn(makeHandle(i, s.gen), s.typeID, s.value) {
			return
		}
	}
}

// Clear drops every live resource and returns the handles it dropped.
func (t *Table) Clear() []Handle {
	var handles []Handle
	t.Each(func(h Handle, _ uint32, _ any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		_, _ = t.Drop(h)
	}
	return handles
}

// Close drops leftover resources and rejects further inserts. It returns
// the handles that were still live.
func (t *Table) Close() []Handle {
	if t.closed {
		return nil
	}
	leaked := t.Clear()
	t.closed = true
	return leaked
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table) notify(e Event) {
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
