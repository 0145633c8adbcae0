package resource

// Handle is an opaque reference to a resource in a table.
// Handle 0 is reserved and always invalid.
//
// The low 24 bits hold the slot index plus one, the high 8 bits the slot
// generation, so a handle to a dropped resource stays invalid after its
// slot is reused.
type Handle uint32

const (
	indexBits = 24
	indexMask = 1<<indexBits - 1
	// MaxLive is the largest number of resources a table holds at once.
	MaxLive = indexMask
)

func makeHandle(idx int, gen uint8) Handle {
	return Handle(uint32(gen)<<indexBits | uint32(idx+1))
}

func (h Handle) index() int { return int(h&indexMask) - 1 }
func (h Handle) gen() uint8 { return uint8(h >> indexBits) }

// EventType identifies a resource lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	}
	return "unknown"
}

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	TypeID uint32
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Dropper is optionally implemented by resource values that need cleanup.
type Dropper interface {
	Drop()
}

// Stats counts table activity since creation.
type Stats struct {
	Inserted uint64
	Dropped  uint64
	Live     int
}
