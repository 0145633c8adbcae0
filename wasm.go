package wasmhost

// Memory is the bounds-checked view of guest linear memory used when a
// value does not fit the flat calling convention.
type Memory interface {
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of guest linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}
