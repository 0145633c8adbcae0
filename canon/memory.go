package canon

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	wasmhost "github.com/wippyai/wasm-host"
)

// GuestMemory adapts wazero memory to wasmhost.Memory.
type GuestMemory struct {
	mem api.Memory
}

// WrapMemory returns a bounds-checked view of mem. A nil mem yields a view
// whose every access fails.
func WrapMemory(mem api.Memory) *GuestMemory {
	return &GuestMemory{mem: mem}
}

func (m *GuestMemory) oob(op string, offset uint32, n int) error {
	if m.mem == nil {
		return fmt.Errorf("%s at %d: guest exports no memory", op, offset)
	}
	return fmt.Errorf("%s out of bounds: offset=%d, length=%d", op, offset, n)
}

func (m *GuestMemory) ReadU8(offset uint32) (uint8, error) {
	if m.mem == nil {
		return 0, m.oob("read", offset, 1)
	}
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, m.oob("read", offset, 1)
	}
	return v, nil
}

func (m *GuestMemory) ReadU16(offset uint32) (uint16, error) {
	if m.mem == nil {
		return 0, m.oob("read", offset, 2)
	}
	v, ok := m.mem.ReadUint16Le(offset)
	if !ok {
		return 0, m.oob("read", offset, 2)
	}
	return v, nil
}

func (m *GuestMemory) ReadU32(offset uint32) (uint32, error) {
	if m.mem == nil {
		return 0, m.oob("read", offset, 4)
	}
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, m.oob("read", offset, 4)
	}
	return v, nil
}

func (m *GuestMemory) ReadU64(offset uint32) (uint64, error) {
	if m.mem == nil {
		return 0, m.oob("read", offset, 8)
	}
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, m.oob("read", offset, 8)
	}
	return v, nil
}

func (m *GuestMemory) WriteU8(offset uint32, value uint8) error {
	if m.mem == nil || !m.mem.WriteByte(offset, value) {
		return m.oob("write", offset, 1)
	}
	return nil
}

func (m *GuestMemory) WriteU16(offset uint32, value uint16) error {
	if m.mem == nil || !m.mem.WriteUint16Le(offset, value) {
		return m.oob("write", offset, 2)
	}
	return nil
}

func (m *GuestMemory) WriteU32(offset uint32, value uint32) error {
	if m.mem == nil || !m.mem.WriteUint32Le(offset, value) {
		return m.oob("write", offset, 4)
	}
	return nil
}

func (m *GuestMemory) WriteU64(offset uint32, value uint64) error {
	if m.mem == nil || !m.mem.WriteUint64Le(offset, value) {
		return m.oob("write", offset, 8)
	}
	return nil
}

// Size returns the memory size in bytes.
func (m *GuestMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

var (
	_ wasmhost.Memory      = (*GuestMemory)(nil)
	_ wasmhost.MemorySizer = (*GuestMemory)(nil)
)
