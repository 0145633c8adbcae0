package engine

import (
	"bytes"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/wippyai/wasm-host/errors"
)

const (
	sectionCoreModule = 1
	// DescriptorSection is the custom section a core module may carry its
	// WIT descriptor in.
	DescriptorSection = "wit-world"
)

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// IsComponent reports whether data starts with a component preamble.
// Core modules carry version 1; components use a higher version with a
// non-zero layer.
func IsComponent(data []byte) bool {
	if len(data) < 8 || !bytes.Equal(data[:4], wasmMagic) {
		return false
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	return version > 1
}

// isWasm reports whether data starts with the wasm magic number.
func isWasm(data []byte) bool {
	return len(data) >= 8 && bytes.Equal(data[:4], wasmMagic)
}

// extractCore returns the single core module embedded in a component.
// Components that instantiate several core modules need the full component
// linker and are not supported.
func extractCore(data []byte) ([]byte, error) {
	r := bytes.NewReader(data[8:])
	var core []byte
	modules := 0

	for {
		id, err := r.ReadByte()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Malformed("read section id", err)
		}
		size, err := readLEB128(r)
		if err != nil {
			return nil, errors.Malformed("read section size", err)
		}
		if int64(size) > int64(r.Len()) {
			return nil, errors.Malformed(fmt.Sprintf("section %d size %d exceeds component size", id, size), nil)
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, errors.Malformed("read section data", err)
		}
		if id == sectionCoreModule {
			modules++
			core = body
		}
	}

	switch {
	case modules == 0:
		return nil, errors.Malformed("component has no core modules", nil)
	case modules > 1:
		return nil, errors.Unsupported(errors.PhaseLoad, fmt.Sprintf("component with %d core modules", modules))
	}
	return core, nil
}

func readLEB128(r io.ByteReader) (uint32, error) {
	var result uint32
	var shift uint
	for i := 0; i < 5; i++ { // Max 5 bytes for uint32
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return 0, fmt.Errorf("LEB128 encoding exceeded maximum length")
}
