package canon

import (
	"go.bytecodealliance.org/wit"
)

// Info is the in-memory size and alignment of a type.
type Info struct {
	Size  uint32
	Align uint32
	// PayloadOffset is the offset of a variant's payload after its
	// discriminant; zero for other types.
	PayloadOffset uint32
}

// Layout returns the memory layout of t. Types outside the subset have
// size 0 and alignment 1; Flatten rejects them before they get here.
func Layout(t wit.Type) Info {
	switch v := t.(type) {
	case wit.Bool, wit.U8, wit.S8:
		return Info{Size: 1, Align: 1}
	case wit.U16, wit.S16:
		return Info{Size: 2, Align: 2}
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return Info{Size: 4, Align: 4}
	case wit.U64, wit.S64, wit.F64:
		return Info{Size: 8, Align: 8}
	case *wit.TypeDef:
		switch k := v.Kind.(type) {
		case *wit.Option:
			return variantLayout(nil, k.Type)
		case *wit.Result:
			return variantLayout(k.OK, k.Err)
		}
	}
	return Info{Size: 0, Align: 1}
}

// variantLayout places a one-byte discriminant before the widest case.
func variantLayout(cases ...wit.Type) Info {
	maxSize, maxAlign := uint32(0), uint32(1)
	for _, c := range cases {
		if c == nil {
			continue
		}
		info := Layout(c)
		maxSize = max(maxSize, info.Size)
		maxAlign = max(maxAlign, info.Align)
	}
	payload := alignTo(1, maxAlign)
	return Info{
		Size:          alignTo(payload+maxSize, maxAlign),
		Align:         maxAlign,
		PayloadOffset: payload,
	}
}

func alignTo(offset, align uint32) uint32 {
	return (offset + align - 1) &^ (align - 1)
}
