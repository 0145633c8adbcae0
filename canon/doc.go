// Package canon implements the subset of the Canonical ABI the host
// supports: scalar types, char, option and result.
//
// Values cross the boundary as flat core values (uint64 slots, one per
// flattened core type) or, when a result flattens to more than
// MaxFlatResults values, through linear memory at a return pointer.
//
// Go representations:
//
//	bool                        bool
//	s8 u8 s16 u16 s32 u32       int8 uint8 int16 uint16 int32 uint32
//	s64 u64                     int64 uint64
//	f32 f64                     float32 float64
//	char                        rune
//	option<T>                   nil or the T value
//	result<T, E>                Result
//
// Arguments are checked exactly: an f32 parameter accepts a float32 and
// nothing else.
package canon
