package vm

import "bytes"

// Tag identifies which field of a Value is populated.
type Tag int

const (
	TagNull Tag = iota
	TagByte
	TagSmallInt
	TagInt
	TagBytes
)

// Value is the tagged union every register holds. Bytes owns its buffer:
// whichever register last wrote a Bytes value is responsible for it, and any
// overwrite replaces it outright rather than mutating it in place. SCopy
// deep-copies Bytes, so no two registers share a buffer.
type Value struct {
	Tag      Tag
	Byte     int8
	SmallInt int16
	Int      int32
	Bytes    []byte
}

func NullValue() Value { return Value{Tag: TagNull} }

func ByteValue(v int8) Value { return Value{Tag: TagByte, Byte: v} }

func SmallIntValue(v int16) Value { return Value{Tag: TagSmallInt, SmallInt: v} }

func IntValue(v int32) Value { return Value{Tag: TagInt, Int: v} }

// BytesValue takes ownership of b. Callers that still need their own copy
// must clone it first.
func BytesValue(b []byte) Value { return Value{Tag: TagBytes, Bytes: b} }

// isNegativeInt reports whether v is an Int register holding a negative
// value, the short-circuit condition Idx* opcodes test against.
func (v Value) isNegativeInt() bool {
	return v.Tag == TagInt && v.Int < 0
}

// compare orders two same-tagged values. ok is false for tags this ordering
// is not defined for (Null has no order; Eq/Ne handle Null separately).
func compare(a, b Value) (cmp int, ok bool) {
	if a.Tag != b.Tag {
		return 0, false
	}
	switch a.Tag {
	case TagByte:
		return compareInt64(int64(a.Byte), int64(b.Byte)), true
	case TagSmallInt:
		return compareInt64(int64(a.SmallInt), int64(b.SmallInt)), true
	case TagInt:
		return compareInt64(int64(a.Int), int64(b.Int)), true
	case TagBytes:
		return bytes.Compare(a.Bytes, b.Bytes), true
	default:
		return 0, false
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// equal reports whether a and b hold the same value. Null equals Null; ok is
// false when the tags differ.
func equal(a, b Value) (isEqual bool, ok bool) {
	if a.Tag != b.Tag {
		return false, false
	}
	switch a.Tag {
	case TagNull:
		return true, true
	case TagByte:
		return a.Byte == b.Byte, true
	case TagSmallInt:
		return a.SmallInt == b.SmallInt, true
	case TagInt:
		return a.Int == b.Int, true
	case TagBytes:
		return bytes.Equal(a.Bytes, b.Bytes), true
	default:
		return false, false
	}
}
