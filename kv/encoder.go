package kv

import "encoding/binary"

// EncodeKey encodes a B-tree key (a row id or an index key) as its four byte
// big-endian representation, which keeps byte-wise comparison (used to keep
// pager.Page.SetEntries sorted) equivalent to signed integer comparison for
// the non-negative keys this engine issues.
func EncodeKey(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b
}

func DecodeKey(v []byte) int32 {
	return int32(binary.BigEndian.Uint32(v))
}
