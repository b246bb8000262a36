// record packs and unpacks the typed field lists stored in table-leaf B-tree
// cells. The layout is bit-exact across the engine: a one byte header length,
// then one type code per field, then the field payloads in order. A field
// holding a table's declared primary key is never present in the payload -
// its value lives in the cell's B-tree key instead - so Unpack and the vm's
// Insert opcode special-case that column index through IsPrimaryKeyColumn,
// the one helper shared by the read (Column opcode) and write (Insert opcode)
// paths. Pack itself packs whatever fields it is given.
package record

import (
	"encoding/binary"
	"fmt"

	"github.com/chirst/dbm/coltype"
)

// Type codes used in the per-field header. Text fields use the variable
// length varint code produced by TextTypeCode instead of a fixed constant.
const (
	TypeNull     = 0
	TypeByte     = 1
	TypeSmallInt = 2
	TypeInt      = 4
)

// TextTypeCode returns the header code for a text field of the given byte
// length: 2*(len+1)+13. The +1 counts one byte more than the stored text, a
// C string terminator's worth this codec never writes; the code keeps that
// arithmetic for layout compatibility and TextLenFromTypeCode subtracts it
// back out.
func TextTypeCode(byteLen int) int {
	return 2*(byteLen+1) + 13
}

// TextLenFromTypeCode recovers a text field's byte length from its header
// code, the inverse of TextTypeCode.
func TextLenFromTypeCode(code int) int {
	return (code-13)/2 - 1
}

// IsPrimaryKeyColumn reports whether col is the table's declared primary key
// column, which is omitted from the record payload on both read and write.
// pkColumn is -1 for tables without a declared primary key.
func IsPrimaryKeyColumn(col, pkColumn int) bool {
	return pkColumn >= 0 && col == pkColumn
}

// PackField is one field ready to be packed: a header type code plus the
// already-sized payload bytes the code implies (empty for TypeNull). Building
// these from register values is the vm package's job since it owns the
// Value tag that determines the code; record itself stays schema-agnostic on
// the write path, matching how MakeRecord/Insert build a record purely from
// registers with no column-map lookup.
type PackField struct {
	Code int
	Data []byte
}

func NullPackField() PackField { return PackField{Code: TypeNull} }

func BytePackField(v int8) PackField {
	return PackField{Code: TypeByte, Data: []byte{byte(v)}}
}

func SmallIntPackField(v int16) PackField {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(v))
	return PackField{Code: TypeSmallInt, Data: b}
}

func IntPackField(v int32) PackField {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return PackField{Code: TypeInt, Data: b}
}

func TextPackField(v []byte) PackField {
	return PackField{Code: TextTypeCode(len(v)), Data: v}
}

// Pack encodes fields into the on-disk payload for a table-leaf cell.
func Pack(fields []PackField) ([]byte, error) {
	header := make([]byte, 0, len(fields)*4)
	payload := []byte{}
	for _, f := range fields {
		header = append(header, encodeHeaderCode(f.Code)...)
		payload = append(payload, f.Data...)
	}
	headerLen := 1 + len(header)
	if headerLen > 255 {
		return nil, fmt.Errorf("record: header of %d bytes exceeds the one byte header length", headerLen)
	}
	buf := make([]byte, 0, headerLen+len(payload))
	buf = append(buf, byte(headerLen))
	buf = append(buf, header...)
	buf = append(buf, payload...)
	return buf, nil
}

// encodeHeaderCode writes a single header type code. Fixed width codes
// (Null/Byte/SmallInt/Int) take one byte; text codes take a four byte
// varint, seven value bits per byte with the most significant first and the
// high bit set on the first three bytes, so a text code's first byte never
// reads as a fixed width code.
func encodeHeaderCode(code int) []byte {
	if code == TypeNull || code == TypeByte || code == TypeSmallInt || code == TypeInt {
		return []byte{byte(code)}
	}
	return []byte{
		byte(code>>21)&0x7f | 0x80,
		byte(code>>14)&0x7f | 0x80,
		byte(code>>7)&0x7f | 0x80,
		byte(code) & 0x7f,
	}
}

// decodeHeaderCode reads one header code starting at b[0], returning the code
// and the number of header bytes it consumed.
func decodeHeaderCode(b []byte) (code int, width int) {
	first := int(b[0])
	if first == TypeNull || first == TypeByte || first == TypeSmallInt || first == TypeInt {
		return first, 1
	}
	return int(b[0]&0x7f)<<21 | int(b[1]&0x7f)<<14 | int(b[2]&0x7f)<<7 | int(b[3]&0x7f), 4
}

// ColSchema describes one column's declared type, consulted by Unpack to
// interpret a non-null field's payload bytes: the on-disk header code alone
// distinguishes null/width/text but the schema type is what the decoder
// branches on, per the original's coupling between the two.
type ColSchema struct {
	ColType coltype.CT
}

// Field is one decoded value of a record.
type Field struct {
	IsNull  bool
	ColType coltype.CT
	Int     int32
	Text    []byte
}

func NullField() Field         { return Field{IsNull: true} }
func IntField(v int32) Field   { return Field{ColType: coltype.Int, Int: v} }
func TextField(v []byte) Field { return Field{ColType: coltype.Str, Text: v} }

// Unpack decodes a packed payload into field values, given the table's column
// schema and primary key column index (-1 if none) and the B-tree key the
// cell was stored under (supplies the primary key column's value). The
// primary key column still occupies a header slot - written as TypeNull,
// since its value lives in the cell key rather than the payload - so every
// schema column consumes exactly one header code, primary key included.
func Unpack(payload []byte, schema []ColSchema, pkColumn int, cellKey int32) ([]Field, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("record: empty payload")
	}
	headerLen := int(payload[0])
	if headerLen > len(payload) {
		return nil, fmt.Errorf("record: header length %d exceeds payload size %d", headerLen, len(payload))
	}
	header := payload[1:headerLen]
	dataOffset := headerLen
	fields := make([]Field, len(schema))
	hi := 0
	for i := range schema {
		if hi >= len(header) {
			return nil, fmt.Errorf("record: header exhausted before column %d", i)
		}
		code, width := decodeHeaderCode(header[hi:])
		hi += width
		if IsPrimaryKeyColumn(i, pkColumn) {
			fields[i] = IntField(cellKey)
			continue
		}
		if code == TypeNull {
			fields[i] = NullField()
			continue
		}
		switch schema[i].ColType {
		case coltype.Int:
			n, err := readInt(payload, &dataOffset, code)
			if err != nil {
				return nil, err
			}
			fields[i] = IntField(n)
		case coltype.Str:
			textLen := TextLenFromTypeCode(code)
			if dataOffset+textLen > len(payload) {
				return nil, fmt.Errorf("record: text field for column %d overruns payload", i)
			}
			fields[i] = TextField(payload[dataOffset : dataOffset+textLen])
			dataOffset += textLen
		default:
			return nil, fmt.Errorf("record: column %d has unknown declared type %d", i, schema[i].ColType)
		}
	}
	return fields, nil
}

// UnpackRaw decodes a payload using only the self-describing header codes,
// with no column schema and no primary-key omission. This is the inverse of
// Pack: it recovers the exact PackField list a prior Pack call was given.
// Insert uses it to re-derive the field list MakeRecord produced (which packs
// every selected register verbatim, including whichever one is the table's
// primary key) so it can substitute a NullPackField for that column and
// re-Pack the result into the final on-disk cell layout.
func UnpackRaw(payload []byte) ([]PackField, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("record: empty payload")
	}
	headerLen := int(payload[0])
	if headerLen > len(payload) {
		return nil, fmt.Errorf("record: header length %d exceeds payload size %d", headerLen, len(payload))
	}
	header := payload[1:headerLen]
	dataOffset := headerLen
	fields := []PackField{}
	hi := 0
	for hi < len(header) {
		code, width := decodeHeaderCode(header[hi:])
		hi += width
		switch {
		case code == TypeNull:
			fields = append(fields, NullPackField())
		case code == TypeByte || code == TypeSmallInt || code == TypeInt:
			w := fixedWidth(code)
			if dataOffset+w > len(payload) {
				return nil, fmt.Errorf("record: fixed width field overruns payload")
			}
			data := payload[dataOffset : dataOffset+w]
			dataOffset += w
			fields = append(fields, PackField{Code: code, Data: append([]byte{}, data...)})
		default:
			textLen := TextLenFromTypeCode(code)
			if dataOffset+textLen > len(payload) {
				return nil, fmt.Errorf("record: text field overruns payload")
			}
			data := payload[dataOffset : dataOffset+textLen]
			dataOffset += textLen
			fields = append(fields, PackField{Code: code, Data: append([]byte{}, data...)})
		}
	}
	return fields, nil
}

// fixedWidth returns the payload byte width a fixed-width header code implies.
func fixedWidth(code int) int {
	switch code {
	case TypeByte:
		return 1
	case TypeSmallInt:
		return 2
	default:
		return 4
	}
}

// readInt reads an integer payload value per its header-declared width,
// advancing *offset past it.
func readInt(payload []byte, offset *int, code int) (int32, error) {
	switch code {
	case TypeByte:
		if *offset+1 > len(payload) {
			return 0, fmt.Errorf("record: byte-width int overruns payload")
		}
		v := int32(int8(payload[*offset]))
		*offset += 1
		return v, nil
	case TypeSmallInt:
		if *offset+2 > len(payload) {
			return 0, fmt.Errorf("record: smallint overruns payload")
		}
		v := int32(int16(binary.BigEndian.Uint16(payload[*offset : *offset+2])))
		*offset += 2
		return v, nil
	case TypeInt:
		if *offset+4 > len(payload) {
			return 0, fmt.Errorf("record: int overruns payload")
		}
		v := int32(binary.BigEndian.Uint32(payload[*offset : *offset+4]))
		*offset += 4
		return v, nil
	default:
		return 0, fmt.Errorf("record: unexpected integer type code %d", code)
	}
}
