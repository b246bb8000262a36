package vm

import (
	"github.com/chirst/dbm/coltype"
	"github.com/chirst/dbm/kv"
	"github.com/chirst/dbm/record"
)

// opColumn stores the P2-th column of cursor P1's current cell in register
// P3. It is IOError if no column map was loaded for the cursor's table,
// TypeMismatch if the cursor is not on a table-leaf cell, and Misuse if P2
// is out of range.
func opColumn(m *Machine, inst Instruction) Kind {
	c, k := m.cursorFor(inst.P1)
	if k != OK {
		return k
	}
	entry := m.cellIndex[c.position]
	// The non-table-leaf error contract covers table-internal cells too, but
	// the cell index only ever holds leaf cells, so "not a table leaf"
	// reduces to "is an index cell" here.
	if entry.isIndex {
		return TypeMismatch
	}
	cm, ok := m.columnMaps[c.rootPage]
	if !ok {
		return IOError
	}
	col := int(inst.P2)
	if col < 0 || col >= len(cm.types) {
		return Misuse
	}
	schema := make([]record.ColSchema, len(cm.types))
	for i, t := range cm.types {
		schema[i] = record.ColSchema{ColType: t}
	}
	fields, err := record.Unpack(entry.Payload, schema, cm.pkColumn, entry.Key)
	if err != nil {
		return IOError
	}
	m.regWrite(inst.P3, valueFromField(fields[col]))
	return OK
}

// valueFromField converts a decoded record field to the register Value it
// becomes. coltype only distinguishes Int/Str at the declared-schema level
// (there is no separate byte/smallint SQL type), so every non-null integer
// column becomes a TagInt register regardless of how narrow its on-disk
// encoding was.
func valueFromField(f record.Field) Value {
	if f.IsNull {
		return NullValue()
	}
	if f.ColType == coltype.Int {
		return IntValue(f.Int)
	}
	b := make([]byte, len(f.Text))
	copy(b, f.Text)
	return BytesValue(b)
}

// opKey stores cursor P1's current cell key (its B-tree key) as an Int in
// register P2.
func opKey(m *Machine, inst Instruction) Kind {
	c, k := m.cursorFor(inst.P1)
	if k != OK {
		return k
	}
	entry := m.cellIndex[c.position]
	m.regWrite(inst.P2, IntValue(entry.Key))
	return OK
}

// opResultRow finalizes registers P1..P1+P2-1 into the machine's result row
// and signals the step driver to surface it.
func opResultRow(m *Machine, inst Instruction) Kind {
	row := make([]Value, inst.P2)
	for i := int32(0); i < inst.P2; i++ {
		v, k := m.regRead(inst.P1 + i)
		if k != OK {
			return k
		}
		row[i] = v
	}
	m.result = row
	m.returned = true
	return OK
}

// packFieldFromValue builds the record package's write-side field
// representation straight from a register's tag, with no schema lookup -
// MakeRecord and Insert both build a record purely from whatever is in the
// registers.
func packFieldFromValue(v Value) record.PackField {
	switch v.Tag {
	case TagNull:
		return record.NullPackField()
	case TagByte:
		return record.BytePackField(v.Byte)
	case TagSmallInt:
		return record.SmallIntPackField(v.SmallInt)
	case TagInt:
		return record.IntPackField(v.Int)
	default:
		return record.TextPackField(v.Bytes)
	}
}

// opMakeRecord packs registers P1..P1+P2-1 into a byte buffer and stores it
// as Bytes in register P3. Every selected register is packed verbatim,
// including whichever one holds the table's primary key value - Insert is
// the opcode that strips that column back out before writing the cell.
func opMakeRecord(m *Machine, inst Instruction) Kind {
	fields := make([]record.PackField, inst.P2)
	for i := int32(0); i < inst.P2; i++ {
		v, k := m.regRead(inst.P1 + i)
		if k != OK {
			return k
		}
		fields[i] = packFieldFromValue(v)
	}
	buf, err := record.Pack(fields)
	if err != nil {
		return IOError
	}
	m.regWrite(inst.P3, BytesValue(buf))
	return OK
}

// opInsert writes a table-leaf cell for cursor P1, keyed by register P3
// (must be Int) with the packed record in register P2 (must be Bytes). The
// cursor must be ReadWrite. The primary-key column, if the table declares
// one, is re-encoded as a Null field (a header byte with no payload) since
// its value already lives in the cell key, not dropped from the header
// entirely - record.IsPrimaryKeyColumn is the single helper both this path
// and Unpack share for that rule.
func opInsert(m *Machine, inst Instruction) Kind {
	c, k := m.cursorFor(inst.P1)
	if k != OK {
		return k
	}
	if c.mode != ReadWrite {
		return Misuse
	}
	keyVal, k := m.regRead(inst.P3)
	if k != OK {
		return k
	}
	if keyVal.Tag != TagInt {
		return TypeMismatch
	}
	recVal, k := m.regRead(inst.P2)
	if k != OK {
		return k
	}
	if recVal.Tag != TagBytes {
		return TypeMismatch
	}
	pk := -1
	if cm, ok := m.columnMaps[c.rootPage]; ok {
		pk = cm.pkColumn
	}
	fields, err := record.UnpackRaw(recVal.Bytes)
	if err != nil {
		return IOError
	}
	// The primary key column, if any, keeps its header slot but loses its
	// payload: the column's value already lives in the cell key, so its
	// on-disk field becomes a NullPackField rather than being dropped.
	onDisk := make([]record.PackField, len(fields))
	for i, f := range fields {
		if record.IsPrimaryKeyColumn(i, pk) {
			onDisk[i] = record.NullPackField()
			continue
		}
		onDisk[i] = f
	}
	buf, err := record.Pack(onDisk)
	if err != nil {
		return IOError
	}
	if err := m.store.Set(uint16(m.RootPage), kv.EncodeKey(keyVal.Int), buf, false); err != nil {
		return IOError
	}
	return OK
}
