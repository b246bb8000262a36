package record

import (
	"testing"

	"github.com/chirst/dbm/coltype"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	fields := []PackField{
		IntPackField(7),
		TextPackField([]byte("hello")),
		NullPackField(),
	}
	buf, err := Pack(fields)
	require.NoError(t, err)

	schema := []ColSchema{
		{ColType: coltype.Int},
		{ColType: coltype.Str},
		{ColType: coltype.Str},
	}
	got, err := Unpack(buf, schema, -1, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, int32(7), got[0].Int)
	require.Equal(t, "hello", string(got[1].Text))
	require.True(t, got[2].IsNull)
}

func TestPackFixedWidthCodes(t *testing.T) {
	buf, err := Pack([]PackField{
		BytePackField(-3),
		SmallIntPackField(-300),
		IntPackField(70000),
	})
	require.NoError(t, err)

	schema := []ColSchema{
		{ColType: coltype.Int},
		{ColType: coltype.Int},
		{ColType: coltype.Int},
	}
	got, err := Unpack(buf, schema, -1, 0)
	require.NoError(t, err)
	require.Equal(t, int32(-3), got[0].Int)
	require.Equal(t, int32(-300), got[1].Int)
	require.Equal(t, int32(70000), got[2].Int)
}

// TestTextTypeCodeBitExact pins the on-disk varint header code for text
// fields, 2*(len+1)+13, and its inverse, the length a decoder recovers.
func TestTextTypeCodeBitExact(t *testing.T) {
	require.Equal(t, 15, TextTypeCode(0))
	require.Equal(t, 25, TextTypeCode(5))
	require.Equal(t, 0, TextLenFromTypeCode(15))
	require.Equal(t, 5, TextLenFromTypeCode(25))
}

// TestUnpackPrimaryKeyColumn checks that the primary key column still
// consumes a header slot (written as Null on disk) but its returned value
// comes from the cell's B-tree key, not the payload.
func TestUnpackPrimaryKeyColumn(t *testing.T) {
	buf, err := Pack([]PackField{
		NullPackField(), // id: primary key, value lives in the cell key
		TextPackField([]byte("Alice")),
	})
	require.NoError(t, err)
	require.Equal(t, byte(6), buf[0]) // header length: 1 (length byte) + 1 (null code) + 4 (text varint code)

	schema := []ColSchema{
		{ColType: coltype.Int},
		{ColType: coltype.Str},
	}
	got, err := Unpack(buf, schema, 0, 42)
	require.NoError(t, err)
	require.False(t, got[0].IsNull)
	require.Equal(t, int32(42), got[0].Int)
	require.Equal(t, "Alice", string(got[1].Text))
}

// TestUnpackRawInvertsPack checks UnpackRaw recovers the exact PackField
// list a prior Pack call was given, the property opInsert relies on to
// substitute a NullPackField for the primary key column after the fact.
func TestUnpackRawInvertsPack(t *testing.T) {
	fields := []PackField{
		IntPackField(99),
		TextPackField([]byte("row")),
	}
	buf, err := Pack(fields)
	require.NoError(t, err)

	got, err := UnpackRaw(buf)
	require.NoError(t, err)
	require.Equal(t, fields, got)
}

func TestUnpackEmptyPayloadIsError(t *testing.T) {
	_, err := Unpack(nil, []ColSchema{{ColType: coltype.Int}}, -1, 0)
	require.Error(t, err)

	_, err = UnpackRaw(nil)
	require.Error(t, err)
}

func TestUnpackHeaderExhaustedIsError(t *testing.T) {
	buf, err := Pack([]PackField{IntPackField(1)})
	require.NoError(t, err)
	schema := []ColSchema{
		{ColType: coltype.Int},
		{ColType: coltype.Int},
	}
	_, err = Unpack(buf, schema, -1, 0)
	require.Error(t, err)
}

func TestIsPrimaryKeyColumn(t *testing.T) {
	require.True(t, IsPrimaryKeyColumn(2, 2))
	require.False(t, IsPrimaryKeyColumn(1, 2))
	require.False(t, IsPrimaryKeyColumn(0, -1))
}
