package kv

import (
	"github.com/chirst/dbm/catalog"
	"github.com/chirst/dbm/coltype"
	"github.com/chirst/dbm/record"
)

// schemaColumns is the column map of the schema table itself: id (the
// primary key, implicit in the cell's B-tree key), type, name, table_name,
// rootpage, sql. CREATE TABLE/CREATE INDEX compile to ordinary Insert
// bytecode against this table exactly like user rows, so decoding it uses the
// same record codec rather than a bespoke format.
var schemaColumns = []record.ColSchema{
	{ColType: coltype.Int}, // id (primary key, value from the cell key)
	{ColType: coltype.Str}, // type
	{ColType: coltype.Str}, // name
	{ColType: coltype.Str}, // table_name
	{ColType: coltype.Int}, // rootpage
	{ColType: coltype.Str}, // sql
}

const schemaPrimaryKeyColumn = 0

func decodeSchemaRow(payload []byte, rowID int32) (catalog.Object, error) {
	fields, err := record.Unpack(payload, schemaColumns, schemaPrimaryKeyColumn, rowID)
	if err != nil {
		return catalog.Object{}, err
	}
	return catalog.Object{
		ObjectType:     string(fields[1].Text),
		Name:           string(fields[2].Text),
		TableName:      string(fields[3].Text),
		RootPageNumber: int(fields[4].Int),
		JsonSchema:     string(fields[5].Text),
	}, nil
}
