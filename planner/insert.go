package planner

import (
	"strconv"

	"github.com/chirst/dbm/catalog"
	"github.com/chirst/dbm/compiler"
	"github.com/chirst/dbm/coltype"
	"github.com/chirst/dbm/vm"
)

// insertPlanner compiles INSERT INTO statements, maintaining the table's
// first secondary index (if any) as part of the same program.
type insertPlanner struct {
	cat   catalogReader
	store btreeAllocator
}

func NewInsert(cat catalogReader, store btreeAllocator) *insertPlanner {
	return &insertPlanner{cat: cat, store: store}
}

func (ip *insertPlanner) Plan(stmt *compiler.InsertStmt) (*Plan, error) {
	if !ip.cat.TableExists(stmt.TableName) {
		return nil, errTableNotExist
	}
	cols, err := ip.cat.GetColumns(stmt.TableName)
	if err != nil {
		return nil, err
	}
	types, err := ip.cat.ColumnTypes(stmt.TableName)
	if err != nil {
		return nil, err
	}
	pkIdx, err := ip.cat.GetPrimaryKeyColumnIndex(stmt.TableName)
	if err != nil {
		return nil, err
	}

	targetCols := stmt.ColumnNames
	if len(targetCols) == 0 {
		targetCols = cols
	}
	if len(targetCols) != len(stmt.Values) {
		return nil, errValuesNotMatch
	}

	values := make([]*compiler.Literal, len(cols))
	for i, name := range targetCols {
		idx := columnIndex(cols, name)
		if idx == -1 {
			return nil, errMissingColumnName
		}
		values[idx] = stmt.Values[i]
	}

	tableRoot, err := ip.cat.GetRootPageNumber(stmt.TableName)
	if err != nil {
		return nil, err
	}

	p := vm.NewProgram()
	const cursor = int32(0)
	p.Integer(int32(tableRoot), int32(len(cols)))
	p.OpenWrite(cursor, int32(len(cols)), int32(len(cols)))

	// The cell key comes from the primary key column's value when the
	// statement supplies one. A table without a declared primary key, or an
	// insert that omits the primary key column, gets the next free row id.
	keyReg := int32(pkIdx)
	if pkIdx == -1 || values[pkIdx] == nil {
		rowID, err := ip.store.NewRowID(tableRoot)
		if err != nil {
			return nil, err
		}
		keyReg = int32(len(cols) + 1)
		p.Integer(rowID, keyReg)
	}

	for i, lit := range values {
		reg := int32(i)
		if lit == nil {
			p.Null(reg)
			continue
		}
		if err := emitLiteral(p, reg, types[i], lit); err != nil {
			return nil, err
		}
	}
	recordReg := int32(len(cols))
	p.MakeRecord(0, int32(len(cols)), recordReg)
	p.Insert(cursor, recordReg, keyReg)

	if idxObj, ok := ip.cat.IndexOnColumn(stmt.TableName, indexedColumnName(ip.cat, stmt.TableName, cols)); ok {
		idxCol := catalog.IndexSchemaFromString(idxObj.JsonSchema).Column
		idxColIdx := columnIndex(cols, idxCol)
		if idxColIdx != -1 {
			p.IdxInsert(cursor, int32(idxColIdx), keyReg)
			p.Close(cursor)
			p.Halt(0, "")
			return &Plan{Program: p, IndexRootPage: int32(idxObj.RootPageNumber), Version: ip.cat.GetVersion()}, nil
		}
	}

	p.Close(cursor)
	p.Halt(0, "")
	return &Plan{Program: p, Version: ip.cat.GetVersion()}, nil
}

// indexedColumnName returns the name of whichever column in cols has an
// index declared over it, or "" if none do. IndexOnColumn needs a column
// name to probe with, but an insert's job is to maintain whatever index (if
// any) exists regardless of which column that turns out to be, so this
// tries each declared column in turn.
func indexedColumnName(cat catalogReader, tableName string, cols []string) string {
	for _, c := range cols {
		if _, ok := cat.IndexOnColumn(tableName, c); ok {
			return c
		}
	}
	return ""
}

// emitLiteral stores a parsed SQL literal into reg according to the
// declared column type, the same INTEGER/TEXT split the catalog and record
// codec use throughout.
func emitLiteral(p *vm.Program, reg int32, ct coltype.CT, lit *compiler.Literal) error {
	if ct == coltype.Int {
		if !lit.IsNumeric {
			return errValuesNotMatch
		}
		p.Integer(int32(lit.NumericLiteral), reg)
		return nil
	}
	if lit.IsString {
		p.String(reg, lit.StringLiteral)
		return nil
	}
	// A numeric literal destined for a TEXT column is stored as its decimal
	// text, matching how SQL's dynamic typing lets literal 1 satisfy a text
	// column.
	p.String(reg, strconv.Itoa(lit.NumericLiteral))
	return nil
}
