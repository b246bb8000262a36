package planner

import (
	"github.com/chirst/dbm/catalog"
	"github.com/chirst/dbm/compiler"
	"github.com/chirst/dbm/coltype"
	"github.com/chirst/dbm/vm"
)

// schemaInsertPlan appends the instructions that pack and insert one schema
// row (the catalog's own representation of a CREATE TABLE/INDEX) into the
// catalog's root page (page 1). It is shared by createTablePlanner and
// createIndexPlanner since both ultimately do nothing more than add one row
// to the same table.
func schemaInsertPlan(
	p *vm.Program,
	cat catalogReader,
	store btreeAllocator,
	objectType, name, tableName string,
	rootPage int,
	jsonSchema string,
) error {
	schemaRoot, err := cat.GetRootPageNumber(catalog.SchemaTableName)
	if err != nil {
		return err
	}
	rowID, err := store.NewRowID(schemaRoot)
	if err != nil {
		return err
	}
	const cursor = int32(0)
	p.Integer(int32(schemaRoot), 10)
	p.OpenWrite(cursor, 10, 6)
	p.Integer(rowID, 0)
	p.String(1, objectType)
	p.String(2, name)
	p.String(3, tableName)
	p.Integer(int32(rootPage), 4)
	p.String(5, jsonSchema)
	p.MakeRecord(0, 6, 6)
	p.Insert(cursor, 6, 0)
	p.Close(cursor)
	return nil
}

// createTablePlanner compiles CREATE TABLE statements.
type createTablePlanner struct {
	cat   catalogReader
	store btreeAllocator
}

func NewCreateTable(cat catalogReader, store btreeAllocator) *createTablePlanner {
	return &createTablePlanner{cat: cat, store: store}
}

func (c *createTablePlanner) Plan(stmt *compiler.CreateTableStmt) (*Plan, error) {
	if c.cat.TableExists(stmt.TableName) {
		return nil, errTableExists
	}
	pkIdx := -1
	for i, col := range stmt.Columns {
		if !col.PrimaryKey {
			continue
		}
		if pkIdx != -1 {
			return nil, errMoreThanOnePK
		}
		pkIdx = i
	}
	if pkIdx != -1 && stmt.Columns[pkIdx].ColType != "INTEGER" {
		return nil, errInvalidPKColumnType
	}

	tableColumns := make([]catalog.TableColumn, len(stmt.Columns))
	for i, col := range stmt.Columns {
		tableColumns[i] = catalog.TableColumn{
			Name:       col.Name,
			ColType:    col.ColType,
			PrimaryKey: col.PrimaryKey,
		}
	}
	schemaBytes, err := (&catalog.TableSchema{Columns: tableColumns}).ToJSON()
	if err != nil {
		return nil, err
	}

	tableRoot := c.store.NewTableBTree()

	p := vm.NewProgram()
	if err := schemaInsertPlan(
		p, c.cat, c.store,
		"table", stmt.TableName, stmt.TableName,
		tableRoot, string(schemaBytes),
	); err != nil {
		return nil, err
	}
	p.Halt(0, "")

	return &Plan{Program: p, Version: c.cat.GetVersion()}, nil
}

// createIndexPlanner compiles CREATE INDEX statements, including the
// backfill over whatever rows the table already has.
type createIndexPlanner struct {
	cat   catalogReader
	store btreeAllocator
}

func NewCreateIndex(cat catalogReader, store btreeAllocator) *createIndexPlanner {
	return &createIndexPlanner{cat: cat, store: store}
}

func (c *createIndexPlanner) Plan(stmt *compiler.CreateIndexStmt) (*Plan, error) {
	if !c.cat.TableExists(stmt.TableName) {
		return nil, errTableNotExist
	}
	cols, err := c.cat.GetColumns(stmt.TableName)
	if err != nil {
		return nil, err
	}
	colIdx := columnIndex(cols, stmt.ColumnName)
	if colIdx == -1 {
		return nil, errMissingColumnName
	}
	types, err := c.cat.ColumnTypes(stmt.TableName)
	if err != nil {
		return nil, err
	}
	// Index cells hold two integers, the indexed value and the referenced
	// row id, so only an INTEGER column can back one.
	if types[colIdx] != coltype.Int {
		return nil, errIndexNotInteger
	}
	pkIdx, err := c.cat.GetPrimaryKeyColumnIndex(stmt.TableName)
	if err != nil {
		return nil, err
	}

	indexRoot := c.store.NewIndexBTree()
	idxSchemaBytes, err := (&catalog.IndexSchema{Column: stmt.ColumnName}).ToJSON()
	if err != nil {
		return nil, err
	}

	p := vm.NewProgram()
	if err := schemaInsertPlan(
		p, c.cat, c.store,
		"index", stmt.IndexName, stmt.TableName,
		indexRoot, string(idxSchemaBytes),
	); err != nil {
		return nil, err
	}

	tableRoot, err := c.cat.GetRootPageNumber(stmt.TableName)
	if err != nil {
		return nil, err
	}
	const tableCursor = int32(1)
	p.Integer(int32(tableRoot), 11)
	p.OpenRead(tableCursor, 11, int32(len(cols)))
	doneLabel := p.NextID()
	p.Rewind(tableCursor, doneLabel) // placeholder, patched below
	loopStart := p.NextID()
	if colIdx == pkIdx {
		p.Key(tableCursor, 20)
	} else {
		p.Column(tableCursor, int32(colIdx), 20)
	}
	p.Key(tableCursor, 21)
	p.IdxInsert(tableCursor, 20, 21)
	p.Next(tableCursor, loopStart)
	p.Close(tableCursor)
	p.Halt(0, "")

	insts := p.Instructions()
	insts[doneLabel].P2 = int32(len(insts) - 1)

	return &Plan{Program: p, IndexRootPage: int32(indexRoot), Version: c.cat.GetVersion()}, nil
}
