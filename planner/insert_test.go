package planner

import (
	"testing"

	"github.com/chirst/dbm/compiler"
	"github.com/chirst/dbm/vm"
	"github.com/stretchr/testify/require"
)

func TestInsertAllColumns(t *testing.T) {
	store := newStore(t)
	createPeopleTable(t, store)

	stmt := &compiler.InsertStmt{
		StmtBase:  &compiler.StmtBase{},
		TableName: "people",
		Values: []*compiler.Literal{
			{IsNumeric: true, NumericLiteral: 1},
			{IsString: true, StringLiteral: "Alice"},
		},
	}
	plan, err := NewInsert(store.GetCatalog(), store).Plan(stmt)
	require.NoError(t, err)
	m, err := vm.New(store, plan.Program)
	require.NoError(t, err)
	m.IndexRootPage = plan.IndexRootPage
	runToDone(t, m)

	root, err := store.GetCatalog().GetRootPageNumber("people")
	require.NoError(t, err)
	cells, err := store.AllCells(root, false)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	require.EqualValues(t, 1, cells[0].Key)
}

func TestInsertExplicitColumnsOutOfOrder(t *testing.T) {
	store := newStore(t)
	createPeopleTable(t, store)

	stmt := &compiler.InsertStmt{
		StmtBase:    &compiler.StmtBase{},
		TableName:   "people",
		ColumnNames: []string{"name", "id"},
		Values: []*compiler.Literal{
			{IsString: true, StringLiteral: "Bob"},
			{IsNumeric: true, NumericLiteral: 2},
		},
	}
	plan, err := NewInsert(store.GetCatalog(), store).Plan(stmt)
	require.NoError(t, err)
	m, err := vm.New(store, plan.Program)
	require.NoError(t, err)
	runToDone(t, m)

	root, err := store.GetCatalog().GetRootPageNumber("people")
	require.NoError(t, err)
	cells, err := store.AllCells(root, false)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	require.EqualValues(t, 2, cells[0].Key)
}

func TestInsertSynthesizesRowIDWithoutDeclaredPK(t *testing.T) {
	store := newStore(t)
	ct := &compiler.CreateTableStmt{
		StmtBase:  &compiler.StmtBase{},
		TableName: "logs",
		Columns: []compiler.ColumnDef{
			{Name: "message", ColType: "TEXT"},
		},
	}
	plan, err := NewCreateTable(store.GetCatalog(), store).Plan(ct)
	require.NoError(t, err)
	m, err := vm.New(store, plan.Program)
	require.NoError(t, err)
	runToDone(t, m)
	require.NoError(t, store.ParseSchema())

	for _, msg := range []string{"first", "second"} {
		stmt := &compiler.InsertStmt{
			StmtBase:  &compiler.StmtBase{},
			TableName: "logs",
			Values:    []*compiler.Literal{{IsString: true, StringLiteral: msg}},
		}
		ip, err := NewInsert(store.GetCatalog(), store).Plan(stmt)
		require.NoError(t, err)
		im, err := vm.New(store, ip.Program)
		require.NoError(t, err)
		runToDone(t, im)
	}

	root, err := store.GetCatalog().GetRootPageNumber("logs")
	require.NoError(t, err)
	cells, err := store.AllCells(root, false)
	require.NoError(t, err)
	require.Len(t, cells, 2)
	require.NotEqual(t, cells[0].Key, cells[1].Key)
}

func TestInsertMaintainsIndex(t *testing.T) {
	store := newStore(t)
	createScoresTable(t, store)

	idxStmt := &compiler.CreateIndexStmt{
		StmtBase:   &compiler.StmtBase{},
		IndexName:  "idx_scores_points",
		TableName:  "scores",
		ColumnName: "points",
	}
	idxPlan, err := NewCreateIndex(store.GetCatalog(), store).Plan(idxStmt)
	require.NoError(t, err)
	im, err := vm.New(store, idxPlan.Program)
	require.NoError(t, err)
	im.IndexRootPage = idxPlan.IndexRootPage
	runToDone(t, im)
	require.NoError(t, store.ParseSchema())

	insertScore(t, store, 1, 10)

	cells, err := store.AllCells(int(idxPlan.IndexRootPage), true)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	require.EqualValues(t, 10, cells[0].Key)
	require.EqualValues(t, 1, cells[0].PK)
}

func TestInsertMismatchedValuesCount(t *testing.T) {
	store := newStore(t)
	createPeopleTable(t, store)

	stmt := &compiler.InsertStmt{
		StmtBase:  &compiler.StmtBase{},
		TableName: "people",
		Values:    []*compiler.Literal{{IsNumeric: true, NumericLiteral: 1}},
	}
	_, err := NewInsert(store.GetCatalog(), store).Plan(stmt)
	require.ErrorIs(t, err, errValuesNotMatch)
}

func TestInsertIntoMissingTable(t *testing.T) {
	store := newStore(t)
	stmt := &compiler.InsertStmt{
		StmtBase:  &compiler.StmtBase{},
		TableName: "ghost",
		Values:    []*compiler.Literal{{IsNumeric: true, NumericLiteral: 1}},
	}
	_, err := NewInsert(store.GetCatalog(), store).Plan(stmt)
	require.ErrorIs(t, err, errTableNotExist)
}

func TestInsertRejectsStringForIntegerColumn(t *testing.T) {
	store := newStore(t)
	createPeopleTable(t, store)

	stmt := &compiler.InsertStmt{
		StmtBase:  &compiler.StmtBase{},
		TableName: "people",
		Values: []*compiler.Literal{
			{IsString: true, StringLiteral: "not-a-number"},
			{IsString: true, StringLiteral: "Alice"},
		},
	}
	_, err := NewInsert(store.GetCatalog(), store).Plan(stmt)
	require.ErrorIs(t, err, errValuesNotMatch)
}
