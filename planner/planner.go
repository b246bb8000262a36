// planner compiles an AST (abstract syntax tree) produced by the compiler
// directly into a vm.Program. Unlike a general purpose relational planner
// there is no intermediate relational-algebra tree or rewrite pass to speak
// of: the SQL surface this module supports (single table, at most one
// equality/inequality predicate, no joins) maps closely enough to the
// database machine's bytecode that each statement kind gets its own direct
// compiler.
package planner

import (
	"github.com/chirst/dbm/catalog"
	"github.com/chirst/dbm/coltype"
)

// catalogReader is the read side of the schema catalog every compiler
// consults to resolve names to root pages, column types, and indexes.
type catalogReader interface {
	GetRootPageNumber(tableOrIndexName string) (int, error)
	GetColumns(tableName string) ([]string, error)
	GetPrimaryKeyColumnIndex(tableName string) (int, error)
	ColumnTypes(tableName string) ([]coltype.CT, error)
	TableExists(tableName string) bool
	GetVersion() string
	IndexOnColumn(tableName, columnName string) (catalog.Object, bool)
}

// btreeAllocator is the subset of kv.KV a compiler needs at compile time: a
// CREATE TABLE/INDEX statement must allocate its backing B-tree before it can
// pack the root page number into the schema row it inserts, and an INSERT
// against a table lacking an explicit primary key needs the next free row id.
type btreeAllocator interface {
	NewTableBTree() int
	NewIndexBTree() int
	NewRowID(rootPageNumber int) (int32, error)
}

// columnIndex returns the position of name in cols, or -1.
func columnIndex(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}
