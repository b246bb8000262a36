package planner

import "github.com/chirst/dbm/vm"

// Plan is a compiled statement ready to run.
type Plan struct {
	// Program is the compiled bytecode.
	Program *vm.Program
	// Columns names the result columns of a SELECT, in projection order. Nil
	// for statements that produce no rows.
	Columns []string
	// IndexRootPage is the root page IdxInsert instructions in Program target,
	// threaded through to vm.Machine.IndexRootPage by the caller before
	// stepping. Zero when Program contains no IdxInsert.
	IndexRootPage int32
	// Version is the catalog version this plan was compiled against. The db
	// layer compares it to the live catalog before running and recompiles on
	// mismatch, since the program bakes in root pages and column positions.
	Version string
}
