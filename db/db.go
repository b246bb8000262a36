// db serves as an interface for the database where raw SQL goes in and
// convenient data structures come out. db is intended to be consumed by
// things like a repl (read eval print loop), a program, or a transport
// protocol such as database/sql via the driver package.
package db

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/chirst/dbm/catalog"
	"github.com/chirst/dbm/compiler"
	"github.com/chirst/dbm/internal/config"
	"github.com/chirst/dbm/kv"
	"github.com/chirst/dbm/planner"
	"github.com/chirst/dbm/vm"
	"github.com/sirupsen/logrus"
)

// ExecuteResult is the user-facing outcome of running one SQL statement:
// either an error, or a header plus zero or more rows. A nil cell means SQL
// NULL, the shape repl and driver both render.
type ExecuteResult struct {
	Err          error
	Text         string
	ResultHeader []string
	ResultRows   [][]*string
}

type DB struct {
	kv      *kv.KV
	catalog *catalog.Catalog
}

func New(useMemory bool, filename string) (*DB, error) {
	store, err := kv.New(useMemory, filename)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"memory": useMemory,
		"file":   filename,
	}).Debug("database opened")
	return &DB{
		kv:      store,
		catalog: store.GetCatalog(),
	}, nil
}

// NewWithConfig opens a database using a resolved config.Config, the way
// cmd/dbm wires its root command to the repl instead of calling New directly.
// It's the only entrypoint that honors a configured page cache size.
func NewWithConfig(cfg *config.Config) (*DB, error) {
	store, err := kv.NewWithCacheSize(cfg.Memory, cfg.DBFile, cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"memory":    cfg.Memory,
		"file":      cfg.DBFile,
		"cacheSize": cfg.CacheSize,
	}).Debug("database opened")
	return &DB{
		kv:      store,
		catalog: store.GetCatalog(),
	}, nil
}

// Execute lexes, parses, and runs every statement found in sql, returning the
// result of the last one executed (the common case is a single statement per
// call, which is how the repl and database/sql driver both use this). An
// error from any statement stops the batch and is returned immediately.
func (db *DB) Execute(sql string) ExecuteResult {
	tokens := compiler.NewLexer(sql).Lex()
	stmts, err := compiler.NewParser(tokens).Parse()
	if err != nil {
		return ExecuteResult{Err: err}
	}
	var last ExecuteResult
	for _, stmt := range stmts {
		last = db.executeStmt(stmt)
		if last.Err != nil {
			return last
		}
	}
	return last
}

// executeStmt wraps one statement in a pager transaction: reads take the
// shared lock (and revalidate the page cache against writes committed by
// other processes), writes take the exclusive lock and flush their dirty
// pages on completion. The transaction covers planning too, since the write
// planners allocate B-tree pages and scan for row ids before the program
// ever runs.
func (db *DB) executeStmt(stmt compiler.Stmt) ExecuteResult {
	_, isSelect := stmt.(*compiler.SelectStmt)
	if isSelect {
		db.kv.BeginReadTransaction()
	} else {
		db.kv.BeginWriteTransaction()
	}
	result := db.planAndRun(stmt)
	if isSelect {
		db.kv.EndReadTransaction()
	} else if err := db.kv.EndWriteTransaction(); err != nil && result.Err == nil {
		result = ExecuteResult{Err: fmt.Errorf("db: flushing write: %w", err)}
	}
	if result.Err == nil && isDDL(stmt) {
		if err := db.kv.ParseSchema(); err != nil {
			return ExecuteResult{Err: fmt.Errorf("db: reloading schema: %w", err)}
		}
	}
	return result
}

// ErrVersionChanged reports that the catalog moved between compiling a plan
// and running it. The compiled register/page layout bakes in root pages and
// column positions, so a stale plan must be thrown away, not run.
var ErrVersionChanged = errors.New("db: catalog version changed since plan was compiled")

func (db *DB) planAndRun(stmt compiler.Stmt) ExecuteResult {
	plan, err := db.planFor(stmt)
	if err != nil {
		return ExecuteResult{Err: err}
	}
	result := db.run(plan)
	if errors.Is(result.Err, ErrVersionChanged) {
		// The schema moved underneath the plan; recompile once against the
		// fresh catalog and retry.
		plan, err = db.planFor(stmt)
		if err != nil {
			return ExecuteResult{Err: err}
		}
		result = db.run(plan)
	}
	return result
}

// isDDL reports whether stmt is a schema-mutating statement, in which case
// the in-memory catalog needs reloading from the schema B-tree page after it
// runs so a later statement in the same session (or batch) sees the new
// object.
func isDDL(stmt compiler.Stmt) bool {
	switch stmt.(type) {
	case *compiler.CreateTableStmt, *compiler.CreateIndexStmt:
		return true
	default:
		return false
	}
}

func (db *DB) planFor(stmt compiler.Stmt) (*planner.Plan, error) {
	switch s := stmt.(type) {
	case *compiler.SelectStmt:
		return planner.NewSelect(db.catalog).Plan(s)
	case *compiler.CreateTableStmt:
		return planner.NewCreateTable(db.catalog, db.kv).Plan(s)
	case *compiler.CreateIndexStmt:
		return planner.NewCreateIndex(db.catalog, db.kv).Plan(s)
	case *compiler.InsertStmt:
		return planner.NewInsert(db.catalog, db.kv).Plan(s)
	default:
		return nil, fmt.Errorf("db: statement type %T not supported", stmt)
	}
}

// run drives plan's program through a fresh vm.Machine to completion,
// collecting every ResultRow into an ExecuteResult. A plan compiled against
// a catalog version other than the current one is refused with
// ErrVersionChanged.
func (db *DB) run(plan *planner.Plan) ExecuteResult {
	if plan.Version != db.catalog.GetVersion() {
		return ExecuteResult{Err: ErrVersionChanged}
	}
	m, err := vm.New(db.kv, plan.Program)
	if err != nil {
		return ExecuteResult{Err: fmt.Errorf("db: building machine: %w", err)}
	}
	defer m.Close()
	m.IndexRootPage = plan.IndexRootPage

	result := ExecuteResult{ResultHeader: plan.Columns}
	for {
		status, k := m.Step()
		if k != vm.OK {
			return ExecuteResult{Err: fmt.Errorf("db: %s", k)}
		}
		if status == vm.StatusDone {
			break
		}
		result.ResultRows = append(result.ResultRows, renderRow(m.Result()))
	}
	if m.HaltCode != 0 {
		return ExecuteResult{Err: fmt.Errorf("db: %s", m.HaltMsg)}
	}
	return result
}

// renderRow converts one materialized result row's register Values into the
// nullable-string shape repl and driver render.
func renderRow(row []vm.Value) []*string {
	ret := make([]*string, len(row))
	for i, v := range row {
		ret[i] = renderValue(v)
	}
	return ret
}

func renderValue(v vm.Value) *string {
	var s string
	switch v.Tag {
	case vm.TagNull:
		return nil
	case vm.TagByte:
		s = strconv.FormatInt(int64(v.Byte), 10)
	case vm.TagSmallInt:
		s = strconv.FormatInt(int64(v.SmallInt), 10)
	case vm.TagInt:
		s = strconv.FormatInt(int64(v.Int), 10)
	case vm.TagBytes:
		s = string(v.Bytes)
	default:
		s = ""
	}
	return &s
}
