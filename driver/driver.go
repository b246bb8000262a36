// Package driver enables dbm to be used with the go database/sql package.
package driver

import (
	"database/sql"
	"database/sql/driver"
	"io"

	"github.com/chirst/dbm/db"
)

func init() {
	d := new()
	sql.Register("dbm", d)
}

func new() *dbmDriver {
	return &dbmDriver{}
}

type dbmDriver struct{}

// Open implements driver.Driver. name is the database file path. If name is
// ":memory:" the database will not use a file and will not persist changes.
func (d *dbmDriver) Open(name string) (driver.Conn, error) {
	isMemory := name == ":memory:"
	conn, err := db.New(isMemory, name)
	if err != nil {
		return nil, err
	}
	return &dbmConn{db: conn}, nil
}

type dbmConn struct {
	db *db.DB
}

// Begin implements driver.Conn. Client-controlled transactions are not
// supported; each statement is individually durable through the pager's
// journal.
func (c *dbmConn) Begin() (driver.Tx, error) {
	return nil, driver.ErrSkip
}

// Close implements driver.Conn.
func (c *dbmConn) Close() error {
	return nil
}

// Prepare implements driver.Conn. There is no separate compile step to cache:
// every Exec/Query call lexes, parses, and plans the query fresh, matching
// how db.DB.Execute works.
func (c *dbmConn) Prepare(query string) (driver.Stmt, error) {
	return &dbmStmt{db: c.db, query: query}, nil
}

type dbmStmt struct {
	db    *db.DB
	query string
}

// Close implements driver.Stmt.
func (s *dbmStmt) Close() error {
	return nil
}

// NumInput implements driver.Stmt. Bound parameters are not supported; the
// compiler only accepts literal values.
func (s *dbmStmt) NumInput() int {
	return 0
}

// Exec implements driver.Stmt.
func (s *dbmStmt) Exec(args []driver.Value) (driver.Result, error) {
	result := s.db.Execute(s.query)
	if result.Err != nil {
		return nil, result.Err
	}
	return &dbmResult{}, nil
}

// Query implements driver.Stmt.
func (s *dbmStmt) Query(args []driver.Value) (driver.Rows, error) {
	result := s.db.Execute(s.query)
	if result.Err != nil {
		return nil, result.Err
	}
	return &dbmRows{cols: result.ResultHeader, rows: result.ResultRows}, nil
}

type dbmResult struct{}

// LastInsertId implements driver.Result. Row ids are assigned by the planner
// at compile time, not surfaced back through the executed program, so there
// is nothing meaningful to report here.
func (r *dbmResult) LastInsertId() (int64, error) {
	return 0, nil
}

// RowsAffected implements driver.Result. INSERT only ever affects a single
// row in this SQL surface.
func (r *dbmResult) RowsAffected() (int64, error) {
	return 1, nil
}

type dbmRows struct {
	cols   []string
	rows   [][]*string
	rowIdx int
}

// Close implements driver.Rows.
func (r *dbmRows) Close() error {
	return nil
}

// Columns implements driver.Rows.
func (r *dbmRows) Columns() []string {
	return r.cols
}

// Next implements driver.Rows. A nil cell renders as driver.Value(nil), the
// database/sql convention for SQL NULL.
func (r *dbmRows) Next(dest []driver.Value) error {
	if r.rowIdx >= len(r.rows) {
		return io.EOF
	}
	for i, v := range r.rows[r.rowIdx] {
		if v == nil {
			dest[i] = nil
			continue
		}
		dest[i] = *v
	}
	r.rowIdx++
	return nil
}
