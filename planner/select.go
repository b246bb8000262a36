package planner

import (
	"github.com/chirst/dbm/catalog"
	"github.com/chirst/dbm/compiler"
	"github.com/chirst/dbm/coltype"
	"github.com/chirst/dbm/vm"
)

// selectPlanner compiles SELECT statements: a single-table scan, optionally
// narrowed by one equality/inequality predicate and, when that predicate is
// an equality test against an indexed column, assisted by a Seek/IdxKey
// lookup instead of a full Rewind/Next walk.
type selectPlanner struct {
	cat catalogReader
}

func NewSelect(cat catalogReader) *selectPlanner {
	return &selectPlanner{cat: cat}
}

func (sp *selectPlanner) Plan(stmt *compiler.SelectStmt) (*Plan, error) {
	if stmt.From == nil {
		return sp.planConstantSelect(stmt)
	}
	if !sp.cat.TableExists(stmt.From.TableName) {
		return nil, errTableNotExist
	}
	cols, err := sp.cat.GetColumns(stmt.From.TableName)
	if err != nil {
		return nil, err
	}
	types, err := sp.cat.ColumnTypes(stmt.From.TableName)
	if err != nil {
		return nil, err
	}
	pkIdx, err := sp.cat.GetPrimaryKeyColumnIndex(stmt.From.TableName)
	if err != nil {
		return nil, err
	}
	resultCols, resultIdx, err := sp.resolveResultColumns(stmt.ResultColumns, cols)
	if err != nil {
		return nil, err
	}
	root, err := sp.cat.GetRootPageNumber(stmt.From.TableName)
	if err != nil {
		return nil, err
	}

	// The index lookup only applies to an equality test of an integer
	// literal against an INTEGER column: index keys are integer B-tree keys,
	// so that is the only shape an index can hold. Anything else scans.
	if stmt.Where != nil && (stmt.Where.Operator == "=" || stmt.Where.Operator == "==") && stmt.Where.Value.IsNumeric {
		if fc := columnIndex(cols, stmt.Where.ColumnName); fc != -1 && types[fc] == coltype.Int {
			if idxObj, ok := sp.cat.IndexOnColumn(stmt.From.TableName, stmt.Where.ColumnName); ok {
				return sp.planIndexEquality(stmt, idxObj, root, cols, types, pkIdx, resultIdx, resultCols)
			}
		}
	}
	return sp.planScan(stmt, root, cols, types, pkIdx, resultIdx, resultCols)
}

// resolveResultColumns expands "*" and validates every named column exists,
// returning the display names alongside the indexes into cols to read at
// runtime.
func (sp *selectPlanner) resolveResultColumns(rc []compiler.ResultColumn, cols []string) ([]string, []int, error) {
	names := []string{}
	idxs := []int{}
	for _, c := range rc {
		if c.All {
			for i, name := range cols {
				names = append(names, name)
				idxs = append(idxs, i)
			}
			continue
		}
		if c.ColumnName != "" {
			i := columnIndex(cols, c.ColumnName)
			if i == -1 {
				return nil, nil, errMissingColumnName
			}
			names = append(names, c.ColumnName)
			idxs = append(idxs, i)
			continue
		}
		// A literal result column (e.g. "SELECT 1") has no table column to
		// read; handled by planConstantSelect for a FROM-less statement, and
		// not meaningful mixed with FROM, so this path is simply skipped.
	}
	return names, idxs, nil
}

// planConstantSelect handles "SELECT <literal>[, <literal>...]" with no
// FROM, returning a single constant row with no cursor at all.
func (sp *selectPlanner) planConstantSelect(stmt *compiler.SelectStmt) (*Plan, error) {
	p := vm.NewProgram()
	for i, c := range stmt.ResultColumns {
		if c.Expr == nil || c.Expr.Literal == nil {
			return nil, errMissingColumnName
		}
		lit := c.Expr.Literal
		reg := int32(i)
		if lit.IsNumeric {
			p.Integer(int32(lit.NumericLiteral), reg)
		} else {
			p.String(reg, lit.StringLiteral)
		}
	}
	p.ResultRow(0, int32(len(stmt.ResultColumns)))
	p.Halt(0, "")
	return &Plan{Program: p, Columns: make([]string, len(stmt.ResultColumns)), Version: sp.cat.GetVersion()}, nil
}

// emitResultColumns appends the Column/Key reads (skipping the cursor's
// primary key column straight to Key, the same rule Insert/Column use) that
// materialize resultIdx into consecutive registers starting at base, then a
// ResultRow.
func emitResultColumns(p *vm.Program, cursor int32, pkIdx int, resultIdx []int, base int32) {
	for i, colIdx := range resultIdx {
		reg := base + int32(i)
		if colIdx == pkIdx {
			p.Key(cursor, reg)
			continue
		}
		p.Column(cursor, int32(colIdx), reg)
	}
	p.ResultRow(base, int32(len(resultIdx)))
}

// negate returns the opcode family that jumps to target exactly when rel
// does NOT hold, used to skip a row's result emission without branching
// around it twice.
func negate(op string) (func(p *vm.Program, a, target, b int32) int, error) {
	switch op {
	case "=", "==":
		return (*vm.Program).Ne, nil
	case "!=", "<>":
		return (*vm.Program).Eq, nil
	case "<":
		return (*vm.Program).Ge, nil
	case "<=":
		return (*vm.Program).Gt, nil
	case ">":
		return (*vm.Program).Le, nil
	case ">=":
		return (*vm.Program).Lt, nil
	}
	return nil, errMissingColumnName
}

func (sp *selectPlanner) planScan(
	stmt *compiler.SelectStmt,
	root int,
	cols []string,
	types []coltype.CT,
	pkIdx int,
	resultIdx []int,
	resultCols []string,
) (*Plan, error) {
	p := vm.NewProgram()
	const cursor = int32(0)
	p.Integer(int32(root), 0)
	p.OpenRead(cursor, 0, int32(len(cols)))
	rewindAt := p.NextID()
	p.Rewind(cursor, rewindAt) // placeholder, patched below
	loopStart := p.NextID()

	skipJumpAt := -1
	if stmt.Where != nil {
		filterCol := columnIndex(cols, stmt.Where.ColumnName)
		if filterCol == -1 {
			return nil, errMissingColumnName
		}
		notRel, err := negate(stmt.Where.Operator)
		if err != nil {
			return nil, err
		}
		filterReg, litReg := int32(50), int32(51)
		if filterCol == pkIdx {
			p.Key(cursor, filterReg)
		} else {
			p.Column(cursor, int32(filterCol), filterReg)
		}
		if err := emitLiteral(p, litReg, types[filterCol], stmt.Where.Value); err != nil {
			return nil, err
		}
		// Skip target is the Next instruction, whose address isn't known
		// until the result columns are emitted; patched below.
		skipJumpAt = notRel(p, filterReg, 0, litReg)
	}

	emitResultColumns(p, cursor, pkIdx, resultIdx, 1)
	nextAt := p.Next(cursor, loopStart)
	p.Close(cursor)
	p.Halt(0, "")

	insts := p.Instructions()
	insts[rewindAt].P2 = int32(len(insts) - 1)
	if skipJumpAt != -1 {
		insts[skipJumpAt].P2 = int32(nextAt)
	}

	return &Plan{Program: p, Columns: resultCols, Version: sp.cat.GetVersion()}, nil
}

// planIndexEquality compiles "WHERE col = lit" over an indexed column: the
// index cursor is positioned directly at the matching index key via Seek (a
// literal-key lookup the opcode set supports natively), IdxKey recovers the
// referenced row's primary key, and the table is then scanned once more
// comparing Key against that primary key to materialize the row. A direct
// Seek on the table cursor by that recovered key isn't expressible: Seek's
// key operand is a compile-time literal, not a register, so there is no
// opcode that seeks a table cursor to a runtime value. This still avoids
// ever reading a non-matching row's column data before the PK compare.
func (sp *selectPlanner) planIndexEquality(
	stmt *compiler.SelectStmt,
	idxObj catalog.Object,
	tableRoot int,
	cols []string,
	types []coltype.CT,
	pkIdx int,
	resultIdx []int,
	resultCols []string,
) (*Plan, error) {
	filterCol := columnIndex(cols, stmt.Where.ColumnName)
	if filterCol == -1 {
		return nil, errMissingColumnName
	}

	p := vm.NewProgram()
	const idxCursor = int32(0)
	const tableCursor = int32(1)

	p.Integer(int32(idxObj.RootPageNumber), 0)
	p.OpenRead(idxCursor, 0, 0)

	litVal, err := literalAsInt(types[filterCol], stmt.Where.Value)
	if err != nil {
		return nil, err
	}
	missLabel := p.NextID()
	p.Seek(idxCursor, missLabel, litVal) // placeholder, patched below
	p.IdxKey(idxCursor, 30)
	p.Close(idxCursor)

	p.Integer(int32(tableRoot), 1)
	p.OpenRead(tableCursor, 1, int32(len(cols)))
	rewindAt := p.NextID()
	p.Rewind(tableCursor, rewindAt) // placeholder, patched below
	loopStart := p.NextID()
	p.Key(tableCursor, 31)
	// A non-matching row skips straight to Next; patched below once Next's
	// address is known.
	neAt := p.Ne(31, 0, 30)
	emitResultColumns(p, tableCursor, pkIdx, resultIdx, 40)
	nextAt := p.Next(tableCursor, loopStart)
	p.Close(tableCursor)
	p.Halt(0, "")

	insts := p.Instructions()
	insts[rewindAt].P2 = int32(len(insts) - 1)
	insts[missLabel].P2 = int32(len(insts) - 1)
	insts[neAt].P2 = int32(nextAt)

	return &Plan{Program: p, Columns: resultCols, Version: sp.cat.GetVersion()}, nil
}

func literalAsInt(ct coltype.CT, lit *compiler.Literal) (int32, error) {
	if ct != coltype.Int || !lit.IsNumeric {
		return 0, errMissingColumnName
	}
	return int32(lit.NumericLiteral), nil
}
