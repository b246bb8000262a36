// Package vm implements the database machine (DBM): a register based virtual
// machine that executes a compiled Program directly against the B-trees kv
// exposes. It owns every piece of transient per-query state - registers,
// cursors, the flattened cell index a cursor walks - and nothing else; the kv
// package owns the actual page storage, catalog owns schema, record owns the
// on-disk field layout.
package vm

import (
	"github.com/chirst/dbm/catalog"
	"github.com/chirst/dbm/coltype"
	"github.com/chirst/dbm/kv"
)

// CursorMode distinguishes a cursor allowed to Insert from one that is not.
type CursorMode int

const (
	ReadOnly CursorMode = iota
	ReadWrite
)

// cursorState is the live state backing a single open cursor. It carries no
// buffered cell data of its own; position is the only source of truth, always
// an index into Machine.cellIndex while the cursor is live.
type cursorState struct {
	mode     CursorMode
	ncols    int32
	rootPage int32
	position int
}

// cellEntry is one flattened leaf cell plus the bookkeeping the cursor
// opcodes need to know which table/index run it belongs to.
type cellEntry struct {
	kv.Cell
	rootPage int32
	isIndex  bool
}

// run is the contiguous slice of Machine.cellIndex a single table or index
// B-tree occupies, the "owning node" Rewind/Next/Prev/Seek bound themselves
// against. The cell index flattens an entire B-tree into one run rather than
// tracking individual physical leaf pages - a deliberate simplification that
// trades real B-tree descent for a single ordered slice built once per
// Machine.
type run struct {
	start int
	count int
}

// columnMap is the per-table metadata the Column and Insert opcodes need:
// the ordered declared column types and which column (if any) is the
// primary key and therefore absent from the record payload.
type columnMap struct {
	types    []coltype.CT
	pkColumn int
}

// Machine is one query's worth of execution state: a program counter, the
// program it steps through, the register file, the cursor table, and the
// cell index built once at construction. A Machine is owned by a single
// caller and is never shared across goroutines.
type Machine struct {
	store   *kv.KV
	program *Program

	pc int32

	registers map[int32]Value
	cursors   map[int32]*cursorState

	cellIndex  []cellEntry
	runs       map[int32]run
	columnMaps map[int32]columnMap

	// RootPage is the destination page Insert writes to. It is set as a
	// side effect of OpenWrite, matching the single-writer-cursor shape of
	// the opcode set (there is one table a program inserts into at a time).
	RootPage int32
	// IndexRootPage is the destination page IdxInsert writes to, set by
	// whichever planner compiled this program. The instruction stream itself
	// never names the target index; that is compile-time information.
	IndexRootPage int32

	jumped   bool
	returned bool
	halted   bool

	result []Value

	// HaltCode/HaltMsg are the caller-supplied values from a Halt
	// instruction's P1/P4. They are distinct from the Kind taxonomy Step
	// returns: Halt never raises a Kind error, it only records these for the
	// caller to inspect after the machine reaches Done.
	HaltCode int32
	HaltMsg  string
}

// New builds a Machine ready to step through program against store. The cell
// index and column maps are computed eagerly here, once per Machine, from
// every table and index object currently in the catalog - page 1 (the
// schema page) is skipped when building the table view, though its column
// map is still built since CREATE TABLE/INDEX insert schema rows through the
// ordinary Column/Insert path.
func New(store *kv.KV, program *Program) (*Machine, error) {
	m := &Machine{
		store:      store,
		program:    program,
		registers:  map[int32]Value{},
		cursors:    map[int32]*cursorState{},
		runs:       map[int32]run{},
		columnMaps: map[int32]columnMap{},
		halted:     true,
	}
	if err := m.buildColumnMap(1, catalog.SchemaTableName); err != nil {
		return nil, err
	}
	for _, obj := range store.GetCatalog().Objects() {
		isIndex := obj.ObjectType == "index"
		cells, err := store.AllCells(obj.RootPageNumber, isIndex)
		if err != nil {
			return nil, err
		}
		start := len(m.cellIndex)
		for _, c := range cells {
			m.cellIndex = append(m.cellIndex, cellEntry{
				Cell:     c,
				rootPage: int32(obj.RootPageNumber),
				isIndex:  isIndex,
			})
		}
		if obj.RootPageNumber == 1 {
			continue
		}
		m.runs[int32(obj.RootPageNumber)] = run{start: start, count: len(cells)}
		if !isIndex {
			if err := m.buildColumnMap(int32(obj.RootPageNumber), obj.Name); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Machine) buildColumnMap(rootPage int32, tableName string) error {
	cat := m.store.GetCatalog()
	types, err := cat.ColumnTypes(tableName)
	if err != nil {
		return err
	}
	pk, err := cat.GetPrimaryKeyColumnIndex(tableName)
	if err != nil {
		return err
	}
	m.columnMaps[rootPage] = columnMap{types: types, pkColumn: pk}
	return nil
}

// Close releases the Machine's references. The page cache underneath kv
// manages its own eviction (pager.Pager's LRU), so there is no separate
// node-release call to make here; Close exists so callers have a single,
// named point in the lifecycle where a machine is done.
func (m *Machine) Close() {
	m.registers = nil
	m.cursors = nil
	m.cellIndex = nil
}

// Result returns the row produced by the most recent ResultRow opcode.
func (m *Machine) Result() []Value {
	return m.result
}

// PC returns the address of the instruction that will run on the next Step.
func (m *Machine) PC() int32 {
	return m.pc
}

// StepStatus is Step's outcome: either a row was produced, or the machine
// ran to Halt with no dispatcher-level error.
type StepStatus int

const (
	StatusRow StepStatus = iota
	StatusDone
)

// Step drives execute until it produces a row, halts, or fails. It never
// masks a handler's error: the first non-OK Kind any execute call returns is
// surfaced immediately, with PC left pointing at the failing instruction.
func (m *Machine) Step() (StepStatus, Kind) {
	for {
		if k := m.execute(); k != OK {
			return StatusDone, k
		}
		if m.returned {
			return StatusRow, OK
		}
		if m.halted {
			return StatusDone, OK
		}
	}
}

// execute advances the machine by exactly one instruction.
func (m *Machine) execute() Kind {
	m.jumped = false
	m.returned = false
	m.halted = false
	inst, ok := m.program.at(int(m.pc))
	if !ok {
		return NotFound
	}
	h, ok := opcodeHandlers[inst.Op]
	if !ok {
		return Misuse
	}
	if k := h(m, inst); k != OK {
		return k
	}
	if !m.jumped {
		m.pc++
	}
	return OK
}

// jump relocates PC to target if it names an extant instruction, setting the
// jumped flag so execute does not also advance PC by one.
func (m *Machine) jump(target int32) Kind {
	if _, ok := m.program.at(int(target)); !ok {
		return NotFound
	}
	m.pc = target
	m.jumped = true
	return OK
}

// regRead resolves a register for a reading opcode. Absent registers are
// NotFound - per the dispatcher's operand resolution rules, reading opcodes
// never create.
func (m *Machine) regRead(id int32) (Value, Kind) {
	v, ok := m.registers[id]
	if !ok {
		return Value{}, NotFound
	}
	return v, OK
}

// regWrite installs v in register id, creating the register if absent. Any
// prior Bytes buffer is simply replaced; Go's GC reclaims it once
// unreferenced, which is the register-ownership invariant's only meaning in
// a garbage collected runtime.
func (m *Machine) regWrite(id int32, v Value) {
	m.registers[id] = v
}

// cursorFor resolves a cursor for an opcode that requires one already open.
// Per the dispatcher's operand resolution rules this never creates - only
// OpenRead/OpenWrite do that.
func (m *Machine) cursorFor(id int32) (*cursorState, Kind) {
	c, ok := m.cursors[id]
	if !ok {
		return nil, NotFound
	}
	return c, OK
}

// runFor returns the run backing a cursor's bound table/index, which is
// always present: every root page opened by OpenRead/OpenWrite is one the
// cell index was built from (or, for a table freshly created earlier in the
// same program, has zero cells - runFor returns the empty zero-valued run in
// that case, which Rewind reports as an empty table, the correct answer).
func (m *Machine) runFor(c *cursorState) run {
	return m.runs[c.rootPage]
}
