package vm

import (
	"testing"

	"github.com/chirst/dbm/catalog"
	"github.com/chirst/dbm/kv"
	"github.com/chirst/dbm/record"
	"github.com/stretchr/testify/require"
)

// newStore builds an in-memory kv.KV for a test.
func newStore(t *testing.T) *kv.KV {
	t.Helper()
	store, err := kv.New(true, "")
	require.NoError(t, err)
	return store
}

// addPeopleTable creates a table (id INTEGER PRIMARY KEY, name TEXT), writes
// rows directly through kv.Set (bypassing Insert, since some scenarios want
// to start from pre-loaded data), and registers it in the catalog so a fresh
// vm.Machine picks it up in its cell index.
func addPeopleTable(t *testing.T, store *kv.KV, rows map[int32]string) int {
	t.Helper()
	root := store.NewTableBTree()
	ts := catalog.TableSchema{
		Columns: []catalog.TableColumn{
			{Name: "id", ColType: "INTEGER", PrimaryKey: true},
			{Name: "name", ColType: "TEXT"},
		},
	}
	schemaBytes, err := ts.ToJSON()
	require.NoError(t, err)
	store.GetCatalog().AddObject(catalog.Object{
		ObjectType:     "table",
		Name:           "people",
		TableName:      "people",
		RootPageNumber: root,
		JsonSchema:     string(schemaBytes),
	})
	for key, name := range rows {
		// The id column still occupies a header slot on disk - encoded as
		// Null, since its value lives in the cell key, not the payload.
		buf, err := record.Pack([]record.PackField{
			record.NullPackField(),
			record.TextPackField([]byte(name)),
		})
		require.NoError(t, err)
		require.NoError(t, store.Set(uint16(root), kv.EncodeKey(key), buf, false))
	}
	return root
}

func TestTrivialSelect(t *testing.T) {
	store := newStore(t)
	p := NewProgram()
	p.Integer(1, 0)
	p.Halt(0, "")
	m, err := New(store, p)
	require.NoError(t, err)

	status, k := m.Step()
	require.Equal(t, OK, k)
	require.Equal(t, StatusDone, status)
	require.Equal(t, IntValue(1), m.registers[0])
}

func TestReadRows(t *testing.T) {
	store := newStore(t)
	root := addPeopleTable(t, store, map[int32]string{
		1: "Alice",
		2: "Bob",
		3: "Carl",
	})

	p := NewProgram()
	p.Integer(int32(root), 0)
	c0 := p.OpenRead(0, 0, 2)
	_ = c0
	rewindAt := p.NextID()
	loopAt := rewindAt + 1
	p.Rewind(0, 0) // placeholder target patched below
	p.Column(0, 0, 1)
	p.Column(0, 1, 2)
	p.ResultRow(1, 2)
	p.Next(0, loopAt)
	p.Close(0)
	p.Halt(0, "")
	// Patch Rewind's jump target to the Halt/Close tail now that every
	// address is known (mirrors how a real compiler backpatches a forward
	// jump once it knows where the loop ends).
	insts := p.Instructions()
	insts[rewindAt].P2 = int32(len(insts) - 1)

	m, err := New(store, p)
	require.NoError(t, err)

	var rows [][]Value
	for {
		status, k := m.Step()
		require.Equal(t, OK, k)
		if status == StatusDone {
			break
		}
		row := append([]Value{}, m.Result()...)
		rows = append(rows, row)
	}
	require.Len(t, rows, 3)
	require.Equal(t, IntValue(1), rows[0][0])
	require.Equal(t, TagBytes, rows[0][1].Tag)
	require.Equal(t, "Alice", string(rows[0][1].Bytes))
	require.Equal(t, IntValue(3), rows[2][0])
	require.Equal(t, "Carl", string(rows[2][1].Bytes))
}

func TestSeekHitAndMiss(t *testing.T) {
	store := newStore(t)
	root := addPeopleTable(t, store, map[int32]string{
		1: "Alice",
		2: "Bob",
	})

	t.Run("hit falls through to Key", func(t *testing.T) {
		p := NewProgram()
		p.Integer(int32(root), 0)
		p.OpenRead(0, 0, 2)
		missTarget := p.NextID() + 2
		p.Seek(0, missTarget, 2)
		p.Key(0, 1)
		p.Halt(0, "")
		m, err := New(store, p)
		require.NoError(t, err)
		status, k := m.Step()
		require.Equal(t, OK, k)
		require.Equal(t, StatusDone, status)
		require.Equal(t, IntValue(2), m.registers[1])
	})

	t.Run("miss jumps past the read", func(t *testing.T) {
		p := NewProgram()
		p.Integer(int32(root), 0)
		p.OpenRead(0, 0, 2)
		missTarget := p.NextID() + 2
		p.Seek(0, missTarget, 99)
		p.Key(0, 1)
		p.Halt(0, "")
		m, err := New(store, p)
		require.NoError(t, err)
		status, k := m.Step()
		require.Equal(t, OK, k)
		require.Equal(t, StatusDone, status)
		_, ok := m.registers[1]
		require.False(t, ok)
	})
}

func TestInsertThenScan(t *testing.T) {
	store := newStore(t)
	root := addPeopleTable(t, store, nil)

	p := NewProgram()
	p.Integer(int32(root), 0)
	p.OpenWrite(0, 0, 2)
	p.Integer(42, 1)
	p.String(2, "row")
	// MakeRecord packs every selected register in schema column order,
	// including the register that will become the primary key - Insert is
	// the one that strips that column back out before writing the cell.
	p.MakeRecord(1, 2, 3)
	p.Insert(0, 3, 1)
	p.Halt(0, "")
	m, err := New(store, p)
	require.NoError(t, err)
	status, k := m.Step()
	require.Equal(t, OK, k)
	require.Equal(t, StatusDone, status)

	// A fresh machine over the same store observes the inserted row.
	p2 := NewProgram()
	p2.Integer(int32(root), 0)
	p2.OpenRead(0, 0, 2)
	end := p2.NextID()
	p2.Rewind(0, end+4)
	p2.Column(0, 0, 1)
	p2.Column(0, 1, 2)
	p2.ResultRow(1, 2)
	p2.Halt(0, "")
	m2, err := New(store, p2)
	require.NoError(t, err)
	status2, k2 := m2.Step()
	require.Equal(t, OK, k2)
	require.Equal(t, StatusRow, status2)
	require.Equal(t, IntValue(42), m2.Result()[0])
	require.Equal(t, "row", string(m2.Result()[1].Bytes))
}

func TestTypeMismatchCompare(t *testing.T) {
	store := newStore(t)
	p := NewProgram()
	p.Integer(1, 0)
	p.String(1, "1")
	target := p.NextID() + 2
	p.Eq(0, target, 1)
	p.Halt(0, "")
	m, err := New(store, p)
	require.NoError(t, err)
	status, k := m.Step()
	require.Equal(t, TypeMismatch, k)
	require.Equal(t, StatusDone, status)
}

func TestConditionalJumpBoundary(t *testing.T) {
	store := newStore(t)
	p := NewProgram()
	p.Integer(5, 0)
	p.Integer(5, 1)
	eqTarget := p.NextID() + 2
	p.Eq(0, eqTarget, 1)
	p.Halt(1, "ne")
	p.Halt(0, "eq")
	m, err := New(store, p)
	require.NoError(t, err)
	var status StepStatus
	var k Kind
	for {
		status, k = m.Step()
		if status == StatusDone {
			break
		}
	}
	require.Equal(t, OK, k)
	require.Equal(t, int32(0), m.HaltCode)
	require.Equal(t, "eq", m.HaltMsg)
}

func TestScanCompleteness(t *testing.T) {
	store := newStore(t)
	root := addPeopleTable(t, store, map[int32]string{
		1: "A", 2: "B", 3: "C", 4: "D",
	})
	p := NewProgram()
	p.Integer(int32(root), 0)
	p.OpenRead(0, 0, 2)
	end := p.NextID()
	p.Rewind(0, end+4)
	p.Key(0, 1)
	p.ResultRow(1, 1)
	loop := p.NextID() - 2
	p.Next(0, loop)
	p.Halt(0, "")
	m, err := New(store, p)
	require.NoError(t, err)
	seen := []int32{}
	for {
		status, k := m.Step()
		require.Equal(t, OK, k)
		if status == StatusDone {
			break
		}
		seen = append(seen, m.Result()[0].Int)
	}
	require.Equal(t, []int32{1, 2, 3, 4}, seen)
}

func TestIdxShortCircuit(t *testing.T) {
	store := newStore(t)
	indexRoot := store.NewIndexBTree()
	store.GetCatalog().AddObject(catalog.Object{
		ObjectType:     "index",
		Name:           "idx_name",
		TableName:      "people",
		RootPageNumber: indexRoot,
		JsonSchema:     "{}",
	})
	require.NoError(t, store.Set(uint16(indexRoot), kv.EncodeKey(10), kv.EncodeKey(1), true))

	p := NewProgram()
	p.Integer(int32(indexRoot), 0)
	p.OpenRead(0, 0, 0)
	end := p.NextID()
	p.Rewind(0, end+4)
	p.Integer(-1, 1)
	// A negative register short-circuits IdxGe to fall through regardless of
	// the comparison's literal truth value - so a wrong jump here would land
	// on the "wrongly jumped" Halt below instead of the correct fall-through
	// Halt immediately after.
	wrongTarget := p.NextID() + 2
	p.IdxGe(0, wrongTarget, 1)
	p.Halt(0, "fell through correctly")
	p.Halt(1, "wrongly jumped")
	m, err := New(store, p)
	require.NoError(t, err)
	var status StepStatus
	for {
		status, _ = m.Step()
		if status == StatusDone {
			break
		}
	}
	require.Equal(t, int32(0), m.HaltCode)
}

func TestSeekGtAndGe(t *testing.T) {
	store := newStore(t)
	// A gap at key 3 distinguishes Gt/Ge positioning from exact Seek.
	root := addPeopleTable(t, store, map[int32]string{1: "A", 2: "B", 4: "D"})

	seekKey := func(t *testing.T, build func(p *Program, missTarget int32)) (keyAtCursor int32, missed bool) {
		t.Helper()
		p := NewProgram()
		p.Integer(int32(root), 0)
		p.OpenRead(0, 0, 2)
		missTarget := p.NextID() + 2
		build(p, missTarget)
		p.Key(0, 1)
		p.Halt(0, "")
		m, err := New(store, p)
		require.NoError(t, err)
		status, k := m.Step()
		require.Equal(t, OK, k)
		require.Equal(t, StatusDone, status)
		v, ok := m.registers[1]
		if !ok {
			return 0, true
		}
		return v.Int, false
	}

	t.Run("SeekGt positions at the least key strictly greater", func(t *testing.T) {
		key, missed := seekKey(t, func(p *Program, miss int32) { p.SeekGt(0, miss, 2) })
		require.False(t, missed)
		require.Equal(t, int32(4), key)
	})

	t.Run("SeekGe over a gap positions at the next key", func(t *testing.T) {
		key, missed := seekKey(t, func(p *Program, miss int32) { p.SeekGe(0, miss, 3) })
		require.False(t, missed)
		require.Equal(t, int32(4), key)
	})

	t.Run("SeekGe on a present key stays on it", func(t *testing.T) {
		key, missed := seekKey(t, func(p *Program, miss int32) { p.SeekGe(0, miss, 2) })
		require.False(t, missed)
		require.Equal(t, int32(2), key)
	})

	t.Run("SeekGt past the last key jumps", func(t *testing.T) {
		_, missed := seekKey(t, func(p *Program, miss int32) { p.SeekGt(0, miss, 4) })
		require.True(t, missed)
	})
}

// TestPrevBoundary pins the preserved asymmetry against Next: Prev refuses to
// step from a table's second cell back to its first, so walking backward from
// the third cell stops one short of where Rewind would land.
func TestPrevBoundary(t *testing.T) {
	store := newStore(t)
	root := addPeopleTable(t, store, map[int32]string{1: "A", 2: "B", 3: "C"})

	p := NewProgram()
	p.Integer(int32(root), 0)
	p.OpenRead(0, 0, 2)
	haltAt := p.NextID() + 4
	p.Seek(0, haltAt, 3)
	// Each Prev's jump target is simply the following instruction, keeping
	// the program linear whether or not the step is taken.
	p.Prev(0, p.NextID()+1)
	p.Prev(0, p.NextID()+1)
	p.Key(0, 1)
	p.Halt(0, "")
	m, err := New(store, p)
	require.NoError(t, err)
	status, k := m.Step()
	require.Equal(t, OK, k)
	require.Equal(t, StatusDone, status)
	// The first Prev steps 3 -> 2; the second refuses to cross onto the
	// first cell, leaving the cursor on key 2.
	require.Equal(t, IntValue(2), m.registers[1])
}

// TestSCopyDeepCopiesBytes pins the resolved aliasing contract: the copy owns
// its own buffer, so overwriting the source afterward cannot disturb it.
func TestSCopyDeepCopiesBytes(t *testing.T) {
	store := newStore(t)
	p := NewProgram()
	p.String(0, "alpha")
	p.SCopy(0, 1)
	p.String(0, "beta!")
	p.Halt(0, "")
	m, err := New(store, p)
	require.NoError(t, err)
	status, k := m.Step()
	require.Equal(t, OK, k)
	require.Equal(t, StatusDone, status)
	require.Equal(t, "beta!", string(m.registers[0].Bytes))
	require.Equal(t, "alpha", string(m.registers[1].Bytes))
}

func TestValueCompare(t *testing.T) {
	c, ok := compare(IntValue(1), IntValue(2))
	require.True(t, ok)
	require.Less(t, c, 0)

	_, ok = compare(IntValue(1), BytesValue([]byte("x")))
	require.False(t, ok)

	eq, ok := equal(NullValue(), NullValue())
	require.True(t, ok)
	require.True(t, eq)
}

func TestColumnOutOfRangeIsMisuse(t *testing.T) {
	store := newStore(t)
	root := addPeopleTable(t, store, map[int32]string{1: "Alice"})
	p := NewProgram()
	p.Integer(int32(root), 0)
	p.OpenRead(0, 0, 2)
	end := p.NextID()
	p.Rewind(0, end+3)
	p.Column(0, 5, 1)
	p.Halt(0, "")
	m, err := New(store, p)
	require.NoError(t, err)
	_, k := m.Step()
	require.Equal(t, Misuse, k)
}

func TestColumnOnIndexCellIsTypeMismatch(t *testing.T) {
	store := newStore(t)
	indexRoot := store.NewIndexBTree()
	store.GetCatalog().AddObject(catalog.Object{
		ObjectType:     "index",
		Name:           "idx_name",
		TableName:      "people",
		RootPageNumber: indexRoot,
		JsonSchema:     "{}",
	})
	require.NoError(t, store.Set(uint16(indexRoot), kv.EncodeKey(10), kv.EncodeKey(1), true))
	p := NewProgram()
	p.Integer(int32(indexRoot), 0)
	p.OpenRead(0, 0, 0)
	end := p.NextID()
	p.Rewind(0, end+3)
	p.Column(0, 0, 1)
	p.Halt(0, "")
	m, err := New(store, p)
	require.NoError(t, err)
	_, k := m.Step()
	require.Equal(t, TypeMismatch, k)
}
