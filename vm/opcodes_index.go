package vm

import "github.com/chirst/dbm/kv"

// opIdxKey stores the index cell's referenced row id (its PK field) as an
// Int in register P2. TypeMismatch if the cursor is not on an index cell.
func opIdxKey(m *Machine, inst Instruction) Kind {
	c, k := m.cursorFor(inst.P1)
	if k != OK {
		return k
	}
	entry := m.cellIndex[c.position]
	if !entry.isIndex {
		return TypeMismatch
	}
	m.regWrite(inst.P2, IntValue(entry.PK))
	return OK
}

// idxCmp backs the IdxGt/IdxGe/IdxLt/IdxLe family: each compares the current
// index cell's PK against register P3's integer value. A negative register
// value short-circuits without even looking at PK - for Gt/Ge (jumpOnNeg
// false) any non-negative PK is trivially greater, so it falls through; for
// Lt/Le (jumpOnNeg true) no PK can be less than a negative unsigned-compared
// target, so it jumps unconditionally.
func idxCmp(m *Machine, inst Instruction, rel func(pk, reg int32) bool, jumpOnNeg bool) Kind {
	c, k := m.cursorFor(inst.P1)
	if k != OK {
		return k
	}
	regVal, k := m.regRead(inst.P3)
	if k != OK {
		return k
	}
	if regVal.Tag != TagInt {
		return TypeMismatch
	}
	entry := m.cellIndex[c.position]
	if !entry.isIndex {
		return TypeMismatch
	}
	if regVal.Int < 0 {
		if jumpOnNeg {
			return m.jump(inst.P2)
		}
		return OK
	}
	if rel(entry.PK, regVal.Int) {
		return m.jump(inst.P2)
	}
	return OK
}

func opIdxGt(m *Machine, inst Instruction) Kind {
	return idxCmp(m, inst, func(pk, r int32) bool { return pk > r }, false)
}

func opIdxGe(m *Machine, inst Instruction) Kind {
	return idxCmp(m, inst, func(pk, r int32) bool { return pk >= r }, false)
}

func opIdxLt(m *Machine, inst Instruction) Kind {
	return idxCmp(m, inst, func(pk, r int32) bool { return pk < r }, true)
}

func opIdxLe(m *Machine, inst Instruction) Kind {
	return idxCmp(m, inst, func(pk, r int32) bool { return pk <= r }, true)
}

// opIdxInsert writes (keyIdx, pk) into the index B-tree rooted at
// Machine.IndexRootPage. Both registers must hold Int values.
func opIdxInsert(m *Machine, inst Instruction) Kind {
	if _, k := m.cursorFor(inst.P1); k != OK {
		return k
	}
	keyIdx, k := m.regRead(inst.P2)
	if k != OK {
		return k
	}
	if keyIdx.Tag != TagInt {
		return TypeMismatch
	}
	pk, k := m.regRead(inst.P3)
	if k != OK {
		return k
	}
	if pk.Tag != TagInt {
		return TypeMismatch
	}
	err := m.store.Set(uint16(m.IndexRootPage), kv.EncodeKey(keyIdx.Int), kv.EncodeKey(pk.Int), true)
	if err != nil {
		return IOError
	}
	return OK
}
