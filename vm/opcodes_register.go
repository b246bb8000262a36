package vm

// opInteger stores the literal P1 in register P2.
func opInteger(m *Machine, inst Instruction) Kind {
	m.regWrite(inst.P2, IntValue(inst.P1))
	return OK
}

// opString copies P1 bytes of P4String into a fresh buffer owned by P2.
func opString(m *Machine, inst Instruction) Kind {
	b := make([]byte, inst.P1)
	copy(b, []byte(inst.P4String))
	m.regWrite(inst.P2, BytesValue(b))
	return OK
}

// opNull stores Null in register P2.
func opNull(m *Machine, inst Instruction) Kind {
	m.regWrite(inst.P2, NullValue())
	return OK
}

// opSCopy copies P1 into P2. Bytes values are deep copied rather than
// aliased so neither register can observe the other's later overwrites.
func opSCopy(m *Machine, inst Instruction) Kind {
	v, k := m.regRead(inst.P1)
	if k != OK {
		return k
	}
	if v.Tag == TagBytes {
		cp := make([]byte, len(v.Bytes))
		copy(cp, v.Bytes)
		v = BytesValue(cp)
	}
	m.regWrite(inst.P2, v)
	return OK
}

// cmp resolves P1/P3 as registers A/B and jumps to P2 when rel holds,
// failing TypeMismatch when rel cannot be evaluated (mismatched tags, or an
// ordering relation over an unordered tag like Null).
func cmp(m *Machine, inst Instruction, rel func(a, b Value) (bool, bool)) Kind {
	a, k := m.regRead(inst.P1)
	if k != OK {
		return k
	}
	b, k := m.regRead(inst.P3)
	if k != OK {
		return k
	}
	take, ok := rel(a, b)
	if !ok {
		return TypeMismatch
	}
	if take {
		return m.jump(inst.P2)
	}
	return OK
}

func opEq(m *Machine, inst Instruction) Kind {
	return cmp(m, inst, func(a, b Value) (bool, bool) { return equal(a, b) })
}

// opNe: Null is treated as "falls through" when compared to Null, matching
// the source's behavior - equal(Null, Null) is true, so Ne correctly does
// not jump.
func opNe(m *Machine, inst Instruction) Kind {
	return cmp(m, inst, func(a, b Value) (bool, bool) {
		eq, ok := equal(a, b)
		return !eq, ok
	})
}

func opLt(m *Machine, inst Instruction) Kind {
	return cmp(m, inst, func(a, b Value) (bool, bool) {
		c, ok := compare(a, b)
		return c < 0, ok
	})
}

func opLe(m *Machine, inst Instruction) Kind {
	return cmp(m, inst, func(a, b Value) (bool, bool) {
		c, ok := compare(a, b)
		return c <= 0, ok
	})
}

func opGt(m *Machine, inst Instruction) Kind {
	return cmp(m, inst, func(a, b Value) (bool, bool) {
		c, ok := compare(a, b)
		return c > 0, ok
	})
}

func opGe(m *Machine, inst Instruction) Kind {
	return cmp(m, inst, func(a, b Value) (bool, bool) {
		c, ok := compare(a, b)
		return c >= 0, ok
	})
}
