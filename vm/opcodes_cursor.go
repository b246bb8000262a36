package vm

// openCursor binds cursor P1 to the B-tree root page held in register P2,
// positioning it at the first cell of that table/index's run in the cell
// index. P2 must hold an Int; anything else is InvalidPage.
func openCursor(m *Machine, inst Instruction, mode CursorMode) Kind {
	regVal, k := m.regRead(inst.P2)
	if k != OK {
		return k
	}
	if regVal.Tag != TagInt {
		return InvalidPage
	}
	page := regVal.Int
	r := m.runs[page]
	m.cursors[inst.P1] = &cursorState{
		mode:     mode,
		ncols:    inst.P3,
		rootPage: page,
		position: r.start,
	}
	if mode == ReadWrite {
		m.RootPage = page
	}
	return OK
}

func opOpenRead(m *Machine, inst Instruction) Kind {
	return openCursor(m, inst, ReadOnly)
}

func opOpenWrite(m *Machine, inst Instruction) Kind {
	return openCursor(m, inst, ReadWrite)
}

// opClose removes cursor P1 from the cursor table.
func opClose(m *Machine, inst Instruction) Kind {
	if _, k := m.cursorFor(inst.P1); k != OK {
		return k
	}
	delete(m.cursors, inst.P1)
	return OK
}

// opRewind positions cursor P1 at its table's first cell, or jumps to P2 if
// the table has no cells at all.
func opRewind(m *Machine, inst Instruction) Kind {
	c, k := m.cursorFor(inst.P1)
	if k != OK {
		return k
	}
	r := m.runFor(c)
	if r.count == 0 {
		return m.jump(inst.P2)
	}
	c.position = r.start
	return OK
}

// opNext advances cursor P1 by one position and jumps to P2 so long as doing
// so stays inside the owning run; otherwise it falls through at the end of
// the scan, leaving the cursor on its last cell.
func opNext(m *Machine, inst Instruction) Kind {
	c, k := m.cursorFor(inst.P1)
	if k != OK {
		return k
	}
	r := m.runFor(c)
	if c.position+1 < r.start+r.count {
		c.position++
		return m.jump(inst.P2)
	}
	return OK
}

// opPrev steps cursor P1 back one position and jumps to P2. Its boundary
// check is asymmetric against Next: it refuses to move from the run's second
// cell back to its first (strict ">" where Next uses "<"), a known
// off-by-one kept deliberately.
func opPrev(m *Machine, inst Instruction) Kind {
	c, k := m.cursorFor(inst.P1)
	if k != OK {
		return k
	}
	r := m.runFor(c)
	if c.position-r.start > 1 {
		c.position--
		return m.jump(inst.P2)
	}
	return OK
}

// opSeek scans cursor P1's run from its start for a cell whose key equals
// the literal P3, setting position and falling through on a hit, jumping to
// P2 on a miss.
func opSeek(m *Machine, inst Instruction) Kind {
	c, k := m.cursorFor(inst.P1)
	if k != OK {
		return k
	}
	r := m.runFor(c)
	for i := r.start; i < r.start+r.count; i++ {
		if m.cellIndex[i].Key == inst.P3 {
			c.position = i
			return OK
		}
	}
	return m.jump(inst.P2)
}

// opSeekGt positions cursor P1 at the least key strictly greater than the
// literal P3, jumping to P2 if none exists.
func opSeekGt(m *Machine, inst Instruction) Kind {
	c, k := m.cursorFor(inst.P1)
	if k != OK {
		return k
	}
	r := m.runFor(c)
	for i := r.start; i < r.start+r.count; i++ {
		if m.cellIndex[i].Key > inst.P3 {
			c.position = i
			return OK
		}
	}
	return m.jump(inst.P2)
}

// opSeekGe positions cursor P1 at the least key greater than or equal to the
// literal P3, jumping to P2 if none exists.
func opSeekGe(m *Machine, inst Instruction) Kind {
	c, k := m.cursorFor(inst.P1)
	if k != OK {
		return k
	}
	r := m.runFor(c)
	for i := r.start; i < r.start+r.count; i++ {
		if m.cellIndex[i].Key >= inst.P3 {
			c.position = i
			return OK
		}
	}
	return m.jump(inst.P2)
}
