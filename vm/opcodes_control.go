package vm

// opHalt records the caller-supplied error code and message and stops the
// machine. Halt itself never raises a dispatcher Kind error; the code/message
// are informational for whatever compiled the program (e.g. a failed
// uniqueness check emits Halt(1, "..."), a clean finish emits Halt(0, "")).
func opHalt(m *Machine, inst Instruction) Kind {
	m.HaltCode = inst.P1
	m.HaltMsg = inst.P4String
	m.halted = true
	return OK
}

// opcodeHandlers dispatches each Opcode to its handler. Every opcode in the
// set lives here in one place so execute can stay a single map lookup plus
// call, with operand resolution (reading vs. writing vs. creating a
// register/cursor) happening inside each handler.
var opcodeHandlers = map[Opcode]func(*Machine, Instruction) Kind{
	OpOpenRead:   opOpenRead,
	OpOpenWrite:  opOpenWrite,
	OpClose:      opClose,
	OpRewind:     opRewind,
	OpNext:       opNext,
	OpPrev:       opPrev,
	OpSeek:       opSeek,
	OpSeekGt:     opSeekGt,
	OpSeekGe:     opSeekGe,
	OpColumn:     opColumn,
	OpKey:        opKey,
	OpInteger:    opInteger,
	OpString:     opString,
	OpNull:       opNull,
	OpResultRow:  opResultRow,
	OpMakeRecord: opMakeRecord,
	OpInsert:     opInsert,
	OpEq:         opEq,
	OpNe:         opNe,
	OpLt:         opLt,
	OpLe:         opLe,
	OpGt:         opGt,
	OpGe:         opGe,
	OpIdxGt:      opIdxGt,
	OpIdxGe:      opIdxGe,
	OpIdxLt:      opIdxLt,
	OpIdxLe:      opIdxLe,
	OpIdxKey:     opIdxKey,
	OpIdxInsert:  opIdxInsert,
	OpSCopy:      opSCopy,
	OpHalt:       opHalt,
}
