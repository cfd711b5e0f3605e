// Package zmachine implements the execution engine: the call stack,
// opcode decoder and dispatcher, screen/stream state, and the Quetzal
// save format, wired against a story's memory image, object tree,
// dictionary, and string tables.
package zmachine

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/colinmarc/zif/dictionary"
	"github.com/colinmarc/zif/zcore"
	"github.com/colinmarc/zif/zobject"
	"github.com/colinmarc/zif/zstring"
	"github.com/colinmarc/zif/ztable"
)

type memoryStream struct {
	baseAddress uint32
	ptr         uint32
}

// outputStreams tracks which of the four output streams (screen,
// transcript, memory, command script) are currently selected. Stream 3
// (memory) nests - each activation pushes a new entry and deactivation
// pops it, per spec.md S6.
type outputStreams struct {
	screen        bool
	transcript    bool
	memory        bool
	memoryStreams []memoryStream
	commandScript bool
}

// undoState is one save_undo snapshot: a full copy of dynamic memory, the
// call stack at the moment save_undo was called, and where to resume.
type undoState struct {
	dynamicMemory []uint8
	callStack     CallStack
	pc            uint32
	destVar       uint8
}

// ZMachine is a single running story: its memory image, parsed header and
// dictionary, call stack, screen state, and the host collaborators it
// drives output through and reads input from.
type ZMachine struct {
	mem        *zcore.Memory
	header     *zcore.Header
	alphabets  *zstring.Alphabets
	dictionary *dictionary.Dictionary

	callStack   CallStack
	screenModel ScreenModel
	streams     outputStreams
	rng         *rand.Rand

	screen    Screen
	keyboard  Keyboard
	saveFiler SaveFiler

	undoStates []undoState

	Warnings     []Warning
	seenWarnings map[string]bool
}

// NewZMachine loads storyFile and returns a machine positioned at the
// story's entry point, ready for Run.
func NewZMachine(storyFile []uint8, screen Screen, keyboard Keyboard, saveFiler SaveFiler) *ZMachine {
	mem := zcore.NewMemory(storyFile)
	header := zcore.LoadHeader(mem)
	alphabets := zstring.LoadAlphabets(header, mem)

	z := &ZMachine{
		mem:          mem,
		header:       header,
		alphabets:    alphabets,
		screen:       screen,
		keyboard:     keyboard,
		saveFiler:    saveFiler,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		streams:      outputStreams{screen: true},
		seenWarnings: make(map[string]bool),
	}
	z.dictionary = dictionary.Parse(mem, header, alphabets)
	z.screenModel = newScreenModel(Color{255, 255, 255}, Color{0, 0, 0})
	z.callStack.push(CallStackFrame{pc: uint32(header.InitialPC)})

	return z
}

func (z *ZMachine) readIncPC(frame *CallStackFrame) uint8 {
	v := z.mem.ReadByte(frame.pc)
	frame.pc++
	return v
}

func (z *ZMachine) readHalfWordIncPC(frame *CallStackFrame) uint16 {
	v := z.mem.ReadHalfWord(frame.pc)
	frame.pc += 2
	return v
}

// readVariable reads variable 0 (the current frame's evaluation stack),
// 1-15 (locals), or 16+ (globals). indirect selects the 7-opcode special
// case (inc, dec, inc_chk, dec_chk, load, store, pull) where variable 0
// reads the top of stack in place instead of popping it.
func (z *ZMachine) readVariable(variable uint8, indirect bool) uint16 {
	frame := z.callStack.peek()
	switch {
	case variable == 0:
		if indirect {
			return frame.peekStack(z)
		}
		return frame.pop(z)
	case variable < 16:
		if int(variable-1) >= len(frame.locals) {
			panic(fatalf(frame.pc, "read of non-existent local variable %d", variable))
		}
		return frame.locals[variable-1]
	default:
		addr := uint32(z.header.GlobalVariableBase) + 2*uint32(variable-16)
		return z.mem.ReadHalfWord(addr)
	}
}

func (z *ZMachine) writeVariable(variable uint8, value uint16, indirect bool) {
	frame := z.callStack.peek()
	switch {
	case variable == 0:
		if indirect {
			if len(frame.evalStack) == 0 {
				z.warnOnce("stack_underflow_write", frame.pc, "indirect write to an empty evaluation stack")
				frame.push(value)
			} else {
				frame.evalStack[len(frame.evalStack)-1] = value
			}
		} else {
			frame.push(value)
		}
	case variable < 16:
		if int(variable-1) >= len(frame.locals) {
			panic(fatalf(frame.pc, "write to non-existent local variable %d", variable))
		}
		frame.locals[variable-1] = value
	default:
		addr := uint32(z.header.GlobalVariableBase) + 2*uint32(variable-16)
		z.mem.WriteHalfWord(addr, value)
	}
}

func boolToU16(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

// call pushes a new activation record for a call/call_vs/call_vn family
// instruction. A packed address of 0 is the documented no-op: the call
// never happens and 0 is stored as the (never produced) return value.
func (z *ZMachine) call(frame *CallStackFrame, opcode *Opcode, routineType RoutineType) {
	routineAddress := z.header.PackedAddress(uint32(opcode.operands[0].Value(z)), false)

	if routineAddress == 0 {
		if routineType == routineFunction {
			z.writeVariable(z.readIncPC(frame), 0, false)
		}
		return
	}

	localCount := z.mem.ReadByte(routineAddress)
	routineAddress++

	locals := make([]uint16, localCount)
	for i := 0; i < int(localCount); i++ {
		if i+1 < len(opcode.operands) {
			locals[i] = opcode.operands[i+1].Value(z)
		} else if z.header.Version < 5 {
			locals[i] = z.mem.ReadHalfWord(routineAddress)
		}
		if z.header.Version < 5 {
			routineAddress += 2
		}
	}

	z.callStack.push(CallStackFrame{
		pc:              routineAddress,
		locals:          locals,
		routineType:     routineType,
		numValuesPassed: len(opcode.operands) - 1,
	})
}

// handleBranch consumes the branch descriptor following an instruction and
// jumps if result matches the descriptor's polarity. Offsets 0 and 1 are
// the documented shorthand for "return false"/"return true" instead of a
// jump.
func (z *ZMachine) handleBranch(frame *CallStackFrame, result bool) {
	branchArg1 := z.readIncPC(frame)

	branchReversed := (branchArg1>>7)&1 == 0
	singleByte := (branchArg1>>6)&1 == 1
	offset := int32(branchArg1 & 0b11_1111)

	if !singleByte {
		offset = int32(int16((uint16(branchArg1&0b11_1111)<<8|uint16(z.readIncPC(frame)))<<2) >> 2)
	}

	if result != branchReversed {
		switch offset {
		case 0:
			z.retValue(0)
		case 1:
			z.retValue(1)
		default:
			frame.pc = uint32(int32(frame.pc) + offset - 2)
		}
	}
}

// retValue pops the current frame and, if it was a function call (one
// whose result is used, as opposed to a discarded procedure call), stores
// val into the destination variable named by the caller's post-call store
// byte.
func (z *ZMachine) retValue(val uint16) {
	oldFrame, ok := z.callStack.pop()
	if !ok {
		panic(fatalf(0, "return with no active call frame"))
	}
	newFrame := z.callStack.peek()
	if newFrame == nil {
		panic(fatalf(oldFrame.pc, "returned past the top-level frame"))
	}
	if oldFrame.routineType == routineFunction {
		dest := z.readIncPC(newFrame)
		z.writeVariable(dest, val, false)
	}
}

// RemoveObject detaches objID from its parent's child/sibling chain,
// per insert_obj/remove_obj's documented tree-surgery semantics.
func (z *ZMachine) RemoveObject(objID uint16) {
	if objID == 0 {
		return
	}
	obj := zobject.Get(z.mem, z.header, objID)
	if obj.Parent == 0 {
		return
	}

	parent := zobject.Get(z.mem, z.header, obj.Parent)
	if parent.Child == obj.Id {
		parent.SetChild(z.mem, z.header, obj.Sibling)
	} else {
		siblingID := parent.Child
		for siblingID != 0 {
			sib := zobject.Get(z.mem, z.header, siblingID)
			if sib.Sibling == obj.Id {
				sib.SetSibling(z.mem, z.header, obj.Sibling)
				break
			}
			siblingID = sib.Sibling
		}
	}

	obj.SetParent(z.mem, z.header, 0)
	obj.SetSibling(z.mem, z.header, 0)
}

// MoveObject detaches objID from wherever it currently sits and makes it
// the first child of newParent.
func (z *ZMachine) MoveObject(objID, newParent uint16) {
	if objID == 0 {
		return
	}
	z.RemoveObject(objID)
	obj := zobject.Get(z.mem, z.header, objID)

	dest := zobject.Get(z.mem, z.header, newParent)
	obj.SetSibling(z.mem, z.header, dest.Child)
	obj.SetParent(z.mem, z.header, newParent)
	dest.SetChild(z.mem, z.header, objID)
}

// appendText routes decoded story text to whichever output streams are
// currently selected. Per spec.md S6, while stream 3 (memory) is active no
// text reaches any other stream even though they remain selected.
func (z *ZMachine) appendText(text string) {
	if z.streams.memory {
		stream := &z.streams.memoryStreams[len(z.streams.memoryStreams)-1]
		for i := 0; i < len(text); i++ {
			z.mem.WriteByte(stream.ptr, text[i])
			stream.ptr++
		}
		return
	}

	if z.streams.screen {
		var style TextStyle
		var fg, bg Color
		if z.screenModel.LowerWindowActive {
			style = z.screenModel.LowerTextStyle
			fg, bg = z.screenModel.LowerForeground, z.screenModel.LowerBackground
		} else {
			style = z.screenModel.UpperTextStyle
			fg, bg = z.screenModel.UpperForeground, z.screenModel.UpperBackground
		}
		z.screen.Write(text, fg, bg, style)

		if !z.screenModel.LowerWindowActive {
			lines := strings.Split(text, "\n")
			if len(lines) > 1 {
				z.screenModel.UpperCursorY += len(lines) - 1
				z.screenModel.UpperCursorX = len(lines[len(lines)-1]) + 1
			} else {
				z.screenModel.UpperCursorX += len(lines[0])
			}
		}
	}

	if z.streams.transcript {
		z.warnOnce("transcript_unsupported", 0, "transcript stream selected but no host sink is wired; output is dropped")
	}
	if z.streams.commandScript {
		z.warnOnce("command_script_unsupported", 0, "command script stream selected but no host sink is wired; output is dropped")
	}
}

func (z *ZMachine) refreshStatusBar() {
	location := zobject.Get(z.mem, z.header, z.readVariable(16, false))
	z.screen.ShowStatusBar(StatusBar{
		PlaceName:   location.Name(z.mem, z.header, z.alphabets),
		Score:       int(int16(z.readVariable(17, false))),
		Moves:       int(int16(z.readVariable(18, false))),
		IsTimeBased: z.header.StatusLineIsTimeBased,
	})
}

type parsedWord struct {
	text     []uint8
	start    uint32
	dictAddr uint16
}

func (z *ZMachine) tokeniseSingleWord(text []uint8, start uint32, dict *dictionary.Dictionary) parsedWord {
	encoded := zstring.Encode(text, z.header, z.alphabets)
	return parsedWord{text: text, start: start, dictAddr: uint16(dict.Find(encoded))}
}

// Tokenise implements the sread/aread/tokenise word-splitting algorithm:
// split the text buffer on spaces and the dictionary's separator set
// (separators are themselves emitted as one-character words), look each
// word up, and write the parse buffer entries. leaveWordsBlank is
// tokenise's optional fourth operand: when set, a word absent from the
// dictionary has its parse-buffer slot left untouched rather than zeroed.
func (z *ZMachine) Tokenise(textBufferAddr, parseBufferAddr uint32, dict *dictionary.Dictionary, leaveWordsBlank bool) {
	start := textBufferAddr + 1
	var length uint32
	if z.header.Version >= 5 {
		length = uint32(z.mem.ReadByte(start))
		start++
	} else {
		end := start
		for z.mem.ReadByte(end) != 0 {
			end++
		}
		length = end - start
	}

	var words []parsedWord
	wordStart := start
	for ix := uint32(0); ix < length; ix++ {
		pos := start + ix
		ch := z.mem.ReadByte(pos)

		if ch == ' ' || dict.IsSeparator(ch) {
			if pos > wordStart {
				words = append(words, z.tokeniseSingleWord(z.mem.ReadSlice(wordStart, pos), wordStart, dict))
			}
			if dict.IsSeparator(ch) {
				words = append(words, z.tokeniseSingleWord(z.mem.ReadSlice(pos, pos+1), pos, dict))
			}
			wordStart = pos + 1
		}
	}
	if start+length > wordStart {
		words = append(words, z.tokeniseSingleWord(z.mem.ReadSlice(wordStart, start+length), wordStart, dict))
	}

	maxWords := int(z.mem.ReadByte(parseBufferAddr))
	if len(words) > maxWords {
		z.warnOnce("parse_buffer_overflow", 0, "input produced more words than the parse buffer allows; extra words dropped")
		words = words[:maxWords]
	}

	ptr := parseBufferAddr + 1
	z.mem.WriteByte(ptr, uint8(len(words)))
	ptr++
	for _, w := range words {
		if leaveWordsBlank && w.dictAddr == 0 {
			ptr += 4
			continue
		}
		z.mem.WriteHalfWord(ptr, w.dictAddr)
		z.mem.WriteByte(ptr+2, uint8(len(w.text)))
		z.mem.WriteByte(ptr+3, uint8(w.start-textBufferAddr))
		ptr += 4
	}
}

// terminatingChars returns the set of ZSCII codes that end a sread/aread
// line beyond the default newline, per the v5+ custom terminator table
// (code 255 in that table is the documented "all function keys" wildcard).
func (z *ZMachine) terminatingChars() []uint8 {
	terminators := []uint8{'\n'}
	if z.header.Version < 5 || z.header.TerminatingCharTableBase == 0 {
		return terminators
	}

	ptr := uint32(z.header.TerminatingCharTableBase)
	for {
		b := z.mem.ReadByte(ptr)
		if b == 0 {
			return terminators
		}
		if b == 255 {
			return []uint8{
				'\n', 129, 130, 131, 132, 133, 134, 135, 136, 137, 138, 139, 140, 141,
				142, 143, 144, 145, 146, 147, 148, 149, 150, 151, 152, 153, 154, 252, 253, 254,
			}
		}
		if (b >= 129 && b <= 154) || (b >= 252 && b <= 254) {
			terminators = append(terminators, b)
		}
		ptr++
	}
}

// read implements sread/aread: refresh the v1-3 status bar, block for a
// line of input, lowercase and clip it into the text buffer, and tokenise
// it unless the parse buffer address is 0. Timed-interrupt operands
// (routine, time) are accepted and ignored - spec.md's documented decision
// not to support timed input.
func (z *ZMachine) read(ctx context.Context, frame *CallStackFrame, opcode *Opcode) {
	if z.header.Version <= 3 {
		z.refreshStatusBar()
	}
	_ = z.terminatingChars() // result unused: input always ends at a newline, and aread stores 13 as the terminator

	textBufferAddr := uint32(opcode.operands[0].Value(z))
	var parseBufferAddr uint32
	if len(opcode.operands) > 1 {
		parseBufferAddr = uint32(opcode.operands[1].Value(z))
	}

	bufferSize := z.mem.ReadByte(textBufferAddr)
	dataStart := textBufferAddr + 1

	existingLen := 0
	if z.header.Version >= 5 {
		existingLen = int(z.mem.ReadByte(dataStart))
		dataStart += 1 + uint32(existingLen)
	}

	raw, err := z.keyboard.ReadLine(ctx, "", int(bufferSize)-existingLen)
	if err != nil {
		panic(fatalf(frame.pc, "read: %v", err))
	}

	lowered := strings.ToLower(string(raw))

	ix := 0
	for ix < len(lowered) && existingLen+ix < int(bufferSize) {
		z.mem.WriteByte(dataStart+uint32(ix), lowered[ix])
		ix++
	}

	if z.header.Version >= 5 {
		z.mem.WriteByte(textBufferAddr+1, uint8(existingLen+ix))
	} else {
		z.mem.WriteByte(dataStart+uint32(ix), 0)
	}

	if parseBufferAddr != 0 {
		z.Tokenise(textBufferAddr, parseBufferAddr, z.dictionary, false)
	}

	if z.header.Version >= 5 {
		z.writeVariable(z.readIncPC(frame), 13, false)
	}
}

// pushUndo saves a save_undo snapshot; restoreUndo pops and applies the
// most recent one.
func (z *ZMachine) pushUndo(pc uint32, destVar uint8) {
	staticBase := uint32(z.header.StaticMemoryBase)
	snapshot := append([]uint8(nil), z.mem.ReadSlice(0, staticBase)...)
	z.undoStates = append(z.undoStates, undoState{
		dynamicMemory: snapshot,
		callStack:     z.callStack.copy(),
		pc:            pc,
		destVar:       destVar,
	})
}

func (z *ZMachine) restoreUndo() bool {
	if len(z.undoStates) == 0 {
		return false
	}
	state := z.undoStates[len(z.undoStates)-1]
	z.undoStates = z.undoStates[:len(z.undoStates)-1]

	copy(z.mem.ReadSlice(0, uint32(len(state.dynamicMemory))), state.dynamicMemory)
	z.callStack = state.callStack.copy()

	frame := z.callStack.peek()
	frame.pc = state.pc
	z.writeVariable(state.destVar, 2, false)
	return true
}

// Run executes instructions until the story issues quit, a host-cancelled
// context aborts the loop, or a FatalError is raised. Exactly one
// FatalError per call is recovered and returned; any other panic is a
// genuine interpreter bug and is re-raised.
func (z *ZMachine) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*FatalError); ok {
				err = fe
				return
			}
			panic(r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !z.Step(ctx) {
			return nil
		}
	}
}

// Step decodes and executes exactly one instruction, returning false once
// the story has issued quit.
func (z *ZMachine) Step(ctx context.Context) bool {
	opcode := ParseOpcode(z)
	frame := z.callStack.peek()

	switch opcode.operandCount {
	case OP0:
		return z.stepOP0(ctx, frame, &opcode)
	case OP1:
		z.stepOP1(frame, &opcode)
	case OP2:
		z.stepOP2(frame, &opcode)
	case VAR:
		if opcode.opcodeForm == extForm {
			z.stepExt(ctx, frame, &opcode)
		} else {
			z.stepVar(ctx, frame, &opcode)
		}
	}

	return true
}

func (z *ZMachine) stepOP0(ctx context.Context, frame *CallStackFrame, opcode *Opcode) bool {
	switch opcode.opcodeNumber {
	case 0: // rtrue
		z.retValue(1)

	case 1: // rfalse
		z.retValue(0)

	case 2: // print
		text, bytesRead := zstring.Decode(z.mem, frame.pc, z.header, z.alphabets)
		frame.pc += bytesRead
		z.appendText(text)

	case 3: // print_ret
		text, bytesRead := zstring.Decode(z.mem, frame.pc, z.header, z.alphabets)
		frame.pc += bytesRead
		z.appendText(text)
		z.appendText("\n")
		z.retValue(1)

	case 4: // nop
		// Genuinely a no-op in every version that still assembles it.

	case 5: // save (v1-4; v5+ stories use the EXT form instead)
		resumePC := frame.pc
		data := z.EncodeQuetzal(resumePC)
		err := z.saveFiler.Save(ctx, data)
		if z.header.Version <= 3 {
			z.handleBranch(frame, err == nil)
		} else {
			z.writeVariable(z.readIncPC(frame), boolToU16(err == nil), false)
		}

	case 6: // restore
		z.doRestore(ctx, frame)

	case 7: // restart
		z.doRestart()
		return true

	case 8: // ret_popped
		z.retValue(frame.pop(z))

	case 9: // pop (v1-4) / catch (v5+)
		if z.header.Version >= 5 {
			z.writeVariable(z.readIncPC(frame), uint16(frame.framePointer), false)
		} else {
			frame.pop(z)
		}

	case 10: // quit
		return false

	case 11: // new_line
		z.appendText("\n")

	case 12: // show_status (v3 only)
		z.refreshStatusBar()

	case 13: // verify
		z.handleBranch(frame, z.mem.Verify(z.header.Checksum, z.header.FileLength()))

	case 15: // piracy
		z.handleBranch(frame, true) // interpreters are asked to be gullible

	default:
		panic(fatalf(frame.pc, "unimplemented 0OP opcode %#x", opcode.opcodeByte))
	}

	return true
}

// doRestore implements the pre-v5 0OP:restore opcode (branch on v1-3,
// store on v4). v5+ stories use the EXT restore handler instead.
func (z *ZMachine) doRestore(ctx context.Context, frame *CallStackFrame) {
	z.finishRestore(ctx, frame, true)
}

func (z *ZMachine) finishRestore(ctx context.Context, frame *CallStackFrame, legacyForm bool) {
	data, err := z.saveFiler.Restore(ctx)
	if err != nil {
		z.reportRestoreFailure(frame, legacyForm)
		return
	}

	resumePC, err := z.DecodeQuetzal(data)
	if err != nil {
		z.warnOnce("restore_failed", frame.pc, "%v", err)
		z.reportRestoreFailure(frame, legacyForm)
		return
	}

	newFrame := z.callStack.peek()
	newFrame.pc = resumePC
	if legacyForm && z.header.Version <= 3 {
		z.handleBranch(newFrame, true)
	} else {
		z.writeVariable(z.readIncPC(newFrame), 2, false)
	}
}

func (z *ZMachine) reportRestoreFailure(frame *CallStackFrame, legacyForm bool) {
	if legacyForm && z.header.Version <= 3 {
		z.handleBranch(frame, false)
	} else {
		z.writeVariable(z.readIncPC(frame), 0, false)
	}
}

func (z *ZMachine) doRestart() {
	z.mem.Restart()
	z.callStack = CallStack{}
	z.callStack.push(CallStackFrame{pc: uint32(z.header.InitialPC)})
	z.streams = outputStreams{screen: true}
	z.screenModel = newScreenModel(Color{255, 255, 255}, Color{0, 0, 0})
}

func (z *ZMachine) stepOP1(frame *CallStackFrame, opcode *Opcode) {
	switch opcode.opcodeNumber {
	case 0: // jz
		z.handleBranch(frame, opcode.operands[0].Value(z) == 0)

	case 1: // get_sibling
		sibling := zobject.Get(z.mem, z.header, opcode.operands[0].Value(z)).Sibling
		z.writeVariable(z.readIncPC(frame), sibling, false)
		z.handleBranch(frame, sibling != 0)

	case 2: // get_child
		child := zobject.Get(z.mem, z.header, opcode.operands[0].Value(z)).Child
		z.writeVariable(z.readIncPC(frame), child, false)
		z.handleBranch(frame, child != 0)

	case 3: // get_parent
		z.writeVariable(z.readIncPC(frame), zobject.Get(z.mem, z.header, opcode.operands[0].Value(z)).Parent, false)

	case 4: // get_prop_len
		addr := uint32(opcode.operands[0].Value(z))
		z.writeVariable(z.readIncPC(frame), uint16(zobject.PropertyLengthOf(z.mem, z.header, addr)), false)

	case 5: // inc
		variable := uint8(opcode.operands[0].Value(z))
		z.writeVariable(variable, z.readVariable(variable, true)+1, true)

	case 6: // dec
		variable := uint8(opcode.operands[0].Value(z))
		z.writeVariable(variable, z.readVariable(variable, true)-1, true)

	case 7: // print_addr
		str, _ := zstring.Decode(z.mem, uint32(opcode.operands[0].Value(z)), z.header, z.alphabets)
		z.appendText(str)

	case 8: // call_1s
		z.call(frame, opcode, routineFunction)

	case 9: // remove_obj
		z.RemoveObject(opcode.operands[0].Value(z))

	case 10: // print_obj
		obj := zobject.Get(z.mem, z.header, opcode.operands[0].Value(z))
		z.appendText(obj.Name(z.mem, z.header, z.alphabets))

	case 11: // ret
		z.retValue(opcode.operands[0].Value(z))

	case 12: // jump
		offset := int16(opcode.operands[0].Value(z))
		frame.pc = uint32(int32(frame.pc) + int32(offset) - 2)

	case 13: // print_paddr
		addr := z.header.PackedAddress(uint32(opcode.operands[0].Value(z)), true)
		text, _ := zstring.Decode(z.mem, addr, z.header, z.alphabets)
		z.appendText(text)

	case 14: // load
		value := opcode.operands[0].Value(z)
		z.writeVariable(z.readIncPC(frame), z.readVariable(uint8(value), true), false)

	case 15: // not (v1-4) / call_1n (v5+)
		if z.header.Version < 5 {
			z.writeVariable(z.readIncPC(frame), ^opcode.operands[0].Value(z), false)
		} else {
			z.call(frame, opcode, routineProcedure)
		}

	default:
		panic(fatalf(frame.pc, "unimplemented 1OP opcode %#x", opcode.opcodeByte))
	}
}

func (z *ZMachine) stepOP2(frame *CallStackFrame, opcode *Opcode) {
	switch opcode.opcodeNumber {
	case 1: // je
		a := opcode.operands[0].Value(z)
		branch := false
		for _, b := range opcode.operands[1:] {
			if a == b.Value(z) {
				branch = true
			}
		}
		z.handleBranch(frame, branch)

	case 2: // jl
		z.handleBranch(frame, int16(opcode.operands[0].Value(z)) < int16(opcode.operands[1].Value(z)))

	case 3: // jg
		z.handleBranch(frame, int16(opcode.operands[0].Value(z)) > int16(opcode.operands[1].Value(z)))

	case 4: // dec_chk
		variable := uint8(opcode.operands[0].Value(z))
		newValue := int16(z.readVariable(variable, true)) - 1
		z.writeVariable(variable, uint16(newValue), true)
		z.handleBranch(frame, newValue < int16(opcode.operands[1].Value(z)))

	case 5: // inc_chk
		variable := uint8(opcode.operands[0].Value(z))
		newValue := int16(z.readVariable(variable, true)) + 1
		z.writeVariable(variable, uint16(newValue), true)
		z.handleBranch(frame, newValue > int16(opcode.operands[1].Value(z)))

	case 6: // jin
		obj := zobject.Get(z.mem, z.header, opcode.operands[0].Value(z))
		z.handleBranch(frame, obj.Parent == opcode.operands[1].Value(z))

	case 7: // test
		bitmap := opcode.operands[0].Value(z)
		flags := opcode.operands[1].Value(z)
		z.handleBranch(frame, bitmap&flags == flags)

	case 8: // or
		z.writeVariable(z.readIncPC(frame), opcode.operands[0].Value(z)|opcode.operands[1].Value(z), false)

	case 9: // and
		z.writeVariable(z.readIncPC(frame), opcode.operands[0].Value(z)&opcode.operands[1].Value(z), false)

	case 10: // test_attr
		obj := zobject.Get(z.mem, z.header, opcode.operands[0].Value(z))
		z.handleBranch(frame, obj.TestAttribute(opcode.operands[1].Value(z)))

	case 11: // set_attr
		obj := zobject.Get(z.mem, z.header, opcode.operands[0].Value(z))
		obj.SetAttribute(z.mem, z.header, opcode.operands[1].Value(z))

	case 12: // clear_attr
		obj := zobject.Get(z.mem, z.header, opcode.operands[0].Value(z))
		obj.ClearAttribute(z.mem, z.header, opcode.operands[1].Value(z))

	case 13: // store
		z.writeVariable(uint8(opcode.operands[0].Value(z)), opcode.operands[1].Value(z), true)

	case 14: // insert_obj
		z.MoveObject(opcode.operands[0].Value(z), opcode.operands[1].Value(z))

	case 15: // loadw
		addr := uint32(opcode.operands[0].Value(z)) + 2*uint32(opcode.operands[1].Value(z))
		z.writeVariable(z.readIncPC(frame), z.mem.ReadHalfWordWrapped(addr), false)

	case 16: // loadb
		addr := uint32(opcode.operands[0].Value(z)) + uint32(opcode.operands[1].Value(z))
		z.writeVariable(z.readIncPC(frame), uint16(z.mem.ReadByteWrapped(addr)), false)

	case 17: // get_prop
		obj := zobject.Get(z.mem, z.header, opcode.operands[0].Value(z))
		prop, _ := obj.GetProperty(z.mem, z.header, uint8(opcode.operands[1].Value(z)))
		if prop.Length > 2 {
			z.warnOnce("get_prop_oversized", frame.pc, "get_prop read a property longer than 2 bytes; only the first word is returned")
		}
		z.writeVariable(z.readIncPC(frame), prop.Value(z.mem), false)

	case 18: // get_prop_addr
		obj := zobject.Get(z.mem, z.header, opcode.operands[0].Value(z))
		z.writeVariable(z.readIncPC(frame), uint16(obj.GetPropertyAddr(z.mem, z.header, uint8(opcode.operands[1].Value(z)))), false)

	case 19: // get_next_prop
		obj := zobject.Get(z.mem, z.header, opcode.operands[0].Value(z))
		next, err := obj.GetNextProperty(z.mem, z.header, uint8(opcode.operands[1].Value(z)))
		if err != nil {
			panic(fatalf(frame.pc, "%v", err))
		}
		z.writeVariable(z.readIncPC(frame), uint16(next), false)

	case 20: // add
		z.writeVariable(z.readIncPC(frame), opcode.operands[0].Value(z)+opcode.operands[1].Value(z), false)

	case 21: // sub
		z.writeVariable(z.readIncPC(frame), opcode.operands[0].Value(z)-opcode.operands[1].Value(z), false)

	case 22: // mul
		z.writeVariable(z.readIncPC(frame), opcode.operands[0].Value(z)*opcode.operands[1].Value(z), false)

	case 23: // div
		denominator := int16(opcode.operands[1].Value(z))
		if denominator == 0 {
			panic(fatalf(frame.pc, "division by zero"))
		}
		z.writeVariable(z.readIncPC(frame), uint16(int16(opcode.operands[0].Value(z))/denominator), false)

	case 24: // mod
		denominator := int16(opcode.operands[1].Value(z))
		if denominator == 0 {
			panic(fatalf(frame.pc, "division by zero"))
		}
		z.writeVariable(z.readIncPC(frame), uint16(int16(opcode.operands[0].Value(z))%denominator), false)

	case 25: // call_2s
		z.call(frame, opcode, routineFunction)

	case 26: // call_2n
		z.call(frame, opcode, routineProcedure)

	case 27: // set_colour
		fg, fgOK := z.screenModel.ResolveColor(opcode.operands[0].Value(z), z.currentWindow(), true)
		bg, bgOK := z.screenModel.ResolveColor(opcode.operands[1].Value(z), z.currentWindow(), false)
		if z.screenModel.LowerWindowActive {
			if fgOK {
				z.screenModel.LowerForeground = fg
			}
			if bgOK {
				z.screenModel.LowerBackground = bg
			}
		} else {
			if fgOK {
				z.screenModel.UpperForeground = fg
			}
			if bgOK {
				z.screenModel.UpperBackground = bg
			}
		}

	case 28: // throw
		value := opcode.operands[0].Value(z)
		target := uint32(opcode.operands[1].Value(z))
		if !z.callStack.unwindTo(target) {
			panic(fatalf(frame.pc, "throw: no active catch frame %d", target))
		}
		z.retValue(value)

	default:
		panic(fatalf(frame.pc, "unimplemented 2OP opcode %#x", opcode.opcodeByte))
	}
}

func (z *ZMachine) currentWindow() int {
	if z.screenModel.LowerWindowActive {
		return 0
	}
	return 1
}

func (z *ZMachine) stepExt(ctx context.Context, frame *CallStackFrame, opcode *Opcode) {
	switch opcode.opcodeByte {
	case 0x00: // save
		if len(opcode.operands) > 0 {
			// memory-region save is not supported: report failure
			z.writeVariable(z.readIncPC(frame), 0, false)
			break
		}
		data := z.EncodeQuetzal(frame.pc)
		err := z.saveFiler.Save(ctx, data)
		z.writeVariable(z.readIncPC(frame), boolToU16(err == nil), false)

	case 0x01: // restore
		if len(opcode.operands) > 0 {
			// memory-region restore is not supported: report failure
			z.writeVariable(z.readIncPC(frame), 0, false)
			break
		}
		z.finishRestore(ctx, frame, false)

	case 0x02: // log_shift
		num := opcode.operands[0].Value(z)
		places := int16(opcode.operands[1].Value(z))
		var result uint16
		if places >= 0 {
			result = num << uint16(places)
		} else {
			result = num >> uint16(-places)
		}
		z.writeVariable(z.readIncPC(frame), result, false)

	case 0x03: // art_shift
		num := int16(opcode.operands[0].Value(z))
		places := int16(opcode.operands[1].Value(z))
		var result int16
		if places >= 0 {
			result = num << uint16(places)
		} else {
			result = num >> uint16(-places)
		}
		z.writeVariable(z.readIncPC(frame), uint16(result), false)

	case 0x04: // set_font
		// Open question resolved per spec.md S9: font 0 queries (and
		// reports 1 = Normal, since no v6 fonts are modeled), font 1
		// sets-and-returns-1, any other font number is refused.
		font := opcode.operands[0].Value(z)
		var result uint16
		switch font {
		case 0:
			result = uint16(z.screenModel.CurrentFont)
		case 1:
			z.screenModel.CurrentFont = FontNormal
			result = 1
		default:
			result = 0
		}
		z.writeVariable(z.readIncPC(frame), result, false)

	case 0x05: // draw_picture
		z.warnOnce("graphics_unsupported", frame.pc, "draw_picture ignored: graphics are out of scope")

	case 0x06: // picture_data
		z.warnOnce("graphics_unsupported", frame.pc, "picture_data ignored: graphics are out of scope")
		z.handleBranch(frame, false)

	case 0x07: // erase_picture
		z.warnOnce("graphics_unsupported", frame.pc, "erase_picture ignored: graphics are out of scope")

	case 0x08: // set_margins
		z.warnOnce("graphics_unsupported", frame.pc, "set_margins ignored: no host margin surface")

	case 0x09: // save_undo
		destVar := z.readIncPC(frame)
		z.pushUndo(frame.pc, destVar)
		z.writeVariable(destVar, 1, false)

	case 0x0a: // restore_undo
		ok := z.restoreUndo()
		if !ok {
			z.writeVariable(z.readIncPC(frame), 0, false)
		}

	case 0x0b: // print_unicode
		z.appendText(string(rune(opcode.operands[0].Value(z))))

	case 0x0c: // check_unicode
		result := uint16(0)
		if opcode.operands[0].Value(z) != 0 {
			result = 0b11 // can both read and write this character
		}
		z.writeVariable(z.readIncPC(frame), result, false)

	case 0x0d: // set_true_colour
		// No true-colour host surface exists beyond the 2-12 standard
		// palette; accepted and ignored.

	default:
		panic(fatalf(frame.pc, "unimplemented EXT opcode %#x", opcode.opcodeByte))
	}
}

func (z *ZMachine) stepVar(ctx context.Context, frame *CallStackFrame, opcode *Opcode) {
	switch opcode.opcodeNumber {
	case 0: // call / call_vs
		z.call(frame, opcode, routineFunction)

	case 1: // storew
		addr := uint32(opcode.operands[0].Value(z)) + 2*uint32(opcode.operands[1].Value(z))
		z.mem.WriteHalfWordWrapped(addr, opcode.operands[2].Value(z))

	case 2: // storeb
		addr := uint32(opcode.operands[0].Value(z)) + uint32(opcode.operands[1].Value(z))
		z.mem.WriteByteWrapped(addr, uint8(opcode.operands[2].Value(z)))

	case 3: // put_prop
		obj := zobject.Get(z.mem, z.header, opcode.operands[0].Value(z))
		if err := obj.SetProperty(z.mem, z.header, uint8(opcode.operands[1].Value(z)), opcode.operands[2].Value(z)); err != nil {
			panic(fatalf(frame.pc, "%v", err))
		}

	case 4: // sread / aread
		z.read(ctx, frame, opcode)

	case 5: // print_char
		chr := uint8(opcode.operands[0].Value(z))
		if chr != 0 {
			z.appendText(zstring.ZsciiToText(chr, z.header, z.mem))
		}

	case 6: // print_num
		z.appendText(strconv.Itoa(int(int16(opcode.operands[0].Value(z)))))

	case 7: // random
		n := int16(opcode.operands[0].Value(z))
		result := uint16(0)
		switch {
		case n < 0:
			z.rng = rand.New(rand.NewSource(int64(n)))
		case n == 0:
			z.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		default:
			result = uint16(z.rng.Int31n(int32(n))) + 1
		}
		z.writeVariable(z.readIncPC(frame), result, false)

	case 8: // push
		frame.push(opcode.operands[0].Value(z))

	case 9: // pull
		if z.header.Version == 6 && len(opcode.operands) == 0 {
			frame.evalStack = frame.evalStack[:len(frame.evalStack)-1]
			break
		}
		z.writeVariable(uint8(opcode.operands[0].Value(z)), frame.pop(z), true)

	case 10: // split_window
		height := int(opcode.operands[0].Value(z))
		z.screenModel.UpperWindowHeight = height
		z.screen.SplitWindow(height)

	case 11: // set_window
		window := opcode.operands[0].Value(z)
		z.screenModel.LowerWindowActive = window == 0
		z.screen.SetWindow(int(window))

	case 12: // call_vs2
		z.call(frame, opcode, routineFunction)

	case 13: // erase_window
		window := int16(opcode.operands[0].Value(z))
		if window == 1 || window == -1 {
			z.screenModel.LowerWindowActive = true
			z.screenModel.UpperWindowHeight = 0
		}
		z.screen.EraseWindow(int(window))

	case 14: // erase_line (v4+)
		// No distinct host primitive for partial-line erase; treated as a
		// no-op, matching the documented "acceptable to ignore" fallback.

	case 15: // set_cursor
		line := int(opcode.operands[0].Value(z))
		col := int(opcode.operands[1].Value(z))
		if !z.screenModel.LowerWindowActive {
			z.screenModel.UpperCursorX = col
			z.screenModel.UpperCursorY = line
		}
		z.screen.SetCursor(z.currentWindow(), line, col)

	case 16: // get_cursor
		addr := uint32(opcode.operands[0].Value(z))
		z.mem.WriteHalfWord(addr, uint16(z.screenModel.UpperCursorY))
		z.mem.WriteHalfWord(addr+2, uint16(z.screenModel.UpperCursorX))

	case 17: // set_text_style
		mask := TextStyle(opcode.operands[0].Value(z))
		if z.screenModel.LowerWindowActive {
			if mask == StyleNormal {
				z.screenModel.LowerTextStyle = StyleNormal
			} else {
				z.screenModel.LowerTextStyle |= mask
			}
		} else {
			if mask == StyleNormal {
				z.screenModel.UpperTextStyle = StyleNormal
			} else {
				z.screenModel.UpperTextStyle |= mask
			}
		}

	case 18: // buffer_mode
		z.screen.BufferMode(opcode.operands[0].Value(z) != 0)

	case 19: // output_stream
		stream := int16(opcode.operands[0].Value(z))
		switch stream {
		case 1, -1:
			z.streams.screen = stream > 0
		case 2, -2:
			z.streams.transcript = stream > 0
		case 3:
			base := uint32(opcode.operands[1].Value(z))
			z.streams.memory = true
			z.streams.memoryStreams = append(z.streams.memoryStreams, memoryStream{baseAddress: base, ptr: base + 2})
		case -3:
			if len(z.streams.memoryStreams) > 0 {
				active := z.streams.memoryStreams[len(z.streams.memoryStreams)-1]
				z.mem.WriteHalfWord(active.baseAddress, uint16(active.ptr-active.baseAddress-2))
				z.streams.memoryStreams = z.streams.memoryStreams[:len(z.streams.memoryStreams)-1]
				z.streams.memory = len(z.streams.memoryStreams) > 0
			}
		case 4, -4:
			z.streams.commandScript = stream > 0
		}

	case 20: // input_stream
		// No command-script playback surface; accepted and ignored.

	case 21: // sound_effect
		// No sound host surface; accepted and ignored.

	case 22: // read_char
		chr, err := z.keyboard.ReadChar(ctx)
		if err != nil {
			panic(fatalf(frame.pc, "read_char: %v", err))
		}
		z.writeVariable(z.readIncPC(frame), uint16(chr), false)

	case 23: // scan_table
		test := opcode.operands[0].Value(z)
		tableAddr := uint32(opcode.operands[1].Value(z))
		length := opcode.operands[2].Value(z)
		form := uint16(0x82)
		if len(opcode.operands) > 3 {
			form = opcode.operands[3].Value(z)
		}
		result := ztable.ScanTable(z.mem, test, tableAddr, length, form)
		z.writeVariable(z.readIncPC(frame), uint16(result), false)
		z.handleBranch(frame, result != 0)

	case 24: // not
		z.writeVariable(z.readIncPC(frame), ^opcode.operands[0].Value(z), false)

	case 25: // call_vn
		z.call(frame, opcode, routineProcedure)

	case 26: // call_vn2
		z.call(frame, opcode, routineProcedure)

	case 27: // tokenise
		text := uint32(opcode.operands[0].Value(z))
		parseBuffer := uint32(opcode.operands[1].Value(z))
		dict := z.dictionary
		flag := false

		if len(opcode.operands) > 2 {
			if dictAddr := uint32(opcode.operands[2].Value(z)); dictAddr != 0 {
				dict = dictionary.ParseAt(z.mem, z.header, z.alphabets, dictAddr)
			}
		}
		if len(opcode.operands) > 3 {
			flag = opcode.operands[3].Value(z) != 0
		}

		z.Tokenise(text, parseBuffer, dict, flag)

	case 28: // encode_text
		source := uint32(opcode.operands[0].Value(z))
		length := uint32(opcode.operands[1].Value(z))
		from := uint32(opcode.operands[2].Value(z))
		dest := uint32(opcode.operands[3].Value(z))
		encoded := zstring.Encode(z.mem.ReadSlice(source+from, source+from+length), z.header, z.alphabets)
		copy(z.mem.ReadSlice(dest, dest+uint32(len(encoded))), encoded)

	case 29: // copy_table
		ztable.CopyTable(z.mem, uint32(opcode.operands[0].Value(z)), uint32(opcode.operands[1].Value(z)), int16(opcode.operands[2].Value(z)))

	case 30: // print_table
		addr := uint32(opcode.operands[0].Value(z))
		width := opcode.operands[1].Value(z)
		height := uint16(1)
		skip := uint16(0)
		if len(opcode.operands) > 2 {
			height = opcode.operands[2].Value(z)
			if len(opcode.operands) > 3 {
				skip = opcode.operands[3].Value(z)
			}
		}
		z.appendText(ztable.PrintTable(z.mem, addr, width, height, skip))

	case 31: // check_arg_count
		arg := opcode.operands[0].Value(z)
		z.handleBranch(frame, int(arg) <= frame.numValuesPassed)

	default:
		panic(fatalf(frame.pc, "unimplemented VAR opcode %#x", opcode.opcodeByte))
	}
}
