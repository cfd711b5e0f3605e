package zmachine

import "fmt"

// FatalError aborts the running story. The interpreter's Run loop recovers
// exactly one FatalError per invocation and returns it to the caller;
// story state past the failing instruction is not well-defined.
type FatalError struct {
	PC      uint32
	Message string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("zmachine: fatal error at %#x: %s", e.PC, e.Message)
}

func fatalf(pc uint32, format string, args ...any) *FatalError {
	return &FatalError{PC: pc, Message: fmt.Sprintf(format, args...)}
}

// Warning is a recoverable condition worth surfacing once - stack
// underflow, a forgiving get_prop on an oversized property, and similar
// "the story file is slightly wrong but we can keep going" situations.
// Each distinct Code is reported at most once per run.
type Warning struct {
	Code    string
	PC      uint32
	Message string
}

func (w Warning) Error() string {
	return fmt.Sprintf("zmachine: warning [%s] at %#x: %s", w.Code, w.PC, w.Message)
}

// warnOnce emits w on z.Warnings the first time Code is seen, and is a
// no-op on every subsequent call with the same Code - the opcode handlers
// call this liberally without needing to track de-dup state themselves.
func (z *ZMachine) warnOnce(code string, pc uint32, format string, args ...any) {
	if z.seenWarnings[code] {
		return
	}
	z.seenWarnings[code] = true
	z.Warnings = append(z.Warnings, Warning{Code: code, PC: pc, Message: fmt.Sprintf(format, args...)})
}
