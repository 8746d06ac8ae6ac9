// Package forth implements the kernel's Forth virtual machine: a
// tokenising interpreter/compiler over an owned, forkable dictionary
// arena, with synchronous builtins and an async-builtin extension used
// by the kernel bindings.
package forth

import "errors"

var (
	// ErrStackEmpty and ErrStackOverflow are the stack failure modes.
	ErrStackEmpty    = errors.New("forth: stack empty")
	ErrStackOverflow = errors.New("forth: stack overflow")

	// ErrWordNotInDict means a needed word was not found: a compiler
	// primitive, the target of ', or an async builtin with no
	// implementation.
	ErrWordNotInDict = errors.New("forth: word not in dictionary")
	// ErrLookupFailed means a token matched nothing at all.
	ErrLookupFailed = errors.New("forth: lookup failed")
	// ErrBadLiteral means a token looked numeric but did not parse.
	ErrBadLiteral = errors.New("forth: bad literal")

	// ErrInterpretingCompileOnlyWord is returned for structural words
	// outside a definition.
	ErrInterpretingCompileOnlyWord = errors.New("forth: interpreting a compile-only word")
	ErrIfWithoutThen               = errors.New("forth: if without then")
	ErrIfElseWithoutThen           = errors.New("forth: if else without then")
	ErrElseBeforeIf                = errors.New("forth: else before if")
	ErrThenBeforeIf                = errors.New("forth: then before if")
	ErrDoWithoutLoop               = errors.New("forth: do without loop")
	ErrLoopBeforeDo                = errors.New("forth: loop before do")
	ErrDuplicateElse               = errors.New("forth: duplicate else")

	// ErrColonCompileMissingName is returned when ':' hits end of input.
	ErrColonCompileMissingName = errors.New("forth: colon compile missing name")
	// ErrColonCompileMissingSemicolon is returned when a definition is
	// never closed.
	ErrColonCompileMissingSemicolon = errors.New("forth: colon compile missing semicolon")
	// ErrBadStrLiteral is returned for an unterminated string literal.
	ErrBadStrLiteral = errors.New("forth: bad string literal")

	// ErrPendingCallAgain is the internal control signal telling the
	// execution loop to re-enter without popping the call stack. It is
	// never surfaced to users.
	ErrPendingCallAgain = errors.New("forth: pending call again")

	// ErrBadCFA means a parameter field cell that should reference an
	// entry did not.
	ErrBadCFA = errors.New("forth: bad cfa cell")
	// ErrBadAddress means a cell address was outside the dictionary.
	ErrBadAddress = errors.New("forth: bad cell address")
	// ErrDictFull means the dictionary arena is exhausted.
	ErrDictFull = errors.New("forth: dictionary full")
	// ErrOutputFull means the output buffer is exhausted.
	ErrOutputFull = errors.New("forth: output buffer full")
	// ErrInputTooLong means a Fill exceeded the input buffer.
	ErrInputTooLong = errors.New("forth: input too long")
	// ErrWordInvalid means a stack value had the wrong shape (e.g. a
	// number where an execution token was needed).
	ErrWordInvalid = errors.New("forth: invalid word value")

	// ErrInternal covers async builtin failures surfaced to the VM.
	ErrInternal = errors.New("forth: internal error")
)
