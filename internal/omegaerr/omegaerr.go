// Package omegaerr is the settlement program's error taxonomy: domain errors
// with fixed codes, assertion errors that pack their check site into a
// 32-bit code, and classification of the runtime errors that pass through
// from nested calls.
package omegaerr

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/blockworks-foundation/omega/internal/ledger"
)

// Code is the numeric form of a program error as seen by a submitter.
type Code uint32

// Domain codes.
const (
	CodeBorrow                      Code = 0
	CodeInvalidOutcomeMintAuthority Code = 1
	CodeInvalidWinner               Code = 2
	CodeUnknown                     Code = 1000
)

// FileID identifies the source unit an assertion fired in. It occupies the
// top byte of an assertion code.
type FileID uint8

const (
	FileProcessor FileID = iota
	FileState
	FileInstruction
)

func (f FileID) String() string {
	switch f {
	case FileProcessor:
		return "processor"
	case FileState:
		return "state"
	case FileInstruction:
		return "instruction"
	}
	return fmt.Sprintf("file(%d)", uint8(f))
}

// CodeError is a domain error with a fixed code.
type CodeError struct {
	Code Code
	Msg  string
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("omega: %s (code %d)", e.Msg, e.Code)
}

// Is matches any CodeError with the same code, so wrapped copies compare
// equal to the sentinels below.
func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	return ok && t.Code == e.Code
}

var (
	ErrBorrow                      = &CodeError{Code: CodeBorrow, Msg: "account borrow failed"}
	ErrInvalidOutcomeMintAuthority = &CodeError{Code: CodeInvalidOutcomeMintAuthority, Msg: "invalid outcome mint authority"}
	ErrInvalidWinner               = &CodeError{Code: CodeInvalidWinner, Msg: "invalid winner"}
	ErrUnknown                     = &CodeError{Code: CodeUnknown, Msg: "unknown error"}
)

// AssertionError is a failed precondition. Its code is the line number in
// the low bits and the file id in the top byte.
type AssertionError struct {
	File FileID
	Line uint32
}

func (e *AssertionError) Code() Code {
	return Code(e.Line&0xffff | uint32(e.File)<<24)
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("omega: assertion failed at %s:%d (code %#x)", e.File, e.Line, uint32(e.Code()))
}

// Checker produces assertion errors tagged with its file id.
type Checker FileID

// Assert returns nil when cond holds, otherwise an AssertionError carrying
// the caller's line.
func (c Checker) Assert(cond bool) error {
	if cond {
		return nil
	}
	_, _, line, _ := runtime.Caller(1)
	return &AssertionError{File: FileID(c), Line: uint32(line)}
}

// Kind partitions errors for reporting.
type Kind string

const (
	KindRuntime   Kind = "runtime"
	KindDomain    Kind = "domain"
	KindAssertion Kind = "assertion"
)

// Classify reports which part of the taxonomy err belongs to. Anything that
// is not a domain or assertion error is a passthrough from the runtime or a
// nested program.
func Classify(err error) Kind {
	var ce *CodeError
	if errors.As(err, &ce) {
		return KindDomain
	}
	var ae *AssertionError
	if errors.As(err, &ae) {
		return KindAssertion
	}
	return KindRuntime
}

// Coder is implemented by errors of nested programs that carry their own
// numeric code.
type Coder interface {
	ErrorCode() uint32
}

// CodeOf returns the numeric code for err. Errors without any known code map
// to CodeUnknown.
func CodeOf(err error) Code {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var ae *AssertionError
	if errors.As(err, &ae) {
		return ae.Code()
	}
	var c Coder
	if errors.As(err, &c) {
		return Code(c.ErrorCode())
	}
	if code, ok := ledger.RuntimeCode(err); ok {
		return Code(code)
	}
	return CodeUnknown
}

// FromBorrow maps a failed account borrow to ErrBorrow and passes every
// other error through.
func FromBorrow(err error) error {
	if errors.Is(err, ledger.ErrAccountBorrowFailed) {
		return fmt.Errorf("%w: %w", ErrBorrow, err)
	}
	return err
}
