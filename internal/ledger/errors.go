package ledger

import "errors"

// Runtime errors. Programs return these unchanged; the runtime surfaces them
// to the transaction submitter.
var (
	ErrInvalidArgument          = errors.New("ledger: invalid argument")
	ErrInvalidInstructionData   = errors.New("ledger: invalid instruction data")
	ErrInvalidAccountData       = errors.New("ledger: invalid account data")
	ErrAccountDataTooSmall      = errors.New("ledger: account data too small")
	ErrInsufficientFunds        = errors.New("ledger: insufficient funds")
	ErrIncorrectProgramID       = errors.New("ledger: incorrect program id")
	ErrMissingRequiredSignature = errors.New("ledger: missing required signature")
	ErrAccountAlreadyInUse      = errors.New("ledger: account already in use")
	ErrNotEnoughAccountKeys     = errors.New("ledger: not enough account keys")
	ErrAccountBorrowFailed      = errors.New("ledger: account borrow failed")
	ErrInvalidSeeds             = errors.New("ledger: invalid seeds")
	ErrMaxSeedLengthExceeded    = errors.New("ledger: max seed length exceeded")
	ErrUnsupportedSysvar        = errors.New("ledger: unsupported sysvar")
	ErrAccountNotFound          = errors.New("ledger: account not found")
	ErrUnknownProgram           = errors.New("ledger: unknown program")
	ErrPrivilegeEscalation      = errors.New("ledger: privilege escalation")
	ErrReadonlyDataModified     = errors.New("ledger: readonly account data modified")
	ErrExternalDataModified     = errors.New("ledger: data of account not owned by program modified")
	ErrExternalLamportSpend     = errors.New("ledger: lamports of account not owned by program spent")
	ErrModifiedProgramID        = errors.New("ledger: account owner modified")
	ErrUnbalancedInstruction    = errors.New("ledger: lamports not conserved")
	ErrCallDepth                = errors.New("ledger: call depth exceeded")
	ErrReentrancyNotAllowed     = errors.New("ledger: reentrancy not allowed")
	ErrInvalidSignature         = errors.New("ledger: invalid signature")
	ErrReadonlyLamportChange    = errors.New("ledger: readonly account lamports changed")
	ErrExecutableModified       = errors.New("ledger: executable flag modified")
)

// runtimeCodes gives each runtime error a stable numeric code for receipts.
var runtimeCodes = []error{
	ErrInvalidArgument,
	ErrInvalidInstructionData,
	ErrInvalidAccountData,
	ErrAccountDataTooSmall,
	ErrInsufficientFunds,
	ErrIncorrectProgramID,
	ErrMissingRequiredSignature,
	ErrAccountAlreadyInUse,
	ErrNotEnoughAccountKeys,
	ErrAccountBorrowFailed,
	ErrInvalidSeeds,
	ErrMaxSeedLengthExceeded,
	ErrUnsupportedSysvar,
	ErrAccountNotFound,
	ErrUnknownProgram,
	ErrPrivilegeEscalation,
	ErrReadonlyDataModified,
	ErrExternalDataModified,
	ErrExternalLamportSpend,
	ErrModifiedProgramID,
	ErrUnbalancedInstruction,
	ErrCallDepth,
	ErrReentrancyNotAllowed,
	ErrInvalidSignature,
	ErrReadonlyLamportChange,
	ErrExecutableModified,
}

// RuntimeCode returns the 1-based code of the runtime error in err's chain.
func RuntimeCode(err error) (uint32, bool) {
	for i, target := range runtimeCodes {
		if errors.Is(err, target) {
			return uint32(i + 1), true
		}
	}
	return 0, false
}
