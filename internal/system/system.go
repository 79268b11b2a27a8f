// Package system is the native program that allocates accounts, assigns
// them to programs and moves lamports between system-owned accounts.
package system

import (
	"encoding/binary"

	"github.com/blockworks-foundation/omega/internal/ledger"
)

// Instruction tags, little-endian u32.
const (
	TagCreateAccount uint32 = 0
	TagAssign        uint32 = 1
	TagTransfer      uint32 = 2
)

// MaxPermittedDataLength caps the space a single account may allocate.
const MaxPermittedDataLength = 10 * 1024 * 1024

// CreateAccount funds a new account with lamports, allocates space bytes and
// assigns it to owner. Both from and to must sign.
func CreateAccount(from, to ledger.Pubkey, lamports, space uint64, owner ledger.Pubkey) ledger.Instruction {
	data := make([]byte, 4+8+8+32)
	binary.LittleEndian.PutUint32(data[0:4], TagCreateAccount)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	binary.LittleEndian.PutUint64(data[12:20], space)
	copy(data[20:52], owner[:])
	return ledger.Instruction{
		ProgramID: ledger.SystemProgramID,
		Accounts: []ledger.AccountMeta{
			ledger.NewMeta(from, true),
			ledger.NewMeta(to, true),
		},
		Data: data,
	}
}

// Assign hands an empty system account to owner.
func Assign(account, owner ledger.Pubkey) ledger.Instruction {
	data := make([]byte, 4+32)
	binary.LittleEndian.PutUint32(data[0:4], TagAssign)
	copy(data[4:36], owner[:])
	return ledger.Instruction{
		ProgramID: ledger.SystemProgramID,
		Accounts:  []ledger.AccountMeta{ledger.NewMeta(account, true)},
		Data:      data,
	}
}

// Transfer moves lamports from a system-owned account.
func Transfer(from, to ledger.Pubkey, lamports uint64) ledger.Instruction {
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:4], TagTransfer)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	return ledger.Instruction{
		ProgramID: ledger.SystemProgramID,
		Accounts: []ledger.AccountMeta{
			ledger.NewMeta(from, true),
			ledger.NewMeta(to, false),
		},
		Data: data,
	}
}

// Program executes system instructions.
type Program struct{}

var _ ledger.Program = Program{}

func (Program) Process(ic ledger.InvokeContext, _ ledger.Pubkey, accounts []*ledger.AccountInfo, data []byte) error {
	if len(data) < 4 {
		return ledger.ErrInvalidInstructionData
	}
	body := data[4:]
	switch binary.LittleEndian.Uint32(data[0:4]) {
	case TagCreateAccount:
		if len(body) < 48 {
			return ledger.ErrInvalidInstructionData
		}
		if len(accounts) < 2 {
			return ledger.ErrNotEnoughAccountKeys
		}
		var owner ledger.Pubkey
		copy(owner[:], body[16:48])
		ic.Log("Instruction: CreateAccount")
		return createAccount(accounts[0], accounts[1],
			binary.LittleEndian.Uint64(body[0:8]), binary.LittleEndian.Uint64(body[8:16]), owner)
	case TagAssign:
		if len(body) < 32 {
			return ledger.ErrInvalidInstructionData
		}
		if len(accounts) < 1 {
			return ledger.ErrNotEnoughAccountKeys
		}
		var owner ledger.Pubkey
		copy(owner[:], body[0:32])
		ic.Log("Instruction: Assign")
		return assign(accounts[0], owner)
	case TagTransfer:
		if len(body) < 8 {
			return ledger.ErrInvalidInstructionData
		}
		if len(accounts) < 2 {
			return ledger.ErrNotEnoughAccountKeys
		}
		ic.Log("Instruction: Transfer")
		return transfer(accounts[0], accounts[1], binary.LittleEndian.Uint64(body[0:8]))
	}
	return ledger.ErrInvalidInstructionData
}

func createAccount(from, to *ledger.AccountInfo, lamports, space uint64, owner ledger.Pubkey) error {
	if !to.IsSigner {
		return ledger.ErrMissingRequiredSignature
	}
	if to.Lamports != 0 || len(to.Data) != 0 || to.Owner != ledger.SystemProgramID {
		return ledger.ErrAccountAlreadyInUse
	}
	if space > MaxPermittedDataLength {
		return ledger.ErrInvalidArgument
	}
	if err := transfer(from, to, lamports); err != nil {
		return err
	}
	to.Data = make([]byte, space)
	to.Owner = owner
	return nil
}

func assign(acc *ledger.AccountInfo, owner ledger.Pubkey) error {
	if acc.Owner == owner {
		return nil
	}
	if !acc.IsSigner {
		return ledger.ErrMissingRequiredSignature
	}
	if acc.Owner != ledger.SystemProgramID || len(acc.Data) != 0 {
		return ledger.ErrModifiedProgramID
	}
	acc.Owner = owner
	return nil
}

func transfer(from, to *ledger.AccountInfo, lamports uint64) error {
	if !from.IsSigner {
		return ledger.ErrMissingRequiredSignature
	}
	if from.Owner != ledger.SystemProgramID || len(from.Data) != 0 {
		return ledger.ErrInvalidArgument
	}
	if from.Lamports < lamports {
		return ledger.ErrInsufficientFunds
	}
	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}
