package token

import (
	"encoding/binary"

	"github.com/blockworks-foundation/omega/internal/ledger"
)

// Instruction tags.
const (
	TagInitializeMint    uint8 = 0
	TagInitializeAccount uint8 = 1
	TagTransfer          uint8 = 3
	TagMintTo            uint8 = 7
	TagBurn              uint8 = 8
)

// InitializeMint builds the instruction that initializes mint with the
// given decimals and authorities.
//
// Accounts: [writable] mint, [] rent sysvar.
func InitializeMint(mint, mintAuthority ledger.Pubkey, freezeAuthority *ledger.Pubkey, decimals uint8) ledger.Instruction {
	data := make([]byte, 1+1+32+1+32)
	data[0] = TagInitializeMint
	data[1] = decimals
	copy(data[2:34], mintAuthority[:])
	if freezeAuthority != nil {
		data[34] = 1
		copy(data[35:67], freezeAuthority[:])
	} else {
		data = data[:35]
	}
	return ledger.Instruction{
		ProgramID: ProgramID,
		Accounts: []ledger.AccountMeta{
			ledger.NewMeta(mint, false),
			ledger.NewReadonlyMeta(ledger.RentSysvarID, false),
		},
		Data: data,
	}
}

// InitializeAccount builds the instruction that initializes a token account
// of mint held by owner.
//
// Accounts: [writable] account, [] mint, [] owner, [] rent sysvar.
func InitializeAccount(account, mint, owner ledger.Pubkey) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: ProgramID,
		Accounts: []ledger.AccountMeta{
			ledger.NewMeta(account, false),
			ledger.NewReadonlyMeta(mint, false),
			ledger.NewReadonlyMeta(owner, false),
			ledger.NewReadonlyMeta(ledger.RentSysvarID, false),
		},
		Data: []byte{TagInitializeAccount},
	}
}

// Transfer moves amount from source to destination, authorized by owner.
//
// Accounts: [writable] source, [writable] destination, [signer] owner.
func Transfer(source, destination, owner ledger.Pubkey, amount uint64) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: ProgramID,
		Accounts: []ledger.AccountMeta{
			ledger.NewMeta(source, false),
			ledger.NewMeta(destination, false),
			ledger.NewReadonlyMeta(owner, true),
		},
		Data: amountData(TagTransfer, amount),
	}
}

// MintTo creates amount new tokens in destination, authorized by the mint
// authority.
//
// Accounts: [writable] mint, [writable] destination, [signer] authority.
func MintTo(mint, destination, authority ledger.Pubkey, amount uint64) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: ProgramID,
		Accounts: []ledger.AccountMeta{
			ledger.NewMeta(mint, false),
			ledger.NewMeta(destination, false),
			ledger.NewReadonlyMeta(authority, true),
		},
		Data: amountData(TagMintTo, amount),
	}
}

// Burn destroys amount tokens held in account, authorized by its owner.
//
// Accounts: [writable] account, [writable] mint, [signer] owner.
func Burn(account, mint, owner ledger.Pubkey, amount uint64) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: ProgramID,
		Accounts: []ledger.AccountMeta{
			ledger.NewMeta(account, false),
			ledger.NewMeta(mint, false),
			ledger.NewReadonlyMeta(owner, true),
		},
		Data: amountData(TagBurn, amount),
	}
}

func amountData(tag uint8, amount uint64) []byte {
	data := make([]byte, 9)
	data[0] = tag
	binary.LittleEndian.PutUint64(data[1:], amount)
	return data
}
