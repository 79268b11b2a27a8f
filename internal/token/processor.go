package token

import (
	"encoding/binary"
	"math"

	"github.com/blockworks-foundation/omega/internal/ledger"
)

// Program executes token instructions.
type Program struct{}

var _ ledger.Program = Program{}

func (Program) Process(ic ledger.InvokeContext, programID ledger.Pubkey, accounts []*ledger.AccountInfo, data []byte) error {
	if len(data) == 0 {
		return ErrInvalidInstruction
	}
	switch data[0] {
	case TagInitializeMint:
		ic.Log("Instruction: InitializeMint")
		return initializeMint(programID, accounts, data[1:])
	case TagInitializeAccount:
		ic.Log("Instruction: InitializeAccount")
		return initializeAccount(programID, accounts)
	case TagTransfer, TagMintTo, TagBurn:
		if len(data) < 9 {
			return ErrInvalidInstruction
		}
		amount := binary.LittleEndian.Uint64(data[1:9])
		switch data[0] {
		case TagTransfer:
			ic.Log("Instruction: Transfer")
			return transfer(programID, accounts, amount)
		case TagMintTo:
			ic.Log("Instruction: MintTo")
			return mintTo(programID, accounts, amount)
		default:
			ic.Log("Instruction: Burn")
			return burn(programID, accounts, amount)
		}
	}
	return ErrInvalidInstruction
}

func initializeMint(programID ledger.Pubkey, accounts []*ledger.AccountInfo, data []byte) error {
	if len(accounts) < 2 {
		return ledger.ErrNotEnoughAccountKeys
	}
	if len(data) < 34 {
		return ErrInvalidInstruction
	}
	mintInfo := accounts[0]
	if mintInfo.Owner != programID {
		return ledger.ErrIncorrectProgramID
	}
	rent, err := ledger.RentFromAccount(accounts[1])
	if err != nil {
		return err
	}

	decimals := data[0]
	var authority ledger.Pubkey
	copy(authority[:], data[1:33])
	var freeze *ledger.Pubkey
	if data[33] == 1 {
		if len(data) < 66 {
			return ErrInvalidInstruction
		}
		var fk ledger.Pubkey
		copy(fk[:], data[34:66])
		freeze = &fk
	}

	b, err := mintInfo.BorrowMut()
	if err != nil {
		return err
	}
	defer b.Release()

	mint, err := UnpackMint(b.Data())
	if err != nil {
		return err
	}
	if mint.IsInitialized {
		return ErrAlreadyInUse
	}
	if !rent.IsExempt(mintInfo.Lamports, len(b.Data())) {
		return ErrNotRentExempt
	}
	mint.MintAuthority = &authority
	mint.FreezeAuthority = freeze
	mint.Decimals = decimals
	mint.IsInitialized = true
	return mint.Pack(b.Data())
}

func initializeAccount(programID ledger.Pubkey, accounts []*ledger.AccountInfo) error {
	if len(accounts) < 4 {
		return ledger.ErrNotEnoughAccountKeys
	}
	accInfo, mintInfo, ownerInfo := accounts[0], accounts[1], accounts[2]
	if accInfo.Owner != programID || mintInfo.Owner != programID {
		return ledger.ErrIncorrectProgramID
	}
	rent, err := ledger.RentFromAccount(accounts[3])
	if err != nil {
		return err
	}

	mb, err := mintInfo.BorrowShared()
	if err != nil {
		return err
	}
	mint, err := UnpackMint(mb.Data())
	mb.Release()
	if err != nil || !mint.IsInitialized {
		return ErrInvalidMint
	}

	b, err := accInfo.BorrowMut()
	if err != nil {
		return err
	}
	defer b.Release()

	acc, err := UnpackAccount(b.Data())
	if err != nil {
		return err
	}
	if acc.IsInitialized() {
		return ErrAlreadyInUse
	}
	if !rent.IsExempt(accInfo.Lamports, len(b.Data())) {
		return ErrNotRentExempt
	}
	acc.Mint = mintInfo.Key
	acc.Owner = ownerInfo.Key
	acc.State = StateInitialized
	return acc.Pack(b.Data())
}

func transfer(programID ledger.Pubkey, accounts []*ledger.AccountInfo, amount uint64) error {
	if len(accounts) < 3 {
		return ledger.ErrNotEnoughAccountKeys
	}
	srcInfo, dstInfo, ownerInfo := accounts[0], accounts[1], accounts[2]
	if srcInfo.Owner != programID || dstInfo.Owner != programID {
		return ledger.ErrIncorrectProgramID
	}

	sb, err := srcInfo.BorrowMut()
	if err != nil {
		return err
	}
	defer sb.Release()
	src, err := loadAccount(sb)
	if err != nil {
		return err
	}
	if err := checkOwner(src.Owner, ownerInfo); err != nil {
		return err
	}
	if src.Amount < amount {
		return ErrInsufficientFunds
	}

	// Transferring to oneself only validates.
	if srcInfo.Key == dstInfo.Key {
		return nil
	}

	db, err := dstInfo.BorrowMut()
	if err != nil {
		return err
	}
	defer db.Release()
	dst, err := loadAccount(db)
	if err != nil {
		return err
	}
	if src.Mint != dst.Mint {
		return ErrMintMismatch
	}
	if dst.Amount > math.MaxUint64-amount {
		return ErrOverflow
	}

	src.Amount -= amount
	dst.Amount += amount
	if err := src.Pack(sb.Data()); err != nil {
		return err
	}
	return dst.Pack(db.Data())
}

func mintTo(programID ledger.Pubkey, accounts []*ledger.AccountInfo, amount uint64) error {
	if len(accounts) < 3 {
		return ledger.ErrNotEnoughAccountKeys
	}
	mintInfo, dstInfo, authInfo := accounts[0], accounts[1], accounts[2]
	if mintInfo.Owner != programID || dstInfo.Owner != programID {
		return ledger.ErrIncorrectProgramID
	}

	db, err := dstInfo.BorrowMut()
	if err != nil {
		return err
	}
	defer db.Release()
	dst, err := loadAccount(db)
	if err != nil {
		return err
	}
	if dst.Mint != mintInfo.Key {
		return ErrMintMismatch
	}

	mb, err := mintInfo.BorrowMut()
	if err != nil {
		return err
	}
	defer mb.Release()
	mint, err := loadMint(mb)
	if err != nil {
		return err
	}
	if mint.MintAuthority == nil {
		return ErrFixedSupply
	}
	if err := checkOwner(*mint.MintAuthority, authInfo); err != nil {
		return err
	}
	if mint.Supply > math.MaxUint64-amount || dst.Amount > math.MaxUint64-amount {
		return ErrOverflow
	}

	mint.Supply += amount
	dst.Amount += amount
	if err := dst.Pack(db.Data()); err != nil {
		return err
	}
	return mint.Pack(mb.Data())
}

func burn(programID ledger.Pubkey, accounts []*ledger.AccountInfo, amount uint64) error {
	if len(accounts) < 3 {
		return ledger.ErrNotEnoughAccountKeys
	}
	accInfo, mintInfo, ownerInfo := accounts[0], accounts[1], accounts[2]
	if accInfo.Owner != programID || mintInfo.Owner != programID {
		return ledger.ErrIncorrectProgramID
	}

	ab, err := accInfo.BorrowMut()
	if err != nil {
		return err
	}
	defer ab.Release()
	acc, err := loadAccount(ab)
	if err != nil {
		return err
	}
	if acc.Mint != mintInfo.Key {
		return ErrMintMismatch
	}
	if err := checkOwner(acc.Owner, ownerInfo); err != nil {
		return err
	}
	if acc.Amount < amount {
		return ErrInsufficientFunds
	}

	mb, err := mintInfo.BorrowMut()
	if err != nil {
		return err
	}
	defer mb.Release()
	mint, err := loadMint(mb)
	if err != nil {
		return err
	}
	if mint.Supply < amount {
		return ErrOverflow
	}

	acc.Amount -= amount
	mint.Supply -= amount
	if err := acc.Pack(ab.Data()); err != nil {
		return err
	}
	return mint.Pack(mb.Data())
}

func loadAccount(b *ledger.Borrow) (*Account, error) {
	acc, err := UnpackAccount(b.Data())
	if err != nil {
		return nil, err
	}
	switch acc.State {
	case StateUninitialized:
		return nil, ErrUninitializedState
	case StateFrozen:
		return nil, ErrAccountFrozen
	}
	return acc, nil
}

func loadMint(b *ledger.Borrow) (*Mint, error) {
	mint, err := UnpackMint(b.Data())
	if err != nil {
		return nil, err
	}
	if !mint.IsInitialized {
		return nil, ErrUninitializedState
	}
	return mint, nil
}

func checkOwner(expected ledger.Pubkey, info *ledger.AccountInfo) error {
	if expected != info.Key {
		return ErrOwnerMismatch
	}
	if !info.IsSigner {
		return ledger.ErrMissingRequiredSignature
	}
	return nil
}
