// Package token is the fungible-token program the settlement program calls
// into: mints, token accounts, and the transfer, mint and burn operations.
package token

import (
	"encoding/binary"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/blockworks-foundation/omega/internal/ledger"
)

// ProgramID is the address the token program is registered under.
var ProgramID = ledger.MustParsePubkey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

// Packed sizes.
const (
	MintLen    = 82
	AccountLen = 165
)

// AccountState is the lifecycle state of a token account.
type AccountState uint8

const (
	StateUninitialized AccountState = iota
	StateInitialized
	StateFrozen
)

// Mint describes one fungible token.
type Mint struct {
	MintAuthority   *ledger.Pubkey `json:"mint_authority,omitempty"`
	Supply          uint64         `json:"supply"`
	Decimals        uint8          `json:"decimals"`
	IsInitialized   bool           `json:"is_initialized"`
	FreezeAuthority *ledger.Pubkey `json:"freeze_authority,omitempty"`
}

// Account holds a balance of one mint for one owner.
type Account struct {
	Mint            ledger.Pubkey  `json:"mint"`
	Owner           ledger.Pubkey  `json:"owner"`
	Amount          uint64         `json:"amount"`
	Delegate        *ledger.Pubkey `json:"delegate,omitempty"`
	State           AccountState   `json:"state"`
	IsNative        *uint64        `json:"is_native,omitempty"`
	DelegatedAmount uint64         `json:"delegated_amount"`
	CloseAuthority  *ledger.Pubkey `json:"close_authority,omitempty"`
}

func (a *Account) IsInitialized() bool {
	return a.State != StateUninitialized
}

// UnpackMint decodes a mint. The buffer must be exactly MintLen bytes.
func UnpackMint(b []byte) (*Mint, error) {
	if len(b) != MintLen {
		return nil, ledger.ErrInvalidAccountData
	}
	m := &Mint{
		MintAuthority:   unpackOptKey(b[0:36]),
		Supply:          binary.LittleEndian.Uint64(b[36:44]),
		Decimals:        b[44],
		IsInitialized:   b[45] != 0,
		FreezeAuthority: unpackOptKey(b[46:82]),
	}
	return m, nil
}

// Pack writes m into b, which must be exactly MintLen bytes.
func (m *Mint) Pack(b []byte) error {
	if len(b) != MintLen {
		return ledger.ErrInvalidAccountData
	}
	packOptKey(b[0:36], m.MintAuthority)
	binary.LittleEndian.PutUint64(b[36:44], m.Supply)
	b[44] = m.Decimals
	b[45] = boolByte(m.IsInitialized)
	packOptKey(b[46:82], m.FreezeAuthority)
	return nil
}

// UnpackAccount decodes a token account. The buffer must be exactly
// AccountLen bytes.
func UnpackAccount(b []byte) (*Account, error) {
	if len(b) != AccountLen {
		return nil, ledger.ErrInvalidAccountData
	}
	a := &Account{
		Amount:          binary.LittleEndian.Uint64(b[64:72]),
		Delegate:        unpackOptKey(b[72:108]),
		State:           AccountState(b[108]),
		DelegatedAmount: binary.LittleEndian.Uint64(b[121:129]),
		CloseAuthority:  unpackOptKey(b[129:165]),
	}
	copy(a.Mint[:], b[0:32])
	copy(a.Owner[:], b[32:64])
	if binary.LittleEndian.Uint32(b[109:113]) == 1 {
		v := binary.LittleEndian.Uint64(b[113:121])
		a.IsNative = &v
	}
	if a.State > StateFrozen {
		return nil, ledger.ErrInvalidAccountData
	}
	return a, nil
}

// Pack writes a into b, which must be exactly AccountLen bytes.
func (a *Account) Pack(b []byte) error {
	if len(b) != AccountLen {
		return ledger.ErrInvalidAccountData
	}
	copy(b[0:32], a.Mint[:])
	copy(b[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(b[64:72], a.Amount)
	packOptKey(b[72:108], a.Delegate)
	b[108] = byte(a.State)
	if a.IsNative != nil {
		binary.LittleEndian.PutUint32(b[109:113], 1)
		binary.LittleEndian.PutUint64(b[113:121], *a.IsNative)
	} else {
		clear(b[109:121])
	}
	binary.LittleEndian.PutUint64(b[121:129], a.DelegatedAmount)
	packOptKey(b[129:165], a.CloseAuthority)
	return nil
}

// optional keys are a u32 tag followed by 32 bytes.
func unpackOptKey(b []byte) *ledger.Pubkey {
	if binary.LittleEndian.Uint32(b[0:4]) != 1 {
		return nil
	}
	var pk ledger.Pubkey
	copy(pk[:], b[4:36])
	return &pk
}

func packOptKey(b []byte, pk *ledger.Pubkey) {
	if pk == nil {
		clear(b[0:36])
		return
	}
	binary.LittleEndian.PutUint32(b[0:4], 1)
	copy(b[4:36], pk[:])
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// UIAmount converts a raw token amount into whole units.
func UIAmount(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}
