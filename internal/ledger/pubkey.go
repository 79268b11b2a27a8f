// Package ledger models the account-based ledger the settlement program runs
// in: addresses, accounts and their borrow discipline, instructions, sysvars
// and program-address derivation.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// PubkeyLen is the byte length of every ledger address.
const PubkeyLen = 32

// ErrInvalidPubkey is returned when a base58 string does not decode to a
// 32-byte address.
var ErrInvalidPubkey = errors.New("ledger: invalid pubkey")

// Pubkey is a ledger address. The zero value doubles as the "unset" sentinel
// wherever an optional address is stored in a fixed layout.
type Pubkey [PubkeyLen]byte

// ParsePubkey decodes the base58 text form of an address.
func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	raw := base58.Decode(s)
	if len(raw) != PubkeyLen {
		return pk, fmt.Errorf("%w: %q", ErrInvalidPubkey, s)
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustParsePubkey is ParsePubkey for compile-time constants.
func MustParsePubkey(s string) Pubkey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PubkeyFromBytes copies b into a Pubkey. b must be exactly 32 bytes.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != PubkeyLen {
		return pk, fmt.Errorf("%w: %d bytes", ErrInvalidPubkey, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// EncodeBase58 renders arbitrary bytes, such as signatures, in the ledger's
// text alphabet.
func EncodeBase58(b []byte) string {
	return base58.Encode(b)
}

// IsZero reports whether p is the all-zero address.
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// Bytes returns a copy of the address bytes.
func (p Pubkey) Bytes() []byte {
	b := make([]byte, PubkeyLen)
	copy(b, p[:])
	return b
}

func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pubkey) UnmarshalText(text []byte) error {
	pk, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}

var uniqueCounter atomic.Uint64

// NewUnique returns a process-unique address that no key controls. Useful
// for accounts that never sign.
func NewUnique() Pubkey {
	var pk Pubkey
	pk[0] = 0xa5
	binary.BigEndian.PutUint64(pk[PubkeyLen-8:], uniqueCounter.Add(1))
	return pk
}
