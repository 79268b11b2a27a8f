// Package contract defines the persisted contract record: its fixed 2504
// byte layout, checked decoding over borrowed account data, and the
// lifecycle status derived from it.
package contract

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/blockworks-foundation/omega/internal/ledger"
	"github.com/blockworks-foundation/omega/internal/omegaerr"
)

// Capacities of the fixed layout.
const (
	MaxOutcomes      = 8
	DetailsBufferLen = 2048
)

// Flag bits of Record.Flags.
const (
	FlagInitialized uint64 = 1 << 0
	FlagContract    uint64 = 1 << 1
)

// Byte offsets of each field.
const (
	offFlags       = 0
	offOracle      = 8
	offQuoteMint   = 40
	offExpTime     = 72
	offAutoExpTime = 80
	offVault       = 88
	offSignerKey   = 120
	offSignerNonce = 152
	offWinner      = 160
	offOutcomes    = 192
	offNumOutcomes = offOutcomes + MaxOutcomes*ledger.PubkeyLen
	offDetails     = offNumOutcomes + 8

	// Size is the exact length of a contract account's data.
	Size = offDetails + DetailsBufferLen
)

var check = omegaerr.Checker(omegaerr.FileState)

// Record is the decoded form of a contract account.
type Record struct {
	Flags              uint64
	Oracle             ledger.Pubkey
	QuoteMint          ledger.Pubkey
	ExpirationTime     uint64
	AutoExpirationTime uint64
	Vault              ledger.Pubkey
	SignerKey          ledger.Pubkey
	SignerNonce        uint64
	Winner             ledger.Pubkey
	Outcomes           [MaxOutcomes]ledger.Pubkey
	NumOutcomes        uint64
	Details            [DetailsBufferLen]byte
}

// Decode interprets b as a record. b must be exactly Size bytes.
func Decode(b []byte) (*Record, error) {
	if err := check.Assert(len(b) == Size); err != nil {
		return nil, err
	}
	le := binary.LittleEndian
	r := &Record{
		Flags:              le.Uint64(b[offFlags:]),
		ExpirationTime:     le.Uint64(b[offExpTime:]),
		AutoExpirationTime: le.Uint64(b[offAutoExpTime:]),
		SignerNonce:        le.Uint64(b[offSignerNonce:]),
		NumOutcomes:        le.Uint64(b[offNumOutcomes:]),
	}
	copy(r.Oracle[:], b[offOracle:])
	copy(r.QuoteMint[:], b[offQuoteMint:])
	copy(r.Vault[:], b[offVault:])
	copy(r.SignerKey[:], b[offSignerKey:])
	copy(r.Winner[:], b[offWinner:])
	for i := range r.Outcomes {
		copy(r.Outcomes[i][:], b[offOutcomes+i*ledger.PubkeyLen:])
	}
	copy(r.Details[:], b[offDetails:])
	return r, nil
}

// Encode writes r into b, which must be exactly Size bytes.
func (r *Record) Encode(b []byte) error {
	if err := check.Assert(len(b) == Size); err != nil {
		return err
	}
	le := binary.LittleEndian
	le.PutUint64(b[offFlags:], r.Flags)
	copy(b[offOracle:], r.Oracle[:])
	copy(b[offQuoteMint:], r.QuoteMint[:])
	le.PutUint64(b[offExpTime:], r.ExpirationTime)
	le.PutUint64(b[offAutoExpTime:], r.AutoExpirationTime)
	copy(b[offVault:], r.Vault[:])
	copy(b[offSignerKey:], r.SignerKey[:])
	le.PutUint64(b[offSignerNonce:], r.SignerNonce)
	copy(b[offWinner:], r.Winner[:])
	for i := range r.Outcomes {
		copy(b[offOutcomes+i*ledger.PubkeyLen:], r.Outcomes[i][:])
	}
	le.PutUint64(b[offNumOutcomes:], r.NumOutcomes)
	copy(b[offDetails:], r.Details[:])
	return nil
}

// Load decodes the record behind a borrow token of either kind.
func Load(b *ledger.Borrow) (*Record, error) {
	return Decode(b.Data())
}

// Store writes r through an exclusive borrow token.
func Store(b *ledger.Borrow, r *Record) error {
	if b.Mode() != ledger.Exclusive {
		return fmt.Errorf("%w: record store needs exclusive access", ledger.ErrAccountBorrowFailed)
	}
	return r.Encode(b.Data())
}

// IsInitialized reports whether both initialization flags are set.
func (r *Record) IsInitialized() bool {
	want := FlagInitialized | FlagContract
	return r.Flags&want == want
}

// Resolved reports whether a winner has been recorded.
func (r *Record) Resolved() bool {
	return !r.Winner.IsZero()
}

// OutcomeList returns the configured outcomes in order. A corrupt count is
// clamped to the fixed capacity.
func (r *Record) OutcomeList() []ledger.Pubkey {
	n := r.NumOutcomes
	if n > MaxOutcomes {
		n = MaxOutcomes
	}
	return append([]ledger.Pubkey(nil), r.Outcomes[:n]...)
}

// OutcomeIndex returns the position of mint in the outcome list, or -1.
func (r *Record) OutcomeIndex(mint ledger.Pubkey) int {
	for i, o := range r.OutcomeList() {
		if o == mint {
			return i
		}
	}
	return -1
}

// DetailsText returns the details buffer without its zero padding.
func (r *Record) DetailsText() string {
	return string(bytes.TrimRight(r.Details[:], "\x00"))
}

// Status is the lifecycle state of a contract at a point in time.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusActive        Status = "active"
	StatusResolved      Status = "resolved"
	StatusAutoExpired   Status = "auto_expired"
)

// StatusAt derives the lifecycle state at unix time now. Auto-expiry is not
// stored; it follows from the clock while no winner is set.
func (r *Record) StatusAt(now int64) Status {
	switch {
	case !r.IsInitialized():
		return StatusUninitialized
	case r.Resolved():
		return StatusResolved
	case now >= 0 && uint64(now) >= r.AutoExpirationTime:
		return StatusAutoExpired
	}
	return StatusActive
}

// InResolutionWindow reports whether now lies in
// [ExpirationTime, AutoExpirationTime).
func (r *Record) InResolutionWindow(now int64) bool {
	if now < 0 {
		return false
	}
	t := uint64(now)
	return t >= r.ExpirationTime && t < r.AutoExpirationTime
}
