// Package runtime hosts ledger programs: it loads the accounts a
// transaction references, runs each instruction with nested invocation and
// derived-authority signing, checks every change a program makes, and
// commits the whole transaction atomically or not at all.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/blockworks-foundation/omega/internal/ledger"
	"github.com/blockworks-foundation/omega/internal/omegaerr"
	"github.com/blockworks-foundation/omega/internal/store"
	"github.com/blockworks-foundation/omega/internal/system"
)

// MaxInvokeDepth bounds the program call stack, top-level program included.
const MaxInvokeDepth = 4

// SlotsPerEpoch is used to derive the epoch reported by the clock sysvar.
const SlotsPerEpoch = 432000

// AccountStore is the persistence the runtime needs.
type AccountStore interface {
	GetAccount(ctx context.Context, pk ledger.Pubkey) (*ledger.Account, error)
	PutAccounts(ctx context.Context, accounts map[ledger.Pubkey]*ledger.Account) error
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithRent overrides the rent parameters.
func WithRent(r ledger.Rent) Option {
	return func(rt *Runtime) { rt.rent = r }
}

// WithClock sets the time source for the clock sysvar.
func WithClock(now func() time.Time) Option {
	return func(rt *Runtime) { rt.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) { rt.log = l }
}

// WithSignatureVerification toggles ed25519 verification of transaction
// signatures. When off, signer flags are trusted as submitted.
func WithSignatureVerification(on bool) Option {
	return func(rt *Runtime) { rt.verifySigs = on }
}

// Runtime executes transactions against an AccountStore. Transactions are
// applied one at a time.
type Runtime struct {
	mu         sync.Mutex
	store      AccountStore
	programs   map[ledger.Pubkey]ledger.Program
	rent       ledger.Rent
	now        func() time.Time
	slot       uint64
	verifySigs bool
	log        *slog.Logger
}

// New creates a runtime with the system program registered.
func New(st AccountStore, opts ...Option) *Runtime {
	rt := &Runtime{
		store:      st,
		programs:   make(map[ledger.Pubkey]ledger.Program),
		rent:       ledger.DefaultRent(),
		now:        time.Now,
		verifySigs: true,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.programs[ledger.SystemProgramID] = system.Program{}
	return rt
}

// Register makes p callable at id.
func (rt *Runtime) Register(id ledger.Pubkey, p ledger.Program) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.programs[id] = p
}

// Receipt is the outcome of executing or simulating one transaction.
type Receipt struct {
	Signature string          `json:"signature,omitempty"`
	Slot      uint64          `json:"slot"`
	Logs      []string        `json:"logs"`
	Accounts  []ledger.Pubkey `json:"accounts"`
	Err       error           `json:"-"`
	Error     string          `json:"error,omitempty"`
	Code      uint32          `json:"code"`
	Kind      string          `json:"kind,omitempty"`
	Simulated bool            `json:"simulated,omitempty"`
}

// Succeeded reports whether the transaction applied.
func (r *Receipt) Succeeded() bool {
	return r.Err == nil
}

func (r *Receipt) fail(err error) {
	r.Err = err
	r.Error = err.Error()
	r.Code = uint32(omegaerr.CodeOf(err))
	r.Kind = string(omegaerr.Classify(err))
}

// Execute runs tx and commits its effects if every instruction succeeds.
// Execution failures are reported in the receipt; the returned error is
// reserved for the store.
func (rt *Runtime) Execute(ctx context.Context, tx *Transaction) (*Receipt, error) {
	return rt.run(ctx, tx, true)
}

// Simulate runs tx without committing anything.
func (rt *Runtime) Simulate(ctx context.Context, tx *Transaction) (*Receipt, error) {
	return rt.run(ctx, tx, false)
}

func (rt *Runtime) run(ctx context.Context, tx *Transaction, commit bool) (*Receipt, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	slot := rt.slot + 1
	receipt := &Receipt{
		Signature: tx.ID(),
		Slot:      slot,
		Accounts:  tx.Keys(),
		Simulated: !commit,
	}

	if rt.verifySigs {
		if err := tx.Verify(); err != nil {
			receipt.fail(err)
			rt.logResult(receipt)
			return receipt, nil
		}
	}

	clock := rt.clockAt(slot)
	working, original, err := rt.load(ctx, tx, clock)
	if err != nil {
		return nil, err
	}

	signers := make(map[ledger.Pubkey]bool)
	writable := make(map[ledger.Pubkey]bool)
	for _, ix := range tx.Instructions {
		for _, m := range ix.Accounts {
			signers[m.Pubkey] = signers[m.Pubkey] || m.IsSigner
			writable[m.Pubkey] = writable[m.Pubkey] || m.IsWritable
		}
	}
	// Sysvars and programs are never written back, so they are demoted to
	// read-only.
	for pk := range working {
		if _, stored := original[pk]; !stored {
			writable[pk] = false
		}
	}

	tc := &txContext{rt: rt}
	for i, ix := range tx.Instructions {
		infos := make([]*ledger.AccountInfo, len(ix.Accounts))
		for j, m := range ix.Accounts {
			infos[j] = &ledger.AccountInfo{
				Key:        m.Pubkey,
				IsSigner:   signers[m.Pubkey],
				IsWritable: writable[m.Pubkey],
				Account:    working[m.Pubkey],
			}
		}
		if err := tc.execute(ix, infos); err != nil {
			receipt.Logs = tc.logs
			receipt.fail(fmt.Errorf("instruction %d: %w", i, err))
			rt.logResult(receipt)
			return receipt, nil
		}
	}
	receipt.Logs = tc.logs

	if commit {
		changed := make(map[ledger.Pubkey]*ledger.Account)
		for pk, acc := range working {
			if orig, ok := original[pk]; ok && !equalAccount(orig, acc) {
				changed[pk] = acc
			}
		}
		if len(changed) > 0 {
			if err := rt.store.PutAccounts(ctx, changed); err != nil {
				return nil, fmt.Errorf("runtime: commit slot %d: %w", slot, err)
			}
		}
		rt.slot = slot
	}
	rt.logResult(receipt)
	return receipt, nil
}

func (rt *Runtime) logResult(r *Receipt) {
	if r.Err != nil {
		rt.log.Warn("transaction failed",
			"slot", r.Slot, "signature", r.Signature, "code", r.Code, "kind", r.Kind, "err", r.Err)
		return
	}
	rt.log.Debug("transaction executed",
		"slot", r.Slot, "signature", r.Signature, "simulated", r.Simulated)
}

// load builds the working set. Sysvars and programs are synthesized; other
// accounts come from the store, missing ones as empty system accounts.
// original holds pristine copies of the stored accounts only.
func (rt *Runtime) load(ctx context.Context, tx *Transaction, clock ledger.Clock) (working, original map[ledger.Pubkey]*ledger.Account, err error) {
	working = make(map[ledger.Pubkey]*ledger.Account)
	original = make(map[ledger.Pubkey]*ledger.Account)

	for _, pk := range tx.Keys() {
		if acc, ok := rt.synthesize(pk, clock); ok {
			working[pk] = acc
			continue
		}
		acc, err := rt.store.GetAccount(ctx, pk)
		if errors.Is(err, store.ErrNotFound) {
			acc = ledger.NewAccount(0, 0, ledger.SystemProgramID)
		} else if err != nil {
			return nil, nil, fmt.Errorf("runtime: load %s: %w", pk, err)
		}
		original[pk] = acc.Clone()
		working[pk] = acc.Clone()
	}
	return working, original, nil
}

func (rt *Runtime) synthesize(pk ledger.Pubkey, clock ledger.Clock) (*ledger.Account, bool) {
	switch pk {
	case ledger.RentSysvarID:
		return &ledger.Account{Owner: ledger.SysvarOwnerID, Lamports: 1, Data: rt.rent.Encode()}, true
	case ledger.ClockSysvarID:
		return &ledger.Account{Owner: ledger.SysvarOwnerID, Lamports: 1, Data: clock.Encode()}, true
	}
	if _, ok := rt.programs[pk]; ok {
		return &ledger.Account{Owner: ledger.NativeLoaderID, Lamports: 1, Executable: true}, true
	}
	return nil, false
}

func (rt *Runtime) clockAt(slot uint64) ledger.Clock {
	epoch := slot / SlotsPerEpoch
	return ledger.Clock{
		Slot:                slot,
		Epoch:               epoch,
		LeaderScheduleEpoch: epoch + 1,
		UnixTimestamp:       rt.now().Unix(),
	}
}

// Clock returns the clock sysvar the next transaction would observe.
func (rt *Runtime) Clock() ledger.Clock {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.clockAt(rt.slot + 1)
}

// Slot returns the last committed slot.
func (rt *Runtime) Slot() uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.slot
}

// MinimumBalance is the rent-exempt balance for an account of size bytes.
func (rt *Runtime) MinimumBalance(size int) uint64 {
	return rt.rent.MinimumBalance(size)
}

// Rent returns the rent parameters.
func (rt *Runtime) Rent() ledger.Rent {
	return rt.rent
}

// Account returns the current state at pk. Sysvars and programs are
// reported as the runtime presents them to transactions.
func (rt *Runtime) Account(ctx context.Context, pk ledger.Pubkey) (*ledger.Account, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if acc, ok := rt.synthesize(pk, rt.clockAt(rt.slot+1)); ok {
		return acc, nil
	}
	return rt.store.GetAccount(ctx, pk)
}

// ErrAirdropOverflow is returned when an airdrop would overflow a balance.
var ErrAirdropOverflow = errors.New("runtime: airdrop overflows balance")

// Airdrop mints lamports into pk outside of any transaction. Only meant for
// development ledgers.
func (rt *Runtime) Airdrop(ctx context.Context, pk ledger.Pubkey, lamports uint64) (*ledger.Account, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, ok := rt.synthesize(pk, ledger.Clock{}); ok {
		return nil, fmt.Errorf("%w: %s is not a user account", ledger.ErrInvalidArgument, pk)
	}
	acc, err := rt.store.GetAccount(ctx, pk)
	if errors.Is(err, store.ErrNotFound) {
		acc = ledger.NewAccount(0, 0, ledger.SystemProgramID)
	} else if err != nil {
		return nil, err
	}
	if acc.Lamports > math.MaxUint64-lamports {
		return nil, ErrAirdropOverflow
	}
	acc.Lamports += lamports
	if err := rt.store.PutAccounts(ctx, map[ledger.Pubkey]*ledger.Account{pk: acc}); err != nil {
		return nil, err
	}
	rt.log.Info("airdrop", "pubkey", pk.String(), "lamports", lamports, "balance", acc.Lamports)
	return acc, nil
}
