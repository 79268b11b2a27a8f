package runtime

import (
	"bytes"
	"fmt"
	"math/bits"

	"github.com/blockworks-foundation/omega/internal/ledger"
)

// txContext is the per-transaction execution state shared by every frame.
type txContext struct {
	rt    *Runtime
	logs  []string
	stack []ledger.Pubkey
}

func (tc *txContext) logf(format string, args ...any) {
	tc.logs = append(tc.logs, fmt.Sprintf(format, args...))
}

// execute runs ix in a new frame on top of the stack and verifies what the
// program changed.
func (tc *txContext) execute(ix ledger.Instruction, infos []*ledger.AccountInfo) error {
	program, ok := tc.rt.programs[ix.ProgramID]
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrUnknownProgram, ix.ProgramID)
	}
	if len(tc.stack) >= MaxInvokeDepth {
		return ledger.ErrCallDepth
	}
	// A program may call itself directly but may not be re-entered through
	// another program.
	if n := len(tc.stack); n > 0 && tc.stack[n-1] != ix.ProgramID {
		for _, id := range tc.stack {
			if id == ix.ProgramID {
				return fmt.Errorf("%w: %s", ledger.ErrReentrancyNotAllowed, ix.ProgramID)
			}
		}
	}

	f := newFrame(tc, ix.ProgramID, infos)
	tc.stack = append(tc.stack, ix.ProgramID)
	depth := len(tc.stack)
	tc.logf("Program %s invoke [%d]", ix.ProgramID, depth)

	err := program.Process(f, ix.ProgramID, infos, ix.Data)
	tc.stack = tc.stack[:depth-1]
	if err == nil {
		err = f.verify(nil, true)
	}
	if err != nil {
		tc.logf("Program %s failed: %v", ix.ProgramID, err)
		return err
	}
	tc.logf("Program %s success", ix.ProgramID)
	return nil
}

type snapshot struct {
	owner      ledger.Pubkey
	lamports   uint64
	data       []byte
	executable bool
}

func snapshotOf(a *ledger.Account) snapshot {
	return snapshot{
		owner:      a.Owner,
		lamports:   a.Lamports,
		data:       append([]byte(nil), a.Data...),
		executable: a.Executable,
	}
}

// frame is one program invocation. It implements ledger.InvokeContext.
type frame struct {
	tc        *txContext
	programID ledger.Pubkey
	keys      []ledger.Pubkey
	accounts  map[ledger.Pubkey]*ledger.Account
	writable  map[ledger.Pubkey]bool
	pre       map[ledger.Pubkey]snapshot
}

var _ ledger.InvokeContext = (*frame)(nil)

func newFrame(tc *txContext, programID ledger.Pubkey, infos []*ledger.AccountInfo) *frame {
	f := &frame{
		tc:        tc,
		programID: programID,
		accounts:  make(map[ledger.Pubkey]*ledger.Account),
		writable:  make(map[ledger.Pubkey]bool),
		pre:       make(map[ledger.Pubkey]snapshot),
	}
	for _, info := range infos {
		if _, seen := f.accounts[info.Key]; !seen {
			f.keys = append(f.keys, info.Key)
			f.accounts[info.Key] = info.Account
			f.pre[info.Key] = snapshotOf(info.Account)
		}
		f.writable[info.Key] = f.writable[info.Key] || info.IsWritable
	}
	return f
}

func (f *frame) Log(format string, args ...any) {
	f.tc.logf("Program log: "+format, args...)
}

func (f *frame) Invoke(ix ledger.Instruction, accounts []*ledger.AccountInfo) error {
	return f.InvokeSigned(ix, accounts, nil)
}

func (f *frame) InvokeSigned(ix ledger.Instruction, accounts []*ledger.AccountInfo, signerSeeds [][][]byte) error {
	derived := make(map[ledger.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		pk, err := ledger.CreateProgramAddress(seeds, f.programID)
		if err != nil {
			return err
		}
		derived[pk] = true
	}

	passed := make(map[ledger.Pubkey]*ledger.AccountInfo, len(accounts))
	for _, info := range accounts {
		if _, ok := f.accounts[info.Key]; !ok {
			return fmt.Errorf("%w: %s not available to caller", ledger.ErrNotEnoughAccountKeys, info.Key)
		}
		if prev, ok := passed[info.Key]; !ok || (info.IsWritable && !prev.IsWritable) {
			passed[info.Key] = info
		}
	}
	prog, ok := passed[ix.ProgramID]
	if !ok {
		return fmt.Errorf("%w: program %s not passed", ledger.ErrNotEnoughAccountKeys, ix.ProgramID)
	}
	if !prog.Executable {
		return fmt.Errorf("%w: %s is not executable", ledger.ErrIncorrectProgramID, ix.ProgramID)
	}

	signers := make(map[ledger.Pubkey]bool)
	writable := make(map[ledger.Pubkey]bool)
	seen := make(map[ledger.Pubkey]bool)
	var keys []ledger.Pubkey
	for _, m := range ix.Accounts {
		info, ok := passed[m.Pubkey]
		if !ok {
			return fmt.Errorf("%w: %s", ledger.ErrNotEnoughAccountKeys, m.Pubkey)
		}
		if m.IsSigner && !info.IsSigner && !derived[m.Pubkey] {
			return fmt.Errorf("%w: %s is not a signer", ledger.ErrPrivilegeEscalation, m.Pubkey)
		}
		if m.IsWritable && !info.IsWritable {
			return fmt.Errorf("%w: %s is not writable", ledger.ErrPrivilegeEscalation, m.Pubkey)
		}
		if info.IsBorrowedMut() || (m.IsWritable && info.IsBorrowed()) {
			return fmt.Errorf("%w: %s is borrowed by caller", ledger.ErrAccountBorrowFailed, m.Pubkey)
		}
		if !seen[m.Pubkey] {
			seen[m.Pubkey] = true
			keys = append(keys, m.Pubkey)
		}
		signers[m.Pubkey] = signers[m.Pubkey] || m.IsSigner
		writable[m.Pubkey] = writable[m.Pubkey] || m.IsWritable
	}

	if err := f.verify(keys, false); err != nil {
		return err
	}

	infos := make([]*ledger.AccountInfo, len(ix.Accounts))
	for i, m := range ix.Accounts {
		infos[i] = &ledger.AccountInfo{
			Key:        m.Pubkey,
			IsSigner:   signers[m.Pubkey],
			IsWritable: writable[m.Pubkey],
			Account:    f.accounts[m.Pubkey],
		}
	}
	if err := f.tc.execute(ix, infos); err != nil {
		return err
	}

	for _, k := range keys {
		f.pre[k] = snapshotOf(f.accounts[k])
	}
	return nil
}

// verify checks the frame's changes against its snapshots. A nil keys
// checks every account of the frame. Lamport conservation is only
// meaningful over the full account set.
func (f *frame) verify(keys []ledger.Pubkey, balance bool) error {
	if keys == nil {
		keys = f.keys
	}
	var preHi, preLo, postHi, postLo uint64
	for _, k := range keys {
		pre, acc := f.pre[k], f.accounts[k]
		if err := f.verifyAccount(k, pre, acc); err != nil {
			return err
		}
		var c uint64
		preLo, c = bits.Add64(preLo, pre.lamports, 0)
		preHi += c
		postLo, c = bits.Add64(postLo, acc.Lamports, 0)
		postHi += c
	}
	if balance && (preHi != postHi || preLo != postLo) {
		return ledger.ErrUnbalancedInstruction
	}
	return nil
}

func (f *frame) verifyAccount(k ledger.Pubkey, pre snapshot, acc *ledger.Account) error {
	writable := f.writable[k]
	owned := pre.owner == f.programID

	if acc.Owner != pre.owner {
		if !owned || !writable || !isZeroed(acc.Data) {
			return fmt.Errorf("%w: %s", ledger.ErrModifiedProgramID, k)
		}
	}
	if acc.Executable != pre.executable {
		return fmt.Errorf("%w: %s", ledger.ErrExecutableModified, k)
	}
	if acc.Lamports != pre.lamports {
		if !writable {
			return fmt.Errorf("%w: %s", ledger.ErrReadonlyLamportChange, k)
		}
		if acc.Lamports < pre.lamports && !owned {
			return fmt.Errorf("%w: %s", ledger.ErrExternalLamportSpend, k)
		}
	}
	if !bytes.Equal(acc.Data, pre.data) {
		if !writable {
			return fmt.Errorf("%w: %s", ledger.ErrReadonlyDataModified, k)
		}
		if !owned {
			return fmt.Errorf("%w: %s", ledger.ErrExternalDataModified, k)
		}
	}
	return nil
}

func isZeroed(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func equalAccount(a, b *ledger.Account) bool {
	return a.Owner == b.Owner &&
		a.Lamports == b.Lamports &&
		a.Executable == b.Executable &&
		bytes.Equal(a.Data, b.Data)
}
