package runtime

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockworks-foundation/omega/internal/ledger"
	"github.com/blockworks-foundation/omega/internal/store"
	"github.com/blockworks-foundation/omega/internal/system"
)

func newTestRuntime(t *testing.T) (*Runtime, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	rt := New(st,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return time.Unix(1_000, 0) }),
	)
	return rt, st
}

func run(t *testing.T, rt *Runtime, signers []*ledger.Keypair, ixs ...ledger.Instruction) *Receipt {
	t.Helper()
	tx := NewTransaction(ixs...)
	tx.Sign(signers...)
	r, err := rt.Execute(context.Background(), tx)
	require.NoError(t, err)
	return r
}

func balance(t *testing.T, st *store.MemoryStore, pk ledger.Pubkey) uint64 {
	t.Helper()
	acc, err := st.GetAccount(context.Background(), pk)
	if err != nil {
		return 0
	}
	return acc.Lamports
}

func funded(t *testing.T, rt *Runtime, lamports uint64) *ledger.Keypair {
	t.Helper()
	kp := ledger.NewKeypair()
	_, err := rt.Airdrop(context.Background(), kp.Pubkey(), lamports)
	require.NoError(t, err)
	return kp
}

func TestExecute_CreateAccount(t *testing.T) {
	rt, st := newTestRuntime(t)
	payer := funded(t, rt, 1_000_000)
	target := ledger.NewKeypair()
	owner := ledger.NewUnique()

	r := run(t, rt, []*ledger.Keypair{payer, target},
		system.CreateAccount(payer.Pubkey(), target.Pubkey(), 500_000, 32, owner))
	require.True(t, r.Succeeded(), r.Error)
	require.Equal(t, uint64(1), rt.Slot())
	require.NotEmpty(t, r.Signature)

	acc, err := st.GetAccount(context.Background(), target.Pubkey())
	require.NoError(t, err)
	require.Equal(t, owner, acc.Owner)
	require.Len(t, acc.Data, 32)
	require.Equal(t, uint64(500_000), balance(t, st, target.Pubkey()))
	require.Equal(t, uint64(500_000), balance(t, st, payer.Pubkey()))
}

func TestExecute_Signatures(t *testing.T) {
	rt, st := newTestRuntime(t)
	payer := funded(t, rt, 100)
	to := ledger.NewUnique()

	r := run(t, rt, nil, system.Transfer(payer.Pubkey(), to, 10))
	require.ErrorIs(t, r.Err, ledger.ErrMissingRequiredSignature)

	tx := NewTransaction(system.Transfer(payer.Pubkey(), to, 10))
	tx.Sign(payer)
	tx.Instructions[0].Data[len(tx.Instructions[0].Data)-1] ^= 1
	r, err := rt.Execute(context.Background(), tx)
	require.NoError(t, err)
	require.ErrorIs(t, r.Err, ledger.ErrInvalidSignature)

	require.Equal(t, uint64(100), balance(t, st, payer.Pubkey()))
	require.Equal(t, uint64(0), rt.Slot())
}

func TestExecute_AtomicRollback(t *testing.T) {
	rt, st := newTestRuntime(t)
	payer := funded(t, rt, 100)
	to := ledger.NewUnique()

	r := run(t, rt, []*ledger.Keypair{payer},
		system.Transfer(payer.Pubkey(), to, 60),
		system.Transfer(payer.Pubkey(), to, 60),
	)
	require.ErrorIs(t, r.Err, ledger.ErrInsufficientFunds)
	require.Contains(t, r.Error, "instruction 1")
	require.Equal(t, uint64(100), balance(t, st, payer.Pubkey()))
	require.Equal(t, uint64(0), balance(t, st, to))
}

func TestSimulate_DoesNotCommit(t *testing.T) {
	rt, st := newTestRuntime(t)
	payer := funded(t, rt, 100)
	to := ledger.NewUnique()

	tx := NewTransaction(system.Transfer(payer.Pubkey(), to, 40))
	tx.Sign(payer)
	r, err := rt.Simulate(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, r.Succeeded(), r.Error)
	require.True(t, r.Simulated)
	require.Equal(t, uint64(100), balance(t, st, payer.Pubkey()))
	require.Equal(t, uint64(0), rt.Slot())
}

func TestInvoke_PrivilegeEscalation(t *testing.T) {
	rt, _ := newTestRuntime(t)
	victim := funded(t, rt, 100)
	payer := funded(t, rt, 100)
	thief := ledger.NewUnique()

	programID := ledger.NewUnique()
	rt.Register(programID, ledger.ProgramFunc(func(ic ledger.InvokeContext, _ ledger.Pubkey, accounts []*ledger.AccountInfo, _ []byte) error {
		return ic.Invoke(system.Transfer(accounts[0].Key, accounts[1].Key, 50), accounts)
	}))

	r := run(t, rt, []*ledger.Keypair{payer}, ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			ledger.NewMeta(victim.Pubkey(), false),
			ledger.NewMeta(thief, false),
			ledger.NewReadonlyMeta(ledger.SystemProgramID, false),
			ledger.NewReadonlyMeta(payer.Pubkey(), true),
		},
	})
	require.ErrorIs(t, r.Err, ledger.ErrPrivilegeEscalation)

	r = run(t, rt, []*ledger.Keypair{victim}, ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			ledger.NewMeta(victim.Pubkey(), true),
			ledger.NewReadonlyMeta(thief, false),
			ledger.NewReadonlyMeta(ledger.SystemProgramID, false),
		},
	})
	require.ErrorIs(t, r.Err, ledger.ErrPrivilegeEscalation, "read-only account cannot be passed as writable")
}

func TestInvokeSigned_DerivedAuthority(t *testing.T) {
	rt, st := newTestRuntime(t)
	payer := funded(t, rt, 100)
	seed := ledger.NewUnique()
	to := ledger.NewUnique()

	programID := ledger.NewUnique()
	authority, nonce := ledger.DeriveAuthority(programID, seed)
	_, err := rt.Airdrop(context.Background(), authority, 30)
	require.NoError(t, err)

	rt.Register(programID, ledger.ProgramFunc(func(ic ledger.InvokeContext, _ ledger.Pubkey, accounts []*ledger.AccountInfo, _ []byte) error {
		ic.Log("paying out %d", 30)
		ix := system.Transfer(accounts[0].Key, accounts[1].Key, 30)
		return ic.InvokeSigned(ix, accounts, [][][]byte{ledger.AuthoritySeeds(seed, nonce)})
	}))

	r := run(t, rt, []*ledger.Keypair{payer}, ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			ledger.NewMeta(authority, false),
			ledger.NewMeta(to, false),
			ledger.NewReadonlyMeta(ledger.SystemProgramID, false),
			ledger.NewReadonlyMeta(payer.Pubkey(), true),
		},
	})
	require.True(t, r.Succeeded(), r.Error)
	require.Contains(t, r.Logs, "Program log: paying out 30")
	require.Equal(t, uint64(0), balance(t, st, authority))
	require.Equal(t, uint64(30), balance(t, st, to))
}

func TestInvoke_BorrowConflict(t *testing.T) {
	rt, _ := newTestRuntime(t)
	payer := funded(t, rt, 100)
	to := ledger.NewUnique()

	programID := ledger.NewUnique()
	rt.Register(programID, ledger.ProgramFunc(func(ic ledger.InvokeContext, _ ledger.Pubkey, accounts []*ledger.AccountInfo, _ []byte) error {
		b, err := accounts[0].BorrowMut()
		if err != nil {
			return err
		}
		defer b.Release()
		return ic.Invoke(system.Transfer(accounts[0].Key, accounts[1].Key, 1), accounts)
	}))

	r := run(t, rt, []*ledger.Keypair{payer}, ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			ledger.NewMeta(payer.Pubkey(), true),
			ledger.NewMeta(to, false),
			ledger.NewReadonlyMeta(ledger.SystemProgramID, false),
		},
	})
	require.ErrorIs(t, r.Err, ledger.ErrAccountBorrowFailed)
}

func TestInvoke_DepthAndReentrancy(t *testing.T) {
	rt, _ := newTestRuntime(t)
	payer := funded(t, rt, 100)

	recursive := ledger.NewUnique()
	calls := 0
	rt.Register(recursive, ledger.ProgramFunc(func(ic ledger.InvokeContext, id ledger.Pubkey, accounts []*ledger.AccountInfo, _ []byte) error {
		calls++
		return ic.Invoke(ledger.Instruction{ProgramID: id, Accounts: []ledger.AccountMeta{ledger.NewReadonlyMeta(id, false)}}, accounts)
	}))
	r := run(t, rt, []*ledger.Keypair{payer}, ledger.Instruction{
		ProgramID: recursive,
		Accounts: []ledger.AccountMeta{
			ledger.NewReadonlyMeta(recursive, false),
			ledger.NewReadonlyMeta(payer.Pubkey(), true),
		},
	})
	require.ErrorIs(t, r.Err, ledger.ErrCallDepth)
	require.Equal(t, MaxInvokeDepth, calls)

	a, b := ledger.NewUnique(), ledger.NewUnique()
	call := func(target ledger.Pubkey) ledger.ProgramFunc {
		return func(ic ledger.InvokeContext, _ ledger.Pubkey, accounts []*ledger.AccountInfo, _ []byte) error {
			return ic.Invoke(ledger.Instruction{
				ProgramID: target,
				Accounts:  []ledger.AccountMeta{ledger.NewReadonlyMeta(a, false), ledger.NewReadonlyMeta(b, false)},
			}, accounts)
		}
	}
	rt.Register(a, call(b))
	rt.Register(b, call(a))
	r = run(t, rt, []*ledger.Keypair{payer}, ledger.Instruction{
		ProgramID: a,
		Accounts: []ledger.AccountMeta{
			ledger.NewReadonlyMeta(a, false),
			ledger.NewReadonlyMeta(b, false),
			ledger.NewReadonlyMeta(payer.Pubkey(), true),
		},
	})
	require.ErrorIs(t, r.Err, ledger.ErrReentrancyNotAllowed)
}

func TestVerify_OwnershipRules(t *testing.T) {
	ctx := context.Background()
	rt, st := newTestRuntime(t)
	payer := funded(t, rt, 100)

	programID := ledger.NewUnique()
	owned, foreign := ledger.NewUnique(), ledger.NewUnique()
	require.NoError(t, st.PutAccounts(ctx, map[ledger.Pubkey]*ledger.Account{
		owned:   ledger.NewAccount(50, 4, programID),
		foreign: ledger.NewAccount(50, 4, ledger.NewUnique()),
	}))

	var mutate func(owned, foreign *ledger.AccountInfo)
	rt.Register(programID, ledger.ProgramFunc(func(_ ledger.InvokeContext, _ ledger.Pubkey, accounts []*ledger.AccountInfo, _ []byte) error {
		mutate(accounts[0], accounts[1])
		return nil
	}))
	exec := func(ownedWritable bool) *Receipt {
		meta := ledger.NewReadonlyMeta(owned, false)
		meta.IsWritable = ownedWritable
		return run(t, rt, []*ledger.Keypair{payer}, ledger.Instruction{
			ProgramID: programID,
			Accounts: []ledger.AccountMeta{
				meta,
				ledger.NewMeta(foreign, false),
				ledger.NewReadonlyMeta(payer.Pubkey(), true),
			},
		})
	}

	tests := []struct {
		name     string
		writable bool
		mutate   func(owned, foreign *ledger.AccountInfo)
		want     error
	}{
		{"foreign data", true, func(_, f *ledger.AccountInfo) { f.Data[0] = 1 }, ledger.ErrExternalDataModified},
		{"foreign spend", true, func(o, f *ledger.AccountInfo) { f.Lamports -= 10; o.Lamports += 10 }, ledger.ErrExternalLamportSpend},
		{"readonly data", false, func(o, _ *ledger.AccountInfo) { o.Data[0] = 1 }, ledger.ErrReadonlyDataModified},
		{"readonly lamports", false, func(o, f *ledger.AccountInfo) { o.Lamports += 1; f.Lamports -= 1 }, ledger.ErrReadonlyLamportChange},
		{"minted lamports", true, func(o, _ *ledger.AccountInfo) { o.Lamports += 1 }, ledger.ErrUnbalancedInstruction},
		{"owner of dirty account", true, func(o, _ *ledger.AccountInfo) { o.Data[0] = 1; o.Owner = ledger.NewUnique() }, ledger.ErrModifiedProgramID},
		{"executable", true, func(o, _ *ledger.AccountInfo) { o.Executable = true }, ledger.ErrExecutableModified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutate = tt.mutate
			r := exec(tt.writable)
			require.ErrorIs(t, r.Err, tt.want)
		})
	}

	mutate = func(o, f *ledger.AccountInfo) { o.Data[1] = 7; o.Lamports -= 5; f.Lamports += 5 }
	r := exec(true)
	require.True(t, r.Succeeded(), r.Error)
	acc, err := st.GetAccount(ctx, owned)
	require.NoError(t, err)
	require.Equal(t, byte(7), acc.Data[1])
	require.Equal(t, uint64(55), balance(t, st, foreign))
}

func TestAccount_Sysvars(t *testing.T) {
	rt, _ := newTestRuntime(t)
	acc, err := rt.Account(context.Background(), ledger.ClockSysvarID)
	require.NoError(t, err)
	require.Equal(t, ledger.SysvarOwnerID, acc.Owner)

	info := &ledger.AccountInfo{Key: ledger.ClockSysvarID, Account: acc}
	clock, err := ledger.ClockFromAccount(info)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), clock.UnixTimestamp)
	require.Equal(t, uint64(1), clock.Slot)

	acc, err = rt.Account(context.Background(), ledger.SystemProgramID)
	require.NoError(t, err)
	require.True(t, acc.Executable)

	_, err = rt.Airdrop(context.Background(), ledger.RentSysvarID, 1)
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
}
