// Package omegatest provides an in-memory ledger with the token, system and
// settlement programs registered, plus helpers to set up contracts and
// users for tests.
package omegatest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/blockworks-foundation/omega/internal/contract"
	"github.com/blockworks-foundation/omega/internal/instruction"
	"github.com/blockworks-foundation/omega/internal/ledger"
	"github.com/blockworks-foundation/omega/internal/processor"
	"github.com/blockworks-foundation/omega/internal/runtime"
	"github.com/blockworks-foundation/omega/internal/store"
	"github.com/blockworks-foundation/omega/internal/system"
	"github.com/blockworks-foundation/omega/internal/token"
)

// QuoteDecimals is the decimals of quote and outcome mints set up by the
// fixture.
const QuoteDecimals = 6

// Ledger is a runtime backed by a MemoryStore with a settable clock.
type Ledger struct {
	t         testing.TB
	Runtime   *runtime.Runtime
	Store     *store.MemoryStore
	ProgramID ledger.Pubkey
	Payer     *ledger.Keypair
	now       time.Time
}

// NewLedger returns a ledger whose clock starts at unix time 0.
func NewLedger(t testing.TB) *Ledger {
	t.Helper()
	l := &Ledger{
		t:         t,
		Store:     store.NewMemoryStore(),
		ProgramID: ledger.NewUnique(),
		Payer:     ledger.NewKeypair(),
		now:       time.Unix(0, 0),
	}
	l.Runtime = runtime.New(l.Store,
		runtime.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		runtime.WithClock(func() time.Time { return l.now }),
	)
	l.Runtime.Register(token.ProgramID, token.Program{})
	l.Runtime.Register(l.ProgramID, processor.Processor{})
	if _, err := l.Runtime.Airdrop(context.Background(), l.Payer.Pubkey(), 1_000_000_000_000); err != nil {
		t.Fatalf("airdrop payer: %v", err)
	}
	return l
}

// SetTime moves the clock sysvar to unix seconds.
func (l *Ledger) SetTime(unix int64) {
	l.now = time.Unix(unix, 0)
}

// Exec signs and executes ixs with the payer plus signers. Execution
// failures are returned in the receipt.
func (l *Ledger) Exec(signers []*ledger.Keypair, ixs ...ledger.Instruction) *runtime.Receipt {
	l.t.Helper()
	tx := runtime.NewTransaction(ixs...)
	tx.Sign(append([]*ledger.Keypair{l.Payer}, signers...)...)
	r, err := l.Runtime.Execute(context.Background(), tx)
	if err != nil {
		l.t.Fatalf("execute: %v", err)
	}
	return r
}

// MustExec is Exec that fails the test on an execution error.
func (l *Ledger) MustExec(signers []*ledger.Keypair, ixs ...ledger.Instruction) *runtime.Receipt {
	l.t.Helper()
	r := l.Exec(signers, ixs...)
	if r.Err != nil {
		l.t.Fatalf("transaction failed: %v\nlogs: %v", r.Err, r.Logs)
	}
	return r
}

// CreateAccountIx allocates a rent-exempt account of size owned by owner,
// paid by the payer.
func (l *Ledger) CreateAccountIx(target ledger.Pubkey, size int, owner ledger.Pubkey) ledger.Instruction {
	return system.CreateAccount(l.Payer.Pubkey(), target, l.Runtime.MinimumBalance(size), uint64(size), owner)
}

// CreateMint creates a mint controlled by authority.
func (l *Ledger) CreateMint(authority ledger.Pubkey, decimals uint8) ledger.Pubkey {
	l.t.Helper()
	kp := ledger.NewKeypair()
	l.MustExec([]*ledger.Keypair{kp},
		l.CreateAccountIx(kp.Pubkey(), token.MintLen, token.ProgramID),
		token.InitializeMint(kp.Pubkey(), authority, nil, decimals),
	)
	return kp.Pubkey()
}

// CreateWallet creates a token account of mint held by owner.
func (l *Ledger) CreateWallet(mint, owner ledger.Pubkey) ledger.Pubkey {
	l.t.Helper()
	kp := ledger.NewKeypair()
	l.MustExec([]*ledger.Keypair{kp},
		l.CreateAccountIx(kp.Pubkey(), token.AccountLen, token.ProgramID),
		token.InitializeAccount(kp.Pubkey(), mint, owner),
	)
	return kp.Pubkey()
}

// Balance returns the token amount held by wallet.
func (l *Ledger) Balance(wallet ledger.Pubkey) uint64 {
	l.t.Helper()
	acc := l.Account(wallet)
	w, err := token.UnpackAccount(acc.Data)
	if err != nil {
		l.t.Fatalf("unpack wallet %s: %v", wallet, err)
	}
	return w.Amount
}

// Supply returns the supply of mint.
func (l *Ledger) Supply(mint ledger.Pubkey) uint64 {
	l.t.Helper()
	m, err := token.UnpackMint(l.Account(mint).Data)
	if err != nil {
		l.t.Fatalf("unpack mint %s: %v", mint, err)
	}
	return m.Supply
}

// Account reads pk from the store.
func (l *Ledger) Account(pk ledger.Pubkey) *ledger.Account {
	l.t.Helper()
	acc, err := l.Store.GetAccount(context.Background(), pk)
	if err != nil {
		l.t.Fatalf("get account %s: %v", pk, err)
	}
	return acc
}

// Record decodes the contract record at pk.
func (l *Ledger) Record(pk ledger.Pubkey) *contract.Record {
	l.t.Helper()
	rec, err := contract.Decode(l.Account(pk).Data)
	if err != nil {
		l.t.Fatalf("decode contract %s: %v", pk, err)
	}
	return rec
}

// Market is a contract together with everything needed to trade it.
type Market struct {
	Contract       *ledger.Keypair
	Oracle         *ledger.Keypair
	QuoteAuthority *ledger.Keypair
	QuoteMint      ledger.Pubkey
	Vault          ledger.Pubkey
	Signer         ledger.Pubkey
	Nonce          uint64
	Outcomes       []ledger.Pubkey
	Expiration     uint64
	AutoExpiration uint64
}

// PrepareMarket allocates the quote mint, outcome mints and vault for a
// contract with n outcomes and returns the Initialize parameters. The
// contract account itself is created by InitializeIxs.
func (l *Ledger) PrepareMarket(n int, exp, autoExp uint64) *Market {
	l.t.Helper()
	m := &Market{
		Contract:       ledger.NewKeypair(),
		Oracle:         ledger.NewKeypair(),
		QuoteAuthority: ledger.NewKeypair(),
		Expiration:     exp,
		AutoExpiration: autoExp,
	}
	m.Signer, m.Nonce = ledger.DeriveAuthority(l.ProgramID, m.Contract.Pubkey())
	m.QuoteMint = l.CreateMint(m.QuoteAuthority.Pubkey(), QuoteDecimals)
	m.Vault = l.CreateWallet(m.QuoteMint, m.Signer)
	for i := 0; i < n; i++ {
		m.Outcomes = append(m.Outcomes, l.CreateMint(m.Signer, QuoteDecimals))
	}
	return m
}

// InitializeParams returns the builder parameters for m.
func (m *Market) InitializeParams(details string) instruction.InitializeParams {
	return instruction.InitializeParams{
		Contract:           m.Contract.Pubkey(),
		Oracle:             m.Oracle.Pubkey(),
		QuoteMint:          m.QuoteMint,
		Vault:              m.Vault,
		Signer:             m.Signer,
		Outcomes:           m.Outcomes,
		ExpirationTime:     m.Expiration,
		AutoExpirationTime: m.AutoExpiration,
		SignerNonce:        m.Nonce,
		Details:            details,
	}
}

// CreateContractIx allocates the contract account owned by the program.
func (l *Ledger) CreateContractIx(m *Market) ledger.Instruction {
	return l.CreateAccountIx(m.Contract.Pubkey(), contract.Size, l.ProgramID)
}

// NewMarket prepares and initializes a contract with n outcomes.
func (l *Ledger) NewMarket(n int, exp, autoExp uint64) *Market {
	l.t.Helper()
	m := l.PrepareMarket(n, exp, autoExp)
	ix, err := instruction.InitializeContract(l.ProgramID, m.InitializeParams("test market"))
	if err != nil {
		l.t.Fatalf("build initialize: %v", err)
	}
	l.MustExec([]*ledger.Keypair{m.Contract}, l.CreateContractIx(m), ix)
	return m
}

// Trader is a user with a quote wallet and one wallet per outcome.
type Trader struct {
	Key      *ledger.Keypair
	Quote    ledger.Pubkey
	Outcomes []instruction.OutcomeAccounts
}

// NewTrader creates a user funded with quote tokens.
func (l *Ledger) NewTrader(m *Market, quote uint64) *Trader {
	l.t.Helper()
	tr := &Trader{Key: ledger.NewKeypair()}
	tr.Quote = l.CreateWallet(m.QuoteMint, tr.Key.Pubkey())
	if quote > 0 {
		l.MustExec([]*ledger.Keypair{m.QuoteAuthority},
			token.MintTo(m.QuoteMint, tr.Quote, m.QuoteAuthority.Pubkey(), quote))
	}
	for _, mint := range m.Outcomes {
		tr.Outcomes = append(tr.Outcomes, instruction.OutcomeAccounts{
			Mint:   mint,
			Wallet: l.CreateWallet(mint, tr.Key.Pubkey()),
		})
	}
	return tr
}

// SetParams returns IssueSet/RedeemSet parameters for tr on m.
func (m *Market) SetParams(tr *Trader, quantity uint64) instruction.SetParams {
	return instruction.SetParams{
		Contract:  m.Contract.Pubkey(),
		User:      tr.Key.Pubkey(),
		UserQuote: tr.Quote,
		Vault:     m.Vault,
		Signer:    m.Signer,
		Outcomes:  tr.Outcomes,
		Quantity:  quantity,
	}
}

// RedeemWinnerParams returns RedeemWinner parameters for tr redeeming
// outcome i.
func (m *Market) RedeemWinnerParams(tr *Trader, i int, quantity uint64) instruction.RedeemWinnerParams {
	return instruction.RedeemWinnerParams{
		Contract:     m.Contract.Pubkey(),
		User:         tr.Key.Pubkey(),
		UserQuote:    tr.Quote,
		Vault:        m.Vault,
		Signer:       m.Signer,
		WinnerMint:   tr.Outcomes[i].Mint,
		WinnerWallet: tr.Outcomes[i].Wallet,
		Quantity:     quantity,
	}
}
