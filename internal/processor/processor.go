// Package processor is the settlement program: it decodes instructions,
// validates the positional account list against the contract record and
// moves value between the vault and the outcome tokens through nested calls
// into the token program.
package processor

import (
	"github.com/blockworks-foundation/omega/internal/contract"
	"github.com/blockworks-foundation/omega/internal/instruction"
	"github.com/blockworks-foundation/omega/internal/ledger"
	"github.com/blockworks-foundation/omega/internal/omegaerr"
	"github.com/blockworks-foundation/omega/internal/token"
)

var check = omegaerr.Checker(omegaerr.FileProcessor)

// Number of fixed leading accounts for Initialize, IssueSet and RedeemSet.
const numFixed = 6

// Processor is the settlement program's entry point.
type Processor struct{}

var _ ledger.Program = Processor{}

// Process dispatches one instruction. Any error aborts the enclosing
// transaction; the runtime discards every change made on the way.
func (Processor) Process(ic ledger.InvokeContext, programID ledger.Pubkey, accounts []*ledger.AccountInfo, data []byte) error {
	ix, ok := instruction.Decode(data)
	if !ok {
		return ledger.ErrInvalidInstructionData
	}

	var err error
	switch ix := ix.(type) {
	case instruction.Initialize:
		ic.Log("Initialize")
		err = initialize(programID, accounts, ix)
	case instruction.IssueSet:
		ic.Log("IssueSet")
		err = issueSet(ic, programID, accounts, ix.Quantity)
	case instruction.RedeemSet:
		ic.Log("RedeemSet")
		err = redeemSet(ic, programID, accounts, ix.Quantity)
	case instruction.RedeemWinner:
		ic.Log("RedeemWinner")
		err = redeemWinner(ic, programID, accounts, ix.Quantity)
	case instruction.Resolve:
		ic.Log("Resolve")
		err = resolve(programID, accounts)
	default:
		err = ledger.ErrInvalidInstructionData
	}
	return omegaerr.FromBorrow(err)
}

func initialize(programID ledger.Pubkey, accounts []*ledger.AccountInfo, ix instruction.Initialize) error {
	if err := check.Assert(len(accounts) >= numFixed+instruction.MinOutcomes && len(accounts) <= numFixed+contract.MaxOutcomes); err != nil {
		return err
	}
	contractAcc, oracleAcc, quoteMintAcc, vaultAcc, signerAcc, rentAcc :=
		accounts[0], accounts[1], accounts[2], accounts[3], accounts[4], accounts[5]
	outcomeAccs := accounts[numFixed:]

	rent, err := ledger.RentFromAccount(rentAcc)
	if err != nil {
		return err
	}
	if err := check.Assert(contractAcc.Owner == programID); err != nil {
		return err
	}
	if err := check.Assert(rent.IsExempt(contractAcc.Lamports, contract.Size)); err != nil {
		return err
	}
	if err := check.Assert(len(ix.Details) <= contract.DetailsBufferLen); err != nil {
		return err
	}

	b, err := contractAcc.BorrowMut()
	if err != nil {
		return err
	}
	defer b.Release()
	rec, err := contract.Load(b)
	if err != nil {
		return err
	}

	if err := check.Assert(rec.Flags == 0); err != nil {
		return err
	}
	if err := check.Assert(ix.AutoExpirationTime >= ix.ExpirationTime); err != nil {
		return err
	}
	signerKey, err := ledger.VerifyAuthority(programID, contractAcc.Key, ix.SignerNonce)
	if err != nil {
		return err
	}
	if err := check.Assert(signerKey == signerAcc.Key); err != nil {
		return err
	}

	rec.Flags = contract.FlagInitialized | contract.FlagContract
	rec.Oracle = oracleAcc.Key
	rec.QuoteMint = quoteMintAcc.Key
	rec.ExpirationTime = ix.ExpirationTime
	rec.AutoExpirationTime = ix.AutoExpirationTime
	rec.Vault = vaultAcc.Key
	rec.SignerKey = signerKey
	rec.SignerNonce = ix.SignerNonce
	rec.Winner = ledger.Pubkey{}
	rec.NumOutcomes = uint64(len(outcomeAccs))
	copy(rec.Details[:], ix.Details)

	quoteMint, err := readMint(quoteMintAcc)
	if err != nil {
		return err
	}
	vault, err := readTokenAccount(vaultAcc)
	if err != nil {
		return err
	}
	if err := check.Assert(vault.Owner == signerKey); err != nil {
		return err
	}
	if err := check.Assert(vault.Mint == quoteMintAcc.Key); err != nil {
		return err
	}

	for i, acc := range outcomeAccs {
		outcome, err := readMint(acc)
		if err != nil {
			return err
		}
		if outcome.MintAuthority == nil {
			return omegaerr.ErrInvalidOutcomeMintAuthority
		}
		if err := check.Assert(!acc.Key.IsZero()); err != nil {
			return err
		}
		if err := check.Assert(outcome.IsInitialized); err != nil {
			return err
		}
		if *outcome.MintAuthority != signerKey {
			return omegaerr.ErrInvalidOutcomeMintAuthority
		}
		if err := check.Assert(outcome.Supply == 0); err != nil {
			return err
		}
		if err := check.Assert(outcome.Decimals == quoteMint.Decimals); err != nil {
			return err
		}
		if err := check.Assert(rec.OutcomeIndex(acc.Key) < 0); err != nil {
			return err
		}
		rec.Outcomes[i] = acc.Key
	}

	return contract.Store(b, rec)
}

// setAccounts is the account shape shared by IssueSet and RedeemSet.
type setAccounts struct {
	contract, user, userQuote, vault, tokenProgram, signer *ledger.AccountInfo
	outcomes                                               []*ledger.AccountInfo
}

// loadForSet validates the set-operation accounts against the record. The
// returned borrow must be released by the caller.
func loadForSet(programID ledger.Pubkey, accounts []*ledger.AccountInfo) (*setAccounts, *contract.Record, *ledger.Borrow, error) {
	if err := check.Assert(len(accounts) >= numFixed); err != nil {
		return nil, nil, nil, err
	}
	a := &setAccounts{
		contract:     accounts[0],
		user:         accounts[1],
		userQuote:    accounts[2],
		vault:        accounts[3],
		tokenProgram: accounts[4],
		signer:       accounts[5],
		outcomes:     accounts[numFixed:],
	}

	b, err := a.contract.BorrowShared()
	if err != nil {
		return nil, nil, nil, err
	}
	rec, err := loadInitialized(programID, a.contract, b)
	if err == nil {
		err = check.Assert(a.vault.Key == rec.Vault)
	}
	if err == nil {
		err = check.Assert(uint64(len(a.outcomes)) == 2*rec.NumOutcomes)
	}
	if err == nil {
		err = check.Assert(a.user.IsSigner)
	}
	if err == nil {
		err = check.Assert(a.tokenProgram.Key == token.ProgramID)
	}
	if err != nil {
		b.Release()
		return nil, nil, nil, err
	}
	return a, rec, b, nil
}

func issueSet(ic ledger.InvokeContext, programID ledger.Pubkey, accounts []*ledger.AccountInfo, quantity uint64) error {
	a, rec, b, err := loadForSet(programID, accounts)
	if err != nil {
		return err
	}
	defer b.Release()

	deposit := token.Transfer(a.userQuote.Key, a.vault.Key, a.user.Key, quantity)
	if err := ic.Invoke(deposit, []*ledger.AccountInfo{a.userQuote, a.vault, a.user, a.tokenProgram}); err != nil {
		return err
	}

	seeds := [][][]byte{ledger.AuthoritySeeds(a.contract.Key, rec.SignerNonce)}
	for i := uint64(0); i < rec.NumOutcomes; i++ {
		mint, wallet := a.outcomes[2*i], a.outcomes[2*i+1]
		ix := token.MintTo(mint.Key, wallet.Key, a.signer.Key, quantity)
		if err := ic.InvokeSigned(ix, []*ledger.AccountInfo{mint, wallet, a.signer, a.tokenProgram}, seeds); err != nil {
			return err
		}
	}
	return nil
}

func redeemSet(ic ledger.InvokeContext, programID ledger.Pubkey, accounts []*ledger.AccountInfo, quantity uint64) error {
	a, rec, b, err := loadForSet(programID, accounts)
	if err != nil {
		return err
	}
	defer b.Release()

	for i := uint64(0); i < rec.NumOutcomes; i++ {
		mint, wallet := a.outcomes[2*i], a.outcomes[2*i+1]
		ix := token.Burn(wallet.Key, mint.Key, a.user.Key, quantity)
		if err := ic.Invoke(ix, []*ledger.AccountInfo{wallet, mint, a.user, a.tokenProgram}); err != nil {
			return err
		}
	}

	withdraw := token.Transfer(a.vault.Key, a.userQuote.Key, a.signer.Key, quantity)
	seeds := [][][]byte{ledger.AuthoritySeeds(a.contract.Key, rec.SignerNonce)}
	return ic.InvokeSigned(withdraw, []*ledger.AccountInfo{a.vault, a.userQuote, a.signer, a.tokenProgram}, seeds)
}

func redeemWinner(ic ledger.InvokeContext, programID ledger.Pubkey, accounts []*ledger.AccountInfo, quantity uint64) error {
	if err := check.Assert(len(accounts) == 9); err != nil {
		return err
	}
	contractAcc, userAcc, userQuoteAcc, vaultAcc, tokenAcc, signerAcc, winnerMintAcc, winnerUserAcc, clockAcc :=
		accounts[0], accounts[1], accounts[2], accounts[3], accounts[4], accounts[5], accounts[6], accounts[7], accounts[8]

	b, err := contractAcc.BorrowShared()
	if err != nil {
		return err
	}
	defer b.Release()
	rec, err := loadInitialized(programID, contractAcc, b)
	if err != nil {
		return err
	}
	if err := check.Assert(vaultAcc.Key == rec.Vault); err != nil {
		return err
	}
	if err := check.Assert(userAcc.IsSigner); err != nil {
		return err
	}
	if err := check.Assert(tokenAcc.Key == token.ProgramID); err != nil {
		return err
	}

	clock, err := ledger.ClockFromAccount(clockAcc)
	if err != nil {
		return err
	}
	now := unixSeconds(clock)

	var payout uint64
	if !rec.Resolved() {
		// Auto-expired without a winner: every outcome redeems pro rata.
		// The remainder of the division stays in the vault.
		if err := check.Assert(now >= rec.AutoExpirationTime); err != nil {
			return err
		}
		if err := check.Assert(rec.NumOutcomes > 0); err != nil {
			return err
		}
		if err := check.Assert(rec.OutcomeIndex(winnerMintAcc.Key) >= 0); err != nil {
			return err
		}
		payout = quantity / rec.NumOutcomes
	} else {
		if err := check.Assert(winnerMintAcc.Key == rec.Winner); err != nil {
			return err
		}
		payout = quantity
	}

	burn := token.Burn(winnerUserAcc.Key, winnerMintAcc.Key, userAcc.Key, quantity)
	if err := ic.Invoke(burn, []*ledger.AccountInfo{winnerUserAcc, winnerMintAcc, userAcc, tokenAcc}); err != nil {
		return err
	}

	withdraw := token.Transfer(vaultAcc.Key, userQuoteAcc.Key, signerAcc.Key, payout)
	seeds := [][][]byte{ledger.AuthoritySeeds(contractAcc.Key, rec.SignerNonce)}
	return ic.InvokeSigned(withdraw, []*ledger.AccountInfo{vaultAcc, userQuoteAcc, signerAcc, tokenAcc}, seeds)
}

func resolve(programID ledger.Pubkey, accounts []*ledger.AccountInfo) error {
	if err := check.Assert(len(accounts) == 4); err != nil {
		return err
	}
	contractAcc, oracleAcc, winnerAcc, clockAcc := accounts[0], accounts[1], accounts[2], accounts[3]

	b, err := contractAcc.BorrowMut()
	if err != nil {
		return err
	}
	defer b.Release()
	rec, err := loadInitialized(programID, contractAcc, b)
	if err != nil {
		return err
	}
	if err := check.Assert(rec.Oracle == oracleAcc.Key); err != nil {
		return err
	}
	if err := check.Assert(oracleAcc.IsSigner); err != nil {
		return err
	}

	clock, err := ledger.ClockFromAccount(clockAcc)
	if err != nil {
		return err
	}
	now := unixSeconds(clock)
	if err := check.Assert(rec.ExpirationTime <= now); err != nil {
		return err
	}
	if err := check.Assert(now < rec.AutoExpirationTime); err != nil {
		return err
	}
	if err := check.Assert(!rec.Resolved()); err != nil {
		return err
	}

	for _, outcome := range rec.OutcomeList() {
		if outcome == winnerAcc.Key {
			rec.Winner = outcome
			return contract.Store(b, rec)
		}
	}
	return omegaerr.ErrInvalidWinner
}

func loadInitialized(programID ledger.Pubkey, acc *ledger.AccountInfo, b *ledger.Borrow) (*contract.Record, error) {
	rec, err := contract.Load(b)
	if err != nil {
		return nil, err
	}
	if err := check.Assert(rec.Flags == contract.FlagInitialized|contract.FlagContract); err != nil {
		return nil, err
	}
	if err := check.Assert(acc.Owner == programID); err != nil {
		return nil, err
	}
	return rec, nil
}

func readMint(acc *ledger.AccountInfo) (*token.Mint, error) {
	if err := check.Assert(acc.Owner == token.ProgramID); err != nil {
		return nil, err
	}
	b, err := acc.BorrowShared()
	if err != nil {
		return nil, err
	}
	defer b.Release()
	return token.UnpackMint(b.Data())
}

func readTokenAccount(acc *ledger.AccountInfo) (*token.Account, error) {
	if err := check.Assert(acc.Owner == token.ProgramID); err != nil {
		return nil, err
	}
	b, err := acc.BorrowShared()
	if err != nil {
		return nil, err
	}
	defer b.Release()
	return token.UnpackAccount(b.Data())
}

// unixSeconds clamps clock times before the epoch to zero.
func unixSeconds(c ledger.Clock) uint64 {
	if c.UnixTimestamp < 0 {
		return 0
	}
	return uint64(c.UnixTimestamp)
}
