package instruction

import (
	"github.com/blockworks-foundation/omega/internal/ledger"
	"github.com/blockworks-foundation/omega/internal/omegaerr"
	"github.com/blockworks-foundation/omega/internal/token"
)

var check = omegaerr.Checker(omegaerr.FileInstruction)

// OutcomeAccounts pairs an outcome mint with the user's wallet for it.
type OutcomeAccounts struct {
	Mint   ledger.Pubkey
	Wallet ledger.Pubkey
}

// InitializeParams are the inputs to InitializeContract.
type InitializeParams struct {
	Contract           ledger.Pubkey
	Oracle             ledger.Pubkey
	QuoteMint          ledger.Pubkey
	Vault              ledger.Pubkey
	Signer             ledger.Pubkey
	Outcomes           []ledger.Pubkey
	ExpirationTime     uint64
	AutoExpirationTime uint64
	SignerNonce        uint64
	Details            string
}

// InitializeContract builds an Initialize instruction.
//
// Accounts:
//
//	0. [writable] contract
//	1. [] oracle
//	2. [] quote mint
//	3. [] vault, owned by the derived signer
//	4. [] derived signer
//	5. [] rent sysvar
//	6.. [writable] outcome mints, 2 to 8 of them
func InitializeContract(programID ledger.Pubkey, p InitializeParams) (ledger.Instruction, error) {
	if err := check.Assert(len(p.Outcomes) >= MinOutcomes && len(p.Outcomes) <= MaxOutcomes); err != nil {
		return ledger.Instruction{}, err
	}
	if err := check.Assert(len(p.Details) <= MaxDetailsLen); err != nil {
		return ledger.Instruction{}, err
	}

	accounts := []ledger.AccountMeta{
		ledger.NewMeta(p.Contract, false),
		ledger.NewReadonlyMeta(p.Oracle, false),
		ledger.NewReadonlyMeta(p.QuoteMint, false),
		ledger.NewReadonlyMeta(p.Vault, false),
		ledger.NewReadonlyMeta(p.Signer, false),
		ledger.NewReadonlyMeta(ledger.RentSysvarID, false),
	}
	for _, pk := range p.Outcomes {
		accounts = append(accounts, ledger.NewMeta(pk, false))
	}

	var details []byte
	if p.Details != "" {
		details = []byte(p.Details)
	}
	return ledger.Instruction{
		ProgramID: programID,
		Accounts:  accounts,
		Data: Encode(Initialize{
			ExpirationTime:     p.ExpirationTime,
			AutoExpirationTime: p.AutoExpirationTime,
			SignerNonce:        p.SignerNonce,
			Details:            details,
		}),
	}, nil
}

// SetParams are the inputs shared by IssueSet and RedeemSet.
type SetParams struct {
	Contract  ledger.Pubkey
	User      ledger.Pubkey
	UserQuote ledger.Pubkey
	Vault     ledger.Pubkey
	Signer    ledger.Pubkey
	Outcomes  []OutcomeAccounts
	Quantity  uint64
}

// BuildIssueSet builds an IssueSet instruction.
//
// Accounts:
//
//	0. [] contract
//	1. [signer] user
//	2. [writable] user quote wallet
//	3. [writable] vault
//	4. [] token program
//	5. [] derived signer
//	6.. [writable] (outcome mint, user outcome wallet) per outcome
func BuildIssueSet(programID ledger.Pubkey, p SetParams) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: programID,
		Accounts:  setAccounts(p),
		Data:      Encode(IssueSet{Quantity: p.Quantity}),
	}
}

// BuildRedeemSet builds a RedeemSet instruction. The account list matches
// BuildIssueSet.
func BuildRedeemSet(programID ledger.Pubkey, p SetParams) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: programID,
		Accounts:  setAccounts(p),
		Data:      Encode(RedeemSet{Quantity: p.Quantity}),
	}
}

func setAccounts(p SetParams) []ledger.AccountMeta {
	accounts := []ledger.AccountMeta{
		ledger.NewReadonlyMeta(p.Contract, false),
		ledger.NewReadonlyMeta(p.User, true),
		ledger.NewMeta(p.UserQuote, false),
		ledger.NewMeta(p.Vault, false),
		ledger.NewReadonlyMeta(token.ProgramID, false),
		ledger.NewReadonlyMeta(p.Signer, false),
	}
	for _, o := range p.Outcomes {
		accounts = append(accounts, ledger.NewMeta(o.Mint, false), ledger.NewMeta(o.Wallet, false))
	}
	return accounts
}

// RedeemWinnerParams are the inputs to BuildRedeemWinner.
type RedeemWinnerParams struct {
	Contract     ledger.Pubkey
	User         ledger.Pubkey
	UserQuote    ledger.Pubkey
	Vault        ledger.Pubkey
	Signer       ledger.Pubkey
	WinnerMint   ledger.Pubkey
	WinnerWallet ledger.Pubkey
	Quantity     uint64
}

// BuildRedeemWinner builds a RedeemWinner instruction.
//
// Accounts:
//
//	0. [] contract
//	1. [signer] user
//	2. [writable] user quote wallet
//	3. [writable] vault
//	4. [] token program
//	5. [] derived signer
//	6. [writable] winner mint
//	7. [writable] user winner wallet
//	8. [] clock sysvar
func BuildRedeemWinner(programID ledger.Pubkey, p RedeemWinnerParams) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			ledger.NewReadonlyMeta(p.Contract, false),
			ledger.NewReadonlyMeta(p.User, true),
			ledger.NewMeta(p.UserQuote, false),
			ledger.NewMeta(p.Vault, false),
			ledger.NewReadonlyMeta(token.ProgramID, false),
			ledger.NewReadonlyMeta(p.Signer, false),
			ledger.NewMeta(p.WinnerMint, false),
			ledger.NewMeta(p.WinnerWallet, false),
			ledger.NewReadonlyMeta(ledger.ClockSysvarID, false),
		},
		Data: Encode(RedeemWinner{Quantity: p.Quantity}),
	}
}

// BuildResolve builds a Resolve instruction.
//
// Accounts:
//
//	0. [writable] contract
//	1. [signer] oracle
//	2. [] winning outcome mint
//	3. [] clock sysvar
func BuildResolve(programID, contract, oracle, winner ledger.Pubkey) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			ledger.NewMeta(contract, false),
			ledger.NewReadonlyMeta(oracle, true),
			ledger.NewReadonlyMeta(winner, false),
			ledger.NewReadonlyMeta(ledger.ClockSysvarID, false),
		},
		Data: Encode(Resolve{}),
	}
}
