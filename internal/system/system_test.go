package system

import (
	"errors"
	"testing"

	"github.com/blockworks-foundation/omega/internal/ledger"
)

type nopContext struct{}

func (nopContext) Invoke(ledger.Instruction, []*ledger.AccountInfo) error { return nil }
func (nopContext) InvokeSigned(ledger.Instruction, []*ledger.AccountInfo, [][][]byte) error {
	return nil
}
func (nopContext) Log(string, ...any) {}

func infos(ix ledger.Instruction, accounts map[ledger.Pubkey]*ledger.Account) []*ledger.AccountInfo {
	out := make([]*ledger.AccountInfo, len(ix.Accounts))
	for i, m := range ix.Accounts {
		out[i] = &ledger.AccountInfo{Key: m.Pubkey, IsSigner: m.IsSigner, IsWritable: m.IsWritable, Account: accounts[m.Pubkey]}
	}
	return out
}

func TestCreateAccount(t *testing.T) {
	payer, target, owner := ledger.NewUnique(), ledger.NewUnique(), ledger.NewUnique()
	accounts := map[ledger.Pubkey]*ledger.Account{
		payer:  ledger.NewAccount(1000, 0, ledger.SystemProgramID),
		target: ledger.NewAccount(0, 0, ledger.SystemProgramID),
	}

	ix := CreateAccount(payer, target, 600, 64, owner)
	if err := (Program{}).Process(nopContext{}, ledger.SystemProgramID, infos(ix, accounts), ix.Data); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if accounts[payer].Lamports != 400 || accounts[target].Lamports != 600 {
		t.Errorf("unexpected balances: payer=%d target=%d", accounts[payer].Lamports, accounts[target].Lamports)
	}
	if len(accounts[target].Data) != 64 || accounts[target].Owner != owner {
		t.Errorf("target not allocated and assigned: %+v", accounts[target])
	}

	// A second create on the same address fails.
	if err := (Program{}).Process(nopContext{}, ledger.SystemProgramID, infos(ix, accounts), ix.Data); !errors.Is(err, ledger.ErrAccountAlreadyInUse) {
		t.Errorf("expected ErrAccountAlreadyInUse, got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	from, to := ledger.NewUnique(), ledger.NewUnique()
	accounts := map[ledger.Pubkey]*ledger.Account{
		from: ledger.NewAccount(10, 0, ledger.SystemProgramID),
		to:   ledger.NewAccount(0, 0, ledger.SystemProgramID),
	}
	ix := Transfer(from, to, 11)
	if err := (Program{}).Process(nopContext{}, ledger.SystemProgramID, infos(ix, accounts), ix.Data); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}

	ix = Transfer(from, to, 10)
	list := infos(ix, accounts)
	list[0].IsSigner = false
	if err := (Program{}).Process(nopContext{}, ledger.SystemProgramID, list, ix.Data); !errors.Is(err, ledger.ErrMissingRequiredSignature) {
		t.Errorf("expected ErrMissingRequiredSignature, got %v", err)
	}
}

func TestAssign(t *testing.T) {
	acc, owner := ledger.NewUnique(), ledger.NewUnique()
	accounts := map[ledger.Pubkey]*ledger.Account{acc: ledger.NewAccount(5, 0, ledger.SystemProgramID)}
	ix := Assign(acc, owner)
	if err := (Program{}).Process(nopContext{}, ledger.SystemProgramID, infos(ix, accounts), ix.Data); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if accounts[acc].Owner != owner {
		t.Errorf("expected owner %s, got %s", owner, accounts[acc].Owner)
	}

	ix = Assign(acc, ledger.NewUnique())
	if err := (Program{}).Process(nopContext{}, ledger.SystemProgramID, infos(ix, accounts), ix.Data); !errors.Is(err, ledger.ErrModifiedProgramID) {
		t.Errorf("reassigning a program-owned account: expected ErrModifiedProgramID, got %v", err)
	}
}
