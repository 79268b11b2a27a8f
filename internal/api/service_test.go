package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/blockworks-foundation/omega/internal/api"
	"github.com/blockworks-foundation/omega/internal/contract"
	"github.com/blockworks-foundation/omega/internal/instruction"
	"github.com/blockworks-foundation/omega/internal/ledger"
	"github.com/blockworks-foundation/omega/internal/model"
	"github.com/blockworks-foundation/omega/internal/omegatest"
	"github.com/blockworks-foundation/omega/internal/runtime"
)

// newTestEnv creates a Service over a fresh in-memory ledger and a chi
// router with the API routes.
func newTestEnv(t *testing.T, allowAirdrop bool) (*omegatest.Ledger, chi.Router) {
	t.Helper()
	l := omegatest.NewLedger(t)
	svc := api.NewService(l.Runtime, l.Store, api.Options{
		ProgramID:    l.ProgramID,
		AllowAirdrop: allowAirdrop,
		MaxAirdrop:   1_000_000,
	}, nil)

	r := chi.NewRouter()
	r.Post("/api/v1/transactions", svc.SubmitTransaction)
	r.Post("/api/v1/transactions/simulate", svc.SimulateTransaction)
	r.Get("/api/v1/accounts/{pubkey}", svc.GetAccount)
	r.Get("/api/v1/accounts/{pubkey}/transactions", svc.GetAccountTransactions)
	r.Post("/api/v1/airdrop", svc.Airdrop)
	r.Get("/api/v1/rent", svc.GetRent)
	r.Get("/api/v1/contracts", svc.ListContracts)
	r.Post("/api/v1/contracts", svc.CreateContract)
	r.Get("/api/v1/contracts/{pubkey}", svc.GetContract)
	return l, r
}

func do(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func signed(l *omegatest.Ledger, signers []*ledger.Keypair, ixs ...ledger.Instruction) *runtime.Transaction {
	tx := runtime.NewTransaction(ixs...)
	tx.Sign(append([]*ledger.Keypair{l.Payer}, signers...)...)
	return tx
}

func decodeTx(t *testing.T, w *httptest.ResponseRecorder) model.TxRecord {
	t.Helper()
	var rec model.TxRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode tx record: %v: %s", err, w.Body.String())
	}
	return rec
}

func TestSubmitTransaction_IssueSet(t *testing.T) {
	l, router := newTestEnv(t, false)
	m := l.NewMarket(2, 100, 200)
	tr := l.NewTrader(m, 50)

	tx := signed(l, []*ledger.Keypair{tr.Key}, instruction.BuildIssueSet(l.ProgramID, m.SetParams(tr, 20)))
	w := do(t, router, "POST", "/api/v1/transactions", tx)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	rec := decodeTx(t, w)
	if rec.ID == "" || rec.Signature == "" {
		t.Errorf("expected id and signature, got %+v", rec)
	}
	if rec.Status != model.TxStatusSuccess {
		t.Errorf("status = %s", rec.Status)
	}
	if len(rec.Instructions) != 1 || rec.Instructions[0] != "issue_set" {
		t.Errorf("instructions = %v", rec.Instructions)
	}
	if l.Balance(m.Vault) != 20 {
		t.Errorf("vault = %d, want 20", l.Balance(m.Vault))
	}

	w = do(t, router, "GET", "/api/v1/accounts/"+tr.Key.Pubkey().String()+"/transactions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var history []model.TxRecord
	json.Unmarshal(w.Body.Bytes(), &history)
	if len(history) != 1 || history[0].ID != rec.ID {
		t.Errorf("history = %+v", history)
	}
}

func TestSubmitTransaction_Failure(t *testing.T) {
	l, router := newTestEnv(t, false)
	m := l.NewMarket(2, 100, 200)
	tr := l.NewTrader(m, 50)
	l.MustExec([]*ledger.Keypair{tr.Key}, instruction.BuildIssueSet(l.ProgramID, m.SetParams(tr, 10)))

	tx := signed(l, []*ledger.Keypair{tr.Key}, instruction.BuildRedeemWinner(l.ProgramID, m.RedeemWinnerParams(tr, 0, 10)))
	w := do(t, router, "POST", "/api/v1/transactions", tx)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	rec := decodeTx(t, w)
	if rec.Status != model.TxStatusFailed || rec.Kind != "assertion" || rec.Error == "" {
		t.Errorf("unexpected failure record: %+v", rec)
	}
	if rec.Code>>24 != 0 || rec.Code == 0 {
		t.Errorf("expected processor assertion code, got %#x", rec.Code)
	}

	// Failed transactions are still recorded.
	w = do(t, router, "GET", "/api/v1/accounts/"+m.Vault.String()+"/transactions", nil)
	var history []model.TxRecord
	json.Unmarshal(w.Body.Bytes(), &history)
	if len(history) != 1 || history[0].Status != model.TxStatusFailed {
		t.Errorf("history = %+v", history)
	}
}

func TestSubmitTransaction_BadRequest(t *testing.T) {
	_, router := newTestEnv(t, false)

	for _, body := range []string{
		`not json`,
		`{"instructions":[]}`,
		`{"instructions":[{"program_id":"not-a-key","accounts":[],"data":""}]}`,
	} {
		w := do(t, router, "POST", "/api/v1/transactions", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestSimulateTransaction(t *testing.T) {
	l, router := newTestEnv(t, false)
	m := l.NewMarket(2, 100, 200)
	tr := l.NewTrader(m, 50)

	tx := signed(l, []*ledger.Keypair{tr.Key}, instruction.BuildIssueSet(l.ProgramID, m.SetParams(tr, 20)))
	w := do(t, router, "POST", "/api/v1/transactions/simulate", tx)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	rec := decodeTx(t, w)
	if len(rec.Logs) == 0 {
		t.Error("expected program logs")
	}
	if l.Balance(m.Vault) != 0 {
		t.Errorf("simulation committed: vault = %d", l.Balance(m.Vault))
	}

	tx = signed(l, []*ledger.Keypair{tr.Key}, instruction.BuildIssueSet(l.ProgramID, m.SetParams(tr, 51)))
	w = do(t, router, "POST", "/api/v1/transactions/simulate", tx)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	if rec := decodeTx(t, w); rec.Kind != "runtime" || rec.Code != 1 {
		t.Errorf("expected token insufficient funds, got %+v", rec)
	}
}

func TestGetContract(t *testing.T) {
	l, router := newTestEnv(t, false)
	m := l.NewMarket(3, 100, 200)
	tr := l.NewTrader(m, 5_000_000)
	l.MustExec([]*ledger.Keypair{tr.Key}, instruction.BuildIssueSet(l.ProgramID, m.SetParams(tr, 2_500_000)))

	get := func() api.ContractView {
		t.Helper()
		w := do(t, router, "GET", "/api/v1/contracts/"+m.Contract.Pubkey().String(), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var view api.ContractView
		if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
			t.Fatalf("decode view: %v", err)
		}
		return view
	}

	view := get()
	if view.Status != contract.StatusActive {
		t.Errorf("status = %s", view.Status)
	}
	if len(view.Outcomes) != 3 || view.Details != "test market" {
		t.Errorf("unexpected view: %+v", view)
	}
	if !view.VaultBalance.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("vault balance = %s, want 2.5", view.VaultBalance)
	}
	if !view.RedemptionRate.IsZero() {
		t.Errorf("redemption rate = %s while active", view.RedemptionRate)
	}

	l.SetTime(200)
	view = get()
	if view.Status != contract.StatusAutoExpired {
		t.Errorf("status = %s", view.Status)
	}
	if !view.RedemptionRate.Equal(decimal.RequireFromString("0.333333")) {
		t.Errorf("redemption rate = %s", view.RedemptionRate)
	}

	w := do(t, router, "GET", "/api/v1/contracts/"+m.Vault.String(), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("non-contract account: expected 404, got %d", w.Code)
	}
	w = do(t, router, "GET", "/api/v1/contracts/xyz", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad pubkey: expected 400, got %d", w.Code)
	}
}

func TestContractMetadata(t *testing.T) {
	l, router := newTestEnv(t, false)
	m := l.NewMarket(2, 100, 200)

	meta := model.ContractMeta{
		ContractPK:   m.Contract.Pubkey().String(),
		ContractName: "Election",
		Outcomes: []model.OutcomeMeta{
			{MintPK: m.Outcomes[0].String(), Name: "Yes"},
			{MintPK: m.Outcomes[1].String(), Name: "No"},
		},
	}
	w := do(t, router, "POST", "/api/v1/contracts", meta)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w = do(t, router, "POST", "/api/v1/contracts", meta)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate: expected 409, got %d", w.Code)
	}

	bad := meta
	bad.ContractPK = "B"
	bad.Outcomes = meta.Outcomes[:1]
	w = do(t, router, "POST", "/api/v1/contracts", bad)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid meta: expected 400, got %d", w.Code)
	}

	w = do(t, router, "GET", "/api/v1/contracts", nil)
	var list []model.ContractMeta
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 || list[0].ProgramID != l.ProgramID.String() {
		t.Errorf("list = %+v", list)
	}

	w = do(t, router, "GET", "/api/v1/contracts/"+m.Contract.Pubkey().String(), nil)
	var view api.ContractView
	json.Unmarshal(w.Body.Bytes(), &view)
	if view.Meta == nil || view.Meta.ContractName != "Election" {
		t.Errorf("view meta = %+v", view.Meta)
	}
}

func TestGetAccount(t *testing.T) {
	l, router := newTestEnv(t, false)
	m := l.NewMarket(2, 100, 200)
	tr := l.NewTrader(m, 1_234_500)

	w := do(t, router, "GET", "/api/v1/accounts/"+tr.Quote.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var view api.AccountView
	json.Unmarshal(w.Body.Bytes(), &view)
	if view.TokenAccount == nil || !view.TokenAccount.UIAmount.Equal(decimal.RequireFromString("1.2345")) {
		t.Errorf("token account view = %+v", view.TokenAccount)
	}
	if !view.RentExempt {
		t.Error("wallet should be rent exempt")
	}

	w = do(t, router, "GET", "/api/v1/accounts/"+m.QuoteMint.String(), nil)
	json.Unmarshal(w.Body.Bytes(), &view)
	if view.Mint == nil || view.Mint.Decimals != omegatest.QuoteDecimals {
		t.Errorf("mint view = %+v", view.Mint)
	}

	w = do(t, router, "GET", "/api/v1/accounts/"+ledger.NewUnique().String(), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing account: expected 404, got %d", w.Code)
	}
}

func TestAirdropAndRent(t *testing.T) {
	_, router := newTestEnv(t, false)
	pk := ledger.NewUnique().String()
	w := do(t, router, "POST", "/api/v1/airdrop", map[string]any{"pubkey": pk, "lamports": 10})
	if w.Code != http.StatusForbidden {
		t.Errorf("disabled airdrop: expected 403, got %d", w.Code)
	}

	_, router = newTestEnv(t, true)
	w = do(t, router, "POST", "/api/v1/airdrop", map[string]any{"pubkey": pk, "lamports": 10})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = do(t, router, "POST", "/api/v1/airdrop", map[string]any{"pubkey": pk, "lamports": 2_000_000})
	if w.Code != http.StatusBadRequest {
		t.Errorf("over limit: expected 400, got %d", w.Code)
	}
	w = do(t, router, "GET", "/api/v1/accounts/"+pk, nil)
	var view api.AccountView
	json.Unmarshal(w.Body.Bytes(), &view)
	if view.Lamports != 10 {
		t.Errorf("lamports = %d, want 10", view.Lamports)
	}

	w = do(t, router, "GET", "/api/v1/rent?size=0", nil)
	var rent map[string]uint64
	json.Unmarshal(w.Body.Bytes(), &rent)
	if rent["lamports"] != 890880 {
		t.Errorf("rent for 0 bytes = %d, want 890880", rent["lamports"])
	}
	w = do(t, router, "GET", "/api/v1/rent?size=-1", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative size: expected 400, got %d", w.Code)
	}
}
