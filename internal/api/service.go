// Package api provides the HTTP handlers for submitting transactions to the
// ledger runtime and querying accounts, transaction history and contracts.
//
// Token amounts are reported as shopspring/decimal in UI units; never
// float64.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blockworks-foundation/omega/internal/contract"
	"github.com/blockworks-foundation/omega/internal/ledger"
	"github.com/blockworks-foundation/omega/internal/metrics"
	"github.com/blockworks-foundation/omega/internal/model"
	"github.com/blockworks-foundation/omega/internal/runtime"
	"github.com/blockworks-foundation/omega/internal/store"
	"github.com/blockworks-foundation/omega/internal/token"
)

// Options tune the service.
type Options struct {
	// ProgramID is the address the settlement program is registered under.
	ProgramID ledger.Pubkey
	// AllowAirdrop enables POST /airdrop.
	AllowAirdrop bool
	// MaxAirdrop caps a single airdrop. Zero means no cap.
	MaxAirdrop uint64
}

// Service serves the ledger over HTTP. Transaction execution is serialized
// by the runtime.
type Service struct {
	rt           *runtime.Runtime
	store        store.Store
	programID    ledger.Pubkey
	allowAirdrop bool
	maxAirdrop   uint64
	wsHub        *WSHub // optional WebSocket hub for contract events
}

// NewService creates a new API service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(rt *runtime.Runtime, st store.Store, opts Options, hub *WSHub) *Service {
	return &Service{
		rt:           rt,
		store:        st,
		programID:    opts.ProgramID,
		allowAirdrop: opts.AllowAirdrop,
		maxAirdrop:   opts.MaxAirdrop,
		wsHub:        hub,
	}
}

// --- Request/Response types ---

// AirdropRequest is the JSON body for POST /airdrop.
type AirdropRequest struct {
	Pubkey   ledger.Pubkey `json:"pubkey"`
	Lamports uint64        `json:"lamports"`
}

// AccountView is an account with its data decoded where the owner is known.
type AccountView struct {
	Pubkey       string            `json:"pubkey"`
	Owner        string            `json:"owner"`
	Lamports     uint64            `json:"lamports"`
	Executable   bool              `json:"executable"`
	Data         []byte            `json:"data"`
	RentExempt   bool              `json:"rent_exempt"`
	Mint         *MintView         `json:"mint,omitempty"`
	TokenAccount *TokenAccountView `json:"token_account,omitempty"`
}

// MintView is a decoded token mint.
type MintView struct {
	*token.Mint
	UISupply decimal.Decimal `json:"ui_supply"`
}

// TokenAccountView is a decoded token account.
type TokenAccountView struct {
	*token.Account
	UIAmount decimal.Decimal `json:"ui_amount"`
}

// ContractView is a decoded contract record with its derived state.
type ContractView struct {
	Pubkey             string              `json:"pubkey"`
	Status             contract.Status     `json:"status"`
	Oracle             string              `json:"oracle"`
	QuoteMint          string              `json:"quote_mint"`
	Vault              string              `json:"vault"`
	Signer             string              `json:"signer"`
	SignerNonce        uint64              `json:"signer_nonce"`
	Winner             string              `json:"winner,omitempty"`
	Outcomes           []string            `json:"outcomes"`
	Details            string              `json:"details"`
	ExpirationTime     uint64              `json:"expiration_time"`
	AutoExpirationTime uint64              `json:"auto_expiration_time"`
	VaultBalance       decimal.Decimal     `json:"vault_balance"`
	RedemptionRate     decimal.Decimal     `json:"redemption_rate"`
	Now                int64               `json:"now"`
	Meta               *model.ContractMeta `json:"meta,omitempty"`
}

// --- HTTP Handlers ---

// SubmitTransaction handles POST /api/v1/transactions
// Executes the transaction and commits it if every instruction succeeds.
func (s *Service) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var tx runtime.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(tx.Instructions) == 0 {
		writeError(w, "transaction has no instructions", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	start := time.Now()
	receipt, err := s.rt.Execute(ctx, &tx)
	if err != nil {
		slog.Error("transaction execution failed", "err", err)
		writeError(w, "failed to execute transaction", http.StatusInternalServerError)
		return
	}
	rec := s.record(&tx, receipt)
	metrics.TransactionLatency.WithLabelValues(rec.Status).Observe(time.Since(start).Seconds())
	metrics.TransactionsTotal.WithLabelValues(rec.Status).Inc()
	for _, name := range rec.Instructions {
		metrics.InstructionsTotal.WithLabelValues(name, rec.Status).Inc()
	}

	// The ledger state is already committed; a history failure is logged
	// but does not fail the request.
	if err := s.store.InsertTx(ctx, rec); err != nil {
		slog.Error("failed to record transaction", "id", rec.ID, "err", err)
	}

	if !receipt.Succeeded() {
		metrics.ProgramErrors.WithLabelValues(rec.Kind).Inc()
		writeJSON(w, http.StatusUnprocessableEntity, rec)
		return
	}

	for _, ev := range s.events(&tx, receipt) {
		switch ev.Type {
		case EventContractInitialized:
			metrics.ContractsInitialized.Inc()
		case EventContractResolved:
			metrics.ContractsResolved.Inc()
		}
		slog.Info("contract event",
			"type", ev.Type,
			"contract", ev.Contract,
			"slot", ev.Slot,
			"quantity", ev.Quantity,
		)
		if s.wsHub != nil {
			s.wsHub.Broadcast(ev)
		}
	}

	writeJSON(w, http.StatusOK, rec)
}

// SimulateTransaction handles POST /api/v1/transactions/simulate
// Executes without committing and returns logs and the error code.
func (s *Service) SimulateTransaction(w http.ResponseWriter, r *http.Request) {
	var tx runtime.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(tx.Instructions) == 0 {
		writeError(w, "transaction has no instructions", http.StatusBadRequest)
		return
	}

	receipt, err := s.rt.Simulate(r.Context(), &tx)
	if err != nil {
		slog.Error("transaction simulation failed", "err", err)
		writeError(w, "failed to simulate transaction", http.StatusInternalServerError)
		return
	}
	rec := s.record(&tx, receipt)
	rec.ID = ""
	metrics.SimulationsTotal.WithLabelValues(rec.Status).Inc()

	status := http.StatusOK
	if !receipt.Succeeded() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, rec)
}

// GetAccount handles GET /api/v1/accounts/{pubkey}
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	pk, ok := pubkeyParam(w, r)
	if !ok {
		return
	}

	acc, err := s.rt.Account(r.Context(), pk)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load account", http.StatusInternalServerError)
		return
	}

	view := AccountView{
		Pubkey:     pk.String(),
		Owner:      acc.Owner.String(),
		Lamports:   acc.Lamports,
		Executable: acc.Executable,
		Data:       acc.Data,
		RentExempt: s.rt.Rent().IsExempt(acc.Lamports, len(acc.Data)),
	}
	if acc.Owner == token.ProgramID {
		switch len(acc.Data) {
		case token.MintLen:
			if m, err := token.UnpackMint(acc.Data); err == nil {
				view.Mint = &MintView{Mint: m, UISupply: token.UIAmount(m.Supply, m.Decimals)}
			}
		case token.AccountLen:
			if a, err := token.UnpackAccount(acc.Data); err == nil {
				tv := &TokenAccountView{Account: a, UIAmount: decimal.NewFromInt(0)}
				if m, err := s.loadMint(r, a.Mint); err == nil {
					tv.UIAmount = token.UIAmount(a.Amount, m.Decimals)
				}
				view.TokenAccount = tv
			}
		}
	}

	writeJSON(w, http.StatusOK, view)
}

// GetAccountTransactions handles GET /api/v1/accounts/{pubkey}/transactions
// Returns the history of transactions that referenced the account.
func (s *Service) GetAccountTransactions(w http.ResponseWriter, r *http.Request) {
	pk, ok := pubkeyParam(w, r)
	if !ok {
		return
	}

	txs, err := s.store.GetTxsByAccount(r.Context(), pk.String())
	if err != nil {
		writeError(w, "failed to get transactions", http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []model.TxRecord{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// Airdrop handles POST /api/v1/airdrop
// Only available on development ledgers.
func (s *Service) Airdrop(w http.ResponseWriter, r *http.Request) {
	if !s.allowAirdrop {
		writeError(w, "airdrop is disabled", http.StatusForbidden)
		return
	}

	var req AirdropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Lamports == 0 {
		writeError(w, "lamports must be positive", http.StatusBadRequest)
		return
	}
	if s.maxAirdrop > 0 && req.Lamports > s.maxAirdrop {
		writeError(w, "lamports exceeds airdrop limit of "+strconv.FormatUint(s.maxAirdrop, 10), http.StatusBadRequest)
		return
	}

	acc, err := s.rt.Airdrop(r.Context(), req.Pubkey, req.Lamports)
	if errors.Is(err, ledger.ErrInvalidArgument) || errors.Is(err, runtime.ErrAirdropOverflow) {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, "airdrop failed", http.StatusInternalServerError)
		return
	}
	metrics.AirdropLamports.Add(float64(req.Lamports))

	writeJSON(w, http.StatusOK, map[string]any{
		"pubkey":   req.Pubkey.String(),
		"lamports": acc.Lamports,
	})
}

// GetRent handles GET /api/v1/rent?size=N
// Returns the rent-exempt minimum balance for an account of N bytes.
func (s *Service) GetRent(w http.ResponseWriter, r *http.Request) {
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil || size < 0 {
		writeError(w, "size must be a non-negative integer", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{
		"size":     uint64(size),
		"lamports": s.rt.MinimumBalance(size),
	})
}

// CreateContract handles POST /api/v1/contracts
// Stores the human-facing metadata for a contract.
func (s *Service) CreateContract(w http.ResponseWriter, r *http.Request) {
	var meta model.ContractMeta
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validateMeta(&meta); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if meta.ProgramID == "" {
		meta.ProgramID = s.programID.String()
	}
	meta.CreatedAt = time.Now().UTC()

	if err := s.store.CreateContractMeta(r.Context(), &meta); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			writeError(w, "contract metadata already exists", http.StatusConflict)
			return
		}
		writeError(w, "failed to store contract metadata", http.StatusInternalServerError)
		return
	}

	slog.Info("contract metadata created",
		"contract", meta.ContractPK,
		"name", meta.ContractName,
		"outcomes", len(meta.Outcomes),
	)

	writeJSON(w, http.StatusCreated, meta)
}

// ListContracts handles GET /api/v1/contracts
func (s *Service) ListContracts(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListContractMeta(r.Context())
	if err != nil {
		writeError(w, "failed to list contracts", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []model.ContractMeta{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetContract handles GET /api/v1/contracts/{pubkey}
// Returns the on-ledger record, its status at the current clock, the vault
// balance and the current redemption rate per winning token.
func (s *Service) GetContract(w http.ResponseWriter, r *http.Request) {
	pk, ok := pubkeyParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	acc, err := s.rt.Account(ctx, pk)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "contract not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load contract", http.StatusInternalServerError)
		return
	}
	if acc.Owner != s.programID {
		writeError(w, "account is not a contract", http.StatusNotFound)
		return
	}
	rec, err := contract.Decode(acc.Data)
	if err != nil {
		writeError(w, "invalid contract data", http.StatusUnprocessableEntity)
		return
	}

	now := s.rt.Clock().UnixTimestamp
	status := rec.StatusAt(now)
	view := ContractView{
		Pubkey:             pk.String(),
		Status:             status,
		Oracle:             rec.Oracle.String(),
		QuoteMint:          rec.QuoteMint.String(),
		Vault:              rec.Vault.String(),
		Signer:             rec.SignerKey.String(),
		SignerNonce:        rec.SignerNonce,
		Outcomes:           []string{},
		Details:            rec.DetailsText(),
		ExpirationTime:     rec.ExpirationTime,
		AutoExpirationTime: rec.AutoExpirationTime,
		VaultBalance:       decimal.Zero,
		RedemptionRate:     redemptionRate(rec, status),
		Now:                now,
	}
	if rec.Resolved() {
		view.Winner = rec.Winner.String()
	}
	for _, o := range rec.OutcomeList() {
		view.Outcomes = append(view.Outcomes, o.String())
	}

	if rec.IsInitialized() {
		if vault, err := s.loadTokenAccount(r, rec.Vault); err == nil {
			decimals := uint8(0)
			if m, err := s.loadMint(r, rec.QuoteMint); err == nil {
				decimals = m.Decimals
			}
			view.VaultBalance = token.UIAmount(vault.Amount, decimals)
		}
	}

	if meta, err := s.store.GetContractMeta(ctx, pk.String()); err == nil {
		view.Meta = meta
	}

	writeJSON(w, http.StatusOK, view)
}

// redemptionRate is the quote paid per winning token: 1 once resolved,
// 1/n after auto-expiry, 0 while no redemption is possible.
func redemptionRate(rec *contract.Record, status contract.Status) decimal.Decimal {
	switch status {
	case contract.StatusResolved:
		return decimal.NewFromInt(1)
	case contract.StatusAutoExpired:
		if rec.NumOutcomes == 0 {
			return decimal.Zero
		}
		return decimal.NewFromInt(1).DivRound(decimal.NewFromInt(int64(rec.NumOutcomes)), 6)
	}
	return decimal.Zero
}

// record turns a receipt into the persisted history entry.
func (s *Service) record(tx *runtime.Transaction, r *runtime.Receipt) *model.TxRecord {
	rec := &model.TxRecord{
		ID:        uuid.New().String(),
		Signature: r.Signature,
		Slot:      r.Slot,
		Status:    model.TxStatusSuccess,
		Logs:      r.Logs,
		Timestamp: time.Now().UTC(),
	}
	if rec.Logs == nil {
		rec.Logs = []string{}
	}
	for _, pk := range r.Accounts {
		rec.Accounts = append(rec.Accounts, pk.String())
	}
	for _, ix := range tx.Instructions {
		rec.Instructions = append(rec.Instructions, s.instructionName(ix))
	}
	if !r.Succeeded() {
		rec.Status = model.TxStatusFailed
		rec.Error = r.Error
		rec.Code = r.Code
		rec.Kind = r.Kind
	}
	return rec
}

func (s *Service) loadMint(r *http.Request, pk ledger.Pubkey) (*token.Mint, error) {
	acc, err := s.rt.Account(r.Context(), pk)
	if err != nil {
		return nil, err
	}
	if acc.Owner != token.ProgramID {
		return nil, ledger.ErrIncorrectProgramID
	}
	return token.UnpackMint(acc.Data)
}

func (s *Service) loadTokenAccount(r *http.Request, pk ledger.Pubkey) (*token.Account, error) {
	acc, err := s.rt.Account(r.Context(), pk)
	if err != nil {
		return nil, err
	}
	if acc.Owner != token.ProgramID {
		return nil, ledger.ErrIncorrectProgramID
	}
	return token.UnpackAccount(acc.Data)
}

var (
	errMetaContract = errors.New("omega_contract_pk must be a valid pubkey")
	errMetaOutcomes = errors.New("outcomes must name 2 to 8 valid mints")
)

func validateMeta(m *model.ContractMeta) error {
	if _, err := ledger.ParsePubkey(m.ContractPK); err != nil {
		return errMetaContract
	}
	if len(m.Outcomes) < 2 || len(m.Outcomes) > contract.MaxOutcomes {
		return errMetaOutcomes
	}
	for _, o := range m.Outcomes {
		if _, err := ledger.ParsePubkey(o.MintPK); err != nil {
			return errMetaOutcomes
		}
	}
	return nil
}

func pubkeyParam(w http.ResponseWriter, r *http.Request) (ledger.Pubkey, bool) {
	pk, err := ledger.ParsePubkey(chi.URLParam(r, "pubkey"))
	if err != nil {
		writeError(w, "invalid pubkey", http.StatusBadRequest)
		return pk, false
	}
	return pk, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
