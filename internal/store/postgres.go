package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blockworks-foundation/omega/internal/ledger"
	"github.com/blockworks-foundation/omega/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
  pubkey     TEXT PRIMARY KEY,
  owner      TEXT NOT NULL,
  lamports   NUMERIC(20, 0) NOT NULL,
  data       BYTEA NOT NULL,
  executable BOOLEAN NOT NULL DEFAULT FALSE,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contracts (
  contract_pk    TEXT PRIMARY KEY,
  contract_name  TEXT NOT NULL,
  program_id     TEXT NOT NULL,
  oracle_pk      TEXT NOT NULL,
  quote_mint_pk  TEXT NOT NULL,
  quote_vault_pk TEXT NOT NULL,
  signer_pk      TEXT NOT NULL,
  signer_nonce   BIGINT NOT NULL,
  outcomes       JSONB NOT NULL,
  details        TEXT NOT NULL,
  exp_time       NUMERIC(20, 0) NOT NULL,
  auto_exp_time  NUMERIC(20, 0) NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
  id           TEXT PRIMARY KEY,
  signature    TEXT NOT NULL,
  slot         NUMERIC(20, 0) NOT NULL,
  status       TEXT NOT NULL,
  accounts     TEXT[] NOT NULL,
  instructions TEXT[] NOT NULL,
  logs         TEXT[] NOT NULL,
  error        TEXT NOT NULL,
  code         BIGINT NOT NULL,
  kind         TEXT NOT NULL,
  timestamp    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS transactions_accounts_idx ON transactions USING GIN (accounts);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Unsigned 64-bit quantities are stored as NUMERIC(20, 0) so no value
// wraps into a negative BIGINT.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, pk ledger.Pubkey) (*ledger.Account, error) {
	var owner, lamports string
	acc := &ledger.Account{}

	err := s.pool.QueryRow(ctx,
		`SELECT owner, lamports::TEXT, data, executable FROM accounts WHERE pubkey = $1`,
		pk.String()).
		Scan(&owner, &lamports, &acc.Data, &acc.Executable)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, pk)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", pk, err)
	}

	if acc.Owner, err = ledger.ParsePubkey(owner); err != nil {
		return nil, fmt.Errorf("get account %s: owner: %w", pk, err)
	}
	if _, err := fmt.Sscan(lamports, &acc.Lamports); err != nil {
		return nil, fmt.Errorf("get account %s: lamports: %w", pk, err)
	}
	return acc, nil
}

// PutAccounts upserts every account inside one database transaction.
func (s *PostgresStore) PutAccounts(ctx context.Context, accounts map[ledger.Pubkey]*ledger.Account) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("put accounts: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for pk, acc := range accounts {
		data := acc.Data
		if data == nil {
			data = []byte{}
		}
		batch.Queue(
			`INSERT INTO accounts (pubkey, owner, lamports, data, executable, updated_at)
			 VALUES ($1, $2, $3::NUMERIC, $4, $5, now())
			 ON CONFLICT (pubkey) DO UPDATE
			 SET owner = EXCLUDED.owner, lamports = EXCLUDED.lamports,
			     data = EXCLUDED.data, executable = EXCLUDED.executable,
			     updated_at = EXCLUDED.updated_at`,
			pk.String(), acc.Owner.String(), fmt.Sprint(acc.Lamports), data, acc.Executable,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("put accounts: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) CreateContractMeta(ctx context.Context, m *model.ContractMeta) error {
	outcomes, err := json.Marshal(m.Outcomes)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO contracts (contract_pk, contract_name, program_id, oracle_pk, quote_mint_pk,
		                        quote_vault_pk, signer_pk, signer_nonce, outcomes, details,
		                        exp_time, auto_exp_time, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::NUMERIC, $12::NUMERIC, $13)
		 ON CONFLICT (contract_pk) DO NOTHING`,
		m.ContractPK, m.ContractName, m.ProgramID, m.OraclePK, m.QuoteMintPK,
		m.QuoteVaultPK, m.SignerPK, int64(m.SignerNonce), outcomes, m.Details,
		fmt.Sprint(m.ExpTime), fmt.Sprint(m.AutoExpTime), m.CreatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: contract %s", ErrAlreadyExists, m.ContractPK)
	}
	return nil
}

const contractColumns = `contract_pk, contract_name, program_id, oracle_pk, quote_mint_pk,
	quote_vault_pk, signer_pk, signer_nonce, outcomes, details,
	exp_time::TEXT, auto_exp_time::TEXT, created_at`

func (s *PostgresStore) GetContractMeta(ctx context.Context, contractPK string) (*model.ContractMeta, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE contract_pk = $1`, contractPK)
	m, err := scanContractMeta(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: contract %s", ErrNotFound, contractPK)
	}
	if err != nil {
		return nil, fmt.Errorf("get contract %s: %w", contractPK, err)
	}
	return m, nil
}

func (s *PostgresStore) ListContractMeta(ctx context.Context) ([]model.ContractMeta, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contractColumns+` FROM contracts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metas []model.ContractMeta
	for rows.Next() {
		m, err := scanContractMeta(rows)
		if err != nil {
			return nil, err
		}
		metas = append(metas, *m)
	}
	return metas, rows.Err()
}

func (s *PostgresStore) InsertTx(ctx context.Context, t *model.TxRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions (id, signature, slot, status, accounts, instructions, logs,
		                           error, code, kind, timestamp)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.Signature, fmt.Sprint(t.Slot), t.Status,
		nonNil(t.Accounts), nonNil(t.Instructions), nonNil(t.Logs),
		t.Error, int64(t.Code), t.Kind, t.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetTxsByAccount(ctx context.Context, pubkey string) ([]model.TxRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, signature, slot::TEXT, status, accounts, instructions, logs,
		        error, code, kind, timestamp
		 FROM transactions WHERE $1 = ANY(accounts) ORDER BY timestamp`, pubkey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.TxRecord
	for rows.Next() {
		var t model.TxRecord
		var slot string
		var code int64
		if err := rows.Scan(&t.ID, &t.Signature, &slot, &t.Status, &t.Accounts, &t.Instructions,
			&t.Logs, &t.Error, &code, &t.Kind, &t.Timestamp); err != nil {
			return nil, err
		}
		fmt.Sscan(slot, &t.Slot)
		t.Code = uint32(code)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// scanContractMeta reads one contracts row from a pgx row or rows.
func scanContractMeta(row pgx.Row) (*model.ContractMeta, error) {
	var m model.ContractMeta
	var nonce int64
	var outcomes []byte
	var exp, autoExp string

	if err := row.Scan(&m.ContractPK, &m.ContractName, &m.ProgramID, &m.OraclePK, &m.QuoteMintPK,
		&m.QuoteVaultPK, &m.SignerPK, &nonce, &outcomes, &m.Details,
		&exp, &autoExp, &m.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(outcomes, &m.Outcomes); err != nil {
		return nil, fmt.Errorf("outcomes: %w", err)
	}
	m.SignerNonce = uint64(nonce)
	fmt.Sscan(exp, &m.ExpTime)
	fmt.Sscan(autoExp, &m.AutoExpTime)
	return &m, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
