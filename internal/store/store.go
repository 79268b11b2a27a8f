// Package store defines the persistence interface for the ledger service.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/blockworks-foundation/omega/internal/ledger"
	"github.com/blockworks-foundation/omega/internal/model"
)

// ErrNotFound is returned by lookups for records that do not exist.
var ErrNotFound = errors.New("store: not found")

// ErrAlreadyExists is returned when creating a record whose key is taken.
var ErrAlreadyExists = errors.New("store: already exists")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Ledger accounts ---

	// GetAccount returns the account stored at pk, or ErrNotFound.
	GetAccount(ctx context.Context, pk ledger.Pubkey) (*ledger.Account, error)

	// PutAccounts writes every account in one atomic step. Either all of
	// them become visible or none do.
	PutAccounts(ctx context.Context, accounts map[ledger.Pubkey]*ledger.Account) error

	// --- Contract metadata ---

	// CreateContractMeta persists metadata for a new contract.
	CreateContractMeta(ctx context.Context, meta *model.ContractMeta) error

	// GetContractMeta retrieves metadata by contract address.
	GetContractMeta(ctx context.Context, contractPK string) (*model.ContractMeta, error)

	// ListContractMeta returns metadata for all contracts.
	ListContractMeta(ctx context.Context) ([]model.ContractMeta, error)

	// --- Transaction history ---

	// InsertTx appends an immutable transaction record.
	InsertTx(ctx context.Context, tx *model.TxRecord) error

	// GetTxsByAccount returns transactions that referenced pubkey, oldest
	// first.
	GetTxsByAccount(ctx context.Context, pubkey string) ([]model.TxRecord, error)
}
