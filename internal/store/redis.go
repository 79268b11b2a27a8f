package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blockworks-foundation/omega/internal/ledger"
	"github.com/blockworks-foundation/omega/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) PutAccounts(ctx context.Context, accounts map[ledger.Pubkey]*ledger.Account) error {
	if err := s.primary.PutAccounts(ctx, accounts); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	keys := make([]string, 0, len(accounts))
	for pk := range accounts {
		keys = append(keys, accountKey(pk))
	}
	if len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

func (s *CachedStore) CreateContractMeta(ctx context.Context, m *model.ContractMeta) error {
	if err := s.primary.CreateContractMeta(ctx, m); err != nil {
		return err
	}
	s.cacheJSON(ctx, contractKey(m.ContractPK), m)
	return nil
}

func (s *CachedStore) InsertTx(ctx context.Context, tx *model.TxRecord) error {
	return s.primary.InsertTx(ctx, tx)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAccount(ctx context.Context, pk ledger.Pubkey) (*ledger.Account, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, accountKey(pk)).Bytes()
	if err == nil {
		var acc ledger.Account
		if json.Unmarshal(data, &acc) == nil {
			return &acc, nil
		}
	}

	// Cache miss: read from primary.
	acc, err := s.primary.GetAccount(ctx, pk)
	if err != nil {
		return nil, err
	}

	s.cacheJSON(ctx, accountKey(pk), acc)
	return acc, nil
}

func (s *CachedStore) GetContractMeta(ctx context.Context, contractPK string) (*model.ContractMeta, error) {
	data, err := s.rdb.Get(ctx, contractKey(contractPK)).Bytes()
	if err == nil {
		var m model.ContractMeta
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.GetContractMeta(ctx, contractPK)
	if err != nil {
		return nil, err
	}

	s.cacheJSON(ctx, contractKey(contractPK), m)
	return m, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListContractMeta(ctx context.Context) ([]model.ContractMeta, error) {
	return s.primary.ListContractMeta(ctx)
}

func (s *CachedStore) GetTxsByAccount(ctx context.Context, pubkey string) ([]model.TxRecord, error) {
	return s.primary.GetTxsByAccount(ctx, pubkey)
}

// --- Cache helpers ---

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func accountKey(pk ledger.Pubkey) string { return fmt.Sprintf("account:%s", pk) }
func contractKey(pk string) string       { return fmt.Sprintf("contract:%s", pk) }
