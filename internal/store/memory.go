package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/blockworks-foundation/omega/internal/ledger"
	"github.com/blockworks-foundation/omega/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[ledger.Pubkey]*ledger.Account
	contracts map[string]*model.ContractMeta
	txs       []model.TxRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[ledger.Pubkey]*ledger.Account),
		contracts: make(map[string]*model.ContractMeta),
	}
}

func (s *MemoryStore) GetAccount(_ context.Context, pk ledger.Pubkey) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[pk]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, pk)
	}
	// Hand out a copy so callers cannot mutate committed state.
	return acc.Clone(), nil
}

func (s *MemoryStore) PutAccounts(_ context.Context, accounts map[ledger.Pubkey]*ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pk, acc := range accounts {
		s.accounts[pk] = acc.Clone()
	}
	return nil
}

func (s *MemoryStore) CreateContractMeta(_ context.Context, meta *model.ContractMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[meta.ContractPK]; ok {
		return fmt.Errorf("%w: contract %s", ErrAlreadyExists, meta.ContractPK)
	}
	s.contracts[meta.ContractPK] = cloneMeta(meta)
	return nil
}

func cloneMeta(m *model.ContractMeta) *model.ContractMeta {
	c := *m
	c.Outcomes = append([]model.OutcomeMeta(nil), m.Outcomes...)
	return &c
}

func (s *MemoryStore) GetContractMeta(_ context.Context, contractPK string) (*model.ContractMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.contracts[contractPK]
	if !ok {
		return nil, fmt.Errorf("%w: contract %s", ErrNotFound, contractPK)
	}
	return cloneMeta(m), nil
}

func (s *MemoryStore) ListContractMeta(_ context.Context) ([]model.ContractMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metas := make([]model.ContractMeta, 0, len(s.contracts))
	for _, m := range s.contracts {
		metas = append(metas, *cloneMeta(m))
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

func (s *MemoryStore) InsertTx(_ context.Context, tx *model.TxRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txs = append(s.txs, *tx)
	return nil
}

func (s *MemoryStore) GetTxsByAccount(_ context.Context, pubkey string) ([]model.TxRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TxRecord
	for _, tx := range s.txs {
		if tx.Touches(pubkey) {
			result = append(result, tx)
		}
	}
	return result, nil
}
