// Package model defines the off-ledger records kept alongside the ledger:
// contract metadata written when a contract is created and the history of
// executed transactions.
package model

import (
	"strings"
	"time"
)

// OutcomeMeta names one outcome mint of a contract.
type OutcomeMeta struct {
	MintPK string `json:"mint_pk" db:"mint_pk"`
	Name   string `json:"name" db:"name"`
	Icon   string `json:"icon,omitempty" db:"icon"`
}

// ContractMeta is the human-facing description of a contract. The ledger
// only stores addresses; names and icons live here.
// Schema matches the contract keys file: one entry per contract, outcomes in
// ledger order.
type ContractMeta struct {
	ContractPK   string        `json:"omega_contract_pk" db:"contract_pk"`
	ContractName string        `json:"contract_name" db:"contract_name"`
	ProgramID    string        `json:"omega_program_id" db:"program_id"`
	OraclePK     string        `json:"oracle_pk" db:"oracle_pk"`
	QuoteMintPK  string        `json:"quote_mint_pk" db:"quote_mint_pk"`
	QuoteVaultPK string        `json:"quote_vault_pk" db:"quote_vault_pk"`
	SignerPK     string        `json:"signer_pk" db:"signer_pk"`
	SignerNonce  uint64        `json:"signer_nonce" db:"signer_nonce"`
	Outcomes     []OutcomeMeta `json:"outcomes" db:"outcomes"`
	Details      string        `json:"details" db:"details"`
	ExpTime      uint64        `json:"exp_time" db:"exp_time"`
	AutoExpTime  uint64        `json:"auto_exp_time" db:"auto_exp_time"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
}

// OutcomeByName finds the outcome with the given name, ignoring case.
func (c *ContractMeta) OutcomeByName(name string) (OutcomeMeta, bool) {
	for _, o := range c.Outcomes {
		if strings.EqualFold(o.Name, name) {
			return o, true
		}
	}
	return OutcomeMeta{}, false
}

// Transaction statuses.
const (
	TxStatusSuccess = "success"
	TxStatusFailed  = "failed"
)

// TxRecord is an immutable record of one submitted transaction.
// Once created, these are never modified or deleted.
type TxRecord struct {
	ID           string    `json:"id" db:"id"`
	Signature    string    `json:"signature,omitempty" db:"signature"`
	Slot         uint64    `json:"slot" db:"slot"`
	Status       string    `json:"status" db:"status"`
	Accounts     []string  `json:"accounts" db:"accounts"`
	Instructions []string  `json:"instructions" db:"instructions"`
	Logs         []string  `json:"logs" db:"logs"`
	Error        string    `json:"error,omitempty" db:"error"`
	Code         uint32    `json:"code" db:"code"`
	Kind         string    `json:"kind,omitempty" db:"kind"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

// Touches reports whether the transaction referenced pubkey.
func (t *TxRecord) Touches(pubkey string) bool {
	for _, a := range t.Accounts {
		if a == pubkey {
			return true
		}
	}
	return false
}
