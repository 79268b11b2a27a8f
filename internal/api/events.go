package api

import (
	"github.com/blockworks-foundation/omega/internal/instruction"
	"github.com/blockworks-foundation/omega/internal/ledger"
	"github.com/blockworks-foundation/omega/internal/runtime"
	"github.com/blockworks-foundation/omega/internal/token"
)

// instructionName labels a top-level instruction for history and metrics.
func (s *Service) instructionName(ix ledger.Instruction) string {
	switch ix.ProgramID {
	case s.programID:
		if d, ok := instruction.Decode(ix.Data); ok {
			return d.Kind().String()
		}
		return "invalid"
	case token.ProgramID:
		return "token"
	case ledger.SystemProgramID:
		return "system"
	}
	return "external"
}

// events derives the contract events of a committed transaction.
func (s *Service) events(tx *runtime.Transaction, r *runtime.Receipt) []WSMessage {
	var out []WSMessage
	for _, ix := range tx.Instructions {
		if ix.ProgramID != s.programID || len(ix.Accounts) == 0 {
			continue
		}
		d, ok := instruction.Decode(ix.Data)
		if !ok {
			continue
		}
		msg := WSMessage{
			Contract:  ix.Accounts[0].Pubkey.String(),
			Signature: r.Signature,
			Slot:      r.Slot,
		}
		switch d := d.(type) {
		case instruction.Initialize:
			msg.Type = EventContractInitialized
		case instruction.IssueSet:
			msg.Type = EventSetIssued
			msg.Quantity = d.Quantity
		case instruction.RedeemSet:
			msg.Type = EventSetRedeemed
			msg.Quantity = d.Quantity
		case instruction.RedeemWinner:
			msg.Type = EventWinnerRedeemed
			msg.Quantity = d.Quantity
			if len(ix.Accounts) > 6 {
				msg.Winner = ix.Accounts[6].Pubkey.String()
			}
		case instruction.Resolve:
			msg.Type = EventContractResolved
			if len(ix.Accounts) > 2 {
				msg.Winner = ix.Accounts[2].Pubkey.String()
			}
		default:
			continue
		}
		if msg.Type != EventContractInitialized && msg.Type != EventContractResolved && len(ix.Accounts) > 1 {
			msg.User = ix.Accounts[1].Pubkey.String()
		}
		out = append(out, msg)
	}
	return out
}
