package runtime

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/blockworks-foundation/omega/internal/ledger"
)

// Signature is one signer's ed25519 signature over a transaction message.
type Signature struct {
	Pubkey    ledger.Pubkey `json:"pubkey"`
	Signature []byte        `json:"signature"`
}

// Transaction is an ordered list of instructions applied atomically.
type Transaction struct {
	Instructions []ledger.Instruction `json:"instructions"`
	Signatures   []Signature          `json:"signatures"`
}

// NewTransaction builds an unsigned transaction.
func NewTransaction(ixs ...ledger.Instruction) *Transaction {
	return &Transaction{Instructions: ixs}
}

const (
	metaSigner   = 1 << 0
	metaWritable = 1 << 1
)

// Message returns the canonical bytes that signers sign.
func (t *Transaction) Message() []byte {
	var b bytes.Buffer
	var u32 [4]byte
	putLen := func(n int) {
		binary.LittleEndian.PutUint32(u32[:], uint32(n))
		b.Write(u32[:])
	}

	putLen(len(t.Instructions))
	for _, ix := range t.Instructions {
		b.Write(ix.ProgramID[:])
		putLen(len(ix.Accounts))
		for _, m := range ix.Accounts {
			b.Write(m.Pubkey[:])
			var flags byte
			if m.IsSigner {
				flags |= metaSigner
			}
			if m.IsWritable {
				flags |= metaWritable
			}
			b.WriteByte(flags)
		}
		putLen(len(ix.Data))
		b.Write(ix.Data)
	}
	return b.Bytes()
}

// Sign adds a signature for each keypair. Keys that already signed are
// re-signed.
func (t *Transaction) Sign(keypairs ...*ledger.Keypair) {
	msg := t.Message()
	for _, kp := range keypairs {
		sig := Signature{Pubkey: kp.Pubkey(), Signature: kp.Sign(msg)}
		replaced := false
		for i := range t.Signatures {
			if t.Signatures[i].Pubkey == sig.Pubkey {
				t.Signatures[i] = sig
				replaced = true
			}
		}
		if !replaced {
			t.Signatures = append(t.Signatures, sig)
		}
	}
}

// RequiredSigners returns every key flagged as a signer, in first-seen order.
func (t *Transaction) RequiredSigners() []ledger.Pubkey {
	seen := make(map[ledger.Pubkey]bool)
	var out []ledger.Pubkey
	for _, ix := range t.Instructions {
		for _, m := range ix.Accounts {
			if m.IsSigner && !seen[m.Pubkey] {
				seen[m.Pubkey] = true
				out = append(out, m.Pubkey)
			}
		}
	}
	return out
}

// Verify checks that every required signer supplied a valid signature.
func (t *Transaction) Verify() error {
	msg := t.Message()
	for _, s := range t.Signatures {
		if !ledger.VerifySignature(s.Pubkey, msg, s.Signature) {
			return fmt.Errorf("%w: %s", ledger.ErrInvalidSignature, s.Pubkey)
		}
	}
	for _, pk := range t.RequiredSigners() {
		if !t.signedBy(pk) {
			return fmt.Errorf("%w: %s", ledger.ErrMissingRequiredSignature, pk)
		}
	}
	return nil
}

// ID is the base58 form of the first signature, or empty when unsigned.
func (t *Transaction) ID() string {
	if len(t.Signatures) == 0 {
		return ""
	}
	return ledger.EncodeBase58(t.Signatures[0].Signature)
}

// Keys returns every address the transaction references, in first-seen
// order.
func (t *Transaction) Keys() []ledger.Pubkey {
	seen := make(map[ledger.Pubkey]bool)
	var out []ledger.Pubkey
	add := func(pk ledger.Pubkey) {
		if !seen[pk] {
			seen[pk] = true
			out = append(out, pk)
		}
	}
	for _, ix := range t.Instructions {
		for _, m := range ix.Accounts {
			add(m.Pubkey)
		}
		add(ix.ProgramID)
	}
	return out
}

func (t *Transaction) signedBy(pk ledger.Pubkey) bool {
	for _, s := range t.Signatures {
		if s.Pubkey == pk {
			return true
		}
	}
	return false
}
