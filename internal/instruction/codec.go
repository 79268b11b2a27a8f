// Package instruction encodes and decodes settlement program instructions
// and builds the positional account lists each one expects.
package instruction

import (
	"bytes"
	"encoding/binary"
)

// Limits shared with the contract record layout.
const (
	MaxOutcomes    = 8
	MinOutcomes    = 2
	MaxDetailsLen  = 2048
	discriminantSz = 4
)

// Kind is the wire discriminant of an instruction.
type Kind uint32

const (
	KindInitialize Kind = iota
	KindIssueSet
	KindRedeemSet
	KindRedeemWinner
	KindResolve
)

func (k Kind) String() string {
	switch k {
	case KindInitialize:
		return "initialize"
	case KindIssueSet:
		return "issue_set"
	case KindRedeemSet:
		return "redeem_set"
	case KindRedeemWinner:
		return "redeem_winner"
	case KindResolve:
		return "resolve"
	}
	return "unknown"
}

// Instruction is one of Initialize, IssueSet, RedeemSet, RedeemWinner or
// Resolve.
type Instruction interface {
	Kind() Kind
	payload(b *bytes.Buffer)
}

// Initialize configures a freshly allocated contract account.
type Initialize struct {
	ExpirationTime     uint64
	AutoExpirationTime uint64
	SignerNonce        uint64
	// Details is nil when the instruction carries no details bytes.
	Details            []byte
}

// IssueSet deposits Quantity of quote currency for Quantity of every outcome.
type IssueSet struct {
	Quantity uint64
}

// RedeemSet returns Quantity of every outcome for Quantity of quote currency.
type RedeemSet struct {
	Quantity uint64
}

// RedeemWinner burns Quantity of the winning outcome, or of any outcome
// after auto-expiry, for quote currency.
type RedeemWinner struct {
	Quantity uint64
}

// Resolve records the winning outcome.
type Resolve struct{}

func (Initialize) Kind() Kind   { return KindInitialize }
func (IssueSet) Kind() Kind     { return KindIssueSet }
func (RedeemSet) Kind() Kind    { return KindRedeemSet }
func (RedeemWinner) Kind() Kind { return KindRedeemWinner }
func (Resolve) Kind() Kind      { return KindResolve }

func (i Initialize) payload(b *bytes.Buffer) {
	putU64(b, i.ExpirationTime)
	putU64(b, i.AutoExpirationTime)
	putU64(b, i.SignerNonce)
	b.Write(i.Details)
}

func (i IssueSet) payload(b *bytes.Buffer)     { putU64(b, i.Quantity) }
func (i RedeemSet) payload(b *bytes.Buffer)    { putU64(b, i.Quantity) }
func (i RedeemWinner) payload(b *bytes.Buffer) { putU64(b, i.Quantity) }
func (Resolve) payload(*bytes.Buffer)          {}

func putU64(b *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.Write(tmp[:])
}

// Encode serializes ix: a little-endian u32 discriminant followed by the
// variant's little-endian fields.
func Encode(ix Instruction) []byte {
	var b bytes.Buffer
	var tag [discriminantSz]byte
	binary.LittleEndian.PutUint32(tag[:], uint32(ix.Kind()))
	b.Write(tag[:])
	ix.payload(&b)
	return b.Bytes()
}

// Decode parses instruction bytes. It reports false for an unknown
// discriminant or a payload shorter than the variant's fixed fields.
// Trailing bytes after a fixed-size payload are ignored.
func Decode(data []byte) (Instruction, bool) {
	if len(data) < discriminantSz {
		return nil, false
	}
	kind := Kind(binary.LittleEndian.Uint32(data))
	rest := data[discriminantSz:]

	switch kind {
	case KindInitialize:
		if len(rest) < 24 {
			return nil, false
		}
		ix := Initialize{
			ExpirationTime:     binary.LittleEndian.Uint64(rest[0:8]),
			AutoExpirationTime: binary.LittleEndian.Uint64(rest[8:16]),
			SignerNonce:        binary.LittleEndian.Uint64(rest[16:24]),
		}
		if len(rest) > 24 {
			ix.Details = append([]byte(nil), rest[24:]...)
		}
		return ix, true
	case KindIssueSet, KindRedeemSet, KindRedeemWinner:
		if len(rest) < 8 {
			return nil, false
		}
		q := binary.LittleEndian.Uint64(rest[0:8])
		switch kind {
		case KindIssueSet:
			return IssueSet{Quantity: q}, true
		case KindRedeemSet:
			return RedeemSet{Quantity: q}, true
		default:
			return RedeemWinner{Quantity: q}, true
		}
	case KindResolve:
		return Resolve{}, true
	}
	return nil, false
}
