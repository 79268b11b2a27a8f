package contract

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/blockworks-foundation/omega/internal/ledger"
	"github.com/blockworks-foundation/omega/internal/omegaerr"
)

func sampleRecord() *Record {
	r := &Record{
		Flags:              FlagInitialized | FlagContract,
		Oracle:             ledger.NewUnique(),
		QuoteMint:          ledger.NewUnique(),
		ExpirationTime:     100,
		AutoExpirationTime: 200,
		Vault:              ledger.NewUnique(),
		SignerKey:          ledger.NewUnique(),
		SignerNonce:        254,
		NumOutcomes:        3,
	}
	for i := 0; i < 3; i++ {
		r.Outcomes[i] = ledger.NewUnique()
	}
	copy(r.Details[:], "Resolves to the team that wins the final")
	return r
}

func TestSize(t *testing.T) {
	if Size != 2504 {
		t.Fatalf("expected record size 2504, got %d", Size)
	}
}

func TestEncode_FieldOffsets(t *testing.T) {
	r := sampleRecord()
	buf := make([]byte, Size)
	if err := r.Encode(buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if got := binary.LittleEndian.Uint64(buf[0:8]); got != 3 {
		t.Errorf("flags at 0..8: expected 3, got %d", got)
	}
	if got := binary.LittleEndian.Uint64(buf[72:80]); got != 100 {
		t.Errorf("expiration at 72..80: expected 100, got %d", got)
	}
	if got := binary.LittleEndian.Uint64(buf[152:160]); got != 254 {
		t.Errorf("signer nonce at 152..160: expected 254, got %d", got)
	}
	if got := binary.LittleEndian.Uint64(buf[448:456]); got != 3 {
		t.Errorf("num outcomes at 448..456: expected 3, got %d", got)
	}
	if string(buf[192:224]) != string(r.Outcomes[0][:]) {
		t.Error("first outcome not at 192")
	}
	if string(buf[456:460]) != "Reso" {
		t.Errorf("details not at 456, got %q", buf[456:460])
	}

	back, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if *back != *r {
		t.Error("decode(encode(r)) != r")
	}
}

func TestDecode_WrongSize(t *testing.T) {
	for _, n := range []int{0, Size - 1, Size + 1} {
		_, err := Decode(make([]byte, n))
		var ae *omegaerr.AssertionError
		if !errors.As(err, &ae) || ae.File != omegaerr.FileState {
			t.Errorf("size %d: expected state assertion, got %v", n, err)
		}
	}
}

func TestStore_RequiresExclusive(t *testing.T) {
	acc := ledger.NewAccount(0, Size, ledger.NewUnique())

	shared, err := acc.BorrowShared()
	if err != nil {
		t.Fatalf("BorrowShared: %v", err)
	}
	if err := Store(shared, sampleRecord()); !errors.Is(err, ledger.ErrAccountBorrowFailed) {
		t.Errorf("expected ErrAccountBorrowFailed through shared token, got %v", err)
	}
	r, err := Load(shared)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.IsInitialized() {
		t.Error("zeroed account must not be initialized")
	}
	shared.Release()

	excl, err := acc.BorrowMut()
	if err != nil {
		t.Fatalf("BorrowMut: %v", err)
	}
	want := sampleRecord()
	if err := Store(excl, want); err != nil {
		t.Fatalf("Store: %v", err)
	}
	excl.Release()

	got, err := Decode(acc.Data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Oracle != want.Oracle || got.DetailsText() != want.DetailsText() {
		t.Error("stored record does not match")
	}
}

func TestStatusAt(t *testing.T) {
	r := sampleRecord()
	tests := []struct {
		name string
		now  int64
		want Status
	}{
		{"before expiry", 50, StatusActive},
		{"in window", 150, StatusActive},
		{"at auto expiry", 200, StatusAutoExpired},
		{"after auto expiry", 500, StatusAutoExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.StatusAt(tt.now); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	r.Winner = r.Outcomes[1]
	if got := r.StatusAt(500); got != StatusResolved {
		t.Errorf("resolved contract: expected %s, got %s", StatusResolved, got)
	}
	if got := (&Record{Flags: FlagInitialized}).StatusAt(0); got != StatusUninitialized {
		t.Errorf("partial flags: expected %s, got %s", StatusUninitialized, got)
	}
}

func TestResolutionWindow(t *testing.T) {
	r := sampleRecord()
	for now, want := range map[int64]bool{-1: false, 99: false, 100: true, 199: true, 200: false} {
		if got := r.InResolutionWindow(now); got != want {
			t.Errorf("now=%d: expected %v, got %v", now, want, got)
		}
	}
}

func TestOutcomes(t *testing.T) {
	r := sampleRecord()
	list := r.OutcomeList()
	if len(list) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(list))
	}
	if r.OutcomeIndex(list[2]) != 2 || r.OutcomeIndex(ledger.NewUnique()) != -1 {
		t.Error("OutcomeIndex mismatch")
	}

	r.NumOutcomes = 1 << 40
	if len(r.OutcomeList()) != MaxOutcomes {
		t.Error("corrupt outcome count should clamp to capacity")
	}
}
