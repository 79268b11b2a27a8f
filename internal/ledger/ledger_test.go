package ledger

import (
	"errors"
	"testing"
)

func TestParsePubkey_WellKnown(t *testing.T) {
	for _, s := range []string{
		"SysvarRent111111111111111111111111111111111",
		"SysvarC1ock11111111111111111111111111111111",
		"11111111111111111111111111111111",
	} {
		pk, err := ParsePubkey(s)
		if err != nil {
			t.Fatalf("ParsePubkey(%q): %v", s, err)
		}
		if pk.String() != s {
			t.Errorf("expected %s, got %s", s, pk.String())
		}
	}
	if !SystemProgramID.IsZero() {
		t.Error("system program id should be the zero address")
	}
}

func TestParsePubkey_Invalid(t *testing.T) {
	for _, s := range []string{"", "0OIl", "abc"} {
		if _, err := ParsePubkey(s); !errors.Is(err, ErrInvalidPubkey) {
			t.Errorf("expected ErrInvalidPubkey for %q, got %v", s, err)
		}
	}
}

func TestPubkey_TextRoundTrip(t *testing.T) {
	pk := NewKeypair().Pubkey()
	text, err := pk.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var back Pubkey
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if back != pk {
		t.Errorf("expected %s, got %s", pk, back)
	}
}

func TestNewUnique_Distinct(t *testing.T) {
	seen := make(map[Pubkey]bool)
	for i := 0; i < 100; i++ {
		pk := NewUnique()
		if seen[pk] {
			t.Fatalf("duplicate unique pubkey %s", pk)
		}
		seen[pk] = true
	}
}

func TestBorrow_SharedThenExclusive(t *testing.T) {
	acc := NewAccount(0, 8, SystemProgramID)

	a, err := acc.BorrowShared()
	if err != nil {
		t.Fatalf("first shared borrow: %v", err)
	}
	b, err := acc.BorrowShared()
	if err != nil {
		t.Fatalf("second shared borrow: %v", err)
	}
	if _, err := acc.BorrowMut(); !errors.Is(err, ErrAccountBorrowFailed) {
		t.Errorf("exclusive borrow while shared outstanding: expected ErrAccountBorrowFailed, got %v", err)
	}

	a.Release()
	b.Release()
	b.Release() // double release is a no-op

	m, err := acc.BorrowMut()
	if err != nil {
		t.Fatalf("exclusive borrow after release: %v", err)
	}
	if !acc.IsBorrowedMut() {
		t.Error("expected account to report exclusive borrow")
	}
	if _, err := acc.BorrowShared(); !errors.Is(err, ErrAccountBorrowFailed) {
		t.Errorf("shared borrow while exclusive outstanding: expected ErrAccountBorrowFailed, got %v", err)
	}
	if _, err := acc.BorrowMut(); !errors.Is(err, ErrAccountBorrowFailed) {
		t.Errorf("second exclusive borrow: expected ErrAccountBorrowFailed, got %v", err)
	}
	m.Release()
	if acc.IsBorrowedMut() {
		t.Error("exclusive borrow should be released")
	}
}

func TestBorrow_SharedAccountInfoAliases(t *testing.T) {
	shared := NewAccount(0, 8, SystemProgramID)
	key := NewUnique()
	first := &AccountInfo{Key: key, IsWritable: true, Account: shared}
	second := &AccountInfo{Key: key, Account: shared}

	m, err := first.BorrowMut()
	if err != nil {
		t.Fatalf("BorrowMut: %v", err)
	}
	defer m.Release()
	if _, err := second.BorrowShared(); !errors.Is(err, ErrAccountBorrowFailed) {
		t.Errorf("aliased entry should observe the exclusive borrow, got %v", err)
	}
}

func TestDeriveAuthority_Deterministic(t *testing.T) {
	program := NewUnique()
	seed := NewUnique()

	a1, n1 := DeriveAuthority(program, seed)
	a2, n2 := DeriveAuthority(program, seed)
	if a1 != a2 || n1 != n2 {
		t.Fatalf("derivation not deterministic: (%s,%d) vs (%s,%d)", a1, n1, a2, n2)
	}
	if IsOnCurve(a1) {
		t.Error("derived authority must be off curve")
	}

	got, err := VerifyAuthority(program, seed, n1)
	if err != nil {
		t.Fatalf("VerifyAuthority: %v", err)
	}
	if got != a1 {
		t.Errorf("verify mismatch: expected %s, got %s", a1, got)
	}

	other, _ := DeriveAuthority(NewUnique(), seed)
	if other == a1 {
		t.Error("different programs must derive different authorities")
	}
}

func TestDeriveAuthority_SkipsOnCurveNonces(t *testing.T) {
	// Any nonce below the accepted one must have produced an on-curve hash.
	for i := 0; i < 20; i++ {
		program, seed := NewUnique(), NewUnique()
		_, nonce := DeriveAuthority(program, seed)
		for n := uint64(0); n < nonce; n++ {
			if _, err := VerifyAuthority(program, seed, n); !errors.Is(err, ErrInvalidSeeds) {
				t.Fatalf("nonce %d below accepted %d should be rejected, got %v", n, nonce, err)
			}
		}
	}
}

func TestCreateProgramAddress_SeedLimits(t *testing.T) {
	program := NewUnique()
	if _, err := CreateProgramAddress([][]byte{make([]byte, MaxSeedLen+1)}, program); !errors.Is(err, ErrMaxSeedLengthExceeded) {
		t.Errorf("expected ErrMaxSeedLengthExceeded for long seed, got %v", err)
	}
	seeds := make([][]byte, MaxSeeds+1)
	if _, err := CreateProgramAddress(seeds, program); !errors.Is(err, ErrMaxSeedLengthExceeded) {
		t.Errorf("expected ErrMaxSeedLengthExceeded for too many seeds, got %v", err)
	}
}

func TestKeypair_IsOnCurve(t *testing.T) {
	kp := NewKeypair()
	if !IsOnCurve(kp.Pubkey()) {
		t.Error("ed25519 public keys are on the curve")
	}
	msg := []byte("settle")
	sig := kp.Sign(msg)
	if !VerifySignature(kp.Pubkey(), msg, sig) {
		t.Error("signature should verify")
	}
	if VerifySignature(NewKeypair().Pubkey(), msg, sig) {
		t.Error("signature should not verify for another key")
	}
}

func TestRent_MinimumBalance(t *testing.T) {
	r := DefaultRent()
	// (128 + 0) * 3480 * 2
	if got := r.MinimumBalance(0); got != 890880 {
		t.Errorf("expected 890880, got %d", got)
	}
	min := r.MinimumBalance(2504)
	if !r.IsExempt(min, 2504) || r.IsExempt(min-1, 2504) {
		t.Errorf("exemption boundary wrong at %d", min)
	}
}

func TestSysvars_FromAccount(t *testing.T) {
	rent := DefaultRent()
	info := &AccountInfo{Key: RentSysvarID, Account: &Account{Owner: SysvarOwnerID, Data: rent.Encode()}}
	got, err := RentFromAccount(info)
	if err != nil {
		t.Fatalf("RentFromAccount: %v", err)
	}
	if got != rent {
		t.Errorf("expected %+v, got %+v", rent, got)
	}

	clock := Clock{Slot: 7, UnixTimestamp: 150}
	cinfo := &AccountInfo{Key: ClockSysvarID, Account: &Account{Owner: SysvarOwnerID, Data: clock.Encode()}}
	gotClock, err := ClockFromAccount(cinfo)
	if err != nil {
		t.Fatalf("ClockFromAccount: %v", err)
	}
	if gotClock != clock {
		t.Errorf("expected %+v, got %+v", clock, gotClock)
	}

	// A look-alike account at another address is rejected.
	fake := &AccountInfo{Key: NewUnique(), Account: &Account{Data: clock.Encode()}}
	if _, err := ClockFromAccount(fake); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRuntimeCode_Stable(t *testing.T) {
	code, ok := RuntimeCode(ErrInvalidInstructionData)
	if !ok || code != 2 {
		t.Errorf("expected code 2, got %d (%v)", code, ok)
	}
	if _, ok := RuntimeCode(errors.New("other")); ok {
		t.Error("foreign errors have no runtime code")
	}
}
