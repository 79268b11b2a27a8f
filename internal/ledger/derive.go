package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	MaxSeeds   = 16
	MaxSeedLen = 32

	// MaxAuthorityNonce bounds the trial search in DeriveAuthority.
	MaxAuthorityNonce = 255
)

var derivedAddressMarker = []byte("ProgramDerivedAddress")

// CreateProgramAddress hashes seeds and programID into an address that lies
// off the ed25519 curve, so no private key can ever sign for it. Seed sets
// whose hash lands on the curve are rejected with ErrInvalidSeeds.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	var pk Pubkey
	if len(seeds) > MaxSeeds {
		return pk, ErrMaxSeedLengthExceeded
	}
	h := sha256.New()
	for _, s := range seeds {
		if len(s) > MaxSeedLen {
			return pk, ErrMaxSeedLengthExceeded
		}
		h.Write(s)
	}
	h.Write(programID[:])
	h.Write(derivedAddressMarker)
	copy(pk[:], h.Sum(nil))

	if IsOnCurve(pk) {
		return Pubkey{}, ErrInvalidSeeds
	}
	return pk, nil
}

// IsOnCurve reports whether pk decodes to an ed25519 point, i.e. whether it
// could be a conventional public key.
func IsOnCurve(pk Pubkey) bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

// AuthoritySeeds is the seed set of the authority derived for seed: the seed
// address followed by the nonce as a little-endian u64.
func AuthoritySeeds(seed Pubkey, nonce uint64) [][]byte {
	n := make([]byte, 8)
	binary.LittleEndian.PutUint64(n, nonce)
	return [][]byte{seed.Bytes(), n}
}

// DeriveAuthority finds the first nonce in [0, MaxAuthorityNonce] whose seed
// set yields a valid derived address. Exhausting the range cannot happen for
// real inputs and panics.
func DeriveAuthority(programID, seed Pubkey) (Pubkey, uint64) {
	for nonce := uint64(0); nonce <= MaxAuthorityNonce; nonce++ {
		pk, err := CreateProgramAddress(AuthoritySeeds(seed, nonce), programID)
		if err == nil {
			return pk, nonce
		}
	}
	panic(fmt.Sprintf("ledger: no derived authority for %s under program %s", seed, programID))
}

// VerifyAuthority re-derives the authority for a claimed nonce. Callers
// compare the result against the address they were given.
func VerifyAuthority(programID, seed Pubkey, nonce uint64) (Pubkey, error) {
	return CreateProgramAddress(AuthoritySeeds(seed, nonce), programID)
}
