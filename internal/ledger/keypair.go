package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// SignatureLen is the byte length of an ed25519 signature.
const SignatureLen = ed25519.SignatureSize

// Keypair is an ed25519 signing key whose public half is a ledger address.
type Keypair struct {
	private ed25519.PrivateKey
	pubkey  Pubkey
}

// NewKeypair generates a fresh random keypair.
func NewKeypair() *Keypair {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(fmt.Sprintf("ledger: generating keypair: %v", err))
	}
	return keypairFromPrivate(priv)
}

// KeypairFromSeed builds the keypair for a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes", ErrInvalidArgument, ed25519.SeedSize)
	}
	return keypairFromPrivate(ed25519.NewKeyFromSeed(seed)), nil
}

func keypairFromPrivate(priv ed25519.PrivateKey) *Keypair {
	kp := &Keypair{private: priv}
	copy(kp.pubkey[:], priv.Public().(ed25519.PublicKey))
	return kp
}

// Pubkey returns the address controlled by the keypair.
func (k *Keypair) Pubkey() Pubkey {
	return k.pubkey
}

// Sign signs msg.
func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// VerifySignature checks sig over msg for pk.
func VerifySignature(pk Pubkey, msg, sig []byte) bool {
	if len(sig) != SignatureLen {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pk[:]), msg, sig)
}
