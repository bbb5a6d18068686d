// Package identity supplies the principals behind every mutating
// submission: ed25519 key pairs, the address form the ledger treats as an
// opaque principal, and the canonical digest a submission signature covers.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/ripemd160"
)

// AddressPrefix marks ledger principals derived from public keys.
const AddressPrefix = "dat1"

// KeyPair holds a signing identity.
type KeyPair struct {
	pub     ed25519.PublicKey
	priv    ed25519.PrivateKey
	address string
}

// Generate creates a fresh random key pair.
func Generate() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &KeyPair{pub: pub, priv: priv, address: addressOf(pub)}, nil
}

// FromSeed derives a deterministic key pair from a 32-byte seed.
func FromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &KeyPair{pub: pub, priv: priv, address: addressOf(pub)}, nil
}

// Address returns the principal string for this key.
func (k *KeyPair) Address() string { return k.address }

// PublicKey returns the raw public key bytes.
func (k *KeyPair) PublicKey() []byte {
	out := make([]byte, len(k.pub))
	copy(out, k.pub)
	return out
}

// Sign signs a digest produced by SigningDigest.
func (k *KeyPair) Sign(digest []byte) []byte {
	return ed25519.Sign(k.priv, digest)
}

// AddressFromPublicKey derives the principal for a raw public key.
func AddressFromPublicKey(pub []byte) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	return addressOf(pub), nil
}

// addressOf hashes SHA-256 then RIPEMD-160 and hex-encodes under the
// address prefix.
func addressOf(pub []byte) string {
	sha := sha256.Sum256(pub)
	r := ripemd160.New()
	r.Write(sha[:])
	return AddressPrefix + hex.EncodeToString(r.Sum(nil))
}

// Verify checks a signature over a digest against a raw public key.
func Verify(pub, digest, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), digest, sig)
}

// SigningDigest builds the canonical digest a submission signature covers.
// Fields are length-prefixed so no two field combinations collide.
func SigningDigest(idempotencyKey, operation string, args []byte) []byte {
	h := sha256.New()
	for _, part := range [][]byte{[]byte(idempotencyKey), []byte(operation), args} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(part)))
		h.Write(n[:])
		h.Write(part)
	}
	return h.Sum(nil)
}
