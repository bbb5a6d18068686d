package identity

import (
	"bytes"
	"strings"
	"testing"
)

func TestFromSeedIsDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	first, err := FromSeed(seed)
	if err != nil {
		t.Fatalf("from seed: %v", err)
	}
	second, err := FromSeed(seed)
	if err != nil {
		t.Fatalf("from seed again: %v", err)
	}
	if first.Address() != second.Address() {
		t.Errorf("addresses differ: %s vs %s", first.Address(), second.Address())
	}
	if !strings.HasPrefix(first.Address(), AddressPrefix) {
		t.Errorf("address %s lacks prefix", first.Address())
	}
}

func TestFromSeedRejectsBadLength(t *testing.T) {
	if _, err := FromSeed([]byte("short")); err == nil {
		t.Fatal("expected seed length error")
	}
}

func TestAddressMatchesPublicKey(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	addr, err := AddressFromPublicKey(kp.PublicKey())
	if err != nil {
		t.Fatalf("address from pub: %v", err)
	}
	if addr != kp.Address() {
		t.Errorf("derived %s, key says %s", addr, kp.Address())
	}
}

func TestDistinctKeysDistinctAddresses(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a.Address() == b.Address() {
		t.Error("two keys share an address")
	}
}

func TestSignAndVerify(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	digest := SigningDigest("key-1", "pay_for_query", []byte(`{"id":1,"amount":100}`))
	sig := kp.Sign(digest)

	if !Verify(kp.PublicKey(), digest, sig) {
		t.Error("valid signature rejected")
	}

	tampered := SigningDigest("key-1", "pay_for_query", []byte(`{"id":1,"amount":999}`))
	if Verify(kp.PublicKey(), tampered, sig) {
		t.Error("signature verified over tampered args")
	}

	other, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if Verify(other.PublicKey(), digest, sig) {
		t.Error("signature verified under wrong key")
	}
}

func TestSigningDigestFieldBoundaries(t *testing.T) {
	// Field contents must not be able to bleed across boundaries.
	a := SigningDigest("ab", "c", nil)
	b := SigningDigest("a", "bc", nil)
	if bytes.Equal(a, b) {
		t.Error("digest collapses field boundaries")
	}
}
