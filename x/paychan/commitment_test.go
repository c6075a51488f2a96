package paychan

import (
	"crypto/rand"
	"testing"

	"golang.org/x/crypto/ed25519"
)

func TestEd25519VerifierRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("cannot generate key: %s", err)
	}
	identity := identityAddress(pub)

	commitment := BuildCommitment(priv, ClaimCheque, []byte("sequence 4"))

	var v Ed25519Verifier
	if !v.Verify(identity, ClaimCheque, commitment) {
		t.Fatal("valid commitment rejected")
	}

	// A commitment issued for one claim kind must not authorize another.
	if v.Verify(identity, ClaimCloseChannel, commitment) {
		t.Fatal("claim kind not bound")
	}
}

func TestEd25519VerifierRejectsForeignIdentity(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("cannot generate key: %s", err)
	}
	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("cannot generate key: %s", err)
	}

	commitment := BuildCommitment(priv, ClaimCheque, nil)

	var v Ed25519Verifier
	if v.Verify(identityAddress(otherPub), ClaimCheque, commitment) {
		t.Fatal("commitment accepted under a foreign identity")
	}
}

func TestEd25519VerifierRejectsMalformed(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("cannot generate key: %s", err)
	}
	identity := identityAddress(pub)
	var v Ed25519Verifier

	if v.Verify(identity, ClaimCheque, nil) {
		t.Fatal("empty commitment accepted")
	}
	commitment := BuildCommitment(priv, ClaimCheque, []byte("payload"))
	if v.Verify(identity, ClaimCheque, commitment[:len(commitment)-1]) {
		t.Fatal("truncated commitment accepted")
	}
	commitment[ed25519.PublicKeySize] ^= 0x01
	if v.Verify(identity, ClaimCheque, commitment) {
		t.Fatal("tampered signature accepted")
	}
}
