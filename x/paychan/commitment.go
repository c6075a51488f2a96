package paychan

import (
	"github.com/iov-one/weave"
	"golang.org/x/crypto/ed25519"
)

// ClaimType qualifies what a commitment authorizes.
type ClaimType byte

const (
	// ClaimCheque authorizes cashing a cheque.
	ClaimCheque ClaimType = 0x01
	// ClaimCloseChannel authorizes immediate settlement of a recipient
	// slot, skipping the dispute window.
	ClaimCloseChannel ClaimType = 0x02
)

// CommitmentVerifier validates an opaque authorization proof against the
// identity claimed to have issued it. Implementations must be pure
// predicates: same inputs, same answer, no state.
type CommitmentVerifier interface {
	Verify(identity weave.Address, claim ClaimType, commitment []byte) bool
}

// VerifierFunc allows a plain function to act as a CommitmentVerifier.
type VerifierFunc func(identity weave.Address, claim ClaimType, commitment []byte) bool

func (f VerifierFunc) Verify(identity weave.Address, claim ClaimType, commitment []byte) bool {
	return f(identity, claim, commitment)
}

// Ed25519Verifier verifies signature based commitments. A commitment is the
// issuer's public key followed by a signature over the claim tagged payload
// and the payload itself. The identity must be the condition address of the
// public key, so a commitment cannot be replayed under another identity.
type Ed25519Verifier struct{}

var _ CommitmentVerifier = Ed25519Verifier{}

func (Ed25519Verifier) Verify(identity weave.Address, claim ClaimType, commitment []byte) bool {
	if len(commitment) < ed25519.PublicKeySize+ed25519.SignatureSize {
		return false
	}
	pub := ed25519.PublicKey(commitment[:ed25519.PublicKeySize])
	sig := commitment[ed25519.PublicKeySize : ed25519.PublicKeySize+ed25519.SignatureSize]
	payload := commitment[ed25519.PublicKeySize+ed25519.SignatureSize:]

	if !identityAddress(pub).Equals(identity) {
		return false
	}
	return ed25519.Verify(pub, append([]byte{byte(claim)}, payload...), sig)
}

// BuildCommitment creates a commitment that Ed25519Verifier accepts. It is
// meant for clients and tests issuing cheques or close approvals.
func BuildCommitment(priv ed25519.PrivateKey, claim ClaimType, payload []byte) []byte {
	pub := priv.Public().(ed25519.PublicKey)
	sig := ed25519.Sign(priv, append([]byte{byte(claim)}, payload...))
	out := make([]byte, 0, len(pub)+len(sig)+len(payload))
	out = append(out, pub...)
	out = append(out, sig...)
	return append(out, payload...)
}

// identityAddress derives the channel or recipient identity of an ed25519
// public key. It matches the address derivation used by the signature
// extension, so identities double as ledger addresses.
func identityAddress(pub ed25519.PublicKey) weave.Address {
	return weave.NewCondition("sigs", "ed25519", pub).Address()
}
