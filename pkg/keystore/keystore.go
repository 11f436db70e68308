// Package keystore derives the signing keypair from a raw seed string.
//
// WARNING: the derivation is NOT secure. The seed is space-padded (or truncated) to
// 32 bytes and used directly as the ed25519 seed, with no KDF and no entropy mixing.
// It exists for development chains and well-known test accounts ("Alice", "Bob", ...)
// and must never protect real funds.
package keystore

import (
	"crypto/ed25519"
	"sync"

	"github.com/pkg/errors"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
)

const SeedLength = ed25519.SeedSize

var ErrInvalidKeyMaterial = errors.New("invalid key material")

// Keypair holds the ed25519 key derived from a raw seed. It is created once per run
// and never persisted.
type Keypair struct {
	mu        sync.RWMutex
	seed      [SeedLength]byte
	private   ed25519.PrivateKey
	accountId types.AccountId
}

// RawSeed pads the seed with spaces on the right, or truncates it, to exactly 32 bytes.
func RawSeed(seed string) [SeedLength]byte {
	var buf [SeedLength]byte
	for i := range buf {
		buf[i] = ' '
	}
	copy(buf[:], seed)
	return buf
}

// DeriveKeypair deterministically derives a keypair from the seed. It never fails;
// the empty seed yields the all-space buffer. Test-only, see the package comment.
func DeriveKeypair(seed string) *Keypair {
	kp := &Keypair{seed: RawSeed(seed)}
	kp.private = ed25519.NewKeyFromSeed(kp.seed[:])
	copy(kp.accountId[:], kp.private.Public().(ed25519.PublicKey))
	return kp
}

// AccountId returns the public key as the account identifier
func (kp *Keypair) AccountId() types.AccountId {
	return kp.accountId
}

func (kp *Keypair) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey{}, kp.accountId[:]...)
}

// Sign signs msg as-is. Deciding whether msg is the payload or its digest is the
// caller's job.
func (kp *Keypair) Sign(msg []byte) (types.Signature, error) {
	var sig types.Signature

	kp.mu.RLock()
	defer kp.mu.RUnlock()

	if len(kp.private) != ed25519.PrivateKeySize {
		return sig, errors.Wrap(ErrInvalidKeyMaterial, "secret key has been zeroized")
	}
	copy(sig[:], ed25519.Sign(kp.private, msg))
	return sig, nil
}

// Zeroize wipes the secret material. The keypair cannot sign afterwards.
func (kp *Keypair) Zeroize() {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	for i := range kp.seed {
		kp.seed[i] = 0
	}
	for i := range kp.private {
		kp.private[i] = 0
	}
	kp.private = nil
}

// Verify checks an ed25519 signature against an account id
func Verify(accountId types.AccountId, msg []byte, sig types.Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(accountId[:]), msg, sig[:])
}
