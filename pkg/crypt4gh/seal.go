// Package crypt4gh wraps the Crypt4GH X25519 keypair GHGA-compatible
// services use to receive anonymously-sealed payloads: upload metadata
// envelopes and wrapped file secrets, both sealed client-side against the
// service's public key before being POSTed in.
package crypt4gh

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/neicnordic/crypt4gh/keys"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// KeyPair holds the service's Crypt4GH X25519 private key and its derived
// public key, used to open payloads sealed against it.
type KeyPair struct {
	private [32]byte
	public  [32]byte
}

// LoadKeyPair reads a Crypt4GH private key file (optionally passphrase
// protected) and derives the matching public key.
func LoadKeyPair(path, passphrase string) (*KeyPair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("crypt4gh: opening private key %s: %w", path, err)
	}
	defer f.Close()

	private, err := keys.ReadPrivateKey(f, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("crypt4gh: reading private key %s: %w", path, err)
	}

	kp := &KeyPair{private: private}
	derivePublic(kp)
	return kp, nil
}

// derivePublic computes the X25519 public key matching kp.private.
func derivePublic(kp *KeyPair) {
	curve25519.ScalarBaseMult(&kp.public, &kp.private)
}

// ErrSealedBoxTooShort is returned by Open when ciphertext is too short to
// contain an ephemeral public key and an authentication tag.
var ErrSealedBoxTooShort = fmt.Errorf("crypt4gh: sealed box ciphertext too short")

// ErrDecryption wraps any failure to authenticate or decrypt a sealed box,
// covering both a corrupt payload and one sealed for the wrong recipient.
var ErrDecryption = fmt.Errorf("crypt4gh: decryption failed")

// Open decrypts a libsodium `crypto_box_seal` anonymous sealed box: the
// client generates an ephemeral keypair, prepends the ephemeral public key
// to a standard box sealed under (ephemeral_sk, recipient_pk), with the
// nonce derived deterministically from both public keys so it never needs
// to be transmitted.
func (kp *KeyPair) Open(sealed []byte) ([]byte, error) {
	const ephemeralPubKeyLen = 32
	if len(sealed) < ephemeralPubKeyLen+box.Overhead {
		return nil, ErrSealedBoxTooShort
	}

	var ephemeralPub [32]byte
	copy(ephemeralPub[:], sealed[:ephemeralPubKeyLen])

	nonce, err := sealedBoxNonce(ephemeralPub, kp.public)
	if err != nil {
		return nil, fmt.Errorf("crypt4gh: deriving sealed box nonce: %w", err)
	}

	opened, ok := box.Open(nil, sealed[ephemeralPubKeyLen:], &nonce, &ephemeralPub, &kp.private)
	if !ok {
		return nil, ErrDecryption
	}
	return opened, nil
}

// Seal is only used by tests to construct fixtures the way a real
// Crypt4GH-aware uploader would.
func (kp *KeyPair) Seal(plaintext []byte) ([]byte, error) {
	ephemeralPub, ephemeralPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	nonce, err := sealedBoxNonce(*ephemeralPub, kp.public)
	if err != nil {
		return nil, err
	}

	sealed := box.Seal(nil, plaintext, &nonce, &kp.public, ephemeralPriv)
	return append(ephemeralPub[:], sealed...), nil
}

// sealedBoxNonce derives the deterministic nonce crypto_box_seal uses:
// blake2b(ephemeralPub || recipientPub), truncated to the box nonce size.
func sealedBoxNonce(ephemeralPub, recipientPub [32]byte) ([24]byte, error) {
	var nonce [24]byte
	h, err := blake2b.New(24, nil)
	if err != nil {
		return nonce, err
	}
	h.Write(ephemeralPub[:])
	h.Write(recipientPub[:])
	copy(nonce[:], h.Sum(nil))
	return nonce, nil
}
