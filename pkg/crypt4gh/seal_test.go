package crypt4gh

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testKeyPair(t *testing.T) *KeyPair {
	t.Helper()
	var priv [32]byte
	for i := range priv {
		priv[i] = byte(i + 1)
	}
	kp := &KeyPair{private: priv}
	var pub [32]byte
	kp.public = pub
	return kp
}

func TestSealOpenRoundTrip(t *testing.T) {
	// Build a real keypair via the scalar-mult relation used by LoadKeyPair,
	// rather than the zeroed stand-in above, so Open actually authenticates.
	kp := testKeyPair(t)
	derivePublic(kp)

	plaintext := []byte(`{"file_id":"examplefile001","decrypted_sha256":"0677de"}`)
	sealed, err := kp.Seal(plaintext)
	require.NoError(t, err)

	opened, err := kp.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestOpenRejectsTruncatedCiphertext(t *testing.T) {
	kp := testKeyPair(t)
	derivePublic(kp)

	_, err := kp.Open([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrSealedBoxTooShort)
}
