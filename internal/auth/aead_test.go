package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealerRoundTrips(t *testing.T) {
	key := make([]byte, aeadKeySize)
	for i := range key {
		key[i] = byte(i)
	}
	sealer, err := NewSealer(key)
	require.NoError(t, err)

	plaintext := []byte("moodle-webservice-token-abc123")
	sealed, err := sealer.Seal(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSealerRejectsWrongKeySize(t *testing.T) {
	_, err := NewSealer([]byte("too-short"))
	require.Error(t, err)
}

func TestSealerOpenRejectsTamperedCiphertext(t *testing.T) {
	key := make([]byte, aeadKeySize)
	sealer, err := NewSealer(key)
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("token"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = sealer.Open(sealed)
	require.Error(t, err)
}

func TestSealerOpenRejectsUnrecognizedKeyID(t *testing.T) {
	key := make([]byte, aeadKeySize)
	sealer, err := NewSealer(key)
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("token"))
	require.NoError(t, err)
	sealed[0] = 9

	_, err = sealer.Open(sealed)
	require.Error(t, err)
}

func TestSealerOpenRejectsTruncatedInput(t *testing.T) {
	key := make([]byte, aeadKeySize)
	sealer, err := NewSealer(key)
	require.NoError(t, err)

	_, err = sealer.Open([]byte{1, 2, 3})
	require.Error(t, err)
}
