package oauth2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHmacBase64Deterministic(t *testing.T) {
	secret := []byte("s3cr3t")

	h1 := encodeHmacBase64(secret, "example.com", "100", "access", "id", "refresh")
	h2 := encodeHmacBase64(secret, "example.com", "100", "access", "id", "refresh")
	assert.Equal(t, h1, h2)
}

func TestEncodeHmacBase64ChangesWithAnyField(t *testing.T) {
	secret := []byte("s3cr3t")
	base := encodeHmacBase64(secret, "example.com", "100", "access", "id", "refresh")

	variants := []string{
		encodeHmacBase64(secret, "example.org", "100", "access", "id", "refresh"),
		encodeHmacBase64(secret, "example.com", "101", "access", "id", "refresh"),
		encodeHmacBase64(secret, "example.com", "100", "access2", "id", "refresh"),
		encodeHmacBase64(secret, "example.com", "100", "access", "id2", "refresh"),
		encodeHmacBase64(secret, "example.com", "100", "access", "id", "refresh2"),
	}
	for _, v := range variants {
		assert.NotEqual(t, base, v)
	}
}

func TestEncodeHmacHexBase64DiffersFromCurrentEncoding(t *testing.T) {
	secret := []byte("s3cr3t")
	current := encodeHmacBase64(secret, "example.com", "100", "a", "i", "r")
	legacy := encodeHmacHexBase64(secret, "example.com", "100", "a", "i", "r")
	assert.NotEqual(t, current, legacy, "the two encodings must differ in representation")
}

func TestBase64URLRoundTripsPaddedAndUnpadded(t *testing.T) {
	b := []byte("hello world, this needs padding")
	enc := base64URLEncode(b)

	dec, err := base64URLDecode(enc)
	require.NoError(t, err)
	assert.Equal(t, b, dec)

	padded := enc + "=="
	dec2, err := base64URLDecode(padded)
	require.NoError(t, err)
	assert.Equal(t, b, dec2)
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, constantTimeEqual("abc", "abc"))
	assert.False(t, constantTimeEqual("abc", "abd"))
	assert.False(t, constantTimeEqual("abc", "abcd"))
}

func TestRandomGeneratorProducesVaryingValues(t *testing.T) {
	rng := NewRandomGenerator()
	a, err := rng.Uint64()
	require.NoError(t, err)
	b, err := rng.Uint64()
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "two draws from crypto/rand should not collide")
}
