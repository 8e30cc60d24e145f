package oauth2

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
)

// hmacPayloadSeparator joins the fields of the canonical HMAC payload.
const hmacPayloadSeparator = "\n"

// sha256HMAC returns the raw SHA-256 HMAC of message under secret.
func sha256HMAC(secret []byte, message string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}

// base64Encode returns the standard base64 encoding of b.
func base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// base64Decode decodes standard base64 text.
func base64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// base64URLEncode returns the URL-safe base64 encoding of b, without padding.
func base64URLEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// base64URLDecode decodes URL-safe base64 text, accepting both padded and
// unpadded input so state parameters minted by older or third-party
// encoders still round-trip.
func base64URLDecode(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

// hexEncode returns the lowercase hex encoding of b.
func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

// constantTimeEqual compares two strings without leaking timing
// information about where they first differ.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// encodeHmacBase64 is the current (preferred) session HMAC encoding:
// base64(raw_hmac_bytes).
func encodeHmacBase64(secret []byte, domain, expires, accessToken, idToken, refreshToken string) string {
	payload := domain + hmacPayloadSeparator +
		expires + hmacPayloadSeparator +
		accessToken + hmacPayloadSeparator +
		idToken + hmacPayloadSeparator +
		refreshToken
	return base64Encode(sha256HMAC(secret, payload))
}

// encodeHmacHexBase64 is the legacy session HMAC encoding kept only for
// validating cookies issued by older deployments: base64(hex(raw_hmac_bytes)).
func encodeHmacHexBase64(secret []byte, domain, expires, accessToken, idToken, refreshToken string) string {
	payload := domain + hmacPayloadSeparator +
		expires + hmacPayloadSeparator +
		accessToken + hmacPayloadSeparator +
		idToken + hmacPayloadSeparator +
		refreshToken
	raw := sha256HMAC(secret, payload)
	return base64Encode([]byte(hexEncode(raw)))
}

// RandomGenerator is the injectable source of randomness used to mint CSRF
// nonces. The default implementation reads from crypto/rand.
type RandomGenerator interface {
	// Uint64 returns a uniformly distributed random 64-bit value.
	Uint64() (uint64, error)
}

// cryptoRandGenerator implements RandomGenerator using crypto/rand.
type cryptoRandGenerator struct{}

// NewRandomGenerator returns the default crypto/rand-backed RandomGenerator.
func NewRandomGenerator() RandomGenerator {
	return cryptoRandGenerator{}
}

func (cryptoRandGenerator) Uint64() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
