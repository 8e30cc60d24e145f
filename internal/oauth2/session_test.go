package oauth2

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSessionValidatorAcceptsCurrentEncoding(t *testing.T) {
	secret := []byte("secret")
	now := time.Unix(1000, 0)
	expires := strconv.FormatInt(now.Add(time.Hour).Unix(), 10)

	cookies := sessionCookies{
		expires:      expires,
		accessToken:  "a",
		idToken:      "i",
		refreshToken: "r",
		hmac:         encodeHmacBase64(secret, "example.com", expires, "a", "i", "r"),
	}

	v := newSessionValidator(fixedNow(now), secret, "example.com", cookies)
	assert.True(t, v.isValid())
}

func TestSessionValidatorAcceptsLegacyHexEncoding(t *testing.T) {
	secret := []byte("secret")
	now := time.Unix(1000, 0)
	expires := strconv.FormatInt(now.Add(time.Hour).Unix(), 10)

	cookies := sessionCookies{
		expires: expires,
		hmac:    encodeHmacHexBase64(secret, "example.com", expires, "", "", ""),
	}

	v := newSessionValidator(fixedNow(now), secret, "example.com", cookies)
	assert.True(t, v.isValid())
}

func TestSessionValidatorRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	now := time.Unix(100000, 0)
	expires := strconv.FormatInt(now.Add(-time.Hour).Unix(), 10)

	cookies := sessionCookies{
		expires: expires,
		hmac:    encodeHmacBase64(secret, "example.com", expires, "", "", ""),
	}

	v := newSessionValidator(fixedNow(now), secret, "example.com", cookies)
	assert.False(t, v.isValid())
}

func TestSessionValidatorRejectsBadHMAC(t *testing.T) {
	secret := []byte("secret")
	now := time.Unix(1000, 0)
	expires := strconv.FormatInt(now.Add(time.Hour).Unix(), 10)

	cookies := sessionCookies{expires: expires, hmac: "garbage"}
	v := newSessionValidator(fixedNow(now), secret, "example.com", cookies)
	assert.False(t, v.isValid())
}

func TestSessionValidatorExpiryMonotonicity(t *testing.T) {
	secret := []byte("secret")
	expiresAt := time.Unix(2000, 0)
	expires := strconv.FormatInt(expiresAt.Unix(), 10)
	cookies := sessionCookies{
		expires: expires,
		hmac:    encodeHmacBase64(secret, "example.com", expires, "", "", ""),
	}

	before := newSessionValidator(fixedNow(time.Unix(1000, 0)), secret, "example.com", cookies)
	assert.True(t, before.isValid())

	after := newSessionValidator(fixedNow(time.Unix(3000, 0)), secret, "example.com", cookies)
	assert.False(t, after.isValid())
}

func TestSessionValidatorCanRefresh(t *testing.T) {
	v := newSessionValidator(fixedNow(time.Now()), nil, "", sessionCookies{refreshToken: "r"})
	assert.True(t, v.canRefresh())

	v2 := newSessionValidator(fixedNow(time.Now()), nil, "", sessionCookies{})
	assert.False(t, v2.canRefresh())
}

func TestSessionValidatorAcceptsMissingDisabledField(t *testing.T) {
	secret := []byte("secret")
	now := time.Unix(1000, 0)
	expires := strconv.FormatInt(now.Add(time.Hour).Unix(), 10)

	cookies := sessionCookies{
		expires:     expires,
		accessToken: "",
		hmac:        encodeHmacBase64(secret, "example.com", expires, "", "i", "r"),
		idToken:     "i",
		refreshToken: "r",
	}

	v := newSessionValidator(fixedNow(now), secret, "example.com", cookies)
	assert.True(t, v.isValid())
}
