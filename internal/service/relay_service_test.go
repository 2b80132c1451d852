package service

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayIssueMissingSecret(t *testing.T) {
	t.Parallel()

	_, err := NewRelayService("", nil, time.Hour)
	assert.ErrorIs(t, err, ErrMissingRelaySecret)
}

func TestRelayIssueCredential(t *testing.T) {
	t.Parallel()

	uris := []string{"turn:relay.example.com:3478"}
	s, err := NewRelayService("shared-secret", uris, 24*time.Hour)
	require.NoError(t, err)

	cred, err := s.Issue(42)
	require.NoError(t, err)

	parts := strings.SplitN(cred.Username, ":", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, "42", parts[1])

	expiry, err := strconv.ParseInt(parts[0], 10, 64)
	require.NoError(t, err)
	assert.Greater(t, expiry, time.Now().Unix(), "embedded expiry must be in the future at issuance")

	assert.Equal(t, int64(86400), cred.TTL)
	assert.Equal(t, uris, cred.URIs)
}

func TestRelayPasswordIsRecomputable(t *testing.T) {
	t.Parallel()

	secret := "shared-secret"
	s, err := NewRelayService(secret, nil, time.Hour)
	require.NoError(t, err)

	cred, err := s.Issue(7)
	require.NoError(t, err)

	// The relay verifies by re-deriving the HMAC over the username it
	// received; the issuance must match that derivation exactly.
	h := hmac.New(sha1.New, []byte(secret))
	h.Write([]byte(cred.Username))
	expected := base64.StdEncoding.EncodeToString(h.Sum(nil))
	assert.Equal(t, expected, cred.Password)

	// Tampering with the embedded expiry invalidates the password.
	tampered := "9999999999:" + strings.SplitN(cred.Username, ":", 2)[1]
	h = hmac.New(sha1.New, []byte(secret))
	h.Write([]byte(tampered))
	assert.NotEqual(t, cred.Password, base64.StdEncoding.EncodeToString(h.Sum(nil)))
}

func TestRelayIssueIsDeterministic(t *testing.T) {
	t.Parallel()

	s, err := NewRelayService("shared-secret", nil, time.Hour)
	require.NoError(t, err)

	first, err := s.Issue(7)
	require.NoError(t, err)
	second, err := s.Issue(7)
	require.NoError(t, err)

	// Reissuing within the same second yields the same username and
	// therefore the same password. That is intentional: the embedded
	// expiry is the sole revocation mechanism.
	if first.Username == second.Username {
		assert.Equal(t, first.Password, second.Password)
	}
}
