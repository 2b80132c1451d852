package service

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/chatrtc/internal/models"
)

// ErrMissingRelaySecret is fatal at startup: credentials cannot be
// issued without the secret shared with the relay server.
var ErrMissingRelaySecret = errors.New("relay signing secret is not configured")

// RelayService mints time-limited credentials for the media relay using
// the coturn static-auth-secret scheme: the username embeds the expiry,
// the password is an HMAC over the username, and the relay re-derives
// everything on its own. No state is kept here or there.
type RelayService interface {
	Issue(userID int) (*models.RelayCredential, error)
}

type relayService struct {
	secret []byte
	uris   []string
	ttl    time.Duration
}

func NewRelayService(secret string, uris []string, ttl time.Duration) (RelayService, error) {
	if secret == "" {
		return nil, ErrMissingRelaySecret
	}
	return &relayService{secret: []byte(secret), uris: uris, ttl: ttl}, nil
}

func (s *relayService) Issue(userID int) (*models.RelayCredential, error) {
	expiry := time.Now().UTC().Add(s.ttl).Unix()
	username := fmt.Sprintf("%d:%d", expiry, userID)

	h := hmac.New(sha1.New, s.secret)
	h.Write([]byte(username))
	password := base64.StdEncoding.EncodeToString(h.Sum(nil))

	return &models.RelayCredential{
		Username: username,
		Password: password,
		TTL:      int64(s.ttl.Seconds()),
		URIs:     s.uris,
	}, nil
}
