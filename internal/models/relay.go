package models

// RelayCredential is a time-limited credential for the media relay,
// self-verifying through the expiry embedded in the username. The relay
// recomputes the HMAC over the username it receives; nothing is stored
// on either side.
type RelayCredential struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	TTL      int64    `json:"ttl"`
	URIs     []string `json:"uris"`
}
