// Package crypto provides HMAC request signing for the exchange REST API and
// at-rest encryption for the exchange API secret.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HMACAuth holds the credentials for HMAC-authenticated exchange requests.
type HMACAuth struct {
	Key    string // API key, sent in the X-MBX-APIKEY header
	Secret string // API secret, the HMAC key
}

// Sign returns the hex-encoded HMAC-SHA256 signature of payload (the encoded
// query string including the timestamp parameter).
func (h *HMACAuth) Sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
