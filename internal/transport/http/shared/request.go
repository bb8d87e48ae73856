package shared

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
)

var ErrInvalidJSON = errors.New("invalid request payload")

// ClientIP prefers the first X-Forwarded-For hop and falls back to the peer
// address.
func ClientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// DecodeJSON rejects unknown fields and trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return ErrInvalidJSON
	}
	if decoder.More() {
		return ErrInvalidJSON
	}
	return nil
}
