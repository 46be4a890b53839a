package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireBearer rejects requests whose Authorization header does not carry
// the shared API token. Comparison is constant-time. An empty configured
// token disables the management plane entirely rather than leaving it open.
func (s *Server) requireBearer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.APIToken == "" {
			writeError(w, http.StatusForbidden, "APITokenNotConfigured")
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.APIToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

// requireWebhookKey gates the inbound webhook on X-Webhook-Key when a key
// is configured; without one the webhook is open (trusted network).
func (s *Server) requireWebhookKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.WebhookKey != "" {
			key := r.Header.Get("X-Webhook-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.opts.WebhookKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
		}
		next(w, r)
	}
}
