package server

import (
	"crypto/subtle"
	"net/http"
)

// TokenHeader is the shared-secret header every authenticated route requires.
const TokenHeader = "X-MC-Token"

// requireToken rejects requests before any core logic runs: 500 when the
// server-side secret itself is unconfigured, 401 when the header is
// missing, 403 on mismatch.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			writeError(w, http.StatusInternalServerError, "api token not configured")
			return
		}

		provided := r.Header.Get(TokenHeader)
		if provided == "" {
			writeError(w, http.StatusUnauthorized, "missing "+TokenHeader)
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.token)) != 1 {
			writeError(w, http.StatusForbidden, "invalid "+TokenHeader)
			return
		}

		next(w, r)
	}
}
