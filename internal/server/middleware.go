package server

import (
	"crypto/subtle"
	"net/http"
)

// requireAdmin checks the admin key header in constant time. Without a
// configured key every admin route answers 503.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminKey == "" {
			s.respondError(w, http.StatusServiceUnavailable, "admin API is disabled")
			return
		}
		got := r.Header.Get(AdminKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.adminKey)) != 1 {
			s.respondError(w, http.StatusUnauthorized, "invalid admin API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
