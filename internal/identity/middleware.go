package identity

import (
	"encoding/json"
	"net/http"
	"strings"
)

// TokenFromRequest returns the bearer token of r, or "".
func TokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate attaches the identity behind the request's bearer token to the
// request context. Requests whose token cannot be resolved continue
// anonymously.
func (h *Holder) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		profile, err := h.Identity(r.Context(), token)
		if err != nil {
			h.logger.Error("failed to resolve identity", "error", err)
		}
		if profile != nil {
			r = r.WithContext(WithProfile(r.Context(), profile))
		}

		next.ServeHTTP(w, r)
	})
}

func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile := FromContext(r.Context())
		if profile == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !profile.IsAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
