package httpserver

import (
	"net/http"
	"slices"
	"strings"

	"github.com/Jayvir101/Signaling-Server/internal/origin"
)

// corsMiddleware admits browser callers from allowed origins and answers
// preflight requests itself. A "*" entry opens every route to any origin,
// without credentials.
func corsMiddleware(allowed []string) Middleware {
	wildcard := slices.Contains(allowed, origin.Wildcard)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(r.Header.Get("Origin")) == "" {
				next.ServeHTTP(w, r)
				return
			}

			normalized, ok := origin.CheckRequest(r, allowed)
			if !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			h := w.Header()
			if wildcard {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", normalized)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Expose-Headers", "X-Request-ID")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				if reqHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers")); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				} else {
					h.Set("Access-Control-Allow-Headers", "Content-Type")
				}
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
