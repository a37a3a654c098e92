package runtime

import (
	"net/http"
	"slices"
)

// withCORS answers preflight requests and sets Access-Control-Allow-Origin
// for origins in the allow list. "*" allows any origin.
func withCORS(origins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allow := allowedOrigin(origins, r.Header.Get("Origin")); allow != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allow)
			h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			if allow != "*" {
				h.Add("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func allowedOrigin(origins []string, origin string) string {
	if slices.Contains(origins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(origins, origin) {
		return origin
	}
	return ""
}
