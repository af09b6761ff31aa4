package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/cors"
)

// CORS allows the configured front-end origin plus any localhost port, with
// credentials so the session cookie travels on cross-origin calls.
func CORS(allowedOrigin string) func(http.Handler) http.Handler {
	allowedOrigin = strings.TrimRight(strings.TrimSpace(allowedOrigin), "/")

	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return originAllowed(allowedOrigin, origin)
		},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func originAllowed(allowed, origin string) bool {
	if origin == "" {
		return true
	}
	if allowed != "" && strings.EqualFold(strings.TrimRight(origin, "/"), allowed) {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1":
		return true
	default:
		return false
	}
}

// OriginChecker applies the CORS origin policy to websocket upgrades.
func OriginChecker(allowedOrigin string) func(*http.Request) bool {
	allowedOrigin = strings.TrimRight(strings.TrimSpace(allowedOrigin), "/")
	return func(r *http.Request) bool {
		return originAllowed(allowedOrigin, r.Header.Get("Origin"))
	}
}
