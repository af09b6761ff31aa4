package middleware

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "session_id"

type sessionKey struct{}

// Sessions issues and reads the session cookie. With a secret the token is
// signed, and a cookie that fails verification is replaced by a fresh one.
type Sessions struct {
	codec  *securecookie.SecureCookie
	ttl    time.Duration
	logger *slog.Logger
}

// signedToken is the signed cookie payload. Issued drives the refresh.
type signedToken struct {
	Token  string
	Issued int64
}

// NewSessions builds the cookie middleware. An empty secret stores the plain
// token in the cookie.
func NewSessions(secret string, ttl time.Duration, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sessions{ttl: ttl, logger: logger.With("component", "session")}
	if secret != "" {
		hashKey := sha256.Sum256([]byte(secret))
		s.codec = securecookie.New(hashKey[:], nil)
		s.codec.MaxAge(int(ttl / time.Second))
	}
	return s
}

// Handler attaches the session token to the request context, issuing a new
// cookie on first contact. A signed cookie past half its lifetime is
// re-signed so a session in use keeps its token.
func (s *Sessions) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, issued, ok := s.read(r)
		if !ok {
			token = uuid.NewString()
		}
		if !ok || s.stale(issued, time.Now()) {
			if err := s.write(w, r, token); err != nil {
				s.logger.Error("issue session cookie", "error", err)
				http.Error(w, "session unavailable", http.StatusInternalServerError)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(WithSessionToken(r.Context(), token)))
	})
}

func (s *Sessions) read(r *http.Request) (string, time.Time, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", time.Time{}, false
	}

	if s.codec == nil {
		if _, err := uuid.Parse(cookie.Value); err != nil {
			return "", time.Time{}, false
		}
		return cookie.Value, time.Time{}, true
	}

	var payload signedToken
	if err := s.codec.Decode(SessionCookieName, cookie.Value, &payload); err != nil {
		s.logger.Debug("rejected session cookie", "error", err)
		return "", time.Time{}, false
	}
	return payload.Token, time.Unix(0, payload.Issued), payload.Token != ""
}

// stale reports whether a signed cookie should be re-signed. Plain cookies
// never expire on their own.
func (s *Sessions) stale(issued time.Time, now time.Time) bool {
	if s.codec == nil || s.ttl <= 0 {
		return false
	}
	return now.Sub(issued) > s.ttl/2
}

func (s *Sessions) write(w http.ResponseWriter, r *http.Request, token string) error {
	value := token
	if s.codec != nil {
		encoded, err := s.codec.Encode(SessionCookieName, signedToken{Token: token, Issued: time.Now().UnixNano()})
		if err != nil {
			return err
		}
		value = encoded
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// WithSessionToken stores token in ctx.
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionKey{}, token)
}

// SessionToken returns the token placed by Sessions.Handler, "" if none.
func SessionToken(ctx context.Context) string {
	token, _ := ctx.Value(sessionKey{}).(string)
	return token
}

// PendingCookies returns the Set-Cookie headers already written to w, for
// handlers that hijack the connection.
func PendingCookies(w http.ResponseWriter) http.Header {
	values := w.Header().Values("Set-Cookie")
	if len(values) == 0 {
		return nil
	}
	return http.Header{"Set-Cookie": append([]string(nil), values...)}
}
