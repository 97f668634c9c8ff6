package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"merry-chat/services"
)

// Identity is the authenticated caller, resolved from the session token.
type Identity struct {
	UserID   string
	Username string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

type Authenticator struct {
	auth *services.AuthService
	log  *slog.Logger
}

func NewAuthenticator(a *services.AuthService, log *slog.Logger) *Authenticator {
	return &Authenticator{auth: a, log: log}
}

// WithAuth rejects requests without a valid token. The token is read from
// the Authorization header ("Bearer <jwt>" or the bare jwt) and, for
// browsers opening a WebSocket, from the token query parameter.
func (a *Authenticator) WithAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			respondWithError(w, "Unauthorized", "Missing Authorization header or token parameter", http.StatusUnauthorized)
			return
		}
		uid, uname, err := a.auth.ParseToken(token)
		if err != nil {
			a.log.Debug("Rejected token", "path", r.URL.Path, "error", err)
			respondWithError(w, "Unauthorized", "Invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), Identity{UserID: uid, Username: uname})))
	}
}

// Logging logs every request with its duration.
func Logging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Debug("Started request", "method", r.Method, "path", r.URL.Path)

		next.ServeHTTP(w, r)

		log.Info("Completed request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Sec-WebSocket-Protocol, Sec-WebSocket-Extensions, Sec-WebSocket-Key, Sec-WebSocket-Version, Upgrade, Connection")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
