package auth

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/leafflow/chat-service/internal/chat"
)

type ctxKey string

const ctxPrincipal ctxKey = "principal"

// Middleware authenticates requests via the Authorization header and puts
// the resolved principal into the request context.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := ""
			if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
				tok = h[7:]
			}
			if tok == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			principal, err := v.Verify(tok)
			if err != nil {
				log.Warn().Err(err).Msg("token verification failed")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxPrincipal, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFrom extracts the authenticated principal from the context.
func PrincipalFrom(ctx context.Context) (chat.Principal, bool) {
	p, ok := ctx.Value(ctxPrincipal).(chat.Principal)
	return p, ok
}
