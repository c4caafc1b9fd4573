package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gridtally/gridtally/pkg/log"
)

// requireAuth wraps mutating handlers with OIDC bearer validation. The
// token's email claim must be in the admin list when one is configured.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("reqPath", r.URL.Path)))
		r = r.WithContext(ctx)

		if s.bypassAuth {
			next(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			writeJSONError(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		payload, err := s.tokenValidator(ctx, parts[1], s.oidcAudience)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to validate id token", slog.Any("error", err))
			writeJSONError(w, "invalid id token", http.StatusUnauthorized)
			return
		}

		email, ok := payload.Claims["email"].(string)
		if !ok || email == "" {
			log.Ctx(ctx).WarnContext(ctx, "invalid email in id token")
			writeJSONError(w, "invalid token claims", http.StatusForbidden)
			return
		}

		if len(s.adminEmails) > 0 {
			var allowed bool
			for _, admin := range s.adminEmails {
				if email == admin {
					allowed = true
					break
				}
			}
			if !allowed {
				log.Ctx(ctx).WarnContext(ctx, "unauthorized email", slog.String("email", email))
				writeJSONError(w, "unauthorized email", http.StatusForbidden)
				return
			}
		}

		log.Ctx(ctx).DebugContext(ctx, "authorized", slog.String("email", email))
		next(w, r)
	}
}
