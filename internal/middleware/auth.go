package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	apierrors "licgate/internal/errors"
)

// AdminAuth guards the admin routes with a shared secret compared in
// constant time. The token arrives as "Authorization: Bearer <token>".
// When the server has no token configured every admin request is refused:
// an unset secret must never mean open access.
func AdminAuth(token string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				logger.WarnContext(r.Context(), "admin request refused: no admin token configured",
					"path", r.URL.Path,
				)
				_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrUnauthorized))
				return
			}

			supplied := bearerToken(r)
			if supplied == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
				logger.WarnContext(r.Context(), "admin request refused: bad credentials",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrUnauthorized))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return header[len(prefix):]
}
