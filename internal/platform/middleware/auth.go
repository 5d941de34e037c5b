package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"appeals/internal/platform/metrics"
	id "appeals/pkg/domain"
	"appeals/pkg/requestcontext"
)

// MemberTokenValidator validates a bearer token and returns its claims.
type MemberTokenValidator interface {
	ValidateToken(tokenString string) (*MemberClaims, error)
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if errDesc == "" {
		_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s"}`, errCode))
		return
	}
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireMember authenticates the acting board member and stores it with
// requestcontext.WithMemberID. m may be nil.
func RequireMember(validator MemberTokenValidator, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	reject := func(w http.ResponseWriter, r *http.Request, msg string, err error) {
		ctx := r.Context()
		attrs := []any{"request_id", GetRequestID(ctx)}
		if err != nil {
			attrs = append(attrs, "error", err)
		}
		logger.WarnContext(ctx, "unauthorized access - "+msg, attrs...)
		if m != nil {
			m.IncrementUnauthorized()
		}
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing, invalid or expired member token")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || token == "" {
				reject(w, r, "missing token", nil)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				reject(w, r, "invalid token", err)
				return
			}
			memberID, err := id.ParseMemberID(claims.MemberID)
			if err != nil {
				reject(w, r, "invalid member claim", err)
				return
			}

			ctx := requestcontext.WithMemberID(r.Context(), memberID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
