package testutil

import (
	"net/http"
	"time"

	id "appeals/pkg/domain"
	"appeals/pkg/requestcontext"
)

// WithMember adds the acting member to the request context, as the auth
// middleware would for an authenticated request.
func WithMember(req *http.Request, memberID id.MemberID) *http.Request {
	return req.WithContext(requestcontext.WithMemberID(req.Context(), memberID))
}

// WithTime pins the request time seen by the engine.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// AsMember returns middleware that authenticates every request as memberID at
// time now. Use it in place of the token middleware in handler tests.
func AsMember(memberID id.MemberID, now time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, WithTime(WithMember(r, memberID), now))
		})
	}
}
