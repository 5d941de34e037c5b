package middleware

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
)

// MemberClaims are the claims carried by a board member access token.
type MemberClaims struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// MemberTokens issues and validates HS256 member tokens.
type MemberTokens struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewMemberTokens(signingKey, issuer, audience string) *MemberTokens {
	return &MemberTokens{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

func (t *MemberTokens) Issue(memberID id.MemberID, name string, now time.Time, expiresIn time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MemberClaims{
		MemberID: memberID.String(),
		Name:     name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   memberID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    t.issuer,
			Audience:  []string{t.audience},
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(t.signingKey)
}

func (t *MemberTokens) ValidateToken(tokenString string) (*MemberClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &MemberClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return t.signingKey, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*MemberClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}
