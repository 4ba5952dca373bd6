// Package identity validates session tokens minted by the external identity
// provider. The core consumes the resulting claims read-only; the only user
// state it ever mutates is the credibility ledger.
package identity

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	id "naturewatch/pkg/domain"
	dErrors "naturewatch/pkg/domain-errors"
	"naturewatch/pkg/requestcontext"
)

// Claims carries the identity view supplied per request by the session
// provider: current user id, expertise level, and credibility score snapshot.
type Claims struct {
	UserID           string `json:"user_id"`
	ExpertiseLevel   string `json:"expertise_level"`
	CredibilityScore int    `json:"credibility_score"`
	jwt.RegisteredClaims
}

// Validator parses and verifies session tokens.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

// ValidateToken verifies the token signature and returns the caller identity.
func (v *Validator) ValidateToken(tokenString string) (requestcontext.Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return requestcontext.Identity{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return requestcontext.Identity{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return requestcontext.Identity{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return requestcontext.Identity{}, dErrors.New(dErrors.CodeUnauthorized, "invalid user id in token")
	}
	return requestcontext.Identity{
		UserID:           userID,
		ExpertiseLevel:   claims.ExpertiseLevel,
		CredibilityScore: claims.CredibilityScore,
	}, nil
}
