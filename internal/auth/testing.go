package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// NewTestClaims creates claims for subject and email holding the given roles.
// Used by tests and by the development identity.
func NewTestClaims(subject, email string, roles ...string) *UserClaims {
	claims := &UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: subject,
		},
		Email: email,
	}
	for _, r := range roles {
		claims.Roles = append(claims.Roles, Role{Key: r})
	}
	return claims
}
