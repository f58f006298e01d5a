// Package access decides who may touch the fund. Callers are identified by
// HMAC-signed bearer tokens carrying a subject and a role.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleSuperAdmin       Role = "super_admin"
	RoleFinancialManager Role = "financial_manager"
	RoleAdmin            Role = "admin"
	RoleMember           Role = "member"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingClaim = errors.New("token has no subject or role")
)

// HasFinancialAccess reports whether role may read or change fund data.
func HasFinancialAccess(role Role) bool {
	switch role {
	case RoleSuperAdmin, RoleFinancialManager:
		return true
	}
	return false
}

// CanApprove reports whether role may review or delete expenses.
func CanApprove(role Role) bool {
	return role == RoleFinancialManager
}

// Principal is the authenticated caller. IP and RequestID are filled in by
// the HTTP layer, not the token.
type Principal struct {
	UserID    string
	Role      Role
	IP        string
	RequestID string
}

type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for userID. The server never hands out tokens itself;
// this exists for operators and tests.
func (a *Authenticator) Issue(userID string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Parse(tokenStr string) (*Principal, error) {
	if tokenStr == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(a.issuer))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" || claims.Role == "" {
		return nil, ErrMissingClaim
	}
	return &Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
