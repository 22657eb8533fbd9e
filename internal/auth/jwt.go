// README: Bearer-token parsing; identity issuance lives outside this service.
package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	RolePassenger = "passenger"
	RoleDriver    = "driver"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidClaims = errors.New("invalid claims")
)

// Principal is the authenticated caller extracted from a verified token.
type Principal struct {
	UserID int64
	Role   string
}

type tokenClaims struct {
	UserID int64  `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// ParseBearer validates an "Authorization: Bearer <token>" header value and
// returns the caller it identifies.
func ParseBearer(header, secret string) (*Principal, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, ErrInvalidToken
	}
	return ParseToken(strings.TrimSpace(parts[1]), secret)
}

// ParseToken validates a raw HS256 token and extracts the principal.
func ParseToken(tokenStr, secret string) (*Principal, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	tok, err := jwt.ParseWithClaims(tokenStr, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		if err == nil {
			err = ErrInvalidToken
		}
		return nil, err
	}
	c, _ := tok.Claims.(*tokenClaims)
	if c == nil || c.UserID <= 0 || c.Role == "" {
		return nil, ErrInvalidClaims
	}
	return &Principal{UserID: c.UserID, Role: strings.ToLower(c.Role)}, nil
}

// SignToken mints an HS256 token for a principal. Production issuance is the
// identity service's job; this is used by tests and local tooling.
func SignToken(p Principal, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		UserID: p.UserID,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
