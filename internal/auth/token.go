package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dukerupert/coinvault/internal/model"
)

const tokenIssuer = "coinvault"

var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	CompanyID int64  `json:"cid,omitempty"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 bearer tokens for API clients.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Enabled reports whether a signing secret is configured.
func (ti *TokenIssuer) Enabled() bool {
	return ti != nil && len(ti.secret) > 0
}

// Issue returns a signed token for the user.
func (ti *TokenIssuer) Issue(u *model.User) (string, time.Time, error) {
	if !ti.Enabled() {
		return "", time.Time{}, errors.New("token issuer not configured")
	}
	now := ti.now()
	exp := now.Add(ti.ttl)
	c := claims{
		Email: u.Email,
		Role:  string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if u.CompanyID != nil {
		c.CompanyID = *u.CompanyID
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses a token and returns the actor it names.
func (ti *TokenIssuer) Verify(token string) (AuthContext, error) {
	if !ti.Enabled() {
		return AuthContext{}, ErrInvalidToken
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return AuthContext{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return AuthContext{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	role, err := ParseRole(c.Role)
	if err != nil {
		return AuthContext{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return AuthContext{UserID: userID, CompanyID: c.CompanyID, Email: c.Email, Role: role}, nil
}
