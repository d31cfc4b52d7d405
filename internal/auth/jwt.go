// Package auth issues and validates the tokens presented on /anonid and /ws.
package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const Issuer = "matcha-service"

var ErrInvalidToken = errors.New("invalid_token")

// Claims carries either an anonymous id or an account subject.
type Claims struct {
	AnonID string `json:"anon_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity is who a validated token speaks for. Exactly one field is set.
type Identity struct {
	UserID string
	AnonID string
}

// Tokens signs and parses HS256 tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *Tokens) sign(claims Claims) (string, error) {
	now := t.now()
	claims.Issuer = Issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(t.ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// IssueAnonymous creates a fresh anonymous id and its token.
func (t *Tokens) IssueAnonymous() (token, anonID string, err error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", "", err
	}
	anonID = id.String()
	token, err = t.sign(Claims{AnonID: anonID})
	if err != nil {
		return "", "", err
	}
	return token, anonID, nil
}

// IssueAccount signs a token for an account. Account tokens normally come
// from the account service; this is used by the admin tooling and tests.
func (t *Tokens) IssueAccount(userID string) (string, error) {
	return t.sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: userID}})
}

// Parse validates a token and returns its identity.
func (t *Tokens) Parse(raw string) (Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	switch {
	case claims.Subject != "":
		return Identity{UserID: claims.Subject}, nil
	case claims.AnonID != "":
		return Identity{AnonID: claims.AnonID}, nil
	default:
		return Identity{}, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
}
