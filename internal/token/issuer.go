// Package token mints and verifies the two credential kinds of the service:
// short-lived signed access tokens and long-lived opaque refresh tokens.
//
// Access tokens are stateless; verification is signature + expiry only, with
// no store lookup. Refresh tokens carry no claims at all: they are a session
// id plus a random secret, and their validity is decided by the session
// store, never by this package alone.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired is returned for structurally valid but expired access tokens.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers signature, format, and claim failures.
	ErrTokenInvalid = errors.New("invalid token")
)

// Role values embedded in access tokens. Always derived server-side from the
// stored profile at issuance time; never read from client input.
const (
	RoleAnonymous = "anonymous"
	RoleNormal    = "normal"
	RoleCreator   = "creator"
	RoleAdmin     = "admin"
)

// Principal is the claims payload of an access token.
type Principal struct {
	UserID    int64
	Role      string
	Anonymous bool
}

type accessClaims struct {
	UID  int64  `json:"uid"`
	Role string `json:"role"`
	Anon bool   `json:"anon,omitempty"`
	jwt.RegisteredClaims
}

// Config holds signing parameters for the issuer.
type Config struct {
	Secret    []byte
	AccessTTL time.Duration
	Issuer    string
	Leeway    time.Duration
}

// Issuer signs and verifies access tokens with HS256.
type Issuer struct {
	config Config
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("hs256 requires a signing secret")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid access TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Issuer{config: cfg}, nil
}

// IssueAccess signs a compact access token for the principal.
func (i *Issuer) IssueAccess(p Principal) (string, error) {
	now := time.Now()
	claims := accessClaims{
		UID:  p.UserID,
		Role: p.Role,
		Anon: p.Anonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    i.config.Issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.config.Secret)
}

// VerifyAccess checks signature and expiry and returns the embedded
// principal. Pure CPU; no I/O.
func (i *Issuer) VerifyAccess(tokenStr string) (Principal, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	}
	if i.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.config.Leeway))
	}
	if i.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &accessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return i.config.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid {
		return Principal{}, ErrTokenInvalid
	}

	return Principal{
		UserID:    claims.UID,
		Role:      claims.Role,
		Anonymous: claims.Anon,
	}, nil
}
