// Package identity talks to the external identity provider: it verifies
// session tokens and reads or updates users in the provider's directory.
package identity

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid session token")

// Session is a verified session token.
type Session struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// VerifierConfig selects the verification key. A PEM public key selects RS256;
// otherwise Secret is used with HS256.
type VerifierConfig struct {
	PublicKeyPEM string
	Secret       string
	Issuer       string
	Leeway       time.Duration
}

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionVerifier validates provider-issued session JWTs.
type SessionVerifier struct {
	parser *jwt.Parser
	key    any
}

func NewSessionVerifier(cfg VerifierConfig) (*SessionVerifier, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}

	var key any
	switch {
	case strings.TrimSpace(cfg.PublicKeyPEM) != "":
		pub, err := parsePublicKey(cfg.PublicKeyPEM)
		if err != nil {
			return nil, err
		}
		key = pub
		opts = append(opts, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}))
	case cfg.Secret != "":
		key = []byte(cfg.Secret)
		opts = append(opts, jwt.WithValidMethods([]string{"HS256"}))
	default:
		return nil, errors.New("identity: a public key or a secret is required")
	}
	return &SessionVerifier{parser: jwt.NewParser(opts...), key: key}, nil
}

// parsePublicKey accepts a PEM block, also when newlines were flattened to
// literal "\n" by an env file.
func parsePublicKey(raw string) (*rsa.PublicKey, error) {
	pem := strings.ReplaceAll(strings.TrimSpace(raw), `\n`, "\n")
	pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("identity: parse public key: %w", err)
	}
	return pub, nil
}

// Verify checks the token's signature, expiry and issuer and returns the session.
func (v *SessionVerifier) Verify(token string) (*Session, error) {
	claims := &sessionClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	s := &Session{UserID: claims.Subject, SessionID: claims.SessionID}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
