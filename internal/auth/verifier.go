package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pixelproof/pixelproof/internal/domain"
)

// Verifier turns a bearer credential into a verified identity.
//
// The identity provider issues the tokens; this service only validates them.
// Implementations must distinguish credential failures (unauthorized) from
// their own internal failures.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// JWTVerifierConfig configures the JWT verifier.
type JWTVerifierConfig struct {
	// Secret is the HS256 shared signing secret.
	Secret string

	// Issuer, when set, must match the token's iss claim. Rejecting foreign
	// issuers keeps tokens from another project out of this one.
	Issuer string

	// Audience, when set, must appear in the token's aud claim.
	Audience string

	// Leeway tolerates small clock skew when validating exp/nbf.
	Leeway time.Duration
}

// jwtVerifier validates HS256-signed identity tokens.
type jwtVerifier struct {
	cfg JWTVerifierConfig
	key []byte
}

// NewJWTVerifier creates a Verifier backed by a shared HS256 secret.
func NewJWTVerifier(cfg JWTVerifierConfig) (Verifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	return &jwtVerifier{cfg: cfg, key: []byte(cfg.Secret)}, nil
}

// Claims are the identity token claims this service cares about. The uid is
// carried in the subject claim.
type Claims struct {
	jwt.RegisteredClaims
}

func (v *jwtVerifier) Verify(_ context.Context, token string) (Identity, error) {
	const op = "auth.verify"

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}
	if v.cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(v.cfg.Leeway))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", domain.Unauthorized(op, "Token has expired. Please sign in again.")
		case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
			return "", domain.Unauthorized(op, "Token was issued for a different project.")
		default:
			return "", domain.Unauthorized(op, "Invalid or expired token.")
		}
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", domain.Unauthorized(op, "Invalid or expired token.")
	}

	return Identity(claims.Subject), nil
}
