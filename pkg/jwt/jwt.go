package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds token settings.
type Config struct {
	SigningKey string        `env:"AUTH_JWT_SECRET,required"`
	Issuer     string        `env:"AUTH_JWT_ISSUER" envDefault:"replier"`
	TTL        time.Duration `env:"AUTH_JWT_TTL" envDefault:"24h"`
}

// Claims identifies the caller. Subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// UserID returns the subject.
func (c *Claims) UserID() string { return c.Subject }

// HasRole reports whether the caller carries role.
func (c *Claims) HasRole(role string) bool { return c != nil && c.Role == role }

// Service signs and verifies tokens with a shared HMAC key.
type Service struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func New(cfg Config) (*Service, error) {
	if cfg.SigningKey == "" {
		return nil, ErrMissingSigningKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Service{
		key:    []byte(cfg.SigningKey),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    time.Now,
	}, nil
}

// Generate signs claims. Issuer, IssuedAt and ExpiresAt are filled in when
// unset.
func (s *Service) Generate(claims Claims) (string, error) {
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	now := s.now()
	if claims.Issuer == "" {
		claims.Issuer = s.issuer
	}
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Parse verifies token and returns its claims. Only HS256 is accepted and
// the expiry claim is mandatory.
func (s *Service) Parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errors.Join(ErrExpiredToken, err)
	case err != nil:
		return nil, errors.Join(ErrInvalidToken, err)
	case claims.Subject == "":
		return nil, ErrMissingSubject
	}
	return claims, nil
}
