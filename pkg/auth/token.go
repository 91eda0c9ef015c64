package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTokenTTL is the bearer token lifetime when none is configured
	DefaultTokenTTL = 24 * time.Hour
	// MinSecretLength is the minimum HMAC key size in bytes
	MinSecretLength = 32
)

// Claims carried by a bearer token. Subject is the identity's email.
type Claims struct {
	UID  int64  `json:"uid,omitempty"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 bearer tokens. It holds a single
// active signing key and no other state.
type TokenService struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// TokenOption configures a TokenService
type TokenOption func(*TokenService)

// WithClock overrides the time source
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// DecodeSecret accepts a base64 encoded or raw secret and returns the key
// bytes. Base64 wins when it decodes to a long enough key.
func DecodeSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if decoded, err := base64.StdEncoding.DecodeString(secret); err == nil && len(decoded) >= MinSecretLength {
		return decoded, nil
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	return []byte(secret), nil
}

// NewTokenService creates a token service signing with key
func NewTokenService(key []byte, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	if len(key) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &TokenService{
		key: key,
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the configured token lifetime
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for the principal
func (s *TokenService) Issue(p Principal) (string, error) {
	now := s.now()
	claims := Claims{
		UID:  p.ID,
		Name: p.Name,
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies the signature and expiry and returns the subject
func (s *TokenService) Validate(token string) (string, error) {
	claims, err := s.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Parse verifies the token and returns all claims
func (s *TokenService) Parse(token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}
	return &claims, nil
}

// classifyTokenError collapses jwt errors into the two outcomes callers see.
// A bad signature is always malformed, even if the claims are expired.
func classifyTokenError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenMalformed) ||
		errors.Is(err, jwt.ErrTokenUnverifiable) {
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
}

// OpaqueTokenLength is the number of random bytes in opaque tokens (256 bits)
const OpaqueTokenLength = 32

// TokenGenerator creates opaque random tokens for sessions and remember-me
// cookies. Only the SHA256 hash of a token is ever persisted.
type TokenGenerator struct {
	prefix string
}

// NewTokenGenerator creates a generator whose tokens start with prefix
func NewTokenGenerator(prefix string) *TokenGenerator {
	return &TokenGenerator{prefix: prefix}
}

// GenerateToken returns a fresh token and its storage hash
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, OpaqueTokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	token = tg.prefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	return token, tg.HashToken(token), nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the generator's format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, tg.prefix) {
		return fmt.Errorf("token must start with %q", tg.prefix)
	}

	encodedPart := strings.TrimPrefix(token, tg.prefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	decoded, err := base64.RawURLEncoding.DecodeString(encodedPart)
	if err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	if len(decoded) != OpaqueTokenLength {
		return fmt.Errorf("invalid token length")
	}

	return nil
}
