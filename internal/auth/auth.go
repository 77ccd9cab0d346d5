// Package auth authenticates collector API callers by static API key or
// HS256-signed JWT.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

var (
	ErrAuthDisabled      = errors.New("auth disabled")
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvalidKey        = errors.New("invalid api key")
	ErrMissingCredential = errors.New("missing credentials")
)

// Config configures authentication helpers.
type Config struct {
	JWTSecret   string
	TokenExpiry time.Duration
	APIKeys     []string
}

// Principal is an authenticated caller.
type Principal struct {
	ID string
	// Method is "api_key" or "jwt".
	Method string
}

// Service validates JWTs and API keys.
type Service struct {
	jwt     *JWTService
	apiKeys []apiKey
}

type apiKey struct {
	key []byte
	id  string
}

// NewService constructs an auth service from static configuration.
func NewService(cfg Config) *Service {
	service := &Service{}
	if strings.TrimSpace(cfg.JWTSecret) != "" {
		service.jwt = NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)
	}
	for _, raw := range cfg.APIKeys {
		key := strings.TrimSpace(raw)
		if key == "" {
			continue
		}
		sum := sha256.Sum256([]byte(key))
		service.apiKeys = append(service.apiKeys, apiKey{
			key: []byte(key),
			id:  "key_" + hex.EncodeToString(sum[:6]),
		})
	}
	return service
}

// Enabled reports whether auth checks should run.
func (s *Service) Enabled() bool {
	return s != nil && (s.jwt != nil || len(s.apiKeys) > 0)
}

// IssueToken signs a token for subject.
func (s *Service) IssueToken(subject string) (string, error) {
	if s == nil || s.jwt == nil {
		return "", ErrAuthDisabled
	}
	return s.jwt.Generate(subject)
}

// ValidateAPIKey returns the principal for key.
// Every key is compared in constant time.
func (s *Service) ValidateAPIKey(key string) (*Principal, error) {
	if s == nil || len(s.apiKeys) == 0 {
		return nil, ErrAuthDisabled
	}
	input := []byte(strings.TrimSpace(key))
	var matched string
	for _, k := range s.apiKeys {
		if subtle.ConstantTimeCompare(input, k.key) == 1 {
			matched = k.id
		}
	}
	if matched == "" {
		return nil, ErrInvalidKey
	}
	return &Principal{ID: matched, Method: "api_key"}, nil
}

// ValidateJWT validates token and returns its subject as the principal.
func (s *Service) ValidateJWT(token string) (*Principal, error) {
	if s == nil || s.jwt == nil {
		return nil, ErrAuthDisabled
	}
	subject, err := s.jwt.Validate(token)
	if err != nil {
		return nil, err
	}
	return &Principal{ID: subject, Method: "jwt"}, nil
}

// Authenticate checks a bearer credential. API keys are tried first; a
// credential that is not a configured key is validated as a JWT when a
// secret is set.
func (s *Service) Authenticate(credential string) (*Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrMissingCredential
	}
	if len(s.apiKeys) > 0 {
		p, err := s.ValidateAPIKey(credential)
		if err == nil {
			return p, nil
		}
		if s.jwt == nil {
			return nil, err
		}
	}
	return s.ValidateJWT(credential)
}
