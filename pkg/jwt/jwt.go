package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Tokens are always HMAC-SHA256; any other algorithm in an inbound token is
// rejected to rule out algorithm confusion.
const (
	HeaderType      = "JWT"
	HeaderAlgorithm = "HS256"
)

// StandardClaims are the registered claims of RFC 7519 section 4.1. Temporal
// claims are Unix timestamps; zero values mean the claim is unset.
type StandardClaims struct {
	ID        string `json:"jti,omitempty"`
	Subject   string `json:"sub,omitempty"`
	Issuer    string `json:"iss,omitempty"`
	Audience  string `json:"aud,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	NotBefore int64  `json:"nbf,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
}

// Valid checks the temporal claims against the current time. Unset claims are
// skipped per RFC 7519.
func (c StandardClaims) Valid() error {
	now := time.Now().Unix()
	if c.ExpiresAt > 0 && now > c.ExpiresAt {
		return ErrExpiredToken
	}
	if c.NotBefore > 0 && now < c.NotBefore {
		return ErrInvalidToken
	}
	return nil
}

// Service signs and verifies tokens with a single symmetric key. Per-issuer
// keys are handled by constructing one Service per key.
type Service struct {
	signingKey []byte
}

// New creates a Service from a signing key. The key should be at least 32
// bytes for HMAC-SHA256.
func New(signingKey []byte) (*Service, error) {
	if len(signingKey) == 0 {
		return nil, ErrMissingSigningKey
	}
	return &Service{signingKey: signingKey}, nil
}

// NewFromString is a convenience wrapper around New for string-configured keys.
func NewFromString(signingKey string) (*Service, error) {
	return New([]byte(signingKey))
}

// Generate signs the claims into a compact JWT.
func (s *Service) Generate(claims any) (string, error) {
	return s.GenerateWithHeader(claims, nil)
}

// GenerateWithHeader signs the claims into a compact JWT carrying additional
// header fields, e.g. a key hint naming the issuer so the verifier can pick
// the right secret before validating anything. The typ and alg fields cannot
// be overridden.
func (s *Service) GenerateWithHeader(claims any, fields map[string]string) (string, error) {
	if claims == nil {
		return "", ErrMissingClaims
	}

	header := map[string]string{
		"typ": HeaderType,
		"alg": HeaderAlgorithm,
	}
	for k, v := range fields {
		if k == "typ" || k == "alg" {
			continue
		}
		header[k] = v
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("failed to marshal header: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	payload := base64URLEncode(headerJSON) + "." + base64URLEncode(claimsJSON)
	return payload + "." + s.sign(payload), nil
}

// Parse verifies a token's signature and algorithm, unmarshals its claims
// into the provided structure and, when the claims type implements
// Valid() error, checks the temporal claims.
func (s *Service) Parse(tokenString string, claims any) error {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return ErrInvalidToken
	}

	// Signature first, in constant time; nothing in the token is trusted
	// before this passes.
	payload := parts[0] + "." + parts[1]
	expected := s.sign(payload)
	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(expected)) != 1 {
		return ErrInvalidSignature
	}

	headerJSON, err := base64URLDecode(parts[0])
	if err != nil {
		return fmt.Errorf("failed to decode header: %w", err)
	}
	var header struct {
		Algorithm string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return fmt.Errorf("failed to unmarshal header: %w", err)
	}
	if header.Algorithm != HeaderAlgorithm {
		return ErrUnexpectedSigningMethod
	}

	claimsJSON, err := base64URLDecode(parts[1])
	if err != nil {
		return fmt.Errorf("failed to decode claims: %w", err)
	}
	if err := json.Unmarshal(claimsJSON, claims); err != nil {
		return fmt.Errorf("failed to unmarshal claims: %w", err)
	}

	if validator, ok := claims.(interface{ Valid() error }); ok {
		if err := validator.Valid(); err != nil {
			return err
		}
	}
	return nil
}

// UnverifiedHeader decodes the header segment of a token WITHOUT verifying
// the signature. Use it only to pick a verification key (e.g. reading an
// issuer hint); every value it returns is attacker-controlled until Parse
// succeeds with the corresponding key.
func UnverifiedHeader(tokenString string) (map[string]string, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	headerJSON, err := base64URLDecode(parts[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(headerJSON, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal header: %w", err)
	}

	header := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			header[k] = s
		}
	}
	return header, nil
}

func (s *Service) sign(payload string) string {
	h := hmac.New(sha256.New, s.signingKey)
	h.Write([]byte(payload))
	return base64URLEncode(h.Sum(nil))
}

// base64url without padding, as RFC 7515 requires for all three segments.
func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
