package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNicknameMismatch is returned when a ticket was issued for another nickname.
var ErrNicknameMismatch = errors.New("ticket nickname mismatch")

// Claims represents a peer ticket presented in the hello frame.
type Claims struct {
	Nickname string `json:"nickname"`
	Version  string `json:"version,omitempty"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// GenerateToken creates a new ticket for the given nickname and game version.
func GenerateToken(cfg *JWTConfig, nickname, version string) (string, error) {
	now := time.Now()
	claims := Claims{
		Nickname: nickname,
		Version:  version,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   nickname,
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// ValidateToken parses and validates a ticket.
func ValidateToken(cfg *JWTConfig, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
		return nil, fmt.Errorf("invalid issuer")
	}
	if cfg.Audience != "" && !slices.Contains(claims.Audience, cfg.Audience) {
		return nil, fmt.Errorf("invalid audience")
	}

	return claims, nil
}

// Verifier checks hello tickets against a shared secret.
type Verifier struct {
	cfg      *JWTConfig
	required bool
}

// NewVerifier builds a verifier. A nil verifier or an empty secret accepts every hello.
func NewVerifier(cfg *JWTConfig, required bool) *Verifier {
	return &Verifier{cfg: cfg, required: required}
}

// Verify validates a ticket for nickname. Missing tokens pass unless tickets are required.
func (v *Verifier) Verify(nickname, token string) error {
	if v == nil || v.cfg == nil || len(v.cfg.Secret) == 0 {
		return nil
	}
	if token == "" {
		if v.required {
			return errors.New("ticket required")
		}
		return nil
	}
	claims, err := ValidateToken(v.cfg, token)
	if err != nil {
		return err
	}
	if claims.Nickname != nickname {
		return ErrNicknameMismatch
	}
	return nil
}
