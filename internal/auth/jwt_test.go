package auth

import (
	"errors"
	"testing"
	"time"
)

func testConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
}

func TestGenerateAndValidate(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateToken(cfg, "alice", "1.0")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Nickname != "alice" || claims.Version != "1.0" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken(testConfig(), "alice", "1.0")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	other := testConfig()
	other.Secret = []byte("another-secret")
	if _, err := ValidateToken(other, token); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	cfg := testConfig()
	cfg.TTL = -time.Minute

	token, err := GenerateToken(cfg, "alice", "1.0")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ValidateToken(cfg, token); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestVerifier(t *testing.T) {
	cfg := testConfig()
	token, err := GenerateToken(cfg, "alice", "1.0")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tests := []struct {
		name     string
		verifier *Verifier
		nickname string
		token    string
		wantErr  bool
	}{
		{name: "nil verifier accepts", verifier: nil, nickname: "bob"},
		{name: "optional without token", verifier: NewVerifier(cfg, false), nickname: "bob"},
		{name: "required without token", verifier: NewVerifier(cfg, true), nickname: "bob", wantErr: true},
		{name: "valid ticket", verifier: NewVerifier(cfg, true), nickname: "alice", token: token},
		{name: "ticket for someone else", verifier: NewVerifier(cfg, true), nickname: "bob", token: token, wantErr: true},
		{name: "garbage ticket", verifier: NewVerifier(cfg, false), nickname: "alice", token: "nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.verifier.Verify(tt.nickname, tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := NewVerifier(cfg, true).Verify("bob", token); !errors.Is(err, ErrNicknameMismatch) {
		t.Fatalf("expected ErrNicknameMismatch, got %v", err)
	}
}
