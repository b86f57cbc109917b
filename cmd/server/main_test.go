package main

import (
	"testing"

	"racikpos/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", AccessTokenTTLMinutes: 60})
	if err == nil {
		t.Fatalf("expected short secret to be rejected")
	}

	err = validateSecurityConfig(config.Config{
		AuthSecret:            "0123456789abcdef0123456789abcdef",
		AccessTokenTTLMinutes: 60,
		AllowedOrigin:         "*",
		DatabaseURL:           "postgres://pos@localhost/pos",
	})
	if err == nil {
		t.Fatalf("expected wildcard origin with postgres to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:            "0123456789abcdef0123456789abcdef",
		AccessTokenTTLMinutes: 480,
		AllowedOrigin:         "https://pos.example.com",
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
