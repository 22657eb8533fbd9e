package auth

import (
	"testing"
	"time"
)

const testSecret = "test-secret"

func TestSignAndParseToken(t *testing.T) {
	tok, err := SignToken(Principal{UserID: 42, Role: RoleDriver}, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	p, err := ParseToken(tok, testSecret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.UserID != 42 || p.Role != RoleDriver {
		t.Fatalf("principal mismatch: %+v", p)
	}
}

func TestParseBearer(t *testing.T) {
	tok, err := SignToken(Principal{UserID: 7, Role: RolePassenger}, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	p, err := ParseBearer("Bearer "+tok, testSecret)
	if err != nil {
		t.Fatalf("parse bearer: %v", err)
	}
	if p.UserID != 7 || p.Role != RolePassenger {
		t.Fatalf("principal mismatch: %+v", p)
	}
	if _, err := ParseBearer(tok, testSecret); err == nil {
		t.Fatal("expected error for missing Bearer scheme")
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	tok, err := SignToken(Principal{UserID: 1, Role: RoleDriver}, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseToken(tok, "other-secret"); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestParseToken_Expired(t *testing.T) {
	tok, err := SignToken(Principal{UserID: 1, Role: RoleDriver}, testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseToken(tok, testSecret); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestParseToken_MissingClaims(t *testing.T) {
	tok, err := SignToken(Principal{}, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseToken(tok, testSecret); err == nil {
		t.Fatal("expected invalid claims error")
	}
}
