package auth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/artpar/recordbase/adapters/auth"
	"github.com/artpar/recordbase/adapters/clock"
)

const secret = "0123456789abcdef0123456789abcdef"

func newService(t *testing.T, c *clock.Fake) *auth.TokenService {
	t.Helper()
	svc, err := auth.NewTokenService(secret, "recordbase", time.Hour, c)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

func TestTokenService_IssueVerify(t *testing.T) {
	c := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	svc := newService(t, c)

	tok, exp, err := svc.Issue("user-42", "Ada")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if want := c.Now().Add(time.Hour); !exp.Equal(want) {
		t.Errorf("expiry = %v, want %v", exp, want)
	}

	claims, err := svc.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Actor() != "user-42" || claims.Name != "Ada" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenService_Expired(t *testing.T) {
	c := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	svc := newService(t, c)

	tok, _, _ := svc.Issue("user-42", "")
	c.Advance(2 * time.Hour)

	if _, err := svc.Verify(tok); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("Verify expired token: err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenService_Rejects(t *testing.T) {
	c := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	svc := newService(t, c)
	tok, _, _ := svc.Issue("user-42", "")

	other, _ := auth.NewTokenService(strings.Repeat("z", 32), "recordbase", time.Hour, c)
	foreign, _, _ := other.Issue("user-42", "")

	otherIssuer, _ := auth.NewTokenService(secret, "someone-else", time.Hour, c)
	wrongIss, _, _ := otherIssuer.Issue("user-42", "")

	tests := []struct {
		name string
		tok  string
	}{
		{"garbage", "not-a-jwt"},
		{"tampered", tok + "x"},
		{"different secret", foreign},
		{"different issuer", wrongIss},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Verify(tt.tok); !errors.Is(err, auth.ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestNewTokenService_ShortSecret(t *testing.T) {
	if _, err := auth.NewTokenService("short", "", 0, clock.Real{}); err == nil {
		t.Error("expected error for short secret")
	}
}

func TestTokenService_IssueRequiresActor(t *testing.T) {
	svc := newService(t, clock.NewFake(time.Now()))
	if _, _, err := svc.Issue("", "x"); err == nil {
		t.Error("expected error for empty actor")
	}
}
