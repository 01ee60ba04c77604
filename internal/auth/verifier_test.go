package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"brokerdesk/internal/config"
)

const testSigningKey = "test-signing-key-for-unit-tests"

func signedJWT(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSigningKey))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAuthenticateRequestJWT(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.Issuer = "https://auth.brokerdesk.app"
	cfg.Auth.Audience = "brokerdesk-api"
	cfg.Auth.TokenSigningKey = testSigningKey

	svc := &Service{
		Config: cfg,
		Now:    func() time.Time { return time.Unix(1000, 0) },
	}

	token := signedJWT(t, jwt.MapClaims{
		"iss":        "https://auth.brokerdesk.app",
		"aud":        "brokerdesk-api",
		"exp":        2000,
		"nbf":        500,
		"account_id": "acct-1",
		"sub":        "user-1",
		"jti":        "token-1",
	})

	req, err := http.NewRequest(http.MethodGet, "/v1/entitlements/current", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	principal, err := svc.AuthenticateRequest(req)
	if err != nil {
		t.Fatalf("authenticate request: %v", err)
	}
	if principal.AccountID != "acct-1" || principal.ActorID != "user-1" || principal.TokenID != "token-1" {
		t.Fatalf("unexpected principal identity: %+v", principal)
	}
	if principal.AuthMethod != "jwt" {
		t.Fatalf("expected jwt auth method, got %s", principal.AuthMethod)
	}
	if principal.Admin {
		t.Fatalf("jwt principal must not be admin")
	}
}

func TestAuthenticateRequestJWTRequiresAccountID(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.TokenSigningKey = testSigningKey
	svc := &Service{
		Config: cfg,
		Now:    func() time.Time { return time.Unix(1000, 0) },
	}

	token := signedJWT(t, jwt.MapClaims{
		"exp": 2000,
		"sub": "user-1",
	})
	req, err := http.NewRequest(http.MethodGet, "/v1/entitlements/current", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	if _, err := svc.AuthenticateRequest(req); err == nil {
		t.Fatalf("expected missing account_id to fail authentication")
	}
}

func TestAuthenticateRequestExpiredJWT(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.TokenSigningKey = testSigningKey
	svc := &Service{
		Config: cfg,
		Now:    func() time.Time { return time.Unix(3000, 0) },
	}

	token := signedJWT(t, jwt.MapClaims{
		"exp":        2000,
		"account_id": "acct-1",
	})
	req, err := http.NewRequest(http.MethodGet, "/v1/clients", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	if _, err := svc.AuthenticateRequest(req); err == nil {
		t.Fatalf("expected expired token to fail authentication")
	}
}

func TestAuthenticateRequestAdminKey(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.AdminAPIKey = "bootstrap-admin"
	svc := NewService(cfg)

	req, err := http.NewRequest(http.MethodPost, "/v1/accounts/signup", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("X-API-Key", "bootstrap-admin")

	principal, err := svc.AuthenticateRequest(req)
	if err != nil {
		t.Fatalf("authenticate request: %v", err)
	}
	if !principal.Admin || principal.AuthMethod != "admin_api_key" {
		t.Fatalf("expected admin principal, got %+v", principal)
	}

	req.Header.Set("X-API-Key", "wrong")
	if _, err := svc.AuthenticateRequest(req); err == nil {
		t.Fatalf("expected wrong admin key to fail")
	}
}

func TestCurrentAccountID(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	if got := CurrentAccountID(req.Context()); got != "" {
		t.Fatalf("expected empty account id without principal, got %q", got)
	}
	ctx := WithPrincipal(req.Context(), Principal{AccountID: "acct-9"})
	if got := CurrentAccountID(ctx); got != "acct-9" {
		t.Fatalf("expected bound account id, got %q", got)
	}
}
