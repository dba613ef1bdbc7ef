package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTokens(t *testing.T, secret string, leeway time.Duration, now time.Time) *HMACTokens {
	t.Helper()
	tokens, err := NewHMACTokens(secret, leeway)
	if err != nil {
		t.Fatalf("NewHMACTokens: %v", err)
	}
	tokens.WithClock(func() time.Time { return now })
	return tokens
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tokens := newTokens(t, "secret", time.Second, now)

	token, err := tokens.Issue("viewer-7", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.Subject != "viewer-7" || claims.Audience != Audience {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !claims.ExpiresAt.Equal(now.Add(time.Minute)) || !claims.IssuedAt.Equal(now) {
		t.Fatalf("unexpected timestamps %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tokens := newTokens(t, "secret", 0, now)
	token := makeToken(t, "secret", "viewer-7", "", now.Add(-time.Second))

	if _, err := tokens.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyRejectsInvalidSignatureAndAudience(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tokens := newTokens(t, "secret", time.Second, now)

	if _, err := tokens.Verify(makeToken(t, "other-secret", "viewer-7", "", now.Add(time.Minute))); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for bad signature, got %v", err)
	}
	if _, err := tokens.Verify(makeToken(t, "secret", "viewer-7", "legacy-service", now.Add(time.Minute))); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign audience, got %v", err)
	}
	if _, err := tokens.Verify("not.a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for malformed token, got %v", err)
	}
}

func TestAuthenticateReadsTokenSources(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tokens := newTokens(t, "secret", 0, now)
	token, err := tokens.Issue("viewer-9", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	query := httptest.NewRequest("GET", "/ws?auth_token="+token, nil)
	header := httptest.NewRequest("GET", "/ws", nil)
	header.Header.Set("X-Auth-Token", token)
	bearer := httptest.NewRequest("GET", "/ws", nil)
	bearer.Header.Set("Authorization", "Bearer "+token)

	for name, r := range map[string]*http.Request{"query": query, "header": header, "bearer": bearer} {
		subject, err := tokens.Authenticate(r)
		if err != nil || subject != "viewer-9" {
			t.Fatalf("%s: expected viewer-9, got %q (%v)", name, subject, err)
		}
	}
	if _, err := tokens.Authenticate(httptest.NewRequest("GET", "/ws", nil)); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestNewHMACTokensRequiresSecret(t *testing.T) {
	if _, err := NewHMACTokens("  ", time.Second); err == nil {
		t.Fatal("expected empty secret to fail")
	}
	tokens := newTokens(t, "secret", 0, time.Unix(0, 0))
	if _, err := tokens.Issue("", time.Minute); err == nil {
		t.Fatal("expected empty subject to fail")
	}
	if _, err := tokens.Issue("x", 0); err == nil {
		t.Fatal("expected non-positive ttl to fail")
	}
}

func makeToken(t *testing.T, secret, subject, audience string, expires time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": expires.Unix(),
		"iat": expires.Add(-time.Minute).Unix(),
	}
	if audience != "" {
		claims["aud"] = audience
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerifyRejectsForeignAlgorithms(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tokens := newTokens(t, "secret", 0, now)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "viewer-7",
		"exp": now.Add(time.Minute).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := tokens.Verify(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for alg=none, got %v", err)
	}
}

func TestVerifyAcceptsTokensWithoutAudience(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tokens := newTokens(t, "secret", 0, now)
	claims, err := tokens.Verify(makeToken(t, "secret", "viewer-3", "", now.Add(time.Minute)))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "viewer-3" || claims.Audience != "" || !claims.IssuedAt.Equal(now) {
		t.Fatalf("unexpected claims %+v", claims)
	}
}
