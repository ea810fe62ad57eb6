package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func guarded() http.Handler {
	return IsAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func call(t *testing.T, token string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, "/settings", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	guarded().ServeHTTP(rec, req)
	return rec.Code
}

func TestIsAdminAcceptsIssuedToken(t *testing.T) {
	t.Setenv(secretEnv, "s3cret")

	token, err := GenerateJWT("operator", time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT returned %v", err)
	}
	if code := call(t, token); code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", code)
	}
}

func TestIsAdminRejects(t *testing.T) {
	t.Setenv(secretEnv, "s3cret")

	expired, err := GenerateJWT("operator", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT returned %v", err)
	}

	viewer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "viewer",
		"iss":  issuer,
		"exp":  time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("sign viewer token: %v", err)
	}

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": RoleAdmin,
		"iss":  issuer,
		"exp":  time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("other"))
	if err != nil {
		t.Fatalf("sign forged token: %v", err)
	}

	cases := map[string]struct {
		token string
		want  int
	}{
		"missing": {"", http.StatusUnauthorized},
		"garbage": {"not-a-jwt", http.StatusUnauthorized},
		"expired": {expired, http.StatusUnauthorized},
		"forged":  {forged, http.StatusUnauthorized},
		"viewer":  {viewer, http.StatusForbidden},
	}
	for name, tc := range cases {
		if code := call(t, tc.token); code != tc.want {
			t.Fatalf("%s: status = %d, want %d", name, code, tc.want)
		}
	}
}

func TestAdminClosedWithoutSecret(t *testing.T) {
	t.Setenv(secretEnv, "s3cret")
	token, err := GenerateJWT("operator", time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT returned %v", err)
	}

	t.Setenv(secretEnv, "")
	if code := call(t, token); code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", code)
	}
	if _, err := GenerateJWT("operator", time.Minute); err == nil {
		t.Fatal("GenerateJWT succeeded without a secret")
	}
}
