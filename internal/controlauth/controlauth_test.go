package controlauth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueTokenAndVerify_RoundTrip(t *testing.T) {
	g := New("test-secret")

	token, err := g.IssueToken("alice", "supervisor", time.Hour, []string{"100", "101"}, []string{"sales"})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	claims, err := g.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("Username = %q, want alice", claims.Username)
	}
	if claims.Role != "supervisor" {
		t.Errorf("Role = %q, want supervisor", claims.Role)
	}
}

func TestVerify_RejectsTokenFromDifferentSecret(t *testing.T) {
	issuer := New("secret-a")
	verifier := New("secret-b")

	token, err := issuer.IssueToken("bob", "agent", time.Hour, nil, nil)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	if _, err := verifier.Verify(token); err == nil {
		t.Fatal("Verify() with wrong secret succeeded, want error")
	}
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	g := New("test-secret")
	token, err := g.IssueToken("carol", "agent", -time.Minute, nil, nil)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	if _, err := g.Verify(token); err == nil {
		t.Fatal("Verify() of an expired token succeeded, want error")
	}
}

func TestClaims_ScopeEmptyMeansAll(t *testing.T) {
	c := &Claims{Username: "dave", Role: "operator"}
	scope := c.Scope()

	if scope.AllowExtensions != nil {
		t.Errorf("AllowExtensions = %v, want nil (unrestricted)", scope.AllowExtensions)
	}
	if scope.AllowQueues != nil {
		t.Errorf("AllowQueues = %v, want nil (unrestricted)", scope.AllowQueues)
	}
}

func TestClaims_ScopeRestrictsToAllowedSets(t *testing.T) {
	c := &Claims{
		Username:          "erin",
		Role:              "agent",
		AllowedExtensions: []string{"100"},
		AllowedQueues:     []string{"sales"},
	}
	scope := c.Scope()

	if _, ok := scope.AllowExtensions["100"]; !ok {
		t.Error("AllowExtensions missing 100")
	}
	if _, ok := scope.AllowQueues["sales"]; !ok {
		t.Error("AllowQueues missing sales")
	}
}

func TestHashPassword_VerifyPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if err := VerifyPassword(hash, "correct horse battery staple"); err != nil {
		t.Errorf("VerifyPassword() with correct password error = %v, want nil", err)
	}
	if err := VerifyPassword(hash, "wrong password"); err == nil {
		t.Error("VerifyPassword() with wrong password succeeded, want error")
	}
}

func TestMiddleware_RejectsMissingAuthorizationHeader(t *testing.T) {
	g := New("test-secret")
	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached without a valid token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hangup", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestMiddleware_AcceptsValidBearerTokenAndExposesClaims(t *testing.T) {
	g := New("test-secret")
	token, err := g.IssueToken("frank", "supervisor", time.Hour, nil, nil)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	var seenUsername string
	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := FromContext(r.Context())
		if err != nil {
			t.Fatalf("FromContext() error = %v", err)
		}
		seenUsername = claims.Username
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hangup", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if seenUsername != "frank" {
		t.Errorf("claims.Username = %q, want frank", seenUsername)
	}
}
