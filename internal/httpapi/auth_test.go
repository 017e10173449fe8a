package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"horse.fit/sift/internal/auth"
)

func authTestContext(t *testing.T, header string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error {
	return success(c, "ok")
}

func TestRequireAuthDisabledWithoutHash(t *testing.T) {
	t.Parallel()

	server := NewServer(nil, nil, nil, zerolog.Nop(), Options{})
	handler := server.requireAuth()(okHandler)

	c, rec := authTestContext(t, "")
	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when auth is disabled, got %d", rec.Code)
	}
}

func TestRequireAuthChecksBearerToken(t *testing.T) {
	t.Parallel()

	hash, err := auth.HashToken("super-secret")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}

	server := NewServer(nil, nil, nil, zerolog.Nop(), Options{APITokenHash: hash})
	handler := server.requireAuth()(okHandler)

	c, rec := authTestContext(t, "")
	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing token, got %d", rec.Code)
	}

	c, rec = authTestContext(t, "Bearer wrong-token")
	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", rec.Code)
	}

	c, rec = authTestContext(t, "Bearer super-secret")
	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid token, got %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		token  string
		found  bool
	}{
		{"Bearer abc123", "abc123", true},
		{"bearer abc123", "abc123", true},
		{"Bearer   spaced   ", "spaced", true},
		{"Token abc123", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		c, _ := authTestContext(t, tc.header)
		token, found := bearerToken(c)
		if found != tc.found || token != tc.token {
			t.Fatalf("header %q: got (%q, %t), want (%q, %t)", tc.header, token, found, tc.token, tc.found)
		}
	}
}
