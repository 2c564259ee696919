package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/mythsumon/job-sub002/internal/reqctx"
	"github.com/stretchr/testify/assert"
)

type stubVerifier map[string]string

func (s stubVerifier) VerifyIDToken(_ context.Context, tok string) (*auth.Token, error) {
	uid, ok := s[tok]
	if !ok {
		return nil, errors.New("bad token")
	}
	return &auth.Token{UID: uid}, nil
}

func TestRequireAuth(t *testing.T) {
	m := NewAuthMiddlewareWithVerifier(stubVerifier{"good": "emp-1"})
	assert.Nil(t, m.Client())
	e := echo.New()
	var seenUID, seenCtxUID string
	h := m.RequireAuth(func(c echo.Context) error {
		seenUID, _ = c.Get("uid").(string)
		seenCtxUID = reqctx.UID(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		target string
		header string
		want   int
		uid    string
	}{
		{"missing", "/", "", http.StatusUnauthorized, ""},
		{"invalid", "/", "Bearer nope", http.StatusUnauthorized, ""},
		{"header", "/", "Bearer good", http.StatusNoContent, "emp-1"},
		{"query param ignored", "/?access_token=good", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seenUID, seenCtxUID = "", ""
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			_ = h(e.NewContext(req, rec))
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.uid, seenUID)
			assert.Equal(t, tt.uid, seenCtxUID)
		})
	}
}

func TestRequireStreamAuth_AcceptsQueryToken(t *testing.T) {
	m := NewAuthMiddlewareWithVerifier(stubVerifier{"good": "emp-1"})
	e := echo.New()
	var seenUID string
	h := m.RequireStreamAuth(func(c echo.Context) error {
		seenUID, _ = c.Get("uid").(string)
		return c.NoContent(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"query param", "/?access_token=good", "", http.StatusNoContent},
		{"header", "/", "Bearer good", http.StatusNoContent},
		{"bad query token", "/?access_token=nope", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seenUID = ""
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			_ = h(e.NewContext(req, rec))
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				assert.Equal(t, "emp-1", seenUID)
			}
		})
	}
}
