package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/mythsumon/job-sub002/internal/reqctx"
)

// TokenVerifier is the part of the Firebase auth client the middleware needs.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type AuthMiddleware struct {
	verifier   TokenVerifier
	authClient *auth.Client
}

func NewAuthMiddleware(ctx context.Context, projectID string) (*AuthMiddleware, error) {
	if projectID == "" {
		return nil, errors.New("FIREBASE_PROJECT_ID is not set")
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return &AuthMiddleware{verifier: client, authClient: client}, nil
}

// NewAuthMiddlewareWithVerifier builds the middleware around any verifier.
func NewAuthMiddlewareWithVerifier(v TokenVerifier) *AuthMiddleware {
	m := &AuthMiddleware{verifier: v}
	if c, ok := v.(*auth.Client); ok {
		m.authClient = c
	}
	return m
}

// RequireAuth accepts the ID token from the Authorization header only.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.verify(next, false)
}

// RequireStreamAuth also accepts the access_token query parameter, since
// browsers cannot set headers on a websocket handshake. Use it only on the
// event stream route.
func (m *AuthMiddleware) RequireStreamAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.verify(next, true)
}

func (m *AuthMiddleware) verify(next echo.HandlerFunc, allowQuery bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenStr := bearerToken(c.Request(), allowQuery)
		if tokenStr == "" {
			return c.JSON(http.StatusUnauthorized, map[string]map[string]string{
				"error": {"code": "unauthorized", "message": "missing bearer token"},
			})
		}
		token, err := m.verifier.VerifyIDToken(c.Request().Context(), tokenStr)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]map[string]string{
				"error": {"code": "invalid_token", "message": "invalid token"},
			})
		}
		c.Set("uid", token.UID)
		req := c.Request()
		c.SetRequest(req.WithContext(reqctx.WithUID(req.Context(), token.UID)))
		return next(c)
	}
}

// Client returns the Firebase client, or nil when built with a custom verifier.
func (m *AuthMiddleware) Client() *auth.Client {
	return m.authClient
}

func bearerToken(r *http.Request, allowQuery bool) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	if allowQuery {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
