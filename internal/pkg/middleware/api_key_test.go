package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/usercontext"
)

type stubKeys struct {
	byHash  map[string]*models.User
	plan    string
	err     error
	touched int
	gotCtx  context.Context
}

func (s *stubKeys) GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, *models.UserSettings, error) {
	s.gotCtx = ctx
	if s.err != nil {
		return nil, nil, s.err
	}
	u, ok := s.byHash[hash]
	if !ok {
		return nil, nil, gorm.ErrRecordNotFound
	}
	return u, &models.UserSettings{ID: 1, UserID: u.ID, Plan: s.plan}, nil
}

func (s *stubKeys) TouchAPIKey(context.Context, uint, time.Time) error {
	s.touched++
	return nil
}

func newAuthApp(store APIKeyStore) *fiber.App {
	app := fiber.New()
	app.Use(APIKeyAuthMiddleware(store))
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.JSON(usercontext.GetUserContext(c))
	})
	app.Get("/admin", RequireAdmin, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	store := &stubKeys{
		plan: "premium",
		byHash: map[string]*models.User{
			models.HashAPIKey("rfx_active"):   {ID: 1, Name: "ann", Status: models.STATUS_ACTIVE, Role: models.ROLE_USER},
			models.HashAPIKey("rfx_disabled"): {ID: 2, Name: "bob", Status: models.STATUS_DISABLED},
			models.HashAPIKey("rfx_admin"):    {ID: 3, Name: "root", Status: models.STATUS_ACTIVE, Role: models.ROLE_ADMIN},
		},
	}
	app := newAuthApp(store)

	tests := []struct {
		name   string
		path   string
		header string
		value  string
		want   int
	}{
		{"missing", "/me", "", "", fiber.StatusUnauthorized},
		{"unknown", "/me", "X-API-Key", "rfx_nope", fiber.StatusUnauthorized},
		{"disabled", "/me", "X-API-Key", "rfx_disabled", fiber.StatusForbidden},
		{"header", "/me", "X-API-Key", "rfx_active", fiber.StatusOK},
		{"bearer", "/me", "Authorization", "Bearer rfx_active", fiber.StatusOK},
		{"non admin", "/admin", "X-API-Key", "rfx_active", fiber.StatusForbidden},
		{"admin", "/admin", "X-API-Key", "rfx_admin", fiber.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
	assert.Positive(t, store.touched)
}

func TestAPIKeyAuthMiddlewareLookupFailure(t *testing.T) {
	app := newAuthApp(&stubKeys{err: errors.New("db down")})
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("X-API-Key", "rfx_active")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

type requestTag struct{}

func TestAPIKeyAuthMiddlewarePassesRequestContext(t *testing.T) {
	store := &stubKeys{byHash: map[string]*models.User{
		models.HashAPIKey("rfx_active"): {ID: 1, Status: models.STATUS_ACTIVE},
	}}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(context.WithValue(c.UserContext(), requestTag{}, "req-1"))
		return c.Next()
	})
	app.Use(APIKeyAuthMiddleware(store))
	app.Get("/me", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("X-API-Key", "rfx_active")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	require.NotNil(t, store.gotCtx)
	assert.Equal(t, "req-1", store.gotCtx.Value(requestTag{}))
}
