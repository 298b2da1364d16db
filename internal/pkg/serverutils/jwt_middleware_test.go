package serverutils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuardedApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/admin", AdminJwtMiddleware(secret), func(ctx *fiber.Ctx) error {
		return ctx.SendString(ctx.Locals("admin_subject").(string))
	})
	return app
}

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAdminJwtMiddleware(t *testing.T) {
	const secret = "s3cret"
	valid := jwt.MapClaims{"sub": "ops", "role": "admin", "exp": time.Now().Add(time.Hour).Unix()}

	tests := []struct {
		name       string
		secret     string
		header     string
		wantStatus int
	}{
		{"routes disabled without secret", "", "Bearer " + sign(t, secret, valid), http.StatusUnauthorized},
		{"missing header", secret, "", http.StatusUnauthorized},
		{"wrong scheme", secret, "Basic abc", http.StatusUnauthorized},
		{"wrong key", secret, "Bearer " + sign(t, "other", valid), http.StatusUnauthorized},
		{"expired", secret, "Bearer " + sign(t, secret, jwt.MapClaims{"role": "admin", "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized},
		{"non admin role", secret, "Bearer " + sign(t, secret, jwt.MapClaims{"sub": "u", "role": "user"}), http.StatusForbidden},
		{"admin", secret, "Bearer " + sign(t, secret, valid), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := newGuardedApp(tt.secret).Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/validation", func(ctx *fiber.Ctx) error {
		return ValidateRequest(struct {
			Name string `validate:"required"`
		}{})
	})
	app.Get("/fiber", func(ctx *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "short and stout")
	})
	app.Get("/panic", func(ctx *fiber.Ctx) error {
		panic("boom")
	})

	for path, want := range map[string]int{
		"/validation": http.StatusBadRequest,
		"/fiber":      http.StatusTeapot,
		"/panic":      http.StatusInternalServerError,
	} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, path)
	}
}
