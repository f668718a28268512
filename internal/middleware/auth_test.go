package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/middleware"
)

const testSecret = "grader-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func authApp(secret string) *fiber.App {
	app := fiber.New()
	app.Use(middleware.Authenticate(secret))
	app.Get("/me", middleware.RequireUser(func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": c.Locals("user_id"), "role": c.Locals("user_role")})
	}))
	app.Post("/problems", middleware.RequireRole(middleware.AuthRoleAdmin, middleware.AuthRoleTeacher), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	return app
}

func send(t *testing.T, app *fiber.App, method, path, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestAuthenticateAcceptsValidToken(t *testing.T) {
	app := authApp(testSecret)
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub":  "42",
		"role": "Student",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	resp := send(t, app, http.MethodGet, "/me", token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = send(t, app, http.MethodPost, "/problems", token)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAuthenticateAllowsTeacherToCreateProblems(t *testing.T) {
	app := authApp(testSecret)
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": float64(7), "role": "teacher"})

	resp := send(t, app, http.MethodPost, "/problems", token)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	app := authApp(testSecret)

	cases := map[string]string{
		"missing":      "",
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "1"}),
		"wrong alg":    signToken(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"sub": "1"}),
		"expired":      signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "1", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no subject":   signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"role": "admin"}),
		"bad subject":  signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "alice"}),
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			resp := send(t, app, http.MethodGet, "/me", token)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestAuthenticateDisabledWithoutSecret(t *testing.T) {
	app := authApp("")

	resp := send(t, app, http.MethodGet, "/me", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = send(t, app, http.MethodPost, "/problems", "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestRequireUserWithoutAuthentication(t *testing.T) {
	app := fiber.New()
	app.Get("/", middleware.RequireUser(func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }))

	resp := send(t, app, http.MethodGet, "/", "")
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestCorrelationIDPropagates(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.CorrelationIDFromContext(c.UserContext()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.CorrelationHeader, "abc-123")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "abc-123", resp.Header.Get(middleware.CorrelationHeader))

	resp = send(t, app, http.MethodGet, "/", "")
	require.NotEmpty(t, resp.Header.Get(middleware.CorrelationHeader))
}

func TestRateLimitRejectsBurst(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.RateLimit("evaluate", 2, time.Minute))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	require.Equal(t, fiber.StatusOK, send(t, app, http.MethodGet, "/", "").StatusCode)
	require.Equal(t, fiber.StatusOK, send(t, app, http.MethodGet, "/", "").StatusCode)
	require.Equal(t, fiber.StatusTooManyRequests, send(t, app, http.MethodGet, "/", "").StatusCode)
}

func TestRequireRoleReportsRequiredRoles(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_role", " Student ")
		return c.Next()
	})
	app.Get("/", middleware.RequireRole("Admin", "teacher", "admin", ""), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp := send(t, app, http.MethodGet, "/", "")
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	var payload struct {
		Message string `json:"message"`
		Details struct {
			RequiredRoles []string `json:"required_roles"`
		} `json:"details"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "insufficient permissions", payload.Message)
	require.Equal(t, []string{"admin", "teacher"}, payload.Details.RequiredRoles)
}
