package serverutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"ai-factcheck-be/internal/pkg/logger"
	"ai-factcheck-be/pkg/apperror"
	"ai-factcheck-be/pkg/session"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandlerMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"validation", apperror.NewValidation("query", "is required"), 400, "validation: query: is required"},
		{"session not found", fmt.Errorf("%w: abc", session.ErrSessionNotFound), 404, ""},
		{"analysis not found", fmt.Errorf("analysis x: %w", apperror.ErrNotFound), 404, ""},
		{"in flight", session.ErrGenerationInFlight, 409, ""},
		{"no checkpoint", session.ErrNoCheckpoint, 409, ""},
		{"upstream", fmt.Errorf("%w: timeout", apperror.ErrUpstream), 502, ""},
		{"fiber error", fiber.NewError(fiber.StatusRequestEntityTooLarge, "too big"), 413, "too big"},
		{"unknown", errors.New("boom"), 500, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandlerMiddleware(logger.NewNopLogger())})
			app.Get("/", func(ctx *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, resp.StatusCode)

			var body BaseResponse[any]
			raw, _ := io.ReadAll(resp.Body)
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantCode, body.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, body.Message)
			}
		})
	}
}

func TestValidateRequest(t *testing.T) {
	type req struct {
		ReportType string  `validate:"required"`
		Url        string  `validate:"omitempty,url"`
		TopP       float64 `validate:"lte=1"`
	}

	assert.NoError(t, ValidateRequest(req{ReportType: "FULL_CHECK"}))

	err := ValidateRequest(req{})
	var ve *apperror.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "report_type", ve.Field)
	assert.Equal(t, "is required", ve.Message)

	err = ValidateRequest(req{ReportType: "x", Url: "not a url"})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "url", ve.Field)

	err = ValidateRequest(req{ReportType: "x", TopP: 2})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "top_p", ve.Field)
}

func TestJwtMiddleware(t *testing.T) {
	const secret = "test-secret"
	sign := func(claims jwt.MapClaims, key string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		require.NoError(t, err)
		return s
	}
	valid := sign(jwt.MapClaims{"user_id": "u-1", "exp": time.Now().Add(time.Hour).Unix()}, secret)
	subOnly := sign(jwt.MapClaims{"sub": "u-2"}, secret)
	expired := sign(jwt.MapClaims{"user_id": "u-1", "exp": time.Now().Add(-time.Hour).Unix()}, secret)
	wrongKey := sign(jwt.MapClaims{"user_id": "u-1"}, "other")

	tests := []struct {
		name     string
		secret   string
		header   string
		wantCode int
		wantUser string
	}{
		{"auth disabled", "", "", 200, ""},
		{"valid token", secret, "Bearer " + valid, 200, "u-1"},
		{"sub claim", secret, "Bearer " + subOnly, 200, "u-2"},
		{"missing header", secret, "", 401, ""},
		{"expired", secret, "Bearer " + expired, 401, ""},
		{"wrong key", secret, "Bearer " + wrongKey, 401, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(JwtMiddleware(tt.secret))
			app.Get("/", func(ctx *fiber.Ctx) error { return ctx.SendString(UserID(ctx)) })

			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			if tt.wantCode == 200 {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, tt.wantUser, string(body))
			}
		})
	}
}
