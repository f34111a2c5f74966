package echoapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenFromQuery(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		header   string
		wantAuth string
		wantURI  string
	}{
		{"no token", "/runs/1/stream?since=3", "", "", "/runs/1/stream?since=3"},
		{"token", "/runs/1/stream?token=s3cr3t", "", "Bearer s3cr3t", "/runs/1/stream"},
		{"token & other params", "/runs/1/stream?token=s3cr3t&since=3", "", "Bearer s3cr3t", "/runs/1/stream?since=3"},
		{"header wins", "/runs/1/stream?token=s3cr3t", "Bearer h34d3r", "Bearer h34d3r", "/runs/1/stream"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var logs bytes.Buffer
			var auth string
			e := echo.New()
			e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{Format: "${uri}\n", Output: &logs}))
			e.GET("/runs/:id/stream", func(ctx echo.Context) error {
				auth = ctx.Request().Header.Get(echo.HeaderAuthorization)
				return ctx.NoContent(http.StatusOK)
			}, tokenFromQuery)

			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tc.wantAuth, auth)
			assert.Equal(t, tc.wantURI+"\n", logs.String())
			assert.NotContains(t, logs.String(), "s3cr3t")
		})
	}
}
