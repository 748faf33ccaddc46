package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(t *testing.T, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	e.Use(Middleware())
	e.GET("/test", handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_PassesThroughSuccess(t *testing.T) {
	rec := request(t, func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMiddleware_ConvertsStructuredError(t *testing.T) {
	rec := request(t, func(c echo.Context) error {
		return ValidationError("message must not be empty")
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	inner, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "validation", inner["type"])
	assert.Equal(t, "message must not be empty", inner["message"])
}

func TestMiddleware_PlainErrorBecomesInternal(t *testing.T) {
	rec := request(t, func(c echo.Context) error {
		return assert.AnError
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	inner, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "internal", inner["type"])
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error(), "internal details stay out of responses")
}

func TestMiddleware_EchoHTTPErrorPassesThrough(t *testing.T) {
	rec := request(t, func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "teapot")
	})

	assert.Equal(t, http.StatusTeapot, rec.Code)
}
