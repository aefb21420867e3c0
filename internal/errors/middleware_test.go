package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	e.Use(Middleware())
	e.GET("/test", handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_StructuredErrorBecomesJSON(t *testing.T) {
	rec := doRequest(t, func(c echo.Context) error {
		return ValidationError("userId is required")
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "userId is required", resp.Error)
	assert.Equal(t, TypeValidation, resp.Type)
}

func TestMiddleware_RateLimitedStatus(t *testing.T) {
	rec := doRequest(t, func(c echo.Context) error {
		return RateLimitedError("connection limit reached")
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMiddleware_PlainErrorBecomesInternal(t *testing.T) {
	rec := doRequest(t, func(c echo.Context) error {
		return stderrors.New("unexpected")
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, TypeInternal, resp.Type)
	// Raw cause text must not leak to clients.
	assert.NotContains(t, resp.Error, "unexpected")
}

func TestMiddleware_EchoHTTPErrorPassesThrough(t *testing.T) {
	rec := doRequest(t, func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestMiddleware_SuccessUntouched(t *testing.T) {
	rec := doRequest(t, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}
