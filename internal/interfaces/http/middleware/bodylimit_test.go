package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/escrowhub/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readBody(c *gin.Context) {
	if _, err := io.ReadAll(c.Request.Body); err != nil {
		c.String(http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	c.String(http.StatusOK, "ok")
}

func bodyLimitRouter(limit int64, opts ...BodyLimitOption) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), BodyLimit(limit, opts...))
	router.POST("/escrow/deposits", readBody)
	router.POST("/webhooks/stripe", readBody)
	return router
}

func TestBodyLimit(t *testing.T) {
	t.Run("allows body within limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/escrow/deposits", strings.NewReader(`{"amount":"10"}`))
		w := httptest.NewRecorder()
		bodyLimitRouter(1024).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rejects declared length over the limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/escrow/deposits", strings.NewReader(strings.Repeat("x", 200)))
		req.Header.Set(RequestIDHeader, "req-big")
		w := httptest.NewRecorder()
		bodyLimitRouter(100).ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeRequestTooLarge, resp.Error.Code)
		assert.Equal(t, "req-big", resp.Error.RequestID)
	})

	t.Run("cuts off streamed body on read", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/escrow/deposits", strings.NewReader(strings.Repeat("x", 100)))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		bodyLimitRouter(50).ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, "body too large", w.Body.String())
	})

	t.Run("non-positive limit disables the check", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/escrow/deposits", strings.NewReader(strings.Repeat("x", 4096)))
		w := httptest.NewRecorder()
		bodyLimitRouter(0).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("route override raises the cap", func(t *testing.T) {
		router := bodyLimitRouter(50, WithRouteLimit("/webhooks/stripe", 1024))
		body := strings.Repeat("x", 500)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(body)))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/escrow/deposits", strings.NewReader(body)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}
