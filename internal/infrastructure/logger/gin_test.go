package logger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func findEntry(logs []observer.LoggedEntry, msg string) *observer.LoggedEntry {
	for i := range logs {
		if logs[i].Message == msg {
			return &logs[i]
		}
	}
	return nil
}

func withRequestID(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("request_id", id)
		c.Next()
	}
}

func TestAccessLog(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		status int
		msg    string
		level  zapcore.Level
	}{
		{name: "success", status: http.StatusOK, msg: "Request served", level: zapcore.InfoLevel},
		{name: "client error", status: http.StatusUnprocessableEntity, msg: "Request rejected", level: zapcore.WarnLevel},
		{name: "server error", status: http.StatusBadGateway, msg: "Request failed", level: zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, recorded := observer.New(zapcore.InfoLevel)
			router := gin.New()
			router.Use(withRequestID("req-1"), AccessLog(zap.New(core)))
			router.GET("/escrow-accounts/:id", func(c *gin.Context) {
				c.Status(tt.status)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/escrow-accounts/acc-1?verbose=1", nil))

			entry := findEntry(recorded.All(), tt.msg)
			require.NotNil(t, entry)
			assert.Equal(t, tt.level, entry.Level)
			assert.Equal(t, "http", entry.LoggerName)
			fields := fieldMap(*entry)
			assert.Equal(t, "verbose=1", fields["query"])
			assert.Equal(t, "/escrow-accounts/:id", fields["route"])
			assert.Equal(t, "/escrow-accounts/acc-1", fields["path"])
			assert.Equal(t, "req-1", fields["request_id"])
		})
	}
}

func TestAccessLog_RequestScopedLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(withRequestID("req-123"), AccessLog(zap.New(core)))
	router.POST("/payouts", func(c *gin.Context) {
		assert.Equal(t, "req-123", RequestID(c.Request.Context()))
		c.Request = c.Request.WithContext(WithIdempotencyKey(c.Request.Context(), "payout-7"))
		L(c.Request.Context()).Info("inside handler")
		c.Status(http.StatusAccepted)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/payouts", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
	entry := findEntry(recorded.All(), "inside handler")
	require.NotNil(t, entry)
	assert.Equal(t, "req-123", fieldMap(*entry)["request_id"])

	access := findEntry(recorded.All(), "Request served")
	require.NotNil(t, access)
	assert.Equal(t, "payout-7", fieldMap(*access)["idempotency_key"])
}

func TestAccessLog_SkipPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.InfoLevel)

	healthy := true
	router := gin.New()
	router.Use(AccessLog(zap.New(core), WithSkipPaths("/health")))
	router.GET("/health", func(c *gin.Context) {
		if healthy {
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusServiceUnavailable)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Zero(t, recorded.Len())

	healthy = false
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotNil(t, findEntry(recorded.All(), "Request failed"))
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.ErrorLevel)

	router := gin.New()
	router.Use(withRequestID("req-9"), Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) {
		panic("ledger corrupted")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "InternalError", errBody["code"])
	assert.Equal(t, "req-9", errBody["request_id"])

	entry := findEntry(recorded.All(), "Panic recovered")
	require.NotNil(t, entry)
	assert.Equal(t, "ledger corrupted", fieldMap(*entry)["panic"])
}
