package middleware

import (
	"net/http"

	"github.com/escrowhub/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// BodyLimitOption configures BodyLimit
type BodyLimitOption func(map[string]int64)

// WithRouteLimit sets a different cap for one route pattern, as returned by
// gin's FullPath. A non-positive n lifts the cap for that route.
func WithRouteLimit(route string, n int64) BodyLimitOption {
	return func(routes map[string]int64) { routes[route] = n }
}

// BodyLimit caps request bodies at maxBytes. A declared Content-Length over
// the cap is rejected before the handler runs. Streamed bodies fail on read
// once they pass it.
func BodyLimit(maxBytes int64, opts ...BodyLimitOption) gin.HandlerFunc {
	routes := make(map[string]int64)
	for _, opt := range opts {
		opt(routes)
	}

	return func(c *gin.Context) {
		limit := maxBytes
		if n, ok := routes[c.FullPath()]; ok {
			limit = n
		}
		if limit <= 0 || c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}

		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.Failure(
				dto.ErrCodeRequestTooLarge,
				"Request body exceeds maximum allowed size",
				c.GetString("request_id"),
			))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
