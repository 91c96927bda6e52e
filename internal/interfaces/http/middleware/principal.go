package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/escrowhub/backend/internal/infrastructure/auth"
	"github.com/escrowhub/backend/internal/infrastructure/logger"
	"github.com/escrowhub/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Principal context keys and headers
const (
	UserIDKey     = "user_id"
	ClaimsKey     = "jwt_claims"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	UserIDHeader  = "X-User-ID"
)

// TokenValidator validates bearer tokens
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// PrincipalConfig holds configuration for principal resolution
type PrincipalConfig struct {
	// Validator is required when JWTEnabled is set
	Validator TokenValidator
	// JWTEnabled resolves the principal from the bearer token subject.
	// When false the X-User-ID header is trusted, which is only safe behind a
	// gateway that authenticates callers.
	JWTEnabled bool
	Logger     *zap.Logger
}

// Principal resolves the acting user for every request in the group and
// stores it under UserIDKey. Requests without a principal get 401.
func Principal(cfg PrincipalConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			userID uuid.UUID
			err    error
		)
		if cfg.JWTEnabled {
			userID, err = principalFromToken(c, cfg.Validator)
		} else {
			userID, err = principalFromHeader(c)
		}
		if err != nil {
			abortUnauthorized(c, cfg.Logger, err)
			return
		}

		c.Set(UserIDKey, userID)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), userID.String()))
		c.Next()
	}
}

func principalFromToken(c *gin.Context, validator TokenValidator) (uuid.UUID, error) {
	header := c.GetHeader(AuthHeaderKey)
	if header == "" || !strings.HasPrefix(header, BearerPrefix) {
		return uuid.Nil, auth.ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	if token == "" {
		return uuid.Nil, auth.ErrInvalidToken
	}

	claims, err := validator.ValidateAccessToken(token)
	if err != nil {
		return uuid.Nil, err
	}
	c.Set(ClaimsKey, claims)
	return claims.UserID()
}

func principalFromHeader(c *gin.Context) (uuid.UUID, error) {
	raw := c.GetHeader(UserIDHeader)
	if raw == "" {
		return uuid.Nil, auth.ErrMissingSubject
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, auth.ErrInvalidClaims
	}
	return id, nil
}

func abortUnauthorized(c *gin.Context, log *zap.Logger, err error) {
	code, message := dto.ErrCodeUnauthorized, "Authentication required"
	if errors.Is(err, auth.ErrExpiredToken) {
		code, message = dto.ErrCodeTokenExpired, "Token has expired"
	}
	if log != nil {
		log.Warn("Principal resolution failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.Failure(code, message, c.GetString("request_id")))
}

// GetUserID returns the resolved principal, or uuid.Nil outside the group
func GetUserID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(UserIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// GetClaims returns the bearer token claims when JWT auth resolved the principal
func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(ClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// RequireOperator lets only the listed users through. It must run after Principal.
func RequireOperator(operators []uuid.UUID) gin.HandlerFunc {
	allowed := make(map[uuid.UUID]struct{}, len(operators))
	for _, id := range operators {
		allowed[id] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := allowed[GetUserID(c)]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden,
				dto.Failure(dto.ErrCodeForbidden, "Operator access required", c.GetString("request_id")))
			return
		}
		c.Next()
	}
}
