package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/stocksync/internal/infrastructure/logger"
	"github.com/erp/stocksync/internal/interfaces/http/dto"
)

const (
	// CronKeyQueryParam is the query parameter carrying the cron key
	CronKeyQueryParam = "secure_key"
	// CronKeyHeader is the header alternative to CronKeyQueryParam
	CronKeyHeader = "X-Cron-Key"

	invalidKeyMessage = "Invalid security key"
)

// KeyVerifier checks a presented cron key
type KeyVerifier interface {
	VerifyCronKey(ctx context.Context, candidate string) (bool, error)
}

// presentedKey returns the query key, falling back to the header
func presentedKey(c *gin.Context) string {
	if key := c.Query(CronKeyQueryParam); key != "" {
		return key
	}
	return c.GetHeader(CronKeyHeader)
}

// CronKeyAuth rejects JSON API requests without the cron key
func CronKeyAuth(verifier KeyVerifier, log *zap.Logger) gin.HandlerFunc {
	return cronKeyAuth(verifier, log, func(c *gin.Context, status int, code, message string) {
		c.AbortWithStatusJSON(status, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
	})
}

// CronKeyAuthPlain rejects trigger requests without the cron key, answering in plain text
func CronKeyAuthPlain(verifier KeyVerifier, log *zap.Logger) gin.HandlerFunc {
	return cronKeyAuth(verifier, log, func(c *gin.Context, status int, _, message string) {
		c.Abort()
		c.String(status, message)
	})
}

func cronKeyAuth(verifier KeyVerifier, log *zap.Logger, reject func(c *gin.Context, status int, code, message string)) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		ok, err := verifier.VerifyCronKey(c.Request.Context(), presentedKey(c))
		if err != nil {
			logger.WithLogger(c.Request.Context(), log).Error("Cron key verification failed", zap.Error(err))
			reject(c, http.StatusInternalServerError, dto.ErrCodeInternal, "Internal server error")
			return
		}
		if !ok {
			logger.WithLogger(c.Request.Context(), log).Warn("Rejected request with invalid security key",
				zap.String("client_ip", c.ClientIP()))
			reject(c, http.StatusForbidden, dto.ErrCodeForbidden, invalidKeyMessage)
			return
		}
		c.Next()
	}
}
