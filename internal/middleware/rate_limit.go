package middleware

import (
	"net/http"
	"time"

	"chat_session/internal/repository"
	"chat_session/pkg/logger"

	"github.com/gin-gonic/gin"
)

type RateLimitMiddleware struct {
	rateLimitRepo repository.RateLimitRepository
	log           logger.Logger
}

func NewRateLimitMiddleware(rateLimitRepo repository.RateLimitRepository, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitRepo: rateLimitRepo,
		log:           log,
	}
}

func (m *RateLimitMiddleware) Limit(limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := m.rateLimitRepo.Allow(c.Request.Context(), "http:"+c.ClientIP(), limit, window)
		if err != nil {
			m.log.Error("Rate limit check failed", "error", err)
			c.Next()
			return
		}

		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}

		c.Next()
	}
}
