package middleware

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"campusride/internal/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	inFlightTTL       = 2 * time.Minute
)

// responseWriter wraps gin.ResponseWriter to capture the response.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware returns middleware that replays the stored response
// for a repeated Idempotency-Key. Keys are scoped to the authenticated caller.
// While the first request with a key is running, repeats get 409.
func IdempotencyMiddleware(cache redis.ResponseCacheInterface, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only apply to mutating methods.
		if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut && c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" || cache == nil {
			c.Next()
			return
		}

		scope := "anonymous"
		if p, ok := PrincipalFrom(c); ok {
			scope = p.ID
		}
		cacheKey := scope + ":" + c.Request.Method + ":" + c.FullPath() + ":" + key

		ctx := c.Request.Context()
		entry := log.WithField("idempotency_key", key)

		cached, found, err := cache.Get(ctx, cacheKey)
		if err != nil {
			// Cache unavailable - proceed without idempotency.
			entry.WithError(err).Warn("idempotency lookup failed")
			c.Next()
			return
		}
		if found && cached == nil {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": gin.H{"kind": "state_conflict", "message": "a request with this idempotency key is in progress"},
			})
			return
		}
		if cached != nil {
			for k, v := range cached.Headers {
				for _, val := range v {
					c.Header(k, val)
				}
			}
			c.Header("Idempotent-Replayed", "true")
			c.Data(cached.StatusCode, "application/json", cached.Body)
			c.Abort()
			return
		}

		reserved, err := cache.Reserve(ctx, cacheKey, inFlightTTL)
		if err != nil {
			entry.WithError(err).Warn("idempotency reserve failed")
			c.Next()
			return
		}
		if !reserved {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": gin.H{"kind": "state_conflict", "message": "a request with this idempotency key is in progress"},
			})
			return
		}

		// Wrap response writer to capture response.
		w := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = w

		c.Next()

		// Server errors are not replayed so the client can retry.
		if c.Writer.Status() >= http.StatusInternalServerError {
			if err := cache.Forget(ctx, cacheKey); err != nil {
				entry.WithError(err).Warn("idempotency release failed")
			}
			return
		}

		response := redis.CachedResponse{
			StatusCode: c.Writer.Status(),
			Body:       w.body.Bytes(),
			Headers:    extractResponseHeaders(c),
		}
		if err := cache.Set(ctx, cacheKey, &response); err != nil {
			entry.WithError(err).Warn("idempotency store failed")
		}
	}
}

// extractResponseHeaders extracts headers to cache.
func extractResponseHeaders(c *gin.Context) http.Header {
	headers := make(http.Header)
	// Only cache Content-Type header.
	if ct := c.Writer.Header().Get("Content-Type"); ct != "" {
		headers.Set("Content-Type", ct)
	}
	return headers
}
