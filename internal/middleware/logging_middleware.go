package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nexe/nexe-backend/pkg/logger"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"
	loggerKey       = "logger"
)

// LoggingMiddleware logs every request through the global logger. Health
// checks are logged at debug to keep load balancer traffic out of info.
func LoggingMiddleware() gin.HandlerFunc {
	return RequestLogger(nil, "/health")
}

// RequestLogger tags each request with an id and a request-scoped logger, then
// logs one completion line carrying the cart owner and committed cart version.
// A nil base resolves to the global logger per request.
func RequestLogger(base *logger.Logger, quietRoutes ...string) gin.HandlerFunc {
	quiet := make(map[string]struct{}, len(quietRoutes))
	for _, route := range quietRoutes {
		quiet[route] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		root := base
		if root == nil {
			root = logger.Get()
		}
		log := root.WithContext(map[string]interface{}{
			"request_id": requestID,
			"method":     c.Request.Method,
			"route":      route,
		})
		c.Set(loggerKey, log)

		c.Next()

		status := c.Writer.Status()
		fields := map[string]interface{}{
			"status_code": status,
			"latency_ms":  time.Since(start).Milliseconds(),
			"path":        c.Request.URL.Path,
			"ip":          c.ClientIP(),
		}
		if ownerID := c.GetString(UserIDKey); ownerID != "" {
			fields["owner_id"] = ownerID
			if role, ok := c.Get(UserRoleKey); ok {
				fields["role"] = role
			}
		}
		if etag := c.Writer.Header().Get("ETag"); etag != "" {
			fields["cart_version"] = strings.Trim(etag, `"`)
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		_, isQuiet := quiet[route]
		switch {
		case status >= 500:
			log.Error("Request failed", nil, fields)
		case status >= 400:
			log.Warn("Request rejected", fields)
		case isQuiet:
			log.Debug("Request served", fields)
		default:
			log.Info("Request served", fields)
		}
	}
}

// GetLoggerFromContext returns the request-scoped logger, or the global one
// outside a logged request.
func GetLoggerFromContext(c *gin.Context) *logger.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*logger.Logger); ok {
			return l
		}
	}
	return logger.Get()
}
