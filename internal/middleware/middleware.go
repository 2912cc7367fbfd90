package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"account-access-service/internal/metrics"
	"account-access-service/internal/resolver"
	"account-access-service/internal/services"
)

// Context keys
const (
	RequestIDKey = "request_id"
	TenantKeyKey = "tenant_key"
	UserIDKey    = "user_id"
	UserEmailKey = "user_email"
)

// RequestID attaches a request ID to every request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// StructuredLogger logs each request with its latency and status
func StructuredLogger(logger *logrus.Logger) gin.HandlerFunc {
	log := logger.WithField("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": c.GetString(RequestIDKey),
			"client_ip":  c.ClientIP(),
		}).Info("Request handled")
	}
}

// Metrics records the HTTP duration histogram
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPDuration.WithLabelValues(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}

// TenantExtraction resolves the tenant key from the request and stores it
// in the context. An empty key is stored as-is; handlers decide whether
// that is fatal.
func TenantExtraction(r *resolver.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := r.Resolve(c.Request.Host, c.Param("account"), c.Request.URL.Path)
		c.Set(TenantKeyKey, key)
		c.Next()
	}
}

// AuthRequired validates the bearer token and stores the user identity in
// the context.
func AuthRequired(sessions *services.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token required",
				"code":  "MISSING_TOKEN",
			})
			return
		}

		claims, err := sessions.ValidateAccess(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
				"code":  "INVALID_TOKEN",
			})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UserEmailKey, claims.Email)
		c.Next()
	}
}

// InternalOnly guards service-to-service routes with a shared secret
func InternalOnly(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" || c.GetHeader("X-Internal-Service") != secret {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Internal access only",
				"code":  "FORBIDDEN",
			})
			return
		}
		c.Next()
	}
}

// GetUserID pulls the authenticated user ID from the context
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get(UserIDKey)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	return id, ok
}

// GetTenantKey pulls the resolved tenant key from the context
func GetTenantKey(c *gin.Context) string {
	return c.GetString(TenantKeyKey)
}
