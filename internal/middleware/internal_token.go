package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"loteo/internal/config"
	"loteo/internal/pkg/response"
)

// InternalTokenAuth protects machine-to-machine endpoints (an external cron
// calling the sweep) with a static bearer token and an optional IP list.
func InternalTokenAuth(cfg config.InternalConfig, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Token == "" {
			logAuthFailure(log, c, http.StatusForbidden, "disabled")
			response.Error(c, http.StatusForbidden, "AUTH_INVALID", "Internal endpoints are disabled")
			c.Abort()
			return
		}

		if !ipAllowed(c, cfg.AllowedIPs) {
			logAuthFailure(log, c, http.StatusForbidden, "ip_not_allowed")
			response.Error(c, http.StatusForbidden, "AUTH_INVALID", "IP not allowed")
			c.Abort()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logAuthFailure(log, c, http.StatusUnauthorized, "missing_auth")
			response.Error(c, http.StatusUnauthorized, "AUTH_MISSING", "Authorization header is required")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			logAuthFailure(log, c, http.StatusUnauthorized, "invalid_auth_format")
			response.Error(c, http.StatusUnauthorized, "AUTH_INVALID", "Authorization header must be 'Bearer <token>'")
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(cfg.Token)) != 1 {
			logAuthFailure(log, c, http.StatusForbidden, "invalid_token")
			response.Error(c, http.StatusForbidden, "AUTH_INVALID", "Invalid internal token")
			c.Abort()
			return
		}

		c.Next()
	}
}

func ipAllowed(c *gin.Context, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	clientIP := c.ClientIP()
	for _, ip := range allowed {
		if strings.TrimSpace(ip) == clientIP {
			return true
		}
	}
	return false
}

func logAuthFailure(log logrus.FieldLogger, c *gin.Context, status int, reason string) {
	log.WithFields(logrus.Fields{
		"request_id": c.GetString("request_id"),
		"status":     status,
		"reason":     reason,
		"client_ip":  c.ClientIP(),
	}).Warn("internal auth rejected")
}
