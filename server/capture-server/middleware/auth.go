package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/webcampics/webcampics/server/core/ccc/auth"
	"github.com/webcampics/webcampics/server/core/ccc/logging"
)

// AdminAuthMiddleware guards the administrative API with a bearer token
type AdminAuthMiddleware struct {
	logger  logging.Logger
	gateway auth.Gateway
}

// NewAdminAuthMiddleware accepts any of tokens
func NewAdminAuthMiddleware(logger logging.Logger, tokens []string) *AdminAuthMiddleware {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &AdminAuthMiddleware{
		logger:  logger,
		gateway: auth.NewGateway(logger, tokens, nil, nil),
	}
}

// RequireAdmin middleware that requires "Authorization: Bearer <admin token>"
func (m *AdminAuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			m.logger.Warn("Missing Authorization header", "path", c.FullPath(), "client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing Authorization header"})
			return
		}

		creds := auth.Credentials{
			Token:    auth.BearerToken(authHeader),
			SourceIP: c.ClientIP(),
		}
		if err := m.gateway.Authenticate(creds); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		c.Next()
	}
}
