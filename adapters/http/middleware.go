package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/pkg/apperror"
	"github.com/khoahotran/pulse-media/pkg/auth"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

const (
	GinContextKeyPrincipal = "principal"

	// accessTokenParam carries the token for clients that cannot set
	// headers, such as <video> elements and EventSource.
	accessTokenParam = "access_token"
)

func bearerToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader || token == "" {
			return "", false
		}
		return token, true
	}
	if token := c.Query(accessTokenParam); token != "" {
		return token, true
	}
	return "", false
}

// AuthMiddleware requires a valid token and stores the caller's principal.
func AuthMiddleware(jwtSvc *auth.JWTService, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperror.ErrUnauthorized.Error(), "message": "Authorization token is required"})
			return
		}

		claims, err := jwtSvc.ValidateToken(tokenString)
		if err != nil {
			log.Debug("Rejected token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperror.ErrUnauthorized.Error(), "message": "Invalid or expired token"})
			return
		}

		c.Set(GinContextKeyPrincipal, claims.Principal())
		c.Next()
	}
}

// OptionalAuthMiddleware identifies the caller when a token is present and
// lets anonymous requests through. A present but invalid token is refused.
func OptionalAuthMiddleware(jwtSvc *auth.JWTService, log logger.Logger) gin.HandlerFunc {
	required := AuthMiddleware(jwtSvc, log)
	return func(c *gin.Context) {
		if _, ok := bearerToken(c); !ok && c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		required(c)
	}
}

// RequireRoles must run after AuthMiddleware.
func RequireRoles(roles ...user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperror.ErrUnauthorized.Error(), "message": "Authentication required"})
			return
		}
		if !p.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": apperror.ErrPermission.Error(), "message": "Permission denied"})
			return
		}
		c.Next()
	}
}

// viewer is the caller for DTO projection, nil when anonymous.
func viewer(c *gin.Context) *user.Principal {
	if p, ok := GetPrincipal(c); ok {
		return &p
	}
	return nil
}

func GetPrincipal(c *gin.Context) (user.Principal, bool) {
	v, ok := c.Get(GinContextKeyPrincipal)
	if !ok {
		return user.Principal{}, false
	}
	p, ok := v.(user.Principal)
	return p, ok
}

// ErrorMiddleware renders the last handler error as {"error", "message"}.
// Causes are logged, never sent.
func ErrorMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		status := apperror.ToHTTPStatus(err)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
		}
		if status >= http.StatusInternalServerError {
			log.Error("Request failed", err, fields...)
		} else {
			log.Debug("Request rejected", append(fields, zap.Error(err))...)
		}

		if c.Writer.Written() {
			return
		}
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && status < http.StatusInternalServerError {
			c.JSON(status, appErr.ToJSON())
			return
		}
		c.JSON(status, gin.H{"error": apperror.Reason(err), "message": "An internal server error occurred"})
	}
}
