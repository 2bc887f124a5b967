package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sprintmail/pkg/rbac"
	"sprintmail/pkg/trace"
	"sprintmail/pkg/util"
)

const (
	ctxSubject = "subject"
	ctxRole    = "role"
)

// TraceMiddleware 沿用请求头中的 trace id，没有则生成，并回写到响应头
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(trace.HeaderName())
		if id == "" {
			id = trace.GenerateTraceID()
		}
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), id))
		c.Header(trace.HeaderName(), id)
		c.Set(trace.TraceIDKey, id)
		c.Next()
	}
}

func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			abort(c, http.StatusUnauthorized, "missing token")
			return
		}

		claims, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}

		c.Set(ctxSubject, claims.Subject)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// RequirePermission 要求令牌角色具有指定权限
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ctxRole)
		if err := rbac.CheckPermission(c.GetString(ctxSubject), role, permission); err != nil {
			abort(c, http.StatusForbidden, err.Error())
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}
