// Package httpserver 组装 gin 路由与中间件
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sprintmail/internal/handler"
	"sprintmail/pkg/otel"
	"sprintmail/pkg/rbac"
)

// Pinger 就绪检查依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers Admin 为空时不注册 outbox 重放接口（内存存储没有 outbox）
type Handlers struct {
	SprintEmail   *handler.SprintEmailHandler
	TrainingEmail *handler.TrainingEmailHandler
	Catalog       *handler.CatalogHandler
	Assistant     *handler.AssistantHandler
	Admin         *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, jwtSecret string, ready Pinger) *Router {
	r := newEngine(ready)

	api := r.Group("/api")
	api.Use(AuthMiddleware(jwtSecret))
	{
		api.POST("/sprint-emails/generate", RequirePermission(rbac.PermissionGenerate), h.SprintEmail.Generate)

		training := api.Group("/training-emails", RequirePermission(rbac.PermissionManageTraining))
		training.POST("", h.TrainingEmail.Upload)
		training.POST("/analyze-all", h.TrainingEmail.AnalyzeAll)
		training.POST("/:id/analyze", h.TrainingEmail.Analyze)

		api.GET("/templates", RequirePermission(rbac.PermissionReadCatalog), h.Catalog.Templates)
		api.GET("/history", RequirePermission(rbac.PermissionReadCatalog), h.Catalog.History)
		api.GET("/stats", RequirePermission(rbac.PermissionReadCatalog), h.Catalog.Stats)
		api.POST("/history/:id/feedback", RequirePermission(rbac.PermissionSubmitFeedback), h.Catalog.Feedback)

		email := api.Group("/email")
		email.POST("/draft", RequirePermission(rbac.PermissionGenerate), h.Assistant.Draft)
		email.POST("/response", RequirePermission(rbac.PermissionGenerate), h.Assistant.Response)
		email.POST("/analyze", RequirePermission(rbac.PermissionGenerate), h.Assistant.Analyze)
		email.POST("/summarize", RequirePermission(rbac.PermissionGenerate), h.Assistant.Summarize)
		email.POST("/template", RequirePermission(rbac.PermissionGenerate), h.Assistant.Template)
		email.POST("/analyze-text", RequirePermission(rbac.PermissionGenerate), h.Assistant.AnalyzeText)
		email.GET("/history", RequirePermission(rbac.PermissionReadCatalog), h.Assistant.History)
		email.POST("/history/:id/rate", RequirePermission(rbac.PermissionSubmitFeedback), h.Assistant.Rate)

		if h.Admin != nil {
			admin := api.Group("/admin", RequirePermission(rbac.PermissionReplayOutbox))
			admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
			admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
		}
	}

	return &Router{Engine: r}
}

// NewHealthRouter 只有健康检查与 /metrics，worker 使用
func NewHealthRouter(ready Pinger) *Router {
	return &Router{Engine: newEngine(ready)}
}

func newEngine(ready Pinger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := ready.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
