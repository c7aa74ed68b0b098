package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册模板与 Bitbucket 相关路由
// auth 仅作用于模板接口；webhook 由 Bitbucket 调用，不经过用户鉴权
func RegisterRoutes(r gin.IRouter, store TemplateService, hooks WebhookProcessor, logger *slog.Logger, auth ...gin.HandlerFunc) {
	h := NewTemplatesHandler(store, logger)

	r.POST("/api/bitbucket/webhooks", HandleWebhook(hooks, logger))

	tpl := r.Group("/api/templates", auth...)
	{
		tpl.GET("", h.ListTemplates)
		tpl.POST("", h.CreateTemplate)
		tpl.GET("/:id", h.GetTemplate)
		tpl.PUT("/:id", h.UpdateTemplate)
		tpl.DELETE("/:id", h.DeleteTemplate)
		tpl.GET("/:id/history", h.TemplateHistory)
	}

	bb := r.Group("/api/bitbucket", auth...)
	{
		bb.GET("/structure", h.RepositoryStructure)
		bb.GET("/template/:id/history", h.TemplateHistory)
	}
}
