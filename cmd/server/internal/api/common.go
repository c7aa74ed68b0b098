package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/bitbucket"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/templates"
)

// Error codes
const (
	ErrInvalidInput        = "INVALID_INPUT"
	ErrTemplateNotFound    = "TEMPLATE_NOT_FOUND"
	ErrTemplateConflict    = "TEMPLATE_CONFLICT"
	ErrUpstreamAuth        = "UPSTREAM_AUTH_FAILED"
	ErrUpstreamFailure     = "UPSTREAM_FAILURE"
	ErrApprovalUnavailable = "APPROVAL_UNAVAILABLE"
	ErrInternal            = "INTERNAL_ERROR"
)

// currentUser 获取当前用户
// 优先读取鉴权中间件写入的 "user"，其次 X-User 头
// 返回空字符串时由存储层使用配置的回退用户名
func currentUser(c *gin.Context) string {
	if user, exists := c.Get("user"); exists {
		if username, ok := user.(string); ok && username != "" {
			return username
		}
	}
	return c.GetHeader("X-User")
}

// errorResponse 返回统一错误响应
func errorResponse(c *gin.Context, status int, message, code string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

// storeErrorResponse 将存储层错误映射为 HTTP 状态码
func storeErrorResponse(c *gin.Context, err error) {
	var verr *templates.ValidationError
	switch {
	case errors.As(err, &verr):
		errorResponse(c, http.StatusBadRequest, verr.Error(), ErrInvalidInput)
	case errors.Is(err, templates.ErrValidation):
		errorResponse(c, http.StatusBadRequest, err.Error(), ErrInvalidInput)
	case errors.Is(err, templates.ErrNotFound):
		errorResponse(c, http.StatusNotFound, "Template not found", ErrTemplateNotFound)
	case errors.Is(err, templates.ErrConflict), errors.Is(err, bitbucket.ErrConflict):
		errorResponse(c, http.StatusConflict, err.Error(), ErrTemplateConflict)
	case errors.Is(err, bitbucket.ErrAuthFailure):
		errorResponse(c, http.StatusBadGateway, err.Error(), ErrUpstreamAuth)
	case errors.Is(err, bitbucket.ErrHost):
		errorResponse(c, http.StatusBadGateway, err.Error(), ErrUpstreamFailure)
	case errors.Is(err, templates.ErrApprovalUnavailable):
		errorResponse(c, http.StatusInternalServerError, err.Error(), ErrApprovalUnavailable)
	default:
		errorResponse(c, http.StatusInternalServerError, err.Error(), ErrInternal)
	}
}
