package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/templates"
)

// TemplateService is the store contract the handlers call.
type TemplateService interface {
	List(ctx context.Context) ([]templates.Template, error)
	ListWithContent(ctx context.Context) ([]templates.Template, error)
	Get(ctx context.Context, id string) (*templates.Template, error)
	Create(ctx context.Context, f templates.Fields, actor string) (*templates.Template, error)
	Update(ctx context.Context, id string, f templates.Fields, actor string) (*templates.Template, error)
	Delete(ctx context.Context, id, comment, actor string) (*templates.DeleteResult, error)
	RepositoryStructure(ctx context.Context) (*templates.Structure, error)
	History(ctx context.Context, id string) []templates.HistoryEntry
}

// TemplatesHandler handles template CRUD operations
type TemplatesHandler struct {
	store  TemplateService
	logger *slog.Logger
}

// NewTemplatesHandler creates a new handler instance
func NewTemplatesHandler(store TemplateService, logger *slog.Logger) *TemplatesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplatesHandler{store: store, logger: logger.With("component", "api")}
}

// ListTemplates handles GET /api/templates
// ?eager=true 同时读取内容文件；?q= 模糊筛选
func (h *TemplatesHandler) ListTemplates(c *gin.Context) {
	eager, _ := strconv.ParseBool(c.Query("eager"))

	var (
		items []templates.Template
		err   error
	)
	if eager {
		items, err = h.store.ListWithContent(c.Request.Context())
	} else {
		items, err = h.store.List(c.Request.Context())
	}
	if err != nil {
		h.logger.Error("list templates failed", "error", err)
		storeErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, templates.Search(items, c.Query("q")))
}

// GetTemplate handles GET /api/templates/:id
func (h *TemplatesHandler) GetTemplate(c *gin.Context) {
	tpl, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		storeErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// CreateTemplate handles POST /api/templates
func (h *TemplatesHandler) CreateTemplate(c *gin.Context) {
	var req templates.Fields
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body", ErrInvalidInput)
		return
	}

	tpl, err := h.store.Create(c.Request.Context(), req, currentUser(c))
	if err != nil {
		h.logger.Warn("create template failed", "name", req.Name, "error", err)
		storeErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "template": tpl})
}

// UpdateTemplate handles PUT /api/templates/:id
func (h *TemplatesHandler) UpdateTemplate(c *gin.Context) {
	var req templates.Fields
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body", ErrInvalidInput)
		return
	}

	id := c.Param("id")
	tpl, err := h.store.Update(c.Request.Context(), id, req, currentUser(c))
	if err != nil {
		h.logger.Warn("update template failed", "id", id, "error", err)
		storeErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "template": tpl})
}

// DeleteTemplate handles DELETE /api/templates/:id
// 请求体可选：{"requestComment": "..."}
func (h *TemplatesHandler) DeleteTemplate(c *gin.Context) {
	var req struct {
		RequestComment string `json:"requestComment"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			errorResponse(c, http.StatusBadRequest, "Invalid request body", ErrInvalidInput)
			return
		}
	}

	id := c.Param("id")
	res, err := h.store.Delete(c.Request.Context(), id, req.RequestComment, currentUser(c))
	if err != nil {
		h.logger.Warn("delete template failed", "id", id, "error", err)
		storeErrorResponse(c, err)
		return
	}

	body := gin.H{
		"success": true,
		"status":  res.Status,
		"message": res.Message,
	}
	switch res.Status {
	case templates.StatusPendingApproval:
		if pr := res.PullRequest(); pr != nil {
			body["pullRequestUrl"] = pr.URL
			body["pullRequestId"] = pr.ID
		}
		if res.Request != nil {
			body["branch"] = res.Request.Branch
		}
	case templates.StatusDeleted:
		body["deletedId"] = res.DeletedID
	}
	c.JSON(http.StatusOK, body)
}

// TemplateHistory handles GET /api/templates/:id/history
// 历史查询失败时返回占位条目，不返回错误
func (h *TemplatesHandler) TemplateHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"history": h.store.History(c.Request.Context(), c.Param("id")),
	})
}

// RepositoryStructure handles GET /api/bitbucket/structure
func (h *TemplatesHandler) RepositoryStructure(c *gin.Context) {
	st, err := h.store.RepositoryStructure(c.Request.Context())
	if err != nil {
		h.logger.Error("repository structure failed", "error", err)
		storeErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"departments": st.Departments,
		"appCodes":    st.AppCodes,
	})
}
