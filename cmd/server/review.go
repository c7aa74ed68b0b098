package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/approval"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/bitbucket"
)

// finalizer completes deletion requests after a review decision.
type finalizer interface {
	Finalize(ctx context.Context, ev approval.PullRequestEvent) approval.Outcome
}

// registerMemoryReviewRoutes 内存仓库模式下模拟评审：合并或拒绝删除 PR
// 仅在 BITBUCKET_MODE=memory 时注册（生产环境禁止该模式）
func registerMemoryReviewRoutes(r gin.IRouter, repo *bitbucket.MemoryClient, f finalizer, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "memory-review")

	review := func(action approval.EventAction, apply func(int) (*bitbucket.MemoryPullRequest, error)) gin.HandlerFunc {
		return func(c *gin.Context) {
			id, err := strconv.Atoi(c.Param("id"))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid pull request id", "code": "INVALID_INPUT"})
				return
			}
			pr, err := apply(id)
			if err != nil {
				status := http.StatusInternalServerError
				switch {
				case bitbucket.IsNotFound(err):
					status = http.StatusNotFound
				case errors.Is(err, bitbucket.ErrConflict):
					status = http.StatusConflict
				}
				c.JSON(status, gin.H{"success": false, "error": err.Error(), "code": "REVIEW_FAILED"})
				return
			}

			reviewer := c.GetHeader("X-User")
			if reviewer == "" {
				reviewer = "memory-reviewer"
			}
			out := f.Finalize(c.Request.Context(), approval.PullRequestEvent{
				Action:            action,
				PullRequestID:     pr.ID,
				SourceBranch:      pr.SourceBranch,
				DestinationBranch: pr.DestinationBranch,
				Actor:             reviewer,
			})
			logger.Info("pull request reviewed", "id", pr.ID, "action", action, "outcome", out.Result)
			c.JSON(http.StatusOK, gin.H{"success": true, "state": pr.State, "outcome": out})
		}
	}

	dev := r.Group("/api/dev/pull-requests")
	{
		dev.GET("", func(c *gin.Context) {
			c.JSON(http.StatusOK, repo.PullRequests())
		})
		dev.POST("/:id/merge", review(approval.ActionMerged, repo.MergePullRequest))
		dev.POST("/:id/decline", review(approval.ActionDeclined, repo.DeclinePullRequest))
	}
}
