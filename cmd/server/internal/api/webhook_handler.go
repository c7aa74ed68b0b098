package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/webhook"
)

// maxWebhookBody limits webhook payloads read into memory (1 MB).
const maxWebhookBody = 1 << 20

// WebhookProcessor consumes host notifications.
type WebhookProcessor interface {
	Handle(ctx context.Context, eventKey string, body []byte) webhook.Ack
}

// HandleWebhook handles POST /api/bitbucket/webhooks
// 无论处理结果如何都返回 200 {success:true}，处理失败只记录日志
func HandleWebhook(p WebhookProcessor, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		eventKey := c.GetHeader("X-Event-Key")
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			logger.Warn("webhook body unreadable", "event", eventKey, "error", err)
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		ack := p.Handle(c.Request.Context(), eventKey, body)
		logger.Debug("webhook acknowledged", "event", eventKey, "outcome", ack.Outcome)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
