package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "pomodoro/bot/internal/errors"
	"pomodoro/bot/internal/logging"
)

type WebhookReceiver interface {
	HandleWebhook(ctx context.Context, r *http.Request) error
}

type WebhookHandler struct {
	receiver WebhookReceiver
	logger   *slog.Logger
}

// NewWebhookHandler accepts a nil receiver when the bot is not in webhook mode.
func NewWebhookHandler(receiver WebhookReceiver, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &WebhookHandler{receiver: receiver, logger: logger}
}

func (h *WebhookHandler) Telegram(c *gin.Context) {
	if h.receiver == nil {
		writeError(c, apperrors.WebhookDisabled())
		return
	}

	if err := h.receiver.HandleWebhook(c.Request.Context(), c.Request); err != nil {
		h.logger.Warn("rejected webhook update", "error", err)
		writeError(c, apperrors.InvalidUpdate())
		return
	}
	c.Status(http.StatusOK)
}
