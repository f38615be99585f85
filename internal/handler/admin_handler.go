package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "pomodoro/bot/internal/errors"
	"pomodoro/bot/internal/middleware"
	"pomodoro/bot/internal/service"
)

type AdminHandler struct {
	timers *service.TimerService
	stats  *service.StatsService
	reset  *service.ResetJob
}

func NewAdminHandler(timers *service.TimerService, stats *service.StatsService, reset *service.ResetJob) *AdminHandler {
	return &AdminHandler{timers: timers, stats: stats, reset: reset}
}

func (h *AdminHandler) ListTimers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"timers": h.timers.ActiveTimers()})
}

func (h *AdminHandler) UserToday(c *gin.Context) {
	platformID, apiErr := platformIDParam(c)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	today, apiErr := h.stats.Today(c.Request.Context(), platformID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"today": today})
}

func (h *AdminHandler) UserSessions(c *gin.Context) {
	platformID, apiErr := platformIDParam(c)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	sessions, apiErr := h.stats.History(c.Request.Context(), platformID, queryInt(c, "limit", 50))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *AdminHandler) ResetStatus(c *gin.Context) {
	next := h.reset.NextRun()
	if next.IsZero() {
		c.JSON(http.StatusOK, gin.H{"nextRun": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nextRun": next})
}

func (h *AdminHandler) RunReset(c *gin.Context) {
	closed, err := h.reset.RunNow(c.Request.Context())
	if err != nil {
		writeError(c, apperrors.Internal("failed to close open sessions"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": closed, "triggeredBy": middleware.Admin(c)})
}
