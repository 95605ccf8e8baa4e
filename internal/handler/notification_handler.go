package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"renobroker/internal/repository"
)

type NotificationHandler struct {
	repo *repository.NotificationRepository
}

func NewNotificationHandler(repo *repository.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{repo: repo}
}

func (h *NotificationHandler) ListMine(c *gin.Context) {
	userID, _ := currentUser(c)
	notifications, err := h.repo.ListByUser(c.Request.Context(), userID, listLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}
