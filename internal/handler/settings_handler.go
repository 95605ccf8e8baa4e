package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"renobroker/internal/apperr"
	"renobroker/internal/service/settings"
)

type SettingsHandler struct {
	settings *settings.Service
}

func NewSettingsHandler(settings *settings.Service) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) GetPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Policy(c.Request.Context()))
}

func (h *SettingsHandler) UpdatePolicy(c *gin.Context) {
	var p settings.Policy
	if err := c.ShouldBindJSON(&p); err != nil {
		respondError(c, apperr.New(apperr.CodeInvalidInput, err.Error()))
		return
	}

	if err := h.settings.Update(c.Request.Context(), p); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *SettingsHandler) ResetPolicy(c *gin.Context) {
	if err := h.settings.Reset(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
