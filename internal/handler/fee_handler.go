package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"renobroker/internal/service/fee"
)

type FeeHandler struct {
	fees *fee.Service
}

func NewFeeHandler(fees *fee.Service) *FeeHandler {
	return &FeeHandler{fees: fees}
}

func (h *FeeHandler) ListMine(c *gin.Context) {
	userID, _ := currentUser(c)
	fees, err := h.fees.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fees": fees})
}

func (h *FeeHandler) ListByProject(c *gin.Context) {
	fees, err := h.fees.ListByProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fees": fees})
}

func (h *FeeHandler) MarkPaid(c *gin.Context) {
	adminID, _ := currentUser(c)
	f, err := h.fees.MarkPaid(c.Request.Context(), adminID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

type feeCancelRequest struct {
	Reason string `json:"reason"`
}

func (h *FeeHandler) Cancel(c *gin.Context) {
	var req feeCancelRequest
	_ = c.ShouldBindJSON(&req)

	adminID, _ := currentUser(c)
	f, err := h.fees.Cancel(c.Request.Context(), adminID, c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}
