package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"renobroker/internal/apperr"
	"renobroker/internal/service/escrow"
)

type EscrowHandler struct {
	escrows *escrow.Service
}

func NewEscrowHandler(escrows *escrow.Service) *EscrowHandler {
	return &EscrowHandler{escrows: escrows}
}

func (h *EscrowHandler) GetByProject(c *gin.Context) {
	e, err := h.escrows.GetByProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *EscrowHandler) Get(c *gin.Context) {
	e, err := h.escrows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

type escrowNoteRequest struct {
	Note string `json:"note"`
}

func (h *EscrowHandler) ConfirmDeposit(c *gin.Context) {
	var req escrowNoteRequest
	_ = c.ShouldBindJSON(&req)

	adminID, _ := currentUser(c)
	e, err := h.escrows.ConfirmDeposit(c.Request.Context(), adminID, c.Param("id"), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *EscrowHandler) Release(c *gin.Context) {
	var req escrowNoteRequest
	_ = c.ShouldBindJSON(&req)

	adminID, _ := currentUser(c)
	e, err := h.escrows.Release(c.Request.Context(), adminID, c.Param("id"), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

type partialReleaseRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Note   string `json:"note"`
}

func (h *EscrowHandler) PartialRelease(c *gin.Context) {
	var req partialReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.New(apperr.CodeInvalidInput, err.Error()))
		return
	}

	adminID, _ := currentUser(c)
	e, err := h.escrows.PartialRelease(c.Request.Context(), adminID, c.Param("id"), req.Amount, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

type escrowReasonRequest struct {
	Reason string `json:"reason"`
}

func (h *EscrowHandler) Refund(c *gin.Context) {
	var req escrowReasonRequest
	_ = c.ShouldBindJSON(&req)

	adminID, _ := currentUser(c)
	e, err := h.escrows.Refund(c.Request.Context(), adminID, c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *EscrowHandler) Dispute(c *gin.Context) {
	var req escrowReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Reason == "" {
		respondError(c, apperr.New(apperr.CodeInvalidInput, "reason is required"))
		return
	}

	userID, _ := currentUser(c)
	e, err := h.escrows.MarkDisputed(c.Request.Context(), userID, c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

type resolveDisputeRequest struct {
	Resolution string `json:"resolution" binding:"required"`
	Note       string `json:"note"`
}

func (h *EscrowHandler) ResolveDispute(c *gin.Context) {
	var req resolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.New(apperr.CodeInvalidInput, err.Error()))
		return
	}

	adminID, _ := currentUser(c)
	e, err := h.escrows.ResolveDispute(c.Request.Context(), adminID, c.Param("id"), req.Resolution, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *EscrowHandler) ListMilestones(c *gin.Context) {
	milestones, err := h.escrows.ListMilestones(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": milestones})
}

func (h *EscrowHandler) RequestMilestone(c *gin.Context) {
	userID, _ := currentUser(c)
	m, err := h.escrows.RequestCompletion(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *EscrowHandler) ConfirmMilestone(c *gin.Context) {
	userID, _ := currentUser(c)
	m, err := h.escrows.ConfirmCompletion(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *EscrowHandler) DisputeMilestone(c *gin.Context) {
	var req escrowReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Reason == "" {
		respondError(c, apperr.New(apperr.CodeInvalidInput, "reason is required"))
		return
	}

	userID, _ := currentUser(c)
	m, err := h.escrows.DisputeMilestone(c.Request.Context(), userID, c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
