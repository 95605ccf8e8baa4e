package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"renobroker/internal/apperr"
	"renobroker/internal/service/project"
)

type BidHandler struct {
	projects *project.Service
}

func NewBidHandler(projects *project.Service) *BidHandler {
	return &BidHandler{projects: projects}
}

type bidRequest struct {
	Price        int64  `json:"price" binding:"required"`
	TimelineDays int    `json:"timeline_days" binding:"required"`
	Proposal     string `json:"proposal"`
}

func (h *BidHandler) Create(c *gin.Context) {
	var req bidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.New(apperr.CodeInvalidInput, err.Error()))
		return
	}

	userID, _ := currentUser(c)
	b, err := h.projects.AddBid(c.Request.Context(), userID, c.Param("id"), project.BidInput{
		Price:        req.Price,
		TimelineDays: req.TimelineDays,
		Proposal:     req.Proposal,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *BidHandler) Withdraw(c *gin.Context) {
	userID, _ := currentUser(c)
	b, err := h.projects.WithdrawBid(c.Request.Context(), userID, c.Param("id"), c.Param("bidID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BidHandler) Approve(c *gin.Context) {
	var req reviewRequest
	_ = c.ShouldBindJSON(&req)

	adminID, _ := currentUser(c)
	b, err := h.projects.ApproveBid(c.Request.Context(), adminID, c.Param("id"), c.Param("bidID"), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BidHandler) Reject(c *gin.Context) {
	var req reviewRequest
	_ = c.ShouldBindJSON(&req)

	adminID, _ := currentUser(c)
	b, err := h.projects.RejectBid(c.Request.Context(), adminID, c.Param("id"), c.Param("bidID"), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BidHandler) Get(c *gin.Context) {
	b, err := h.projects.GetBid(c.Request.Context(), c.Param("id"), c.Param("bidID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BidHandler) List(c *gin.Context) {
	bids, err := h.projects.ListBids(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bids": bids})
}
