package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"renobroker/internal/apperr"
	"renobroker/internal/model"
	"renobroker/internal/service/match"
)

type MatchHandler struct {
	matcher *match.Service
}

func NewMatchHandler(matcher *match.Service) *MatchHandler {
	return &MatchHandler{matcher: matcher}
}

type selectBidRequest struct {
	BidID string `json:"bid_id" binding:"required"`
}

func (h *MatchHandler) SelectBid(c *gin.Context) {
	var req selectBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.New(apperr.CodeInvalidInput, err.Error()))
		return
	}

	userID, _ := currentUser(c)
	res, err := h.matcher.SelectBid(c.Request.Context(), userID, c.Param("id"), req.BidID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *MatchHandler) Start(c *gin.Context) {
	userID, _ := currentUser(c)
	p, err := h.matcher.StartProject(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *MatchHandler) Complete(c *gin.Context) {
	userID, _ := currentUser(c)
	p, err := h.matcher.CompleteProject(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *MatchHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	_ = c.ShouldBindJSON(&req)

	userID, role := currentUser(c)
	p, err := h.matcher.CancelProject(c.Request.Context(), userID, role, c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *MatchHandler) Approve(c *gin.Context) {
	adminID, _ := currentUser(c)
	e, err := h.matcher.ApproveMatch(c.Request.Context(), adminID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *MatchHandler) Reject(c *gin.Context) {
	var req cancelRequest
	_ = c.ShouldBindJSON(&req)

	adminID, _ := currentUser(c)
	p, err := h.matcher.RejectMatch(c.Request.Context(), adminID, c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *MatchHandler) Resume(c *gin.Context) {
	res, err := h.matcher.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *MatchHandler) Get(c *gin.Context) {
	run, err := h.matcher.GetMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *MatchHandler) List(c *gin.Context) {
	state := c.DefaultQuery("state", model.MatchRunRunning)
	runs, err := h.matcher.ListMatches(c.Request.Context(), state, listLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": runs})
}
