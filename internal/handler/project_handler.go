package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"renobroker/internal/apperr"
	"renobroker/internal/model"
	"renobroker/internal/service/project"
)

type ProjectHandler struct {
	projects *project.Service
}

func NewProjectHandler(projects *project.Service) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

type projectRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Region      string `json:"region"`
	Budget      int64  `json:"budget"`
	MaxBids     int    `json:"max_bids"`
}

func (r projectRequest) toInput() project.CreateProjectInput {
	in := project.CreateProjectInput{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Region:      r.Region,
		Budget:      r.Budget,
		MaxBids:     r.MaxBids,
	}
	if in.MaxBids == 0 {
		in.MaxBids = 20
	}
	return in
}

func (h *ProjectHandler) CreateDraft(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.New(apperr.CodeInvalidInput, err.Error()))
		return
	}

	userID, _ := currentUser(c)
	p, err := h.projects.CreateDraft(c.Request.Context(), userID, req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *ProjectHandler) UpdateDraft(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.New(apperr.CodeInvalidInput, err.Error()))
		return
	}

	userID, _ := currentUser(c)
	p, err := h.projects.UpdateDraft(c.Request.Context(), userID, c.Param("id"), req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProjectHandler) DeleteDraft(c *gin.Context) {
	userID, _ := currentUser(c)
	if err := h.projects.DeleteDraft(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type submitRequest struct {
	BidDeadline time.Time `json:"bid_deadline" binding:"required"`
}

func (h *ProjectHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.New(apperr.CodeInvalidInput, err.Error()))
		return
	}

	userID, _ := currentUser(c)
	p, err := h.projects.Submit(c.Request.Context(), userID, c.Param("id"), req.BidDeadline)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type reviewRequest struct {
	Note string `json:"note"`
}

func (h *ProjectHandler) Approve(c *gin.Context) {
	var req reviewRequest
	_ = c.ShouldBindJSON(&req)

	adminID, _ := currentUser(c)
	p, err := h.projects.Approve(c.Request.Context(), adminID, c.Param("id"), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProjectHandler) Reject(c *gin.Context) {
	var req reviewRequest
	_ = c.ShouldBindJSON(&req)

	adminID, _ := currentUser(c)
	p, err := h.projects.Reject(c.Request.Context(), adminID, c.Param("id"), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProjectHandler) CloseBidding(c *gin.Context) {
	userID, _ := currentUser(c)
	p, err := h.projects.CloseBidding(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProjectHandler) ReopenBidding(c *gin.Context) {
	userID, _ := currentUser(c)
	p, err := h.projects.ReopenBidding(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProjectHandler) Get(c *gin.Context) {
	p, err := h.projects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProjectHandler) ListMine(c *gin.Context) {
	userID, _ := currentUser(c)
	projects, err := h.projects.ListByOwner(c.Request.Context(), userID, listLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// ListByStatus serves both the admin review queue and the contractor's view
// of open projects.
func (h *ProjectHandler) ListByStatus(c *gin.Context) {
	status := model.ProjectStatus(c.DefaultQuery("status", string(model.ProjectOpen)))
	projects, err := h.projects.ListByStatus(c.Request.Context(), status, listLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func listLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
