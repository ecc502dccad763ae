package storyblock

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comictracker/internal/apperr"
	"comictracker/internal/auth"
)

type Handler struct {
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Service: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/story-blocks/preview", h.preview)
	rg.PUT("/story-blocks/:id/issues", h.setIssues)
	rg.POST("/story-blocks/:id/sync", h.sync)
	rg.POST("/story-blocks/:id/finish", h.finish)
	rg.GET("/story-blocks/:id/metrics", h.metrics)
}

type issueIDsReq struct {
	IssueIDs []string `json:"issueIds"`
}

func (h *Handler) preview(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	var req issueIDsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	d, err := h.Service.Preview(c.Request.Context(), owner, req.IssueIDs)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) setIssues(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	var req issueIDsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	st, err := h.Service.SetIssues(c.Request.Context(), owner, c.Param("id"), req.IssueIDs)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) sync(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	st, err := h.Service.Sync(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) finish(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	res, err := h.Service.Finish(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) metrics(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	m, err := h.Service.Metrics(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
