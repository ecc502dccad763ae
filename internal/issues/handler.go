package issues

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comictracker/internal/apperr"
	"comictracker/internal/auth"
	"comictracker/pkg/models"
)

type Handler struct {
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Service: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/series/:id/issues", h.listBySeries)
	rg.GET("/series/:id/issues/range", h.rangeBySeries)
	rg.PATCH("/issues/status", h.setStatus)
	rg.PUT("/issues/:id/number", h.setNumber)
	rg.PUT("/issues/:id/story-blocks", h.setStoryBlocks)
	rg.DELETE("/issues/:id", h.delete)
}

func (h *Handler) listBySeries(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	items, err := h.Service.ListBySeries(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) rangeBySeries(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	items, err := h.Service.Range(c.Request.Context(), owner, c.Param("id"), c.Query("start"), c.Query("end"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type statusReq struct {
	IssueIDs []string `json:"issueIds"`
	Status   string   `json:"status"`
}

func (h *Handler) setStatus(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	ch, err := h.Service.SetStatus(c.Request.Context(), owner, req.IssueIDs, models.IssueStatus(req.Status))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

type numberReq struct {
	IssueNumber string `json:"issueNumber"`
}

func (h *Handler) setNumber(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	var req numberReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	issue, err := h.Service.SetNumber(c.Request.Context(), owner, c.Param("id"), req.IssueNumber)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

type blocksReq struct {
	StoryBlockIDs []string `json:"storyBlockIds"`
}

func (h *Handler) setStoryBlocks(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	var req blocksReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	ch, err := h.Service.SetStoryBlocks(c.Request.Context(), owner, c.Param("id"), req.StoryBlockIDs)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *Handler) delete(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	ch, err := h.Service.Delete(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}
