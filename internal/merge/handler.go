package merge

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comictracker/internal/apperr"
	"comictracker/internal/auth"
)

type Handler struct {
	Engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{Engine: engine}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/merge", h.merge)
	rg.GET("/duplicates", h.duplicates)
}

type mergeReq struct {
	Entity    string   `json:"entity"`
	TargetID  string   `json:"targetId"`
	SourceIDs []string `json:"sourceIds"`
}

func (h *Handler) merge(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	var req mergeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	kind, err := ParseKind(req.Entity)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if req.TargetID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "targetId required"})
		return
	}

	res, err := h.Engine.Merge(c.Request.Context(), owner, kind, req.TargetID, req.SourceIDs)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) duplicates(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	kind, err := ParseKind(c.Query("entity"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	groups, err := FindDuplicates(c.Request.Context(), h.Engine.DB, owner, kind)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entity": kind, "groups": groups})
}
