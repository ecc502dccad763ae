package settings

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comictracker/internal/apperr"
	"comictracker/internal/auth"
)

type Handler struct {
	Repo *Repo
}

func NewHandler(repo *Repo) *Handler {
	return &Handler{Repo: repo}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/settings", h.get)
	rg.PUT("/settings/comicvine-key", h.setKey)
}

func (h *Handler) get(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	key, err := h.Repo.ComicVineKey(c.Request.Context(), owner)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	// the key itself is never echoed back
	c.JSON(http.StatusOK, gin.H{"hasComicVineKey": key != ""})
}

type keyReq struct {
	APIKey string `json:"apiKey"`
}

func (h *Handler) setKey(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	var req keyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Repo.SetComicVineKey(c.Request.Context(), owner, req.APIKey); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hasComicVineKey": req.APIKey != ""})
}
