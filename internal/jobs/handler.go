package jobs

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"comictracker/internal/apperr"
	"comictracker/internal/auth"
)

type Handler struct {
	Store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{Store: store}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/jobs", h.list)
	rg.GET("/jobs/:id", h.get)
}

func (h *Handler) list(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	jobs, err := h.Store.List(c.Request.Context(), owner, limit)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *Handler) get(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	job, err := h.Store.Get(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if job == nil {
		apperr.Respond(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, job)
}
