package importer

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"comictracker/internal/apperr"
	"comictracker/internal/auth"
	"comictracker/internal/comicvine"
	"comictracker/pkg/models"
)

// Searcher is the search half of the ComicVine client.
type Searcher interface {
	Search(ctx context.Context, apiKey, query, resource string) ([]comicvine.Record, error)
}

// Enqueuer stores import jobs for the worker.
type Enqueuer interface {
	EnqueueImport(ctx context.Context, ownerID, resource string, detailURLs []string, includeIssues bool) (*models.Job, error)
}

type Handler struct {
	Jobs     Enqueuer
	Searcher Searcher
	Keys     KeyStore
}

func NewHandler(jobs Enqueuer, searcher Searcher, keys KeyStore) *Handler {
	return &Handler{Jobs: jobs, Searcher: searcher, Keys: keys}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/comicvine/search", h.search)
	rg.POST("/comicvine/import", h.enqueue)
}

type importReq struct {
	Resource      string   `json:"resource"`
	DetailURLs    []string `json:"detailUrls"`
	IncludeIssues bool     `json:"includeIssues"`
}

func (h *Handler) enqueue(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	var req importReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	job, err := h.Jobs.EnqueueImport(c.Request.Context(), owner, req.Resource, req.DetailURLs, req.IncludeIssues)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

type searchResult struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	APIDetailURL string `json:"apiDetailUrl"`
	Publisher    string `json:"publisher,omitempty"`
	StartYear    int64  `json:"startYear,omitempty"`
	IssueNumber  string `json:"issueNumber,omitempty"`
	Deck         string `json:"deck,omitempty"`
}

func (h *Handler) search(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	query := strings.TrimSpace(c.Query("query"))
	resource := c.DefaultQuery("resource", "volume")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query required"})
		return
	}
	if !comicvine.ValidResource(resource) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported resource"})
		return
	}

	ctx := c.Request.Context()
	key, err := h.Keys.ComicVineKey(ctx, owner)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if key == "" {
		apperr.Respond(c, ErrMissingKey)
		return
	}

	records, err := h.Searcher.Search(ctx, key, query, resource)
	if err != nil {
		if comicvine.IsUnauthorized(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ComicVine rejected the API key. Please re-save it."})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "ComicVine search failed"})
		return
	}

	out := make([]searchResult, 0, len(records))
	for _, r := range records {
		sr := searchResult{
			ID:           r.ID.Int64(),
			Name:         r.Label(),
			APIDetailURL: r.APIDetailURL,
			StartYear:    r.StartYear.Int64(),
			IssueNumber:  string(r.IssueNumber),
			Deck:         r.Deck,
		}
		if r.Publisher != nil {
			sr.Publisher = r.Publisher.Name
		}
		out = append(out, sr)
	}
	c.JSON(http.StatusOK, gin.H{"resource": resource, "results": out})
}
