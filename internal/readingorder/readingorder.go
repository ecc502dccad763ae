// Package readingorder reads reading orders. Their status is never stored:
// it is aggregated from the member story blocks on every read.
package readingorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"comictracker/internal/apperr"
	"comictracker/internal/auth"
	"comictracker/internal/status"
	"comictracker/pkg/database"
	"comictracker/pkg/models"
)

var ErrNotFound = apperr.NotFound("reading_order_not_found", "reading order not found")

// Load returns the owner's reading order with items in order_index order and
// the aggregated status.
func Load(ctx context.Context, q database.Querier, ownerID, id string) (*models.ReadingOrderView, error) {
	var (
		view models.ReadingOrderView
		desc sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, name, description FROM reading_orders WHERE id = ? AND user_id = ?`, id, ownerID).
		Scan(&view.ID, &view.UserID, &view.Name, &desc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load reading order: %w", err)
	}
	view.Description = desc.String

	rows, err := q.QueryContext(ctx, `
		SELECT sb.id, sb.name, roi.order_index, sb.status
		FROM reading_order_items roi
		JOIN story_blocks sb ON sb.id = roi.story_block_id
		WHERE roi.reading_order_id = ? AND sb.user_id = ?
		ORDER BY roi.order_index, sb.name
	`, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query reading order items: %w", err)
	}
	defer rows.Close()

	view.Items = []models.ReadingOrderItem{}
	var statuses []models.StoryBlockStatus
	for rows.Next() {
		var (
			item models.ReadingOrderItem
			st   string
		)
		if err := rows.Scan(&item.StoryBlockID, &item.Name, &item.OrderIndex, &st); err != nil {
			return nil, fmt.Errorf("scan reading order item: %w", err)
		}
		item.Status = models.StoryBlockStatus(st)
		if !item.Status.Valid() {
			item.Status = models.StoryBlockNotStarted
		}
		view.Items = append(view.Items, item)
		statuses = append(statuses, item.Status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows reading order items: %w", err)
	}
	view.Status = status.ForReadingOrder(statuses)
	return &view, nil
}

type Handler struct {
	DB *sql.DB
}

func NewHandler(db *sql.DB) *Handler {
	return &Handler{DB: db}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/reading-orders/:id", h.get)
}

func (h *Handler) get(c *gin.Context) {
	owner, ok := auth.OwnerID(c)
	if !ok {
		return
	}
	view, err := Load(c.Request.Context(), h.DB, owner, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
