// Package issues holds the issue mutations that change story block
// membership or derived state, each followed by a resync of the blocks it
// touched.
package issues

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"comictracker/internal/apperr"
	"comictracker/internal/logging"
	"comictracker/internal/ordering"
	"comictracker/internal/storyblock"
	"comictracker/pkg/database"
	"comictracker/pkg/models"
)

const issueColumns = `id, user_id, series_id, issue_number, issue_number_sort, title,
	release_date, reading_order_index, status, read_date, comicvine_id, notes`

var (
	ErrNotFound       = apperr.NotFound("issue_not_found", "issue not found")
	ErrSeriesNotFound = apperr.NotFound("series_not_found", "series not found")
	ErrEmptyNumber    = apperr.New(apperr.KindValidation, "issue_number_required", "issue number is required")
	ErrBadRange       = apperr.New(apperr.KindValidation, "invalid_issue_range", "start and end must be valid issue numbers")
)

type Notifier interface {
	BroadcastJSON(v any)
}

// ChangedEvent is broadcast after a committed issue mutation.
type ChangedEvent struct {
	Type                string    `json:"type"`
	UserID              string    `json:"user_id"`
	IssueIDs            []string  `json:"issue_ids"`
	AffectedStoryBlocks []string  `json:"affected_story_blocks"`
	At                  time.Time `json:"at"`
}

// Change reports what a mutation touched.
type Change struct {
	Updated             int64    `json:"updated"`
	AffectedStoryBlocks []string `json:"affectedStoryBlocks"`
}

type Service struct {
	DB       *sql.DB
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

func NewService(db *sql.DB, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{DB: db, Notifier: notifier, Logger: logging.OrDiscard(logger), Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) notify(ownerID string, issueIDs []string, ch *Change) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.BroadcastJSON(ChangedEvent{
		Type:                "issues.changed",
		UserID:              ownerID,
		IssueIDs:            issueIDs,
		AffectedStoryBlocks: ch.AffectedStoryBlocks,
		At:                  s.now().UTC(),
	})
}

// ListBySeries returns a series' issues in the shared display order.
func (s *Service) ListBySeries(ctx context.Context, ownerID, seriesID string) ([]models.Issue, error) {
	if err := s.requireSeries(ctx, ownerID, seriesID); err != nil {
		return nil, err
	}
	out, err := queryIssues(ctx, s.DB,
		`SELECT `+issueColumns+` FROM issues WHERE user_id = ? AND series_id = ?`, ownerID, seriesID)
	if err != nil {
		return nil, err
	}
	ordering.Sort(out)
	return out, nil
}

// Range returns the series' issues whose numeric key lies between the keys of
// start and end, inclusive and in either order.
func (s *Service) Range(ctx context.Context, ownerID, seriesID, start, end string) ([]models.Issue, error) {
	lo, hi := ordering.ParseIssueNumber(start), ordering.ParseIssueNumber(end)
	if lo == nil || hi == nil {
		return nil, ErrBadRange
	}
	if *lo > *hi {
		lo, hi = hi, lo
	}
	all, err := s.ListBySeries(ctx, ownerID, seriesID)
	if err != nil {
		return nil, err
	}
	out := []models.Issue{}
	for _, i := range all {
		v := ordering.SortValue(i)
		if v != nil && *v >= *lo && *v <= *hi {
			out = append(out, i)
		}
	}
	return out, nil
}

// SetStatus updates many issues at once and resyncs every block containing
// one of them. FINISHED keeps an existing read date and stamps one otherwise.
func (s *Service) SetStatus(ctx context.Context, ownerID string, issueIDs []string, status models.IssueStatus) (*Change, error) {
	if !status.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("invalid issue status %q", string(status)))
	}
	issueIDs = dedupe(issueIDs)
	if len(issueIDs) == 0 {
		return &Change{AffectedStoryBlocks: []string{}}, nil
	}

	var ch Change
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		ch = Change{}
		args := []any{string(status)}
		set := `status = ?`
		if status == models.IssueFinished {
			set += `, read_date = COALESCE(read_date, ?)`
			args = append(args, s.now().UTC().Format(time.RFC3339))
		}
		args = append(args, ownerID)
		args = append(args, database.StringArgs(issueIDs)...)
		res, err := tx.ExecContext(ctx,
			`UPDATE issues SET `+set+` WHERE user_id = ? AND id IN (`+database.Placeholders(len(issueIDs))+`)`,
			args...)
		if err != nil {
			return fmt.Errorf("update issue status: %w", err)
		}
		ch.Updated, _ = res.RowsAffected()
		return resyncFor(ctx, tx, ownerID, issueIDs, nil, &ch)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("issue status updated", "status", status, "issues", ch.Updated, "story_blocks", len(ch.AffectedStoryBlocks))
	s.notify(ownerID, issueIDs, &ch)
	return &ch, nil
}

// SetNumber renames an issue and recomputes its numeric sort key. Derived
// block state does not depend on the number, so nothing is resynced.
func (s *Service) SetNumber(ctx context.Context, ownerID, issueID, number string) (*models.Issue, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, ErrEmptyNumber
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE issues SET issue_number = ?, issue_number_sort = ? WHERE id = ? AND user_id = ?`,
		number, database.NullableFloat(ordering.ParseIssueNumber(number)), issueID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("update issue number: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, ownerID, issueID)
}

func (s *Service) Get(ctx context.Context, ownerID, issueID string) (*models.Issue, error) {
	issue, err := storyblock.ScanIssue(s.DB.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = ? AND user_id = ?`, issueID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// SetStoryBlocks replaces the blocks an issue belongs to. Blocks the owner
// does not own are dropped. Both the old and the new blocks are resynced.
func (s *Service) SetStoryBlocks(ctx context.Context, ownerID, issueID string, blockIDs []string) (*Change, error) {
	var ch Change
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		ch = Change{}
		if err := requireIssue(ctx, tx, ownerID, issueID); err != nil {
			return err
		}
		before, err := storyblock.BlocksForIssues(ctx, tx, ownerID, []string{issueID})
		if err != nil {
			return err
		}
		owned, err := ownedBlocks(ctx, tx, ownerID, blockIDs)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM story_block_issues
			WHERE issue_id = ? AND story_block_id IN (SELECT id FROM story_blocks WHERE user_id = ?)
		`, issueID, ownerID); err != nil {
			return fmt.Errorf("clear issue story blocks: %w", err)
		}
		for _, b := range owned {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO story_block_issues (story_block_id, issue_id) VALUES (?, ?)`, b, issueID); err != nil {
				return fmt.Errorf("link issue story block: %w", err)
			}
		}
		ch.Updated = int64(len(owned))
		return resyncFor(ctx, tx, ownerID, []string{issueID}, before, &ch)
	})
	if err != nil {
		return nil, err
	}
	s.notify(ownerID, []string{issueID}, &ch)
	return &ch, nil
}

// Delete removes an issue and resyncs the blocks it belonged to.
func (s *Service) Delete(ctx context.Context, ownerID, issueID string) (*Change, error) {
	var ch Change
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		ch = Change{}
		before, err := storyblock.BlocksForIssues(ctx, tx, ownerID, []string{issueID})
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM issues WHERE id = ? AND user_id = ?`, issueID, ownerID)
		if err != nil {
			return fmt.Errorf("delete issue: %w", err)
		}
		if ch.Updated, _ = res.RowsAffected(); ch.Updated == 0 {
			return ErrNotFound
		}
		return resyncFor(ctx, tx, ownerID, nil, before, &ch)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("issue deleted", "issue_id", issueID, "story_blocks", len(ch.AffectedStoryBlocks))
	s.notify(ownerID, []string{issueID}, &ch)
	return &ch, nil
}

// resyncFor syncs the blocks currently holding issueIDs plus extra.
func resyncFor(ctx context.Context, q database.Querier, ownerID string, issueIDs, extra []string, ch *Change) error {
	current, err := storyblock.BlocksForIssues(ctx, q, ownerID, issueIDs)
	if err != nil {
		return err
	}
	blocks := dedupe(append(append([]string{}, extra...), current...))
	if err := storyblock.SyncAll(ctx, q, ownerID, blocks); err != nil {
		return err
	}
	if blocks == nil {
		blocks = []string{}
	}
	ch.AffectedStoryBlocks = blocks
	return nil
}

func (s *Service) requireSeries(ctx context.Context, ownerID, seriesID string) error {
	var one int
	err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM series WHERE id = ? AND user_id = ?`, seriesID, ownerID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSeriesNotFound
	}
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}
	return nil
}

func requireIssue(ctx context.Context, q database.Querier, ownerID, issueID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM issues WHERE id = ? AND user_id = ?`, issueID, ownerID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load issue: %w", err)
	}
	return nil
}

func ownedBlocks(ctx context.Context, q database.Querier, ownerID string, blockIDs []string) ([]string, error) {
	blockIDs = dedupe(blockIDs)
	if len(blockIDs) == 0 {
		return nil, nil
	}
	args := append([]any{ownerID}, database.StringArgs(blockIDs)...)
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM story_blocks WHERE user_id = ? AND id IN (`+database.Placeholders(len(blockIDs))+`) ORDER BY id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query owned story blocks: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan story block id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func queryIssues(ctx context.Context, q database.Querier, query string, args ...any) ([]models.Issue, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()
	out := []models.Issue{}
	for rows.Next() {
		issue, err := storyblock.ScanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, issue)
	}
	return out, rows.Err()
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
