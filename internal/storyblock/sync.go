package storyblock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"comictracker/internal/ordering"
	"comictracker/pkg/database"
	"comictracker/pkg/models"
)

// State is what a sync wrote: the derived values plus the year range that
// was actually persisted.
type State struct {
	StoryBlockID string `json:"storyBlockId"`
	Derived
	PersistedStartYear *int `json:"persistedStartYear"`
	PersistedEndYear   *int `json:"persistedEndYear"`
}

type storedYears struct {
	start sql.NullInt64
	end   sql.NullInt64
}

func loadYears(ctx context.Context, q database.Querier, ownerID, blockID string) (*storedYears, error) {
	var y storedYears
	err := q.QueryRowContext(ctx,
		`SELECT start_year, end_year FROM story_blocks WHERE id = ? AND user_id = ?`,
		blockID, ownerID,
	).Scan(&y.start, &y.end)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load story block: %w", err)
	}
	return &y, nil
}

// LinkedIssueIDs returns the owner's issues currently attached to the block.
func LinkedIssueIDs(ctx context.Context, q database.Querier, ownerID, blockID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT sbi.issue_id
		FROM story_block_issues sbi
		JOIN issues i ON i.id = sbi.issue_id
		WHERE sbi.story_block_id = ? AND i.user_id = ?
		ORDER BY sbi.issue_id
	`, blockID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query linked issues: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan linked issue: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BlocksForIssues returns the owner's story blocks containing any of the issues.
func BlocksForIssues(ctx context.Context, q database.Querier, ownerID string, issueIDs []string) ([]string, error) {
	issueIDs = dedupe(issueIDs)
	if len(issueIDs) == 0 {
		return nil, nil
	}
	args := append([]any{ownerID}, database.StringArgs(issueIDs)...)
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT sb.id
		FROM story_block_issues sbi
		JOIN story_blocks sb ON sb.id = sbi.story_block_id
		WHERE sb.user_id = ? AND sbi.issue_id IN (`+database.Placeholders(len(issueIDs))+`)
		ORDER BY sb.id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query blocks for issues: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan block id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Sync re-derives the block from its persisted issue links. It returns
// (nil, nil) when the block does not exist for the owner.
func Sync(ctx context.Context, q database.Querier, ownerID, blockID string) (*State, error) {
	years, err := loadYears(ctx, q, ownerID, blockID)
	if err != nil || years == nil {
		return nil, err
	}
	ids, err := LinkedIssueIDs(ctx, q, ownerID, blockID)
	if err != nil {
		return nil, err
	}
	return apply(ctx, q, ownerID, blockID, years, ids)
}

// SyncWithIssues re-derives the block from an explicit issue list, for callers
// that just changed membership inside the same transaction.
func SyncWithIssues(ctx context.Context, q database.Querier, ownerID, blockID string, issueIDs []string) (*State, error) {
	years, err := loadYears(ctx, q, ownerID, blockID)
	if err != nil || years == nil {
		return nil, err
	}
	return apply(ctx, q, ownerID, blockID, years, issueIDs)
}

// SyncAll syncs each block and skips ids that no longer exist.
func SyncAll(ctx context.Context, q database.Querier, ownerID string, blockIDs []string) error {
	for _, id := range dedupe(blockIDs) {
		if _, err := Sync(ctx, q, ownerID, id); err != nil {
			return fmt.Errorf("sync story block %s: %w", id, err)
		}
	}
	return nil
}

func apply(ctx context.Context, q database.Querier, ownerID, blockID string, stored *storedYears, issueIDs []string) (*State, error) {
	derived, err := DeriveFromIssueIDs(ctx, q, ownerID, issueIDs)
	if err != nil {
		return nil, err
	}

	st := &State{StoryBlockID: blockID, Derived: derived}

	// Manual years survive until some issue supplies a year.
	if derived.StartYear != nil {
		st.PersistedStartYear = derived.StartYear
		st.PersistedEndYear = derived.EndYear
	} else {
		st.PersistedStartYear = database.IntPtr(stored.start)
		st.PersistedEndYear = database.IntPtr(stored.end)
	}

	if _, err := q.ExecContext(ctx, `
		UPDATE story_blocks SET status = ?, start_year = ?, end_year = ?
		WHERE id = ? AND user_id = ?
	`, string(derived.Status), database.NullableInt(st.PersistedStartYear), database.NullableInt(st.PersistedEndYear),
		blockID, ownerID); err != nil {
		return nil, fmt.Errorf("update story block: %w", err)
	}

	// The cast is rewritten from scratch on every sync; hand-added links that
	// no attached issue carries are dropped.
	if _, err := q.ExecContext(ctx, `DELETE FROM story_block_characters WHERE story_block_id = ?`, blockID); err != nil {
		return nil, fmt.Errorf("clear story block cast: %w", err)
	}
	for _, id := range append(append([]string{}, derived.CharacterIDs...), derived.TeamIDs...) {
		if _, err := q.ExecContext(ctx, `
			INSERT OR IGNORE INTO story_block_characters (story_block_id, character_or_team_id) VALUES (?, ?)
		`, blockID, id); err != nil {
			return nil, fmt.Errorf("insert story block cast: %w", err)
		}
	}
	return st, nil
}

// SetIssues replaces the block's issue membership and re-derives from the
// new list. Ids not owned by ownerID are dropped.
func SetIssues(ctx context.Context, q database.Querier, ownerID, blockID string, issueIDs []string) (*State, error) {
	years, err := loadYears(ctx, q, ownerID, blockID)
	if err != nil || years == nil {
		return nil, err
	}

	owned, err := ownedIssueIDs(ctx, q, ownerID, issueIDs)
	if err != nil {
		return nil, err
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM story_block_issues WHERE story_block_id = ?`, blockID); err != nil {
		return nil, fmt.Errorf("clear story block issues: %w", err)
	}
	for _, id := range owned {
		if _, err := q.ExecContext(ctx, `
			INSERT OR IGNORE INTO story_block_issues (story_block_id, issue_id) VALUES (?, ?)
		`, blockID, id); err != nil {
			return nil, fmt.Errorf("link story block issue: %w", err)
		}
	}
	return apply(ctx, q, ownerID, blockID, years, owned)
}

func ownedIssueIDs(ctx context.Context, q database.Querier, ownerID string, issueIDs []string) ([]string, error) {
	issueIDs = dedupe(issueIDs)
	if len(issueIDs) == 0 {
		return nil, nil
	}
	args := append([]any{ownerID}, database.StringArgs(issueIDs)...)
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM issues WHERE user_id = ? AND id IN (`+database.Placeholders(len(issueIDs))+`) ORDER BY id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query owned issues: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owned issue: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// FinishResult reports how many issues the finish action touched.
type FinishResult struct {
	Updated int64  `json:"updated"`
	State   *State `json:"state"`
}

// Finish marks every attached issue FINISHED and then re-derives. It is the
// one path that changes a block's status by mutating issues first.
func Finish(ctx context.Context, q database.Querier, ownerID, blockID string, now time.Time) (*FinishResult, error) {
	years, err := loadYears(ctx, q, ownerID, blockID)
	if err != nil || years == nil {
		return nil, err
	}
	ids, err := LinkedIssueIDs(ctx, q, ownerID, blockID)
	if err != nil {
		return nil, err
	}

	var updated int64
	if len(ids) > 0 {
		args := append([]any{string(models.IssueFinished), now.UTC().Format(time.RFC3339), ownerID}, database.StringArgs(ids)...)
		res, err := q.ExecContext(ctx, `
			UPDATE issues SET status = ?, read_date = ?
			WHERE user_id = ? AND id IN (`+database.Placeholders(len(ids))+`)
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("finish issues: %w", err)
		}
		updated, _ = res.RowsAffected()
	}

	st, err := apply(ctx, q, ownerID, blockID, years, ids)
	if err != nil {
		return nil, err
	}
	return &FinishResult{Updated: updated, State: st}, nil
}

// Metrics summarizes reading progress through a block.
type Metrics struct {
	TotalIssues       int           `json:"totalIssues"`
	FinishedIssues    int           `json:"finishedIssues"`
	CompletionPercent int           `json:"completionPercent"`
	NextIssue         *models.Issue `json:"nextIssue"`
}

// ComputeMetrics counts FINISHED issues and picks the next unread one with
// the shared issue ordering.
func ComputeMetrics(issues []models.Issue) Metrics {
	m := Metrics{TotalIssues: len(issues)}
	for _, i := range issues {
		if i.Status == models.IssueFinished {
			m.FinishedIssues++
		}
	}
	if m.TotalIssues > 0 {
		m.CompletionPercent = int(float64(m.FinishedIssues)/float64(m.TotalIssues)*100 + 0.5)
	}
	if next := ordering.NextUnread(issues); next != nil {
		n := *next
		m.NextIssue = &n
	}
	return m
}

// LoadMetrics returns (nil, nil) when the block does not exist for the owner.
func LoadMetrics(ctx context.Context, q database.Querier, ownerID, blockID string) (*Metrics, error) {
	years, err := loadYears(ctx, q, ownerID, blockID)
	if err != nil || years == nil {
		return nil, err
	}
	issues, err := Issues(ctx, q, ownerID, blockID)
	if err != nil {
		return nil, err
	}
	m := ComputeMetrics(issues)
	return &m, nil
}

// Issues returns the block's issues in display order.
func Issues(ctx context.Context, q database.Querier, ownerID, blockID string) ([]models.Issue, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT i.id, i.user_id, i.series_id, i.issue_number, i.issue_number_sort, i.title,
		       i.release_date, i.reading_order_index, i.status, i.read_date, i.comicvine_id, i.notes
		FROM story_block_issues sbi
		JOIN issues i ON i.id = sbi.issue_id
		WHERE sbi.story_block_id = ? AND i.user_id = ?
	`, blockID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query block issues: %w", err)
	}
	defer rows.Close()

	var out []models.Issue
	for rows.Next() {
		issue, err := ScanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows block issues: %w", err)
	}
	ordering.Sort(out)
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// ScanIssue reads the column list used by Issues.
func ScanIssue(row scanner) (models.Issue, error) {
	var (
		i         models.Issue
		sortKey   sql.NullFloat64
		title     sql.NullString
		release   sql.NullString
		roi       sql.NullInt64
		st        string
		readDate  sql.NullString
		comicVine sql.NullInt64
		notes     sql.NullString
	)
	if err := row.Scan(&i.ID, &i.UserID, &i.SeriesID, &i.IssueNumber, &sortKey, &title,
		&release, &roi, &st, &readDate, &comicVine, &notes); err != nil {
		return models.Issue{}, fmt.Errorf("scan issue: %w", err)
	}
	i.IssueNumberSort = database.FloatPtr(sortKey)
	i.Title = title.String
	i.ReleaseDate = database.ParseDate(release)
	i.ReadingOrderIndex = database.IntPtr(roi)
	i.Status = models.IssueStatus(st)
	i.ReadDate = database.ParseDate(readDate)
	i.ComicVineID = database.Int64Ptr(comicVine)
	i.Notes = notes.String
	return i, nil
}
