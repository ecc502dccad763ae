package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"comictracker/internal/comicvine"
	"comictracker/internal/ordering"
	"comictracker/internal/storyblock"
	"comictracker/pkg/database"
	"comictracker/pkg/models"
)

const issueColumns = `id, user_id, series_id, issue_number, issue_number_sort, title,
	release_date, reading_order_index, status, read_date, comicvine_id, notes`

// Issue resolves an issue record: external id, then (series, issue number),
// then create. Character and team credits are resolved and linked without
// duplicating existing links. Re-importing never resets reading status.
func (r *Resolver) Issue(ctx context.Context, rec *comicvine.Record) (*models.Issue, error) {
	if rec.Volume == nil || strings.TrimSpace(rec.Volume.Name) == "" {
		return nil, ErrMissingVolume
	}

	pubRec := rec.Volume.Publisher
	if pubRec == nil {
		pubRec = rec.Publisher
	}
	var publisherID string
	if pubRec != nil && strings.TrimSpace(pubRec.Name) != "" {
		p, err := r.Publisher(ctx, pubRec)
		if err != nil {
			return nil, err
		}
		publisherID = p.ID
	}
	series, err := r.Series(ctx, rec.Volume, publisherID)
	if err != nil {
		return nil, err
	}

	number := strings.TrimSpace(string(rec.IssueNumber))
	if number == "" {
		number = strconv.FormatInt(rec.ID.Int64(), 10)
	}
	sortKey := database.NullableFloat(ordering.ParseIssueNumber(number))
	title := database.NullableString(rec.Name)
	release := database.FormatDate(coverDate(rec.CoverDate))
	notes := rec.Description
	if strings.TrimSpace(notes) == "" {
		notes = rec.Deck
	}
	notesArg := database.NullableString(sanitizeText(notes))
	cvID := rec.ID.Ptr()

	var existing *models.Issue
	if cvID != nil {
		if existing, err = r.issueWhere(ctx, `comicvine_id = ?`, *cvID); err != nil {
			return nil, err
		}
		if existing != nil {
			if _, err := r.q.ExecContext(ctx, `
				UPDATE issues SET series_id = ?, issue_number = ?, issue_number_sort = ?,
					title = ?, release_date = ?, notes = ?
				WHERE id = ?
			`, series.ID, number, sortKey, title, release, notesArg, existing.ID); err != nil {
				return nil, fmt.Errorf("update issue: %w", err)
			}
		}
	}

	if existing == nil {
		if existing, err = r.issueWhere(ctx, `series_id = ? AND issue_number = ?`, series.ID, number); err != nil {
			return nil, err
		}
		if existing != nil {
			if _, err := r.q.ExecContext(ctx, `
				UPDATE issues SET comicvine_id = COALESCE(?, comicvine_id), issue_number_sort = ?,
					title = ?, release_date = ?, notes = ?
				WHERE id = ?
			`, database.NullableInt64(cvID), sortKey, title, release, notesArg, existing.ID); err != nil {
				return nil, fmt.Errorf("update issue: %w", err)
			}
		}
	}

	var id string
	if existing != nil {
		id = existing.ID
	} else {
		id = uuid.NewString()
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO issues (id, user_id, series_id, issue_number, issue_number_sort, title,
				release_date, status, comicvine_id, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, r.owner, series.ID, number, sortKey, title, release,
			string(models.IssueUnread), database.NullableInt64(cvID), notesArg); err != nil {
			return nil, fmt.Errorf("insert issue: %w", err)
		}
	}

	if err := r.linkCredits(ctx, id, rec); err != nil {
		return nil, err
	}
	return r.issueWhere(ctx, `id = ?`, id)
}

func (r *Resolver) linkCredits(ctx context.Context, issueID string, rec *comicvine.Record) error {
	credits := []struct {
		typ  models.CharacterType
		recs []comicvine.Record
	}{
		{models.TypeCharacter, rec.CharacterCredits},
		{models.TypeTeam, rec.TeamCredits},
	}
	for _, group := range credits {
		for i := range group.recs {
			credit := &group.recs[i]
			if strings.TrimSpace(credit.Name) == "" {
				continue
			}
			c, err := r.CharacterOrTeam(ctx, credit, group.typ)
			if err != nil {
				return err
			}
			if _, err := r.q.ExecContext(ctx,
				`INSERT OR IGNORE INTO issue_characters (issue_id, character_or_team_id) VALUES (?, ?)`,
				issueID, c.ID,
			); err != nil {
				return fmt.Errorf("link issue credit: %w", err)
			}
		}
	}
	return nil
}

func (r *Resolver) issueWhere(ctx context.Context, cond string, args ...any) (*models.Issue, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE user_id = ? AND `+cond+` ORDER BY rowid LIMIT 1`,
		append([]any{r.owner}, args...)...)
	issue, err := storyblock.ScanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func coverDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(database.DateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}
