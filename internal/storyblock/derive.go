package storyblock

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"comictracker/internal/status"
	"comictracker/pkg/database"
	"comictracker/pkg/models"
)

// CastMember is one character or team credited on an issue.
type CastMember struct {
	ID   string
	Type models.CharacterType
}

// IssueFacts is everything derivation needs to know about one issue.
type IssueFacts struct {
	ID              string
	Status          models.IssueStatus
	ReleaseDate     *time.Time
	SeriesStartYear *int
	Cast            []CastMember
}

// Derived is the state computed purely from a set of issues.
type Derived struct {
	StartYear    *int                    `json:"startYear"`
	EndYear      *int                    `json:"endYear"`
	Status       models.StoryBlockStatus `json:"status"`
	CharacterIDs []string                `json:"characterIds"`
	TeamIDs      []string                `json:"teamIds"`
}

// year prefers the release date and falls back to the series start year.
func (f IssueFacts) year() *int {
	if f.ReleaseDate != nil {
		y := f.ReleaseDate.UTC().Year()
		return &y
	}
	return f.SeriesStartYear
}

// Derive computes status, year range and cast. It has no side effects.
func Derive(issues []IssueFacts) Derived {
	d := Derived{CharacterIDs: []string{}, TeamIDs: []string{}}

	statuses := make([]models.IssueStatus, 0, len(issues))
	characters := map[string]struct{}{}
	teams := map[string]struct{}{}

	for _, issue := range issues {
		statuses = append(statuses, issue.Status)

		if y := issue.year(); y != nil {
			if d.StartYear == nil || *y < *d.StartYear {
				v := *y
				d.StartYear = &v
			}
			if d.EndYear == nil || *y > *d.EndYear {
				v := *y
				d.EndYear = &v
			}
		}

		for _, m := range issue.Cast {
			switch m.Type {
			case models.TypeCharacter:
				characters[m.ID] = struct{}{}
			case models.TypeTeam:
				teams[m.ID] = struct{}{}
			}
		}
	}

	d.Status = status.ForStoryBlock(statuses)
	for id := range characters {
		d.CharacterIDs = append(d.CharacterIDs, id)
	}
	for id := range teams {
		d.TeamIDs = append(d.TeamIDs, id)
	}
	slices.Sort(d.CharacterIDs)
	slices.Sort(d.TeamIDs)
	return d
}

// DeriveFromIssueIDs loads the owner's issues by id and derives state
// without writing anything. Ids the owner does not own are ignored.
func DeriveFromIssueIDs(ctx context.Context, q database.Querier, ownerID string, issueIDs []string) (Derived, error) {
	facts, err := loadFacts(ctx, q, ownerID, issueIDs)
	if err != nil {
		return Derived{}, err
	}
	return Derive(facts), nil
}

func loadFacts(ctx context.Context, q database.Querier, ownerID string, issueIDs []string) ([]IssueFacts, error) {
	issueIDs = dedupe(issueIDs)
	if len(issueIDs) == 0 {
		return nil, nil
	}

	args := append([]any{ownerID}, database.StringArgs(issueIDs)...)
	rows, err := q.QueryContext(ctx, `
		SELECT i.id, i.status, i.release_date, s.start_year
		FROM issues i
		JOIN series s ON s.id = i.series_id
		WHERE i.user_id = ? AND i.id IN (`+database.Placeholders(len(issueIDs))+`)
		ORDER BY i.id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query issue facts: %w", err)
	}
	defer rows.Close()

	var facts []IssueFacts
	index := map[string]int{}
	for rows.Next() {
		var (
			f         IssueFacts
			st        string
			release   sql.NullString
			startYear sql.NullInt64
		)
		if err := rows.Scan(&f.ID, &st, &release, &startYear); err != nil {
			return nil, fmt.Errorf("scan issue facts: %w", err)
		}
		f.Status = models.IssueStatus(st)
		f.ReleaseDate = database.ParseDate(release)
		f.SeriesStartYear = database.IntPtr(startYear)
		index[f.ID] = len(facts)
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows issue facts: %w", err)
	}
	if len(facts) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(facts))
	for _, f := range facts {
		ids = append(ids, f.ID)
	}
	castArgs := append([]any{ownerID}, database.StringArgs(ids)...)
	castRows, err := q.QueryContext(ctx, `
		SELECT ic.issue_id, c.id, c.type
		FROM issue_characters ic
		JOIN characters_or_teams c ON c.id = ic.character_or_team_id
		WHERE c.user_id = ? AND ic.issue_id IN (`+database.Placeholders(len(ids))+`)
	`, castArgs...)
	if err != nil {
		return nil, fmt.Errorf("query issue cast: %w", err)
	}
	defer castRows.Close()

	for castRows.Next() {
		var issueID, charID, typ string
		if err := castRows.Scan(&issueID, &charID, &typ); err != nil {
			return nil, fmt.Errorf("scan issue cast: %w", err)
		}
		i := index[issueID]
		facts[i].Cast = append(facts[i].Cast, CastMember{ID: charID, Type: models.CharacterType(typ)})
	}
	if err := castRows.Err(); err != nil {
		return nil, fmt.Errorf("rows issue cast: %w", err)
	}
	return facts, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
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
