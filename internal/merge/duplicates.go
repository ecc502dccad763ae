package merge

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"comictracker/pkg/database"
)

type DuplicateItem struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type DuplicateGroup struct {
	Key   string          `json:"key"`
	Items []DuplicateItem `json:"items"`
}

// Each query selects id, grouping scope, name and display label.
var duplicateQueries = map[Kind]string{
	KindPublishers: `SELECT id, '', name, name FROM publishers WHERE user_id = ?`,
	KindSeries: `SELECT s.id, s.publisher_id, s.name, s.name || ' (' || COALESCE(p.name, '') || ')'
		FROM series s LEFT JOIN publishers p ON p.id = s.publisher_id WHERE s.user_id = ?`,
	KindCharacters:  `SELECT id, type, name, name || ' (' || type || ')' FROM characters_or_teams WHERE user_id = ?`,
	KindEvents:      `SELECT id, '', name, name FROM events WHERE user_id = ?`,
	KindStoryBlocks: `SELECT id, '', name, name FROM story_blocks WHERE user_id = ?`,
	KindIssues: `SELECT i.id, i.series_id, i.issue_number, COALESCE(s.name, '') || ' #' || i.issue_number
		FROM issues i LEFT JOIN series s ON s.id = i.series_id WHERE i.user_id = ?`,
}

// FindDuplicates groups an owner's entities of one kind by normalized name.
// Series are grouped per publisher, characters per type, issues per series.
func FindDuplicates(ctx context.Context, q database.Querier, ownerID string, kind Kind) ([]DuplicateGroup, error) {
	query, ok := duplicateQueries[kind]
	if !ok {
		_, err := ParseKind(string(kind))
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	defer rows.Close()

	groups := map[string][]DuplicateItem{}
	var order []string
	for rows.Next() {
		var id, scope, name, label string
		if err := rows.Scan(&id, &scope, &name, &label); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		key := NormalizeKey(name)
		if scope != "" {
			key = scope + ":" + key
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], DuplicateItem{ID: id, Label: label})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", kind, err)
	}

	slices.Sort(order)
	out := []DuplicateGroup{}
	for _, key := range order {
		items := groups[key]
		if len(items) < 2 {
			continue
		}
		slices.SortFunc(items, func(a, b DuplicateItem) int { return strings.Compare(a.ID, b.ID) })
		out = append(out, DuplicateGroup{Key: key, Items: items})
	}
	return out, nil
}

// NormalizeKey case-folds s, turns every run of non letters or digits into a
// single space and trims the result.
func NormalizeKey(s string) string {
	s = cases.Fold().String(s)
	var b strings.Builder
	b.Grow(len(s))

	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevSpace = false
			continue
		}
		if !prevSpace {
			b.WriteRune(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
