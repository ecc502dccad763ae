package merge

import (
	"database/sql"
	"errors"
	"fmt"

	"comictracker/pkg/database"
	"comictracker/pkg/models"
)

// strategy is the per-kind relinking rule. Validation of ownership happens in
// the engine before apply is called.
type strategy interface {
	table() string
	// check runs kind-specific validation after target and sources are known to exist.
	check(r *run, target string, sources []string) error
	apply(r *run, target string, sources []string) error
}

var strategies = map[Kind]strategy{
	KindPublishers:  publisherStrategy{},
	KindSeries:      seriesStrategy{},
	KindCharacters:  characterStrategy{},
	KindEvents:      eventStrategy{},
	KindStoryBlocks: storyBlockStrategy{},
	KindIssues:      issueStrategy{},
}

type noCheck struct{}

func (noCheck) check(*run, string, []string) error { return nil }

type publisherStrategy struct{ noCheck }

func (publisherStrategy) table() string { return "publishers" }

func (publisherStrategy) apply(r *run, target string, sources []string) error {
	for _, child := range []string{"series", "events", "characters_or_teams", "story_blocks"} {
		if err := r.repoint(child, "publisher_id", target, sources); err != nil {
			return err
		}
	}
	return r.deleteOwned("publishers", sources)
}

type seriesStrategy struct{ noCheck }

func (seriesStrategy) table() string { return "series" }

// apply collapses same-numbered issues instead of repointing them, so the
// target never ends up with two issues carrying one number.
func (seriesStrategy) apply(r *run, target string, sources []string) error {
	issues, err := r.issueIDsWhere("series_id", sources)
	if err != nil {
		return err
	}
	// repointed issues now fall back to the target's start year
	if err := r.markBlocksOfIssues(issues); err != nil {
		return err
	}

	for _, issueID := range issues {
		var number string
		if err := r.q.QueryRowContext(r.ctx,
			`SELECT issue_number FROM issues WHERE id = ?`, issueID,
		).Scan(&number); err != nil {
			return fmt.Errorf("load issue number: %w", err)
		}

		var existing string
		err := r.q.QueryRowContext(r.ctx, `
			SELECT id FROM issues
			WHERE user_id = ? AND series_id = ? AND issue_number = ? AND id != ?
			ORDER BY id LIMIT 1
		`, r.owner, target, number, issueID).Scan(&existing)
		switch {
		case err == nil:
			if err := r.mergeIssue(existing, issueID); err != nil {
				return err
			}
		case errors.Is(err, sql.ErrNoRows):
			if _, err := r.q.ExecContext(r.ctx,
				`UPDATE issues SET series_id = ? WHERE id = ? AND user_id = ?`, target, issueID, r.owner,
			); err != nil {
				return fmt.Errorf("repoint issue series: %w", err)
			}
		default:
			return fmt.Errorf("find target issue: %w", err)
		}
	}

	if err := r.relink("story_block_series", "series_id", target, sources, "story_block_id"); err != nil {
		return err
	}
	return r.deleteOwned("series", sources)
}

type characterStrategy struct{}

func (characterStrategy) table() string { return "characters_or_teams" }

func (characterStrategy) check(r *run, target string, sources []string) error {
	var typ string
	if err := r.q.QueryRowContext(r.ctx,
		`SELECT type FROM characters_or_teams WHERE id = ? AND user_id = ?`, target, r.owner,
	).Scan(&typ); err != nil {
		return fmt.Errorf("load target type: %w", err)
	}
	args := append([]any{r.owner, typ}, database.StringArgs(sources)...)
	var mismatched int
	if err := r.q.QueryRowContext(r.ctx,
		`SELECT COUNT(*) FROM characters_or_teams WHERE user_id = ? AND type != ? AND id IN (`+database.Placeholders(len(sources))+`)`,
		args...,
	).Scan(&mismatched); err != nil {
		return fmt.Errorf("check source types: %w", err)
	}
	if mismatched > 0 {
		return ErrTypeMismatch
	}
	return nil
}

func (characterStrategy) apply(r *run, target string, sources []string) error {
	var typ string
	if err := r.q.QueryRowContext(r.ctx,
		`SELECT type FROM characters_or_teams WHERE id = ?`, target,
	).Scan(&typ); err != nil {
		return fmt.Errorf("load target type: %w", err)
	}

	credited, err := r.creditedIssues(sources)
	if err != nil {
		return err
	}
	if err := r.markBlocksOfIssues(credited); err != nil {
		return err
	}

	if err := r.relink("story_block_characters", "character_or_team_id", target, sources, "story_block_id"); err != nil {
		return err
	}
	if err := r.relink("issue_characters", "character_or_team_id", target, sources, "issue_id"); err != nil {
		return err
	}

	switch models.CharacterType(typ) {
	case models.TypeCharacter:
		if err := r.relink("character_teams", "character_id", target, sources, "team_id"); err != nil {
			return err
		}
	case models.TypeTeam:
		if err := r.relink("character_teams", "team_id", target, sources, "character_id"); err != nil {
			return err
		}
	}
	return r.deleteOwned("characters_or_teams", sources)
}

func (r *run) creditedIssues(characterIDs []string) ([]string, error) {
	rows, err := r.q.QueryContext(r.ctx,
		`SELECT DISTINCT issue_id FROM issue_characters WHERE character_or_team_id IN (`+database.Placeholders(len(characterIDs))+`)`,
		database.StringArgs(characterIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query credited issues: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan credited issue: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type eventStrategy struct{ noCheck }

func (eventStrategy) table() string { return "events" }

func (eventStrategy) apply(r *run, target string, sources []string) error {
	if err := r.repoint("story_blocks", "event_id", target, sources); err != nil {
		return err
	}
	if err := r.relink("issue_events", "event_id", target, sources, "issue_id"); err != nil {
		return err
	}
	return r.deleteOwned("events", sources)
}

type storyBlockStrategy struct{ noCheck }

func (storyBlockStrategy) table() string { return "story_blocks" }

func (storyBlockStrategy) apply(r *run, target string, sources []string) error {
	r.markBlocks(target)

	if err := r.relink("story_block_series", "story_block_id", target, sources, "series_id"); err != nil {
		return err
	}
	if err := r.relink("story_block_issues", "story_block_id", target, sources, "issue_id"); err != nil {
		return err
	}
	if err := r.relink("story_block_characters", "story_block_id", target, sources, "character_or_team_id"); err != nil {
		return err
	}
	if err := r.relink("reading_order_items", "story_block_id", target, sources, "reading_order_id", "order_index"); err != nil {
		return err
	}

	// A "previous" pointer that would now reference the target itself is cleared.
	args := append([]any{target, target, r.owner}, database.StringArgs(sources)...)
	if _, err := r.q.ExecContext(r.ctx, `
		UPDATE story_blocks
		SET previous_story_block_id = CASE WHEN id = ? THEN NULL ELSE ? END
		WHERE user_id = ? AND previous_story_block_id IN (`+database.Placeholders(len(sources))+`)
	`, args...); err != nil {
		return fmt.Errorf("repoint previous story block: %w", err)
	}
	return r.deleteOwned("story_blocks", sources)
}

type issueStrategy struct{ noCheck }

func (issueStrategy) table() string { return "issues" }

func (issueStrategy) apply(r *run, target string, sources []string) error {
	for _, src := range sources {
		if err := r.mergeIssue(target, src); err != nil {
			return err
		}
	}
	return nil
}
