package merge

import (
	"context"
	"fmt"
	"strings"

	"comictracker/internal/storyblock"
	"comictracker/pkg/database"
)

// run carries the transaction and the bookkeeping of one merge call.
type run struct {
	ctx      context.Context
	q        database.Querier
	owner    string
	affected map[string]struct{}
}

func (r *run) markBlocks(ids ...string) {
	for _, id := range ids {
		r.affected[id] = struct{}{}
	}
}

// markBlocksOfIssues records every block containing one of the issues.
func (r *run) markBlocksOfIssues(issueIDs []string) error {
	blocks, err := storyblock.BlocksForIssues(r.ctx, r.q, r.owner, issueIDs)
	if err != nil {
		return err
	}
	r.markBlocks(blocks...)
	return nil
}

func (r *run) issueIDsWhere(column string, values []string) ([]string, error) {
	args := append([]any{r.owner}, database.StringArgs(values)...)
	rows, err := r.q.QueryContext(r.ctx,
		`SELECT id FROM issues WHERE user_id = ? AND `+column+` IN (`+database.Placeholders(len(values))+`) ORDER BY id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query issues by %s: %w", column, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan issue id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// repoint moves a foreign key on an owned table from any source to target.
func (r *run) repoint(table, column, target string, sources []string) error {
	args := append([]any{target, r.owner}, database.StringArgs(sources)...)
	_, err := r.q.ExecContext(r.ctx,
		`UPDATE `+table+` SET `+column+` = ? WHERE user_id = ? AND `+column+` IN (`+database.Placeholders(len(sources))+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("repoint %s.%s: %w", table, column, err)
	}
	return nil
}

// relink copies join rows from the source side to the target side, skipping
// rows the target already has, then deletes the source-side rows. keep lists
// the other columns of the join row that are copied unchanged.
func (r *run) relink(table, side, target string, sources []string, keep ...string) error {
	cols := strings.Join(keep, ", ")
	in := database.Placeholders(len(sources))

	insertArgs := append([]any{target}, database.StringArgs(sources)...)
	_, err := r.q.ExecContext(r.ctx,
		`INSERT OR IGNORE INTO `+table+` (`+side+`, `+cols+`)
		 SELECT ?, `+cols+` FROM `+table+` WHERE `+side+` IN (`+in+`)`,
		insertArgs...)
	if err != nil {
		return fmt.Errorf("relink %s: %w", table, err)
	}

	_, err = r.q.ExecContext(r.ctx,
		`DELETE FROM `+table+` WHERE `+side+` IN (`+in+`)`,
		database.StringArgs(sources)...)
	if err != nil {
		return fmt.Errorf("unlink %s: %w", table, err)
	}
	return nil
}

func (r *run) deleteOwned(table string, ids []string) error {
	args := append([]any{r.owner}, database.StringArgs(ids)...)
	_, err := r.q.ExecContext(r.ctx,
		`DELETE FROM `+table+` WHERE user_id = ? AND id IN (`+database.Placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

// mergeIssue collapses source into target: every story block, cast, event
// and reading session link moves over, then the source row is deleted.
func (r *run) mergeIssue(target, source string) error {
	if target == source {
		return nil
	}
	if err := r.markBlocksOfIssues([]string{target, source}); err != nil {
		return err
	}
	src := []string{source}
	steps := []struct {
		table, side string
		keep        []string
	}{
		{"story_block_issues", "issue_id", []string{"story_block_id"}},
		{"issue_characters", "issue_id", []string{"character_or_team_id"}},
		{"issue_events", "issue_id", []string{"event_id"}},
		{"reading_session_issues", "issue_id", []string{"reading_session_id"}},
	}
	for _, s := range steps {
		if err := r.relink(s.table, s.side, target, src, s.keep...); err != nil {
			return err
		}
	}
	return r.deleteOwned("issues", src)
}
