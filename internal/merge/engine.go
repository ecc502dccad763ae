// Package merge collapses duplicate catalog entities into a chosen target,
// relinking every dependent association inside one transaction.
package merge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"comictracker/internal/logging"
	"comictracker/internal/storyblock"
	"comictracker/pkg/database"
)

type Result struct {
	Kind                Kind     `json:"entity"`
	TargetID            string   `json:"targetId"`
	Merged              int      `json:"merged"`
	AffectedStoryBlocks []string `json:"affectedStoryBlocks"`
}

// Notifier receives an event after a merge commits.
type Notifier interface {
	BroadcastJSON(v any)
}

type MergedEvent struct {
	Type     string    `json:"type"`
	UserID   string    `json:"user_id"`
	Entity   Kind      `json:"entity"`
	TargetID string    `json:"target_id"`
	Merged   int       `json:"merged"`
	At       time.Time `json:"at"`
}

type Engine struct {
	DB       *sql.DB
	Notifier Notifier
	Logger   *slog.Logger
}

func NewEngine(db *sql.DB, notifier Notifier, logger *slog.Logger) *Engine {
	return &Engine{DB: db, Notifier: notifier, Logger: logging.OrDiscard(logger)}
}

// Merge runs MergeTx in its own transaction. Any failure leaves no partial effect.
func (e *Engine) Merge(ctx context.Context, ownerID string, kind Kind, targetID string, sourceIDs []string) (*Result, error) {
	var res *Result
	err := database.WithTx(ctx, e.DB, func(tx *sql.Tx) error {
		var err error
		res, err = MergeTx(ctx, tx, ownerID, kind, targetID, sourceIDs)
		return err
	})
	if err != nil {
		logging.OrDiscard(e.Logger).Warn("merge rejected",
			"entity", kind, "target_id", targetID, "sources", len(sourceIDs), "error", err)
		return nil, err
	}

	logging.OrDiscard(e.Logger).Info("merge applied",
		"entity", kind, "target_id", targetID, "merged", res.Merged, "story_blocks_resynced", len(res.AffectedStoryBlocks))
	if e.Notifier != nil {
		e.Notifier.BroadcastJSON(MergedEvent{
			Type: "merge.completed", UserID: ownerID, Entity: kind,
			TargetID: targetID, Merged: res.Merged, At: time.Now().UTC(),
		})
	}
	return res, nil
}

// MergeTx validates and applies a merge on the caller's transaction, then
// re-syncs every story block whose membership or issue data changed.
func MergeTx(ctx context.Context, q database.Querier, ownerID string, kind Kind, targetID string, sourceIDs []string) (*Result, error) {
	strat, ok := strategies[kind]
	if !ok {
		_, err := ParseKind(string(kind))
		return nil, err
	}

	sources := normalizeSources(targetID, sourceIDs)
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	r := &run{ctx: ctx, q: q, owner: ownerID, affected: map[string]struct{}{}}

	exists, err := r.countOwned(strat.table(), []string{targetID})
	if err != nil {
		return nil, err
	}
	if exists != 1 {
		return nil, ErrTargetNotFound
	}
	found, err := r.countOwned(strat.table(), sources)
	if err != nil {
		return nil, err
	}
	if found != len(sources) {
		return nil, ErrSourcesNotFound
	}
	if err := strat.check(r, targetID, sources); err != nil {
		return nil, err
	}

	if err := strat.apply(r, targetID, sources); err != nil {
		return nil, fmt.Errorf("merge %s: %w", kind, err)
	}

	affected := make([]string, 0, len(r.affected))
	for id := range r.affected {
		affected = append(affected, id)
	}
	slices.Sort(affected)

	// blocks deleted by the merge come back as nil and are skipped
	synced := make([]string, 0, len(affected))
	for _, id := range affected {
		st, err := storyblock.Sync(ctx, q, ownerID, id)
		if err != nil {
			return nil, fmt.Errorf("resync story block %s: %w", id, err)
		}
		if st != nil {
			synced = append(synced, id)
		}
	}

	return &Result{Kind: kind, TargetID: targetID, Merged: len(sources), AffectedStoryBlocks: synced}, nil
}

func normalizeSources(target string, ids []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == target {
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

func (r *run) countOwned(table string, ids []string) (int, error) {
	args := append([]any{r.owner}, database.StringArgs(ids)...)
	var n int
	err := r.q.QueryRowContext(r.ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE user_id = ? AND id IN (`+database.Placeholders(len(ids))+`)`,
		args...,
	).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
