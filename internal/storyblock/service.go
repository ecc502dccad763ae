package storyblock

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"comictracker/internal/apperr"
	"comictracker/internal/logging"
	"comictracker/pkg/database"
)

var ErrNotFound = apperr.NotFound("story_block_not_found", "story block not found")

// Notifier receives a JSON-serialisable event after a successful commit.
type Notifier interface {
	BroadcastJSON(v any)
}

// SyncedEvent is broadcast whenever a block's derived state is rewritten.
type SyncedEvent struct {
	Type         string    `json:"type"`
	UserID       string    `json:"user_id"`
	StoryBlockID string    `json:"story_block_id"`
	Status       string    `json:"status"`
	At           time.Time `json:"at"`
}

// Service runs every synchronizer call in its own transaction.
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

func (s *Service) notify(ownerID string, st *State) {
	if s.Notifier == nil || st == nil {
		return
	}
	s.Notifier.BroadcastJSON(SyncedEvent{
		Type:         "story_block.synced",
		UserID:       ownerID,
		StoryBlockID: st.StoryBlockID,
		Status:       string(st.Status),
		At:           s.now().UTC(),
	})
}

// Preview derives state for a prospective issue list without persisting.
func (s *Service) Preview(ctx context.Context, ownerID string, issueIDs []string) (Derived, error) {
	return DeriveFromIssueIDs(ctx, s.DB, ownerID, issueIDs)
}

func (s *Service) Sync(ctx context.Context, ownerID, blockID string) (*State, error) {
	var st *State
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		st, err = Sync(ctx, tx, ownerID, blockID)
		if err == nil && st == nil {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Debug("story block synced", "story_block_id", blockID, "status", st.Status)
	s.notify(ownerID, st)
	return st, nil
}

func (s *Service) SetIssues(ctx context.Context, ownerID, blockID string, issueIDs []string) (*State, error) {
	var st *State
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		st, err = SetIssues(ctx, tx, ownerID, blockID, issueIDs)
		if err == nil && st == nil {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notify(ownerID, st)
	return st, nil
}

func (s *Service) Finish(ctx context.Context, ownerID, blockID string) (*FinishResult, error) {
	var res *FinishResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		res, err = Finish(ctx, tx, ownerID, blockID, s.now())
		if err == nil && res == nil {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("story block finished", "story_block_id", blockID, "issues", res.Updated)
	s.notify(ownerID, res.State)
	return res, nil
}

func (s *Service) Metrics(ctx context.Context, ownerID, blockID string) (*Metrics, error) {
	m, err := LoadMetrics(ctx, s.DB, ownerID, blockID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

func (s *Service) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return database.WithTx(ctx, s.DB, fn)
}
