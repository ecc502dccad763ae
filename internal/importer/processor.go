// Package importer runs COMICVINE_IMPORT jobs: every record is fetched first,
// then all resolutions are applied in one transaction.
package importer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"comictracker/internal/apperr"
	"comictracker/internal/comicvine"
	"comictracker/internal/logging"
	"comictracker/internal/resolver"
	"comictracker/internal/storyblock"
	"comictracker/pkg/database"
	"comictracker/pkg/models"
)

var ErrMissingKey = apperr.New(apperr.KindValidation, "comicvine_key_missing", "ComicVine API key is missing")

// Fetcher is the part of the ComicVine client the processor needs.
type Fetcher interface {
	Detail(ctx context.Context, apiKey, detailURL string) (*comicvine.Record, error)
	IssueURLsForVolume(ctx context.Context, apiKey string, volumeID int64) ([]string, error)
}

// KeyStore looks up an owner's ComicVine API key.
type KeyStore interface {
	ComicVineKey(ctx context.Context, ownerID string) (string, error)
}

type Processor struct {
	DB      *sql.DB
	Fetcher Fetcher
	Keys    KeyStore
	Logger  *slog.Logger
}

func NewProcessor(db *sql.DB, fetcher Fetcher, keys KeyStore, logger *slog.Logger) *Processor {
	return &Processor{DB: db, Fetcher: fetcher, Keys: keys, Logger: logging.OrDiscard(logger)}
}

type fetched struct {
	record    *comicvine.Record
	issues    []*comicvine.Record
	attempted int
}

// Process implements the job worker's processor contract.
func (p *Processor) Process(ctx context.Context, job *models.Job) (any, error) {
	key, err := p.Keys.ComicVineKey(ctx, job.UserID)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrMissingKey
	}

	var payload models.ImportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode import payload: %w", err)
	}
	if !comicvine.ValidResource(payload.Resource) {
		return nil, apperr.Validation(fmt.Sprintf("unsupported ComicVine resource: %s", payload.Resource))
	}

	items, err := p.fetchAll(ctx, key, payload)
	if err != nil {
		return nil, err
	}

	var result *models.ImportResult
	err = database.WithTx(ctx, p.DB, func(tx *sql.Tx) error {
		var err error
		result, err = apply(ctx, tx, job.UserID, payload, items)
		return err
	})
	if err != nil {
		return nil, err
	}

	logging.OrDiscard(p.Logger).Info("comicvine import applied",
		"job_id", job.ID,
		"resource", payload.Resource,
		"imported", result.Imported,
		"issues_imported", result.IssuesImported,
		"story_blocks_resynced", len(result.AffectedStoryBlocks),
	)
	return result, nil
}

// fetchAll does every network call up front, so a fetch failure leaves the
// catalog untouched.
func (p *Processor) fetchAll(ctx context.Context, key string, payload models.ImportPayload) ([]fetched, error) {
	out := make([]fetched, 0, len(payload.DetailURLs))
	for _, u := range payload.DetailURLs {
		rec, err := p.Fetcher.Detail(ctx, key, u)
		if err != nil {
			return nil, err
		}
		item := fetched{record: rec}

		if payload.Resource == "volume" && payload.IncludeIssues {
			urls, err := p.Fetcher.IssueURLsForVolume(ctx, key, rec.ID.Int64())
			if err != nil {
				return nil, err
			}
			item.attempted = len(urls)
			for _, iu := range urls {
				issue, err := p.Fetcher.Detail(ctx, key, iu)
				if err != nil {
					return nil, err
				}
				item.issues = append(item.issues, issue)
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func apply(ctx context.Context, q database.Querier, ownerID string, payload models.ImportPayload, items []fetched) (*models.ImportResult, error) {
	r := resolver.New(q, ownerID)
	res := &models.ImportResult{Results: []models.ImportedRecord{}, IncludeIssues: payload.IncludeIssues}
	var issueIDs []string

	for _, item := range items {
		rec, err := r.Resource(ctx, payload.Resource, item.record)
		if err != nil {
			return nil, err
		}
		res.Results = append(res.Results, rec)
		if payload.Resource == "issue" {
			issueIDs = append(issueIDs, rec.ID)
		}

		res.IssuesAttempted += item.attempted
		for _, ir := range item.issues {
			issue, err := r.Issue(ctx, ir)
			if err != nil {
				return nil, err
			}
			res.Results = append(res.Results, models.ImportedRecord{ID: issue.ID, Name: "#" + issue.IssueNumber, Type: "issue"})
			res.IssuesImported++
			issueIDs = append(issueIDs, issue.ID)
		}
	}
	res.Imported = len(res.Results)

	// imported issues may already sit in story blocks whose derived state is now stale
	blocks, err := storyblock.BlocksForIssues(ctx, q, ownerID, issueIDs)
	if err != nil {
		return nil, err
	}
	if err := storyblock.SyncAll(ctx, q, ownerID, blocks); err != nil {
		return nil, err
	}
	res.AffectedStoryBlocks = blocks
	return res, nil
}
