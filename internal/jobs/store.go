// Package jobs is the persistent background job queue and its single consumer.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"comictracker/internal/apperr"
	"comictracker/internal/comicvine"
	"comictracker/pkg/models"
)

const jobColumns = `id, user_id, type, status, payload, result, error, created_at, updated_at`

// timeLayout is fixed width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var ErrNotFound = apperr.NotFound("job_not_found", "job not found")

type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, Now: time.Now}
}

func (s *Store) now() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().UTC().Format(timeLayout)
}

// Enqueue stores a PENDING job of any type.
func (s *Store) Enqueue(ctx context.Context, ownerID, jobType string, payload any) (*models.Job, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	id := uuid.NewString()
	now := s.now()
	if _, err := s.DB.ExecContext(ctx, `
		INSERT INTO jobs (id, user_id, type, status, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, ownerID, jobType, string(models.JobPending), string(b), now, now); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.Get(ctx, ownerID, id)
}

// EnqueueImport validates and stores a COMICVINE_IMPORT job.
func (s *Store) EnqueueImport(ctx context.Context, ownerID, resource string, detailURLs []string, includeIssues bool) (*models.Job, error) {
	if !comicvine.ValidResource(resource) {
		return nil, apperr.Validation("resource must be one of " + strings.Join(comicvine.Resources, ", "))
	}
	if len(detailURLs) == 0 {
		return nil, apperr.Validation("detailUrls must contain at least one url")
	}
	for _, raw := range detailURLs {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, apperr.Validation(fmt.Sprintf("invalid detail url %q", raw))
		}
	}
	return s.Enqueue(ctx, ownerID, models.JobTypeComicVineImport, models.ImportPayload{
		Resource:      resource,
		DetailURLs:    detailURLs,
		IncludeIssues: includeIssues,
	})
}

// Get returns the owner's job, or nil when absent.
func (s *Store) Get(ctx context.Context, ownerID, id string) (*models.Job, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ? AND user_id = ?`, id, ownerID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// List returns jobs newest first. An empty ownerID lists every owner's jobs.
func (s *Store) List(ctx context.Context, ownerID string, limit int) ([]models.Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if ownerID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := []models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

// OldestPending returns the next job to run across all owners.
func (s *Store) OldestPending(ctx context.Context) (*models.Job, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at, rowid LIMIT 1`,
		string(models.JobPending))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// Claim moves a job from PENDING to RUNNING. It reports false when the job
// was no longer pending, meaning another consumer got there first.
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(models.JobRunning), s.now(), id, string(models.JobPending))
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job rows: %w", err)
	}
	return n == 1, nil
}

func (s *Store) Complete(ctx context.Context, id string, result any) error {
	var encoded any
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode job result: %w", err)
		}
		encoded = string(b)
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE jobs SET status = ?, result = ?, error = NULL, updated_at = ? WHERE id = ? AND status = ?`,
		string(models.JobCompleted), encoded, s.now(), id, string(models.JobRunning))
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

func (s *Store) Fail(ctx context.Context, id, message string) error {
	if strings.TrimSpace(message) == "" {
		message = "Job failed"
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(models.JobFailed), message, s.now(), id, string(models.JobRunning))
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*models.Job, error) {
	var (
		j                models.Job
		status, payload  string
		result, errMsg   sql.NullString
		created, updated string
	)
	if err := row.Scan(&j.ID, &j.UserID, &j.Type, &status, &payload, &result, &errMsg, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	j.Status = models.JobStatus(status)
	j.Payload = json.RawMessage(payload)
	if result.Valid && result.String != "" {
		j.Result = json.RawMessage(result.String)
	}
	j.Error = errMsg.String
	j.CreatedAt, _ = time.Parse(timeLayout, created)
	j.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &j, nil
}
