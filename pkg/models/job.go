package models

import (
	"encoding/json"
	"time"
)

const JobTypeComicVineImport = "COMICVINE_IMPORT"

type Job struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      string          `json:"type"`
	Status    JobStatus       `json:"status"`
	Payload   json.RawMessage `json:"payload"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ImportPayload is the body of a COMICVINE_IMPORT job.
type ImportPayload struct {
	Resource      string   `json:"resource"`
	DetailURLs    []string `json:"detailUrls"`
	IncludeIssues bool     `json:"includeIssues"`
}

// ImportedRecord is one line of an import job result.
type ImportedRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type ImportResult struct {
	Imported            int              `json:"imported"`
	Results             []ImportedRecord `json:"results"`
	IncludeIssues       bool             `json:"includeIssues"`
	IssuesImported      int              `json:"issuesImported"`
	IssuesAttempted     int              `json:"issuesAttempted"`
	AffectedStoryBlocks []string         `json:"affectedStoryBlocks,omitempty"`
}
