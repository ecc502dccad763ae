package models

import "fmt"

// Phase is the status-agnostic shape shared by issue and story block statuses.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseInProgress
	PhaseFinished
	PhaseSkipped
)

// Phased is implemented by every status enum that can be aggregated.
type Phased interface {
	Phase() Phase
}

type IssueStatus string

const (
	IssueUnread   IssueStatus = "UNREAD"
	IssueReading  IssueStatus = "READING"
	IssueFinished IssueStatus = "FINISHED"
	IssueSkipped  IssueStatus = "SKIPPED"
)

func (s IssueStatus) Phase() Phase {
	switch s {
	case IssueUnread:
		return PhaseNotStarted
	case IssueReading:
		return PhaseInProgress
	case IssueFinished:
		return PhaseFinished
	case IssueSkipped:
		return PhaseSkipped
	}
	panic(fmt.Sprintf("models: unknown issue status %q", string(s)))
}

func (s IssueStatus) Valid() bool {
	switch s {
	case IssueUnread, IssueReading, IssueFinished, IssueSkipped:
		return true
	}
	return false
}

// ParseIssueStatus validates raw input from callers.
func ParseIssueStatus(raw string) (IssueStatus, error) {
	s := IssueStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("invalid issue status %q", raw)
	}
	return s, nil
}

type StoryBlockStatus string

const (
	StoryBlockNotStarted StoryBlockStatus = "NOT_STARTED"
	StoryBlockReading    StoryBlockStatus = "READING"
	StoryBlockFinished   StoryBlockStatus = "FINISHED"
	StoryBlockSkipped    StoryBlockStatus = "SKIPPED"
)

func (s StoryBlockStatus) Phase() Phase {
	switch s {
	case StoryBlockNotStarted:
		return PhaseNotStarted
	case StoryBlockReading:
		return PhaseInProgress
	case StoryBlockFinished:
		return PhaseFinished
	case StoryBlockSkipped:
		return PhaseSkipped
	}
	panic(fmt.Sprintf("models: unknown story block status %q", string(s)))
}

func (s StoryBlockStatus) Valid() bool {
	switch s {
	case StoryBlockNotStarted, StoryBlockReading, StoryBlockFinished, StoryBlockSkipped:
		return true
	}
	return false
}

// StoryBlockStatusFor maps an aggregated phase back onto the story block enum.
// Reading orders reuse the same labels.
func StoryBlockStatusFor(p Phase) StoryBlockStatus {
	switch p {
	case PhaseNotStarted:
		return StoryBlockNotStarted
	case PhaseInProgress:
		return StoryBlockReading
	case PhaseFinished:
		return StoryBlockFinished
	case PhaseSkipped:
		return StoryBlockSkipped
	}
	panic(fmt.Sprintf("models: unknown phase %d", int(p)))
}

type CharacterType string

const (
	TypeCharacter CharacterType = "CHARACTER"
	TypeTeam      CharacterType = "TEAM"
)

func (t CharacterType) Valid() bool {
	return t == TypeCharacter || t == TypeTeam
}

type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)
