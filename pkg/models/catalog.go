package models

import "time"

type Publisher struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	ComicVineID *int64 `json:"comicvine_id,omitempty"`
	Country     string `json:"country,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type Series struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	PublisherID string `json:"publisher_id"`
	Name        string `json:"name"`
	ComicVineID *int64 `json:"comicvine_id,omitempty"`
	StartYear   *int   `json:"start_year,omitempty"`
	EndYear     *int   `json:"end_year,omitempty"`
	Era         string `json:"era,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type Event struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	PublisherID *string `json:"publisher_id,omitempty"`
	Name        string  `json:"name"`
	StartYear   *int    `json:"start_year,omitempty"`
	EndYear     *int    `json:"end_year,omitempty"`
}

// CharacterOrTeam is keyed by (user, name, type). Aliases are stored as a JSON array.
type CharacterOrTeam struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	PublisherID *string       `json:"publisher_id,omitempty"`
	Name        string        `json:"name"`
	Type        CharacterType `json:"type"`
	RealName    string        `json:"real_name,omitempty"`
	Aliases     []string      `json:"aliases,omitempty"`
	Continuity  string        `json:"continuity,omitempty"`
	Notes       string        `json:"notes,omitempty"`
	ComicVineID *int64        `json:"comicvine_id,omitempty"`
}

type StoryBlock struct {
	ID                   string           `json:"id"`
	UserID               string           `json:"user_id"`
	PublisherID          string           `json:"publisher_id"`
	EventID              *string          `json:"event_id,omitempty"`
	PreviousStoryBlockID *string          `json:"previous_story_block_id,omitempty"`
	Name                 string           `json:"name"`
	StartYear            *int             `json:"start_year,omitempty"`
	EndYear              *int             `json:"end_year,omitempty"`
	Status               StoryBlockStatus `json:"status"`
	OrderIndex           int              `json:"order_index"`
	Notes                string           `json:"notes,omitempty"`
}

type Issue struct {
	ID                string      `json:"id"`
	UserID            string      `json:"user_id"`
	SeriesID          string      `json:"series_id"`
	IssueNumber       string      `json:"issue_number"`
	IssueNumberSort   *float64    `json:"issue_number_sort,omitempty"`
	Title             string      `json:"title,omitempty"`
	ReleaseDate       *time.Time  `json:"release_date,omitempty"`
	ReadingOrderIndex *int        `json:"reading_order_index,omitempty"`
	Status            IssueStatus `json:"status"`
	ReadDate          *time.Time  `json:"read_date,omitempty"`
	ComicVineID       *int64      `json:"comicvine_id,omitempty"`
	Notes             string      `json:"notes,omitempty"`
}

type ReadingOrder struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ReadingOrderItem is one story block position inside a reading order.
type ReadingOrderItem struct {
	StoryBlockID string           `json:"story_block_id"`
	Name         string           `json:"name"`
	OrderIndex   int              `json:"order_index"`
	Status       StoryBlockStatus `json:"status"`
}

// ReadingOrderView is a reading order with its status computed on read.
type ReadingOrderView struct {
	ReadingOrder
	Status StoryBlockStatus   `json:"status"`
	Items  []ReadingOrderItem `json:"items"`
}
