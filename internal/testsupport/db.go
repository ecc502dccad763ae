// Package testsupport opens throwaway stores and seeds catalog fixtures.
package testsupport

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"comictracker/pkg/database"
	"comictracker/pkg/models"
)

// OpenDB returns a migrated SQLite database in a temp dir, closed on cleanup.
func OpenDB(t testing.TB) *sql.DB {
	t.Helper()
	cfg := database.Config{
		Path:            filepath.Join(t.TempDir(), "comictracker.db"),
		ConnectAttempts: 1,
	}
	db, err := database.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

// Seeder inserts fixtures for a single owner.
type Seeder struct {
	T      testing.TB
	DB     *sql.DB
	UserID string
}

func NewSeeder(t testing.TB, db *sql.DB, userID string) *Seeder {
	return &Seeder{T: t, DB: db, UserID: userID}
}

func (s *Seeder) exec(query string, args ...any) {
	s.T.Helper()
	_, err := s.DB.Exec(query, args...)
	require.NoError(s.T, err)
}

func (s *Seeder) Publisher(name string) string {
	s.T.Helper()
	id := uuid.NewString()
	s.exec(`INSERT INTO publishers (id, user_id, name) VALUES (?, ?, ?)`, id, s.UserID, name)
	return id
}

func (s *Seeder) Series(publisherID, name string, startYear *int) string {
	s.T.Helper()
	id := uuid.NewString()
	s.exec(`INSERT INTO series (id, user_id, publisher_id, name, start_year) VALUES (?, ?, ?, ?, ?)`,
		id, s.UserID, publisherID, name, database.NullableInt(startYear))
	return id
}

func (s *Seeder) Event(publisherID, name string) string {
	s.T.Helper()
	id := uuid.NewString()
	s.exec(`INSERT INTO events (id, user_id, publisher_id, name) VALUES (?, ?, ?, ?)`, id, s.UserID, publisherID, name)
	return id
}

func (s *Seeder) Character(name string, typ models.CharacterType) string {
	s.T.Helper()
	return s.CharacterWith(models.CharacterOrTeam{Name: name, Type: typ})
}

func (s *Seeder) CharacterWith(c models.CharacterOrTeam) string {
	s.T.Helper()
	id := uuid.NewString()
	var aliases sql.NullString
	if len(c.Aliases) > 0 {
		b, err := json.Marshal(c.Aliases)
		require.NoError(s.T, err)
		aliases = sql.NullString{String: string(b), Valid: true}
	}
	s.exec(`INSERT INTO characters_or_teams (id, user_id, publisher_id, name, type, real_name, aliases, comicvine_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, s.UserID, c.PublisherID, c.Name, string(c.Type), database.NullableString(c.RealName), aliases,
		database.NullableInt64(c.ComicVineID))
	return id
}

func (s *Seeder) StoryBlock(publisherID, name string) string {
	s.T.Helper()
	id := uuid.NewString()
	s.exec(`INSERT INTO story_blocks (id, user_id, publisher_id, name) VALUES (?, ?, ?, ?)`,
		id, s.UserID, publisherID, name)
	return id
}

// IssueOpts are the optional fields of a seeded issue.
type IssueOpts struct {
	Status      models.IssueStatus
	ReleaseDate *time.Time
	ComicVineID *int64
}

func (s *Seeder) Issue(seriesID, number string, opts IssueOpts) string {
	s.T.Helper()
	id := uuid.NewString()
	st := opts.Status
	if st == "" {
		st = models.IssueUnread
	}
	s.exec(`INSERT INTO issues (id, user_id, series_id, issue_number, status, release_date, comicvine_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, s.UserID, seriesID, number, string(st), database.FormatDate(opts.ReleaseDate),
		database.NullableInt64(opts.ComicVineID))
	return id
}

func (s *Seeder) ReadingSession() string {
	s.T.Helper()
	id := uuid.NewString()
	s.exec(`INSERT INTO reading_sessions (id, user_id, session_date) VALUES (?, ?, ?)`,
		id, s.UserID, time.Now().UTC().Format(database.DateLayout))
	return id
}

func (s *Seeder) ReadingOrder(name string, blockIDs ...string) string {
	s.T.Helper()
	id := uuid.NewString()
	s.exec(`INSERT INTO reading_orders (id, user_id, name) VALUES (?, ?, ?)`, id, s.UserID, name)
	for i, b := range blockIDs {
		s.exec(`INSERT INTO reading_order_items (reading_order_id, story_block_id, order_index) VALUES (?, ?, ?)`, id, b, i)
	}
	return id
}

func (s *Seeder) LinkBlockIssue(blockID string, issueIDs ...string) {
	s.T.Helper()
	for _, id := range issueIDs {
		s.exec(`INSERT INTO story_block_issues (story_block_id, issue_id) VALUES (?, ?)`, blockID, id)
	}
}

func (s *Seeder) LinkBlockSeries(blockID, seriesID string) {
	s.T.Helper()
	s.exec(`INSERT INTO story_block_series (story_block_id, series_id) VALUES (?, ?)`, blockID, seriesID)
}

func (s *Seeder) LinkBlockCharacter(blockID, characterID string) {
	s.T.Helper()
	s.exec(`INSERT INTO story_block_characters (story_block_id, character_or_team_id) VALUES (?, ?)`, blockID, characterID)
}

func (s *Seeder) LinkIssueCharacter(issueID string, characterIDs ...string) {
	s.T.Helper()
	for _, c := range characterIDs {
		s.exec(`INSERT INTO issue_characters (issue_id, character_or_team_id) VALUES (?, ?)`, issueID, c)
	}
}

func (s *Seeder) LinkIssueEvent(issueID, eventID string) {
	s.T.Helper()
	s.exec(`INSERT INTO issue_events (issue_id, event_id) VALUES (?, ?)`, issueID, eventID)
}

func (s *Seeder) LinkSessionIssue(sessionID, issueID string) {
	s.T.Helper()
	s.exec(`INSERT INTO reading_session_issues (reading_session_id, issue_id) VALUES (?, ?)`, sessionID, issueID)
}

func (s *Seeder) LinkCharacterTeam(characterID, teamID string) {
	s.T.Helper()
	s.exec(`INSERT INTO character_teams (character_id, team_id) VALUES (?, ?)`, characterID, teamID)
}

// Count runs a COUNT(*) style query.
func Count(t testing.TB, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

// Strings collects a single string column.
func Strings(t testing.TB, db *sql.DB, query string, args ...any) []string {
	t.Helper()
	rows, err := db.Query(query, args...)
	require.NoError(t, err)
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		out = append(out, s)
	}
	require.NoError(t, rows.Err())
	return out
}

func Date(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func Int(v int) *int { return &v }

func Int64(v int64) *int64 { return &v }
