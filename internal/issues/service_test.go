package issues

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comictracker/internal/testsupport"
	"comictracker/pkg/models"
)

const owner = "owner-1"

type fixture struct {
	db     *sql.DB
	seed   *testsupport.Seeder
	svc    *Service
	pub    string
	series string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testsupport.OpenDB(t)
	seed := testsupport.NewSeeder(t, db, owner)
	pub := seed.Publisher("Marvel")
	series := seed.Series(pub, "Sensational She-Hulk", testsupport.Int(1989))
	svc := NewService(db, nil, nil)
	svc.Now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return fixture{db: db, seed: seed, svc: svc, pub: pub, series: series}
}

func blockStatus(t *testing.T, db *sql.DB, id string) string {
	t.Helper()
	var st string
	require.NoError(t, db.QueryRow(`SELECT status FROM story_blocks WHERE id = ?`, id).Scan(&st))
	return st
}

func numbers(issues []models.Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.IssueNumber
	}
	return out
}

func TestListBySeriesOrdering(t *testing.T) {
	f := newFixture(t)
	for _, n := range []string{"10", "2", "1.5", "Annual", "1"} {
		f.seed.Issue(f.series, n, testsupport.IssueOpts{})
	}
	got, err := f.svc.ListBySeries(context.Background(), owner, f.series)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "1.5", "2", "10", "Annual"}, numbers(got))

	_, err = f.svc.ListBySeries(context.Background(), "someone-else", f.series)
	assert.ErrorIs(t, err, ErrSeriesNotFound)
}

func TestRange(t *testing.T) {
	f := newFixture(t)
	for _, n := range []string{"1", "2", "3", "4", "Annual"} {
		f.seed.Issue(f.series, n, testsupport.IssueOpts{})
	}
	got, err := f.svc.Range(context.Background(), owner, f.series, "3", "2")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, numbers(got))

	_, err = f.svc.Range(context.Background(), owner, f.series, "x", "2")
	assert.ErrorIs(t, err, ErrBadRange)
}

func TestSetStatusResyncsBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed.Issue(f.series, "1", testsupport.IssueOpts{})
	b := f.seed.Issue(f.series, "2", testsupport.IssueOpts{})
	block := f.seed.StoryBlock(f.pub, "Byrne run")
	f.seed.LinkBlockIssue(block, a, b)

	ch, err := f.svc.SetStatus(ctx, owner, []string{a}, models.IssueReading)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ch.Updated)
	assert.Equal(t, []string{block}, ch.AffectedStoryBlocks)
	assert.Equal(t, "READING", blockStatus(t, f.db, block))

	_, err = f.svc.SetStatus(ctx, owner, []string{a, b, a}, models.IssueFinished)
	require.NoError(t, err)
	assert.Equal(t, "FINISHED", blockStatus(t, f.db, block))

	issue, err := f.svc.Get(ctx, owner, a)
	require.NoError(t, err)
	require.NotNil(t, issue.ReadDate)
	assert.Equal(t, 2024, issue.ReadDate.Year())

	_, err = f.svc.SetStatus(ctx, owner, []string{a}, models.IssueStatus("DONE"))
	assert.Error(t, err)
}

func TestSetStatusIgnoresForeignIssues(t *testing.T) {
	f := newFixture(t)
	other := testsupport.NewSeeder(t, f.db, "owner-2")
	op := other.Publisher("DC")
	foreign := other.Issue(other.Series(op, "Batman", nil), "1", testsupport.IssueOpts{})

	ch, err := f.svc.SetStatus(context.Background(), owner, []string{foreign}, models.IssueFinished)
	require.NoError(t, err)
	assert.Zero(t, ch.Updated)
	assert.Equal(t, 0, testsupport.Count(t, f.db, `SELECT COUNT(*) FROM issues WHERE status = 'FINISHED'`))
}

func TestSetNumberRecomputesSortKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seed.Issue(f.series, "1", testsupport.IssueOpts{})

	issue, err := f.svc.SetNumber(ctx, owner, id, " 12.5 ")
	require.NoError(t, err)
	assert.Equal(t, "12.5", issue.IssueNumber)
	require.NotNil(t, issue.IssueNumberSort)
	assert.Equal(t, 12.5, *issue.IssueNumberSort)

	issue, err = f.svc.SetNumber(ctx, owner, id, "Annual")
	require.NoError(t, err)
	assert.Nil(t, issue.IssueNumberSort)

	_, err = f.svc.SetNumber(ctx, owner, id, "  ")
	assert.ErrorIs(t, err, ErrEmptyNumber)
	_, err = f.svc.SetNumber(ctx, "owner-2", id, "3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetStoryBlocksResyncsOldAndNew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	read := f.seed.Issue(f.series, "1", testsupport.IssueOpts{Status: models.IssueFinished})
	stay := f.seed.Issue(f.series, "2", testsupport.IssueOpts{})
	oldBlock := f.seed.StoryBlock(f.pub, "Old")
	newBlock := f.seed.StoryBlock(f.pub, "New")
	f.seed.LinkBlockIssue(oldBlock, read, stay)

	_, err := f.svc.SetStatus(ctx, owner, []string{read}, models.IssueFinished)
	require.NoError(t, err)
	assert.Equal(t, "READING", blockStatus(t, f.db, oldBlock))

	ch, err := f.svc.SetStoryBlocks(ctx, owner, read, []string{newBlock})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{oldBlock, newBlock}, ch.AffectedStoryBlocks)
	assert.Equal(t, "NOT_STARTED", blockStatus(t, f.db, oldBlock))
	assert.Equal(t, "FINISHED", blockStatus(t, f.db, newBlock))

	_, err = f.svc.SetStoryBlocks(ctx, "owner-2", read, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteResyncsBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.seed.Issue(f.series, "1", testsupport.IssueOpts{Status: models.IssueFinished})
	unread := f.seed.Issue(f.series, "2", testsupport.IssueOpts{})
	block := f.seed.StoryBlock(f.pub, "Block")
	f.seed.LinkBlockIssue(block, done, unread)

	ch, err := f.svc.Delete(ctx, owner, unread)
	require.NoError(t, err)
	assert.Equal(t, []string{block}, ch.AffectedStoryBlocks)
	assert.Equal(t, "FINISHED", blockStatus(t, f.db, block))

	_, err = f.svc.Delete(ctx, owner, unread)
	assert.ErrorIs(t, err, ErrNotFound)
}
