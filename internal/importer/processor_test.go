package importer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comictracker/internal/comicvine"
	"comictracker/internal/testsupport"
	"comictracker/pkg/models"
)

const owner = "owner-1"

type fakeFetcher struct {
	records map[string]*comicvine.Record
	volumes map[int64][]string
	fail    map[string]error
	calls   []string
}

func (f *fakeFetcher) Detail(_ context.Context, _ string, url string) (*comicvine.Record, error) {
	f.calls = append(f.calls, url)
	if err := f.fail[url]; err != nil {
		return nil, err
	}
	rec, ok := f.records[url]
	if !ok {
		return nil, errors.New("unexpected url " + url)
	}
	return rec, nil
}

func (f *fakeFetcher) IssueURLsForVolume(_ context.Context, _ string, id int64) ([]string, error) {
	return f.volumes[id], nil
}

type keys map[string]string

func (k keys) ComicVineKey(_ context.Context, owner string) (string, error) { return k[owner], nil }

func job(t *testing.T, payload models.ImportPayload) *models.Job {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return &models.Job{ID: "job-1", UserID: owner, Type: models.JobTypeComicVineImport, Payload: b}
}

func volumeFixture() *fakeFetcher {
	volume := &comicvine.Record{ID: 10, Name: "Avengers", Publisher: &comicvine.Record{ID: 31, Name: "Marvel"}}
	return &fakeFetcher{
		records: map[string]*comicvine.Record{
			"v/10": volume,
			"i/1":  {ID: 101, IssueNumber: "1", Volume: &comicvine.Record{ID: 10, Name: "Avengers"}, CharacterCredits: []comicvine.Record{{ID: 5, Name: "Thor"}}},
			"i/2":  {ID: 102, IssueNumber: "2", Volume: &comicvine.Record{ID: 10, Name: "Avengers"}},
		},
		volumes: map[int64][]string{10: {"i/1", "i/2"}},
	}
}

func TestProcessVolumeWithIssues(t *testing.T) {
	db := testsupport.OpenDB(t)
	f := volumeFixture()
	p := NewProcessor(db, f, keys{owner: "k"}, nil)

	out, err := p.Process(context.Background(), job(t, models.ImportPayload{
		Resource: "volume", DetailURLs: []string{"v/10"}, IncludeIssues: true,
	}))
	require.NoError(t, err)
	res := out.(*models.ImportResult)
	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 2, res.IssuesImported)
	assert.Equal(t, 2, res.IssuesAttempted)
	assert.True(t, res.IncludeIssues)
	assert.Equal(t, "Avengers", res.Results[0].Name)
	assert.Equal(t, "#1", res.Results[1].Name)
	assert.Equal(t, "issue", res.Results[1].Type)

	assert.Equal(t, 2, testsupport.Count(t, db, `SELECT COUNT(*) FROM issues WHERE user_id = ?`, owner))
	assert.Equal(t, 1, testsupport.Count(t, db, `SELECT COUNT(*) FROM series WHERE comicvine_id = 10`))
	assert.Equal(t, 1, testsupport.Count(t, db, `SELECT COUNT(*) FROM issue_characters`))
}

func TestProcessResyncsBlocksOfImportedIssues(t *testing.T) {
	db := testsupport.OpenDB(t)
	seed := testsupport.NewSeeder(t, db, owner)
	pub := seed.Publisher("Marvel")
	series := seed.Series(pub, "Avengers", testsupport.Int(1963))
	issue := seed.Issue(series, "1", testsupport.IssueOpts{})
	block := seed.StoryBlock(pub, "Origins")
	seed.LinkBlockIssue(block, issue)

	f := &fakeFetcher{records: map[string]*comicvine.Record{
		"i/1": {ID: 101, IssueNumber: "1", Volume: &comicvine.Record{ID: 10, Name: "Avengers"},
			CharacterCredits: []comicvine.Record{{ID: 5, Name: "Thor"}}},
	}}
	p := NewProcessor(db, f, keys{owner: "k"}, nil)

	out, err := p.Process(context.Background(), job(t, models.ImportPayload{Resource: "issue", DetailURLs: []string{"i/1"}}))
	require.NoError(t, err)
	assert.Equal(t, []string{block}, out.(*models.ImportResult).AffectedStoryBlocks)
	assert.Equal(t, 1, testsupport.Count(t, db, `SELECT COUNT(*) FROM story_block_characters WHERE story_block_id = ?`, block))
}

func TestProcessMissingKey(t *testing.T) {
	p := NewProcessor(testsupport.OpenDB(t), &fakeFetcher{}, keys{}, nil)
	_, err := p.Process(context.Background(), job(t, models.ImportPayload{Resource: "publisher", DetailURLs: []string{"p/1"}}))
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.Equal(t, "ComicVine API key is missing", err.Error())
}

func TestProcessFetchFailureWritesNothing(t *testing.T) {
	db := testsupport.OpenDB(t)
	f := volumeFixture()
	f.fail = map[string]error{"i/2": &comicvine.APIError{StatusCode: 502, Message: "Bad Gateway"}}
	p := NewProcessor(db, f, keys{owner: "k"}, nil)

	_, err := p.Process(context.Background(), job(t, models.ImportPayload{
		Resource: "volume", DetailURLs: []string{"v/10"}, IncludeIssues: true,
	}))
	require.Error(t, err)
	assert.Zero(t, testsupport.Count(t, db, `SELECT COUNT(*) FROM series`))
	assert.Zero(t, testsupport.Count(t, db, `SELECT COUNT(*) FROM issues`))
	assert.Zero(t, testsupport.Count(t, db, `SELECT COUNT(*) FROM publishers`))
}

func TestProcessResolveFailureRollsBack(t *testing.T) {
	db := testsupport.OpenDB(t)
	f := &fakeFetcher{records: map[string]*comicvine.Record{
		"p/1": {ID: 31, Name: "Marvel"},
		"p/2": {ID: 32, Name: ""},
	}}
	p := NewProcessor(db, f, keys{owner: "k"}, nil)

	_, err := p.Process(context.Background(), job(t, models.ImportPayload{Resource: "publisher", DetailURLs: []string{"p/1", "p/2"}}))
	require.Error(t, err)
	assert.Zero(t, testsupport.Count(t, db, `SELECT COUNT(*) FROM publishers`))
}
