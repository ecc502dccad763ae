package merge

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comictracker/internal/testsupport"
	"comictracker/pkg/models"
)

const owner = "owner-1"

// danglingRefs lists every column that can point at an entity of each kind.
var danglingRefs = map[Kind][]string{
	KindPublishers: {
		`SELECT COUNT(*) FROM series WHERE publisher_id = ?`,
		`SELECT COUNT(*) FROM events WHERE publisher_id = ?`,
		`SELECT COUNT(*) FROM characters_or_teams WHERE publisher_id = ?`,
		`SELECT COUNT(*) FROM story_blocks WHERE publisher_id = ?`,
		`SELECT COUNT(*) FROM publishers WHERE id = ?`,
	},
	KindSeries: {
		`SELECT COUNT(*) FROM issues WHERE series_id = ?`,
		`SELECT COUNT(*) FROM story_block_series WHERE series_id = ?`,
		`SELECT COUNT(*) FROM series WHERE id = ?`,
	},
	KindCharacters: {
		`SELECT COUNT(*) FROM issue_characters WHERE character_or_team_id = ?`,
		`SELECT COUNT(*) FROM story_block_characters WHERE character_or_team_id = ?`,
		`SELECT COUNT(*) FROM character_teams WHERE character_id = ?1 OR team_id = ?1`,
		`SELECT COUNT(*) FROM characters_or_teams WHERE id = ?`,
	},
	KindEvents: {
		`SELECT COUNT(*) FROM story_blocks WHERE event_id = ?`,
		`SELECT COUNT(*) FROM issue_events WHERE event_id = ?`,
		`SELECT COUNT(*) FROM events WHERE id = ?`,
	},
	KindStoryBlocks: {
		`SELECT COUNT(*) FROM story_block_series WHERE story_block_id = ?`,
		`SELECT COUNT(*) FROM story_block_issues WHERE story_block_id = ?`,
		`SELECT COUNT(*) FROM story_block_characters WHERE story_block_id = ?`,
		`SELECT COUNT(*) FROM reading_order_items WHERE story_block_id = ?`,
		`SELECT COUNT(*) FROM story_blocks WHERE previous_story_block_id = ?`,
		`SELECT COUNT(*) FROM story_blocks WHERE id = ?`,
	},
	KindIssues: {
		`SELECT COUNT(*) FROM story_block_issues WHERE issue_id = ?`,
		`SELECT COUNT(*) FROM issue_characters WHERE issue_id = ?`,
		`SELECT COUNT(*) FROM issue_events WHERE issue_id = ?`,
		`SELECT COUNT(*) FROM reading_session_issues WHERE issue_id = ?`,
		`SELECT COUNT(*) FROM issues WHERE id = ?`,
	},
}

func assertNoRefs(t *testing.T, db *sql.DB, kind Kind, id string) {
	t.Helper()
	for _, q := range danglingRefs[kind] {
		assert.Zero(t, testsupport.Count(t, db, q, id), q)
	}
}

func newEngine(t *testing.T) (*Engine, *testsupport.Seeder) {
	t.Helper()
	db := testsupport.OpenDB(t)
	return NewEngine(db, nil, nil), testsupport.NewSeeder(t, db, owner)
}

func TestMergeValidation(t *testing.T) {
	e, seed := newEngine(t)
	ctx := context.Background()
	a := seed.Publisher("Marvel")
	b := seed.Publisher("Marvel Comics")

	_, err := e.Merge(ctx, owner, KindPublishers, a, []string{a, a})
	assert.ErrorIs(t, err, ErrNoSources)

	_, err = e.Merge(ctx, owner, KindPublishers, "missing", []string{b})
	assert.ErrorIs(t, err, ErrTargetNotFound)

	_, err = e.Merge(ctx, owner, KindPublishers, a, []string{b, "missing"})
	assert.ErrorIs(t, err, ErrSourcesNotFound)

	_, err = e.Merge(ctx, "owner-2", KindPublishers, a, []string{b})
	assert.ErrorIs(t, err, ErrTargetNotFound, "other owners cannot see the target")

	_, err = e.Merge(ctx, owner, Kind("widgets"), a, []string{b})
	assert.Error(t, err)

	// nothing was deleted by the rejected calls
	assert.Equal(t, 2, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM publishers`))
}

func TestMergeRejectsForeignSources(t *testing.T) {
	e, seed := newEngine(t)
	a := seed.Publisher("Marvel")
	theirs := testsupport.NewSeeder(t, e.DB, "owner-2").Publisher("Marvel")

	_, err := e.Merge(context.Background(), owner, KindPublishers, a, []string{theirs})
	assert.ErrorIs(t, err, ErrSourcesNotFound)
}

func TestMergePublishers(t *testing.T) {
	e, seed := newEngine(t)
	target := seed.Publisher("Marvel")
	source := seed.Publisher("Marvel Comics")
	series := seed.Series(source, "Avengers", nil)
	seed.Event(source, "Secret Wars")
	seed.CharacterWith(models.CharacterOrTeam{Name: "Thor", Type: models.TypeCharacter, PublisherID: &source})
	seed.StoryBlock(source, "Kree-Skrull War")

	res, err := e.Merge(context.Background(), owner, KindPublishers, target, []string{source})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Merged)
	assertNoRefs(t, e.DB, KindPublishers, source)
	assert.Equal(t, 1, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM series WHERE id = ? AND publisher_id = ?`, series, target))
}

func TestMergeSeriesCollapsesSameNumber(t *testing.T) {
	e, seed := newEngine(t)
	ctx := context.Background()
	pub := seed.Publisher("Marvel")
	target := seed.Series(pub, "She-Hulk", testsupport.Int(1989))
	source := seed.Series(pub, "Sensational She-Hulk", testsupport.Int(1989))

	t12 := seed.Issue(target, "12", testsupport.IssueOpts{Status: models.IssueFinished})
	s12 := seed.Issue(source, "12", testsupport.IssueOpts{})
	s13 := seed.Issue(source, "13", testsupport.IssueOpts{})

	blockA := seed.StoryBlock(pub, "A")
	blockB := seed.StoryBlock(pub, "B")
	seed.LinkBlockIssue(blockA, t12)
	seed.LinkBlockIssue(blockB, s12)
	seed.LinkBlockSeries(blockB, source)

	hulk := seed.Character("She-Hulk", models.TypeCharacter)
	titania := seed.Character("Titania", models.TypeCharacter)
	seed.LinkIssueCharacter(t12, hulk)
	seed.LinkIssueCharacter(s12, hulk, titania)
	event := seed.Event(pub, "Acts of Vengeance")
	seed.LinkIssueEvent(s12, event)
	session := seed.ReadingSession()
	seed.LinkSessionIssue(session, s12)

	res, err := e.Merge(ctx, owner, KindSeries, target, []string{source})
	require.NoError(t, err)
	assertNoRefs(t, e.DB, KindSeries, source)
	assertNoRefs(t, e.DB, KindIssues, s12)

	assert.Equal(t, 1, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM issues WHERE series_id = ? AND issue_number = '12'`, target))
	assert.Equal(t, 1, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM issues WHERE id = ? AND series_id = ?`, s13, target))

	blocks := testsupport.Strings(t, e.DB, `SELECT story_block_id FROM story_block_issues WHERE issue_id = ? ORDER BY 1`, t12)
	assert.ElementsMatch(t, []string{blockA, blockB}, blocks)
	cast := testsupport.Strings(t, e.DB, `SELECT character_or_team_id FROM issue_characters WHERE issue_id = ?`, t12)
	assert.ElementsMatch(t, []string{hulk, titania}, cast)
	assert.Equal(t, 1, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM issue_events WHERE issue_id = ? AND event_id = ?`, t12, event))
	assert.Equal(t, 1, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM reading_session_issues WHERE issue_id = ?`, t12))
	assert.Equal(t, 1, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM story_block_series WHERE story_block_id = ? AND series_id = ?`, blockB, target))

	// block B now holds the finished target issue and was re-derived
	assert.Contains(t, res.AffectedStoryBlocks, blockB)
	var st string
	require.NoError(t, e.DB.QueryRow(`SELECT status FROM story_blocks WHERE id = ?`, blockB).Scan(&st))
	assert.Equal(t, string(models.StoryBlockFinished), st)
	assert.Equal(t, 2, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM story_block_characters WHERE story_block_id = ?`, blockB))
}

func TestMergeCharacters(t *testing.T) {
	e, seed := newEngine(t)
	ctx := context.Background()
	pub := seed.Publisher("Marvel")
	series := seed.Series(pub, "FF", nil)
	issue := seed.Issue(series, "1", testsupport.IssueOpts{})
	block := seed.StoryBlock(pub, "Block")
	seed.LinkBlockIssue(block, issue)

	target := seed.Character("She-Hulk", models.TypeCharacter)
	source := seed.Character("Jennifer Walters", models.TypeCharacter)
	team := seed.Character("Fantastic Four", models.TypeTeam)
	seed.LinkIssueCharacter(issue, target, source)
	seed.LinkCharacterTeam(source, team)
	seed.LinkBlockCharacter(block, source)

	_, err := e.Merge(ctx, owner, KindCharacters, team, []string{source})
	assert.ErrorIs(t, err, ErrTypeMismatch)

	res, err := e.Merge(ctx, owner, KindCharacters, target, []string{source})
	require.NoError(t, err)
	assertNoRefs(t, e.DB, KindCharacters, source)
	assert.Equal(t, 1, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM issue_characters WHERE issue_id = ?`, issue))
	assert.Equal(t, 1, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM character_teams WHERE character_id = ? AND team_id = ?`, target, team))
	assert.Equal(t, []string{block}, res.AffectedStoryBlocks)
	cast := testsupport.Strings(t, e.DB, `SELECT character_or_team_id FROM story_block_characters WHERE story_block_id = ?`, block)
	assert.Equal(t, []string{target}, cast)
}

func TestMergeTeamsRelinksTeamSide(t *testing.T) {
	e, seed := newEngine(t)
	member := seed.Character("Ben Grimm", models.TypeCharacter)
	target := seed.Character("Fantastic Four", models.TypeTeam)
	source := seed.Character("FF", models.TypeTeam)
	seed.LinkCharacterTeam(member, source)
	seed.LinkCharacterTeam(member, target)

	_, err := e.Merge(context.Background(), owner, KindCharacters, target, []string{source})
	require.NoError(t, err)
	assertNoRefs(t, e.DB, KindCharacters, source)
	assert.Equal(t, 1, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM character_teams WHERE character_id = ?`, member))
}

func TestMergeEvents(t *testing.T) {
	e, seed := newEngine(t)
	pub := seed.Publisher("Marvel")
	target := seed.Event(pub, "Secret Wars")
	source := seed.Event(pub, "Secret Wars (1984)")
	block := seed.StoryBlock(pub, "Block")
	_, err := e.DB.Exec(`UPDATE story_blocks SET event_id = ? WHERE id = ?`, source, block)
	require.NoError(t, err)
	issue := seed.Issue(seed.Series(pub, "SW", nil), "1", testsupport.IssueOpts{})
	seed.LinkIssueEvent(issue, source)
	seed.LinkIssueEvent(issue, target)

	_, err = e.Merge(context.Background(), owner, KindEvents, target, []string{source})
	require.NoError(t, err)
	assertNoRefs(t, e.DB, KindEvents, source)
	assert.Equal(t, 1, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM story_blocks WHERE event_id = ?`, target))
	assert.Equal(t, 1, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM issue_events WHERE issue_id = ?`, issue))
}

func TestMergeStoryBlocks(t *testing.T) {
	e, seed := newEngine(t)
	pub := seed.Publisher("Marvel")
	series := seed.Series(pub, "Avengers", nil)
	target := seed.StoryBlock(pub, "Under Siege")
	source := seed.StoryBlock(pub, "Under Siege (dup)")
	next := seed.StoryBlock(pub, "Aftermath")
	shared := seed.Issue(series, "270", testsupport.IssueOpts{Status: models.IssueFinished})
	extra := seed.Issue(series, "271", testsupport.IssueOpts{})
	seed.LinkBlockIssue(target, shared)
	seed.LinkBlockIssue(source, shared, extra)
	seed.LinkBlockSeries(source, series)
	order := seed.ReadingOrder("Main", source, next)
	_, err := e.DB.Exec(`UPDATE story_blocks SET previous_story_block_id = ? WHERE id IN (?, ?)`, source, next, target)
	require.NoError(t, err)

	res, err := e.Merge(context.Background(), owner, KindStoryBlocks, target, []string{source})
	require.NoError(t, err)
	assertNoRefs(t, e.DB, KindStoryBlocks, source)
	assert.Equal(t, []string{target}, res.AffectedStoryBlocks)

	assert.Equal(t, 2, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM story_block_issues WHERE story_block_id = ?`, target))
	assert.Equal(t, 1, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM reading_order_items WHERE reading_order_id = ? AND story_block_id = ? AND order_index = 0`, order, target))
	assert.Equal(t, 1, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM story_blocks WHERE id = ? AND previous_story_block_id = ?`, next, target))
	assert.Equal(t, 1, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM story_blocks WHERE id = ? AND previous_story_block_id IS NULL`, target))

	var st string
	require.NoError(t, e.DB.QueryRow(`SELECT status FROM story_blocks WHERE id = ?`, target).Scan(&st))
	assert.Equal(t, string(models.StoryBlockReading), st)
}

func TestMergeIssues(t *testing.T) {
	e, seed := newEngine(t)
	pub := seed.Publisher("Marvel")
	series := seed.Series(pub, "Avengers", nil)
	target := seed.Issue(series, "1", testsupport.IssueOpts{})
	a := seed.Issue(series, "1", testsupport.IssueOpts{})
	b := seed.Issue(series, "1 ", testsupport.IssueOpts{})
	block := seed.StoryBlock(pub, "Origins")
	seed.LinkBlockIssue(block, a, b)

	res, err := e.Merge(context.Background(), owner, KindIssues, target, []string{a, b, target})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Merged)
	assertNoRefs(t, e.DB, KindIssues, a)
	assertNoRefs(t, e.DB, KindIssues, b)
	assert.Equal(t, []string{target}, testsupport.Strings(t, e.DB, `SELECT issue_id FROM story_block_issues WHERE story_block_id = ?`, block))
}

func TestMergeFailureRollsBack(t *testing.T) {
	e, seed := newEngine(t)
	pub := seed.Publisher("Marvel")
	series := seed.Series(pub, "Avengers", nil)
	target := seed.Issue(series, "1", testsupport.IssueOpts{})
	source := seed.Issue(series, "1", testsupport.IssueOpts{})

	// a trigger makes the final delete fail after relinking started
	_, err := e.DB.Exec(`CREATE TRIGGER issue_delete_guard BEFORE DELETE ON issues BEGIN SELECT RAISE(ABORT, 'nope'); END`)
	require.NoError(t, err)
	session := seed.ReadingSession()
	seed.LinkSessionIssue(session, source)

	_, err = e.Merge(context.Background(), owner, KindIssues, target, []string{source})
	require.Error(t, err)
	assert.Equal(t, 1, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM reading_session_issues WHERE issue_id = ?`, source))
	assert.Zero(t, testsupport.Count(t, e.DB, `SELECT COUNT(*) FROM reading_session_issues WHERE issue_id = ?`, target))
}

func TestFindDuplicates(t *testing.T) {
	e, seed := newEngine(t)
	a := seed.Publisher("Marvel")
	b := seed.Publisher("  MARVEL ")
	seed.Publisher("DC")

	groups, err := FindDuplicates(context.Background(), e.DB, owner, KindPublishers)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "marvel", groups[0].Key)
	ids := []string{groups[0].Items[0].ID, groups[0].Items[1].ID}
	assert.ElementsMatch(t, []string{a, b}, ids)

	seed.Character("Thor", models.TypeCharacter)
	seed.Character("Thor", models.TypeTeam)
	groups, err = FindDuplicates(context.Background(), e.DB, owner, KindCharacters)
	require.NoError(t, err)
	assert.Empty(t, groups, "characters and teams never group together")
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "spider man", NormalizeKey("Spider-Man"))
	assert.Equal(t, "strasse", NormalizeKey("STRASSE"))
	assert.Equal(t, "x men 97", NormalizeKey("  X-Men '97 "))
}
