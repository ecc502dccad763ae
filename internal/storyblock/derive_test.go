package storyblock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comictracker/internal/testsupport"
	"comictracker/pkg/models"
)

func TestDeriveEmpty(t *testing.T) {
	d := Derive(nil)
	assert.Equal(t, models.StoryBlockNotStarted, d.Status)
	assert.Nil(t, d.StartYear)
	assert.Nil(t, d.EndYear)
	assert.Empty(t, d.CharacterIDs)
	assert.Empty(t, d.TeamIDs)
}

func TestDeriveYearsPreferReleaseDate(t *testing.T) {
	d := Derive([]IssueFacts{
		{ID: "a", Status: models.IssueFinished, ReleaseDate: testsupport.Date(1986, 3, 1), SeriesStartYear: testsupport.Int(1980)},
		{ID: "b", Status: models.IssueUnread, SeriesStartYear: testsupport.Int(1984)},
		{ID: "c", Status: models.IssueUnread},
	})
	require.NotNil(t, d.StartYear)
	require.NotNil(t, d.EndYear)
	assert.Equal(t, 1984, *d.StartYear)
	assert.Equal(t, 1986, *d.EndYear)
	assert.Equal(t, models.StoryBlockReading, d.Status)
}

func TestDeriveCastPartitionedByType(t *testing.T) {
	d := Derive([]IssueFacts{
		{ID: "a", Status: models.IssueUnread, Cast: []CastMember{{ID: "hulk", Type: models.TypeCharacter}, {ID: "avengers", Type: models.TypeTeam}}},
		{ID: "b", Status: models.IssueUnread, Cast: []CastMember{{ID: "hulk", Type: models.TypeCharacter}, {ID: "she-hulk", Type: models.TypeCharacter}}},
	})
	assert.Equal(t, []string{"hulk", "she-hulk"}, d.CharacterIDs)
	assert.Equal(t, []string{"avengers"}, d.TeamIDs)
}
