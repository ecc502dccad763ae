package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comictracker/internal/testsupport"
)

func TestComicVineKey(t *testing.T) {
	repo := NewRepo(testsupport.OpenDB(t))
	ctx := context.Background()

	key, err := repo.ComicVineKey(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, key)

	require.NoError(t, repo.SetComicVineKey(ctx, "u1", "  abc  "))
	require.NoError(t, repo.SetComicVineKey(ctx, "u2", "other"))
	key, err = repo.ComicVineKey(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "abc", key)

	require.NoError(t, repo.SetComicVineKey(ctx, "u1", ""))
	key, err = repo.ComicVineKey(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, key)

	key, err = repo.ComicVineKey(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "other", key)
}
