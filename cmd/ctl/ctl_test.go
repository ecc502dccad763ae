package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"ID", "Count"}, [][]string{{"a", "1"}, {"b"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "ID")
	assert.Contains(t, strings.ToUpper(out), "COUNT")
	assert.Len(t, strings.Split(out, "\n"), 6)
	assert.Empty(t, renderTable(nil, nil, nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestOwnerRequired(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"duplicates", "--entity", "series"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--owner is required")
}

func TestUnknownEntity(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"duplicates", "-u", "me", "--entity", "comics"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported entity")
}

func TestWSURL(t *testing.T) {
	u, err := wsURL("https://tracker.example/", "abc")
	require.NoError(t, err)
	assert.Equal(t, "wss://tracker.example/ws?token=abc", u)

	u, err = wsURL("http://localhost:8080", "a b")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws?token=a+b", u)

	_, err = wsURL("not a url", "x")
	assert.Error(t, err)
}
