package ordering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comictracker/pkg/models"
)

func ptr[T any](v T) *T { return &v }

func issue(number string) models.Issue {
	return models.Issue{ID: number, IssueNumber: number, Status: models.IssueUnread}
}

func TestParseIssueNumber(t *testing.T) {
	cases := []struct {
		in   string
		want *float64
	}{
		{"12", ptr(12.0)},
		{"1A", ptr(1.0)},
		{"Annual 1", ptr(1.0)},
		{"#7.5", ptr(7.5)},
		{"Annual", nil},
		{"", nil},
		{".", nil},
		{"1.2.3", nil},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got := ParseIssueNumber(tc.in)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tc.want, *got)
		})
	}
}

func TestCompareReadingOrderIndexFirst(t *testing.T) {
	a := issue("10")
	b := issue("2")
	a.ReadingOrderIndex = ptr(1)

	assert.Negative(t, Compare(a, b), "explicit index beats a missing one")

	b.ReadingOrderIndex = ptr(0)
	assert.Positive(t, Compare(a, b))
}

func TestCompareNumericThenNatural(t *testing.T) {
	assert.Negative(t, Compare(issue("2"), issue("10")))
	assert.Negative(t, Compare(issue("1"), issue("1A")), "same numeric value falls back to natural compare")
	assert.Negative(t, Compare(issue("99"), issue("Annual")), "numbered issues come before unnumbered")
	assert.Negative(t, Compare(issue("Annual"), issue("Special")))
}

func TestCompareUsesStoredSortValue(t *testing.T) {
	a := issue("Alpha")
	a.IssueNumberSort = ptr(0.5)
	assert.Negative(t, Compare(a, issue("1")))
}

func TestCompareIsTotalOrder(t *testing.T) {
	pool := []models.Issue{
		issue("1"), issue("1A"), issue("1.5"), issue("1.10"), issue("1.7.1"),
		issue("2"), issue("10"), issue("Annual"), issue("Annual 1"), issue("annual"),
		issue("."), issue(""), issue("0"), issue("-1"),
	}
	withIndex := issue("50")
	withIndex.ReadingOrderIndex = ptr(3)
	pool = append(pool, withIndex)

	for _, a := range pool {
		assert.Zero(t, Compare(a, a), a.IssueNumber)
		for _, b := range pool {
			ab, ba := Compare(a, b), Compare(b, a)
			assert.Equal(t, sign(ab), -sign(ba), "antisymmetry %q %q", a.IssueNumber, b.IssueNumber)
			assert.Equal(t, ab, Compare(a, b), "stable across calls")
			for _, c := range pool {
				if Compare(a, b) < 0 && Compare(b, c) < 0 {
					assert.Negative(t, Compare(a, c), "transitivity %q %q %q", a.IssueNumber, b.IssueNumber, c.IssueNumber)
				}
			}
		}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

func TestSortAndNextUnread(t *testing.T) {
	issues := []models.Issue{issue("10"), issue("2"), issue("Annual"), issue("1")}
	issues[3].Status = models.IssueFinished

	Sort(issues)
	got := []string{}
	for _, i := range issues {
		got = append(got, i.IssueNumber)
	}
	assert.Equal(t, []string{"1", "2", "10", "Annual"}, got)

	next := NextUnread(issues)
	require.NotNil(t, next)
	assert.Equal(t, "2", next.IssueNumber)

	assert.Nil(t, NextUnread([]models.Issue{{IssueNumber: "1", Status: models.IssueSkipped}}))
}
