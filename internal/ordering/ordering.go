// Package ordering is the single issue ordering rule used by listings,
// story block display and next-unread selection.
package ordering

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"comictracker/pkg/models"
)

// ParseIssueNumber keeps only digits and dots and parses what is left.
// "Annual 1" and "1A" both yield 1; "Annual" and "1.2.3" yield nil.
func ParseIssueNumber(raw string) *float64 {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// SortValue is the cached sort key when present, else the parsed one.
func SortValue(issue models.Issue) *float64 {
	if issue.IssueNumberSort != nil {
		return issue.IssueNumberSort
	}
	return ParseIssueNumber(issue.IssueNumber)
}

// collate.Collator is not safe for concurrent use.
var collators = sync.Pool{
	New: func() any { return collate.New(language.Und, collate.Numeric) },
}

// NaturalCompare compares with digit runs treated as numbers ("2" < "10").
// Strings that collate equal fall back to byte order so distinct values
// never tie.
func NaturalCompare(a, b string) int {
	c := collators.Get().(*collate.Collator)
	r := c.CompareString(a, b)
	collators.Put(c)
	if r != 0 {
		return r
	}
	return strings.Compare(a, b)
}

// Compare orders issues by reading order index (missing last), then numeric
// issue number (missing last), then natural comparison of the raw number.
func Compare(a, b models.Issue) int {
	switch {
	case a.ReadingOrderIndex != nil && b.ReadingOrderIndex != nil:
		if c := cmp.Compare(*a.ReadingOrderIndex, *b.ReadingOrderIndex); c != 0 {
			return c
		}
	case a.ReadingOrderIndex != nil:
		return -1
	case b.ReadingOrderIndex != nil:
		return 1
	}

	av, bv := SortValue(a), SortValue(b)
	switch {
	case av != nil && bv != nil:
		if c := cmp.Compare(*av, *bv); c != 0 {
			return c
		}
	case av != nil:
		return -1
	case bv != nil:
		return 1
	}

	return NaturalCompare(a.IssueNumber, b.IssueNumber)
}

// Sort orders issues in place; equal issues keep their input order.
func Sort(issues []models.Issue) {
	slices.SortStableFunc(issues, Compare)
}

// NextUnread returns the first UNREAD issue in reading order, or nil.
func NextUnread(issues []models.Issue) *models.Issue {
	var best *models.Issue
	for i := range issues {
		if issues[i].Status != models.IssueUnread {
			continue
		}
		if best == nil || Compare(issues[i], *best) < 0 {
			best = &issues[i]
		}
	}
	return best
}
