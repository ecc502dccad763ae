package resolver

import (
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var (
	reBreak      = regexp.MustCompile(`(?i)<br\s*/?>`)
	reSeparators = regexp.MustCompile(`[\n,;]+`)
	reLowerUpper = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	reUpperWord  = regexp.MustCompile(`([A-Z])([A-Z][a-z])`)
	reTag        = regexp.MustCompile(`<[^>]*>`)
	reSpace      = regexp.MustCompile(`\s+`)
)

// splitAliasParts breaks one raw alias blob into entries. A lone entry of more
// than three words is assumed to be run-together aliases ("Jen WaltersShulkie
// Gamma Girl") and is re-split on camel-case boundaries when that yields more
// than one part.
func splitAliasParts(value string) []string {
	value = reBreak.ReplaceAllString(value, "\n")
	value = strings.ReplaceAll(value, "\r", "\n")

	var parts []string
	for _, p := range reSeparators.Split(value, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	if len(parts) == 1 && len(strings.Fields(parts[0])) > 3 {
		expanded := reLowerUpper.ReplaceAllString(parts[0], "$1|$2")
		expanded = reUpperWord.ReplaceAllString(expanded, "$1|$2")
		var out []string
		for _, p := range strings.Split(expanded, "|") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 1 {
			return out
		}
	}
	return parts
}

// NormalizeAliases splits every raw entry and returns nil when nothing is left.
func NormalizeAliases(entries []string) []string {
	var out []string
	for _, e := range entries {
		out = append(out, splitAliasParts(e)...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// storedAliases decodes the JSON alias column and re-splits each entry, so
// rows written before normalization still match.
func storedAliases(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var entries []string
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		var single string
		if json.Unmarshal([]byte(raw), &single) != nil {
			return nil
		}
		entries = []string{single}
	}
	return NormalizeAliases(entries)
}

func hasAlias(raw, name string) bool {
	for _, a := range storedAliases(raw) {
		if foldEqual(a, name) {
			return true
		}
	}
	return false
}

func foldEqual(a, b string) bool {
	fold := cases.Fold()
	return fold.String(strings.TrimSpace(a)) == fold.String(strings.TrimSpace(b))
}

// sanitizeText strips markup from ComicVine descriptions.
func sanitizeText(s string) string {
	s = reTag.ReplaceAllString(s, " ")
	return strings.TrimSpace(reSpace.ReplaceAllString(s, " "))
}

func encodeAliases(aliases []string) (any, error) {
	if len(aliases) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(aliases)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
