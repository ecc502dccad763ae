package merge

import (
	"fmt"

	"comictracker/internal/apperr"
)

// Kind names a mergeable entity type. Values match the public API.
type Kind string

const (
	KindPublishers  Kind = "publishers"
	KindSeries      Kind = "series"
	KindCharacters  Kind = "characters"
	KindEvents      Kind = "events"
	KindStoryBlocks Kind = "story-blocks"
	KindIssues      Kind = "issues"
)

var Kinds = []Kind{KindPublishers, KindSeries, KindCharacters, KindEvents, KindStoryBlocks, KindIssues}

func ParseKind(raw string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == raw {
			return k, nil
		}
	}
	return "", apperr.New(apperr.KindValidation, "unsupported_entity", fmt.Sprintf("unsupported entity %q", raw))
}

// Named outcomes so callers can render a precise message.
var (
	ErrTargetNotFound  = apperr.NotFound("target_not_found", "target not found")
	ErrSourcesNotFound = apperr.NotFound("sources_not_found", "one or more sources not found")
	ErrTypeMismatch    = apperr.New(apperr.KindConflict, "type_mismatch", "cannot merge characters and teams together")
	ErrNoSources       = apperr.New(apperr.KindValidation, "no_sources", "at least one source distinct from the target is required")
)
