// Package resolver maps ComicVine records onto an owner's local catalog,
// matching the most certain key first and creating only when nothing matches.
package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"comictracker/internal/apperr"
	"comictracker/internal/comicvine"
	"comictracker/pkg/database"
	"comictracker/pkg/models"
)

const UnknownPublisherName = "Unknown Publisher"

var (
	ErrMissingName   = apperr.New(apperr.KindValidation, "record_missing_name", "ComicVine record is missing a name")
	ErrMissingVolume = apperr.New(apperr.KindValidation, "issue_missing_volume", "series/volume is required for issue import")
)

// Resolver works on one owner's rows through the caller's transaction.
type Resolver struct {
	q     database.Querier
	owner string
}

func New(q database.Querier, ownerID string) *Resolver {
	return &Resolver{q: q, owner: ownerID}
}

// Resource resolves a top-level import record of the given resource type.
func (r *Resolver) Resource(ctx context.Context, resource string, rec *comicvine.Record) (models.ImportedRecord, error) {
	out := models.ImportedRecord{Type: resource}
	switch resource {
	case "publisher":
		p, err := r.Publisher(ctx, rec)
		if err != nil {
			return out, err
		}
		out.ID, out.Name = p.ID, p.Name
	case "volume":
		var publisherID string
		if rec.Publisher != nil && strings.TrimSpace(rec.Publisher.Name) != "" {
			p, err := r.Publisher(ctx, rec.Publisher)
			if err != nil {
				return out, err
			}
			publisherID = p.ID
		}
		s, err := r.Series(ctx, rec, publisherID)
		if err != nil {
			return out, err
		}
		out.ID, out.Name = s.ID, s.Name
	case "issue":
		is, err := r.Issue(ctx, rec)
		if err != nil {
			return out, err
		}
		out.ID, out.Name = is.ID, is.IssueNumber
	case "character":
		c, err := r.CharacterOrTeam(ctx, rec, models.TypeCharacter)
		if err != nil {
			return out, err
		}
		out.ID, out.Name = c.ID, c.Name
	case "team":
		c, err := r.CharacterOrTeam(ctx, rec, models.TypeTeam)
		if err != nil {
			return out, err
		}
		out.ID, out.Name = c.ID, c.Name
	default:
		return out, apperr.Validation(fmt.Sprintf("unsupported ComicVine resource: %s", resource))
	}
	return out, nil
}

// Publisher: external id, then exact name, then create.
func (r *Resolver) Publisher(ctx context.Context, rec *comicvine.Record) (*models.Publisher, error) {
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, ErrMissingName
	}
	cvID := rec.ID.Ptr()
	country := database.NullableString(rec.Location)
	notes := database.NullableString(rec.Deck)

	if cvID != nil {
		p, err := r.publisherWhere(ctx, `comicvine_id = ?`, *cvID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			keep, err := r.renameAllowed(ctx, "publishers", p.ID, p.Name, name)
			if err != nil {
				return nil, err
			}
			if _, err := r.q.ExecContext(ctx,
				`UPDATE publishers SET name = ?, country = ?, notes = ? WHERE id = ?`,
				keep, country, notes, p.ID,
			); err != nil {
				return nil, fmt.Errorf("update publisher: %w", err)
			}
			return r.publisherWhere(ctx, `id = ?`, p.ID)
		}
	}

	p, err := r.publisherWhere(ctx, `name = ?`, name)
	if err != nil {
		return nil, err
	}
	if p != nil {
		if _, err := r.q.ExecContext(ctx,
			`UPDATE publishers SET comicvine_id = COALESCE(?, comicvine_id), country = ?, notes = ? WHERE id = ?`,
			database.NullableInt64(cvID), country, notes, p.ID,
		); err != nil {
			return nil, fmt.Errorf("update publisher: %w", err)
		}
		return r.publisherWhere(ctx, `id = ?`, p.ID)
	}

	id := uuid.NewString()
	if _, err := r.q.ExecContext(ctx,
		`INSERT INTO publishers (id, user_id, name, comicvine_id, country, notes) VALUES (?, ?, ?, ?, ?, ?)`,
		id, r.owner, name, database.NullableInt64(cvID), country, notes,
	); err != nil {
		return nil, fmt.Errorf("insert publisher: %w", err)
	}
	return r.publisherWhere(ctx, `id = ?`, id)
}

// UnknownPublisher returns the owner's placeholder publisher, creating it once.
func (r *Resolver) UnknownPublisher(ctx context.Context) (string, error) {
	p, err := r.publisherWhere(ctx, `name = ?`, UnknownPublisherName)
	if err != nil {
		return "", err
	}
	if p != nil {
		return p.ID, nil
	}
	id := uuid.NewString()
	if _, err := r.q.ExecContext(ctx,
		`INSERT INTO publishers (id, user_id, name) VALUES (?, ?, ?)`, id, r.owner, UnknownPublisherName,
	); err != nil {
		return "", fmt.Errorf("insert unknown publisher: %w", err)
	}
	return id, nil
}

// renameAllowed returns incoming unless another row of the owner in table
// already has that name, in which case the current name is kept.
func (r *Resolver) renameAllowed(ctx context.Context, table, id, current, incoming string) (string, error) {
	if incoming == current {
		return incoming, nil
	}
	var n int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE user_id = ? AND name = ? AND id != ?`,
		r.owner, incoming, id,
	).Scan(&n); err != nil {
		return "", fmt.Errorf("check %s name: %w", table, err)
	}
	if n > 0 {
		return current, nil
	}
	return incoming, nil
}

func (r *Resolver) publisherWhere(ctx context.Context, cond string, arg any) (*models.Publisher, error) {
	var (
		p              models.Publisher
		cvID           sql.NullInt64
		country, notes sql.NullString
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, name, comicvine_id, country, notes
		FROM publishers WHERE user_id = ? AND `+cond,
		r.owner, arg,
	).Scan(&p.ID, &p.UserID, &p.Name, &cvID, &country, &notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query publisher: %w", err)
	}
	p.ComicVineID = database.Int64Ptr(cvID)
	p.Country = country.String
	p.Notes = notes.String
	return &p, nil
}

// Series: external id, then exact name, then create. publisherID may be
// empty when the record carried no publisher; an existing series then keeps
// its publisher and a new one is filed under the placeholder publisher.
func (r *Resolver) Series(ctx context.Context, rec *comicvine.Record, publisherID string) (*models.Series, error) {
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, ErrMissingName
	}
	cvID := rec.ID.Ptr()
	var era string
	if len(rec.LocationCredits) > 0 {
		era = rec.LocationCredits[0].Name
	}

	existing, err := r.seriesByID(ctx, cvID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if existing, err = r.seriesWhere(ctx, `name = ?`, name); err != nil {
			return nil, err
		}
	}

	if existing != nil {
		pub := publisherID
		if pub == "" {
			pub = existing.PublisherID
		}
		keep, err := r.renameAllowed(ctx, "series", existing.ID, existing.Name, name)
		if err != nil {
			return nil, err
		}
		if _, err := r.q.ExecContext(ctx, `
			UPDATE series SET
				name = ?, publisher_id = ?,
				comicvine_id = COALESCE(?, comicvine_id),
				start_year = COALESCE(?, start_year),
				end_year = COALESCE(?, end_year),
				era = COALESCE(?, era),
				notes = COALESCE(?, notes)
			WHERE id = ?
		`, keep, pub, database.NullableInt64(cvID),
			database.NullableInt(rec.StartYear.IntPtr()), database.NullableInt(rec.EndYear.IntPtr()),
			database.NullableString(era), database.NullableString(rec.Deck), existing.ID,
		); err != nil {
			return nil, fmt.Errorf("update series: %w", err)
		}
		return r.seriesWhere(ctx, `id = ?`, existing.ID)
	}

	if publisherID == "" {
		if publisherID, err = r.UnknownPublisher(ctx); err != nil {
			return nil, err
		}
	}
	id := uuid.NewString()
	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO series (id, user_id, publisher_id, name, comicvine_id, start_year, end_year, era, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, r.owner, publisherID, name, database.NullableInt64(cvID),
		database.NullableInt(rec.StartYear.IntPtr()), database.NullableInt(rec.EndYear.IntPtr()),
		database.NullableString(era), database.NullableString(rec.Deck),
	); err != nil {
		return nil, fmt.Errorf("insert series: %w", err)
	}
	return r.seriesWhere(ctx, `id = ?`, id)
}

func (r *Resolver) seriesByID(ctx context.Context, cvID *int64) (*models.Series, error) {
	if cvID == nil {
		return nil, nil
	}
	return r.seriesWhere(ctx, `comicvine_id = ?`, *cvID)
}

func (r *Resolver) seriesWhere(ctx context.Context, cond string, arg any) (*models.Series, error) {
	var (
		s          models.Series
		cvID       sql.NullInt64
		start, end sql.NullInt64
		era, notes sql.NullString
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, publisher_id, name, comicvine_id, start_year, end_year, era, notes
		FROM series WHERE user_id = ? AND `+cond,
		r.owner, arg,
	).Scan(&s.ID, &s.UserID, &s.PublisherID, &s.Name, &cvID, &start, &end, &era, &notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	s.ComicVineID = database.Int64Ptr(cvID)
	s.StartYear = database.IntPtr(start)
	s.EndYear = database.IntPtr(end)
	s.Era = era.String
	s.Notes = notes.String
	return &s, nil
}
