package resolver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"comictracker/internal/comicvine"
	"comictracker/pkg/database"
	"comictracker/pkg/models"
)

const characterColumns = `id, user_id, publisher_id, name, type, real_name, aliases, continuity, notes, comicvine_id`

type characterRow struct {
	models.CharacterOrTeam
	rawAliases string
}

// CharacterOrTeam resolves a character or team credit. The steps run from
// most to least certain and stop at the first hit:
//
//  1. stored ComicVine id
//  2. exact (name, type)
//  3. case-insensitive real name
//  4. case-insensitive alias, first among rows whose alias array holds the
//     literal name, then by a linear scan of every same-type row
//  5. create
func (r *Resolver) CharacterOrTeam(ctx context.Context, rec *comicvine.Record, typ models.CharacterType) (*models.CharacterOrTeam, error) {
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, ErrMissingName
	}

	var publisherID *string
	if rec.Publisher != nil && rec.Publisher.ID != 0 && strings.TrimSpace(rec.Publisher.Name) != "" {
		p, err := r.Publisher(ctx, rec.Publisher)
		if err != nil {
			return nil, err
		}
		publisherID = &p.ID
	}
	cvID := rec.ID.Ptr()

	if cvID != nil {
		c, err := r.characterWhere(ctx, `comicvine_id = ?`, *cvID)
		if err != nil {
			return nil, err
		}
		if c != nil {
			newName, err := r.renameTarget(ctx, c, name)
			if err != nil {
				return nil, err
			}
			return r.updateCharacter(ctx, c, rec, newName, nil, publisherID)
		}
	}

	steps := []func(context.Context, models.CharacterType, string) (*characterRow, error){
		r.characterByName,
		r.characterByRealName,
		r.characterByLiteralAlias,
		r.characterByAliasScan,
	}
	for _, step := range steps {
		c, err := step(ctx, typ, name)
		if err != nil {
			return nil, err
		}
		if c != nil {
			return r.updateCharacter(ctx, c, rec, c.Name, cvID, publisherID)
		}
	}

	aliases, err := encodeAliases(NormalizeAliases(rec.Aliases))
	if err != nil {
		return nil, fmt.Errorf("encode aliases: %w", err)
	}
	id := uuid.NewString()
	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO characters_or_teams (id, user_id, publisher_id, name, type, real_name, aliases, continuity, notes, comicvine_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, r.owner, database.NullableString(deref(publisherID)), name, string(typ),
		database.NullableString(rec.RealName), aliases, database.NullableString(universe(rec)),
		database.NullableString(rec.Deck), database.NullableInt64(cvID),
	); err != nil {
		return nil, fmt.Errorf("insert %s: %w", strings.ToLower(string(typ)), err)
	}
	c, err := r.characterWhere(ctx, `id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &c.CharacterOrTeam, nil
}

func (r *Resolver) characterByName(ctx context.Context, typ models.CharacterType, name string) (*characterRow, error) {
	return r.characterWhere(ctx, `type = ? AND name = ?`, string(typ), name)
}

func (r *Resolver) characterByRealName(ctx context.Context, typ models.CharacterType, name string) (*characterRow, error) {
	rows, err := r.characters(ctx, `type = ? AND real_name IS NOT NULL AND real_name != ''`, string(typ))
	if err != nil {
		return nil, err
	}
	for _, c := range rows {
		if foldEqual(c.RealName, name) {
			return c, nil
		}
	}
	return nil, nil
}

// characterByLiteralAlias narrows candidates with json_each on the stored
// alias array, then confirms with the same case-insensitive check the scan uses.
func (r *Resolver) characterByLiteralAlias(ctx context.Context, typ models.CharacterType, name string) (*characterRow, error) {
	rows, err := r.characters(ctx, `type = ? AND aliases IS NOT NULL AND json_valid(aliases)
		AND EXISTS (SELECT 1 FROM json_each(characters_or_teams.aliases) WHERE json_each.value = ?)`,
		string(typ), name)
	if err != nil {
		return nil, err
	}
	for _, c := range rows {
		if hasAlias(c.rawAliases, name) {
			return c, nil
		}
	}
	return nil, nil
}

// characterByAliasScan is the unindexed fallback: every same-type row of the
// owner is checked against the re-split alias list.
func (r *Resolver) characterByAliasScan(ctx context.Context, typ models.CharacterType, name string) (*characterRow, error) {
	rows, err := r.characters(ctx, `type = ? AND aliases IS NOT NULL`, string(typ))
	if err != nil {
		return nil, err
	}
	for _, c := range rows {
		if hasAlias(c.rawAliases, name) {
			return c, nil
		}
	}
	return nil, nil
}

// renameTarget keeps the stored name when another row of the same type
// already owns the incoming one.
func (r *Resolver) renameTarget(ctx context.Context, c *characterRow, name string) (string, error) {
	if name == c.Name {
		return name, nil
	}
	other, err := r.characterWhere(ctx, `type = ? AND name = ? AND id != ?`, string(c.Type), name, c.ID)
	if err != nil {
		return "", err
	}
	if other != nil {
		return c.Name, nil
	}
	return name, nil
}

// updateCharacter refreshes a matched row. Fields the record leaves empty keep
// their stored values.
func (r *Resolver) updateCharacter(ctx context.Context, c *characterRow, rec *comicvine.Record, name string, cvID *int64, publisherID *string) (*models.CharacterOrTeam, error) {
	var aliases any = database.NullableString(c.rawAliases)
	if len(rec.Aliases) > 0 {
		enc, err := encodeAliases(NormalizeAliases(rec.Aliases))
		if err != nil {
			return nil, fmt.Errorf("encode aliases: %w", err)
		}
		aliases = enc
	}
	if _, err := r.q.ExecContext(ctx, `
		UPDATE characters_or_teams SET
			name = ?,
			comicvine_id = COALESCE(?, comicvine_id),
			aliases = ?,
			publisher_id = COALESCE(?, publisher_id),
			real_name = COALESCE(?, real_name),
			continuity = COALESCE(?, continuity),
			notes = COALESCE(?, notes)
		WHERE id = ?
	`, name, database.NullableInt64(cvID), aliases, database.NullableString(deref(publisherID)),
		database.NullableString(rec.RealName), database.NullableString(universe(rec)),
		database.NullableString(rec.Deck), c.ID,
	); err != nil {
		return nil, fmt.Errorf("update %s: %w", strings.ToLower(string(c.Type)), err)
	}
	out, err := r.characterWhere(ctx, `id = ?`, c.ID)
	if err != nil {
		return nil, err
	}
	return &out.CharacterOrTeam, nil
}

func (r *Resolver) characterWhere(ctx context.Context, cond string, args ...any) (*characterRow, error) {
	rows, err := r.characters(ctx, cond, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// characters lists the owner's rows matching cond in insertion order.
func (r *Resolver) characters(ctx context.Context, cond string, args ...any) ([]*characterRow, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+characterColumns+` FROM characters_or_teams WHERE user_id = ? AND `+cond+` ORDER BY rowid`,
		append([]any{r.owner}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("query characters: %w", err)
	}
	defer rows.Close()

	var out []*characterRow
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows characters: %w", err)
	}
	return out, nil
}

func scanCharacter(rows *sql.Rows) (*characterRow, error) {
	var (
		c                            characterRow
		typ                          string
		publisher, realName, aliases sql.NullString
		continuity, notes            sql.NullString
		cvID                         sql.NullInt64
	)
	if err := rows.Scan(&c.ID, &c.UserID, &publisher, &c.Name, &typ, &realName, &aliases,
		&continuity, &notes, &cvID); err != nil {
		return nil, fmt.Errorf("scan character: %w", err)
	}
	c.Type = models.CharacterType(typ)
	c.PublisherID = database.StringPtr(publisher)
	c.RealName = realName.String
	c.rawAliases = aliases.String
	c.Aliases = storedAliases(aliases.String)
	c.Continuity = continuity.String
	c.Notes = notes.String
	c.ComicVineID = database.Int64Ptr(cvID)
	return &c, nil
}

func universe(rec *comicvine.Record) string {
	if rec.Universe == nil {
		return ""
	}
	return rec.Universe.Name
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
