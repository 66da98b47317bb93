// Package sqlstore keeps resources and their relationships in a SQL database
// and serves them to a hypermedia.API as its Loader.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tailbits/hypermedia"
	"github.com/tailbits/hypermedia/model"
)

var (
	_ hypermedia.Loader     = (*Store)(nil)
	_ hypermedia.PageLoader = (*Store)(nil)
)

type Store struct {
	db      *sql.DB
	dialect Dialect
	log     *slog.Logger
}

func New(db *sql.DB, d Dialect, log *slog.Logger) *Store {
	if db == nil {
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		db:      db,
		dialect: d,
		log:     log.With(slog.String("component", "sqlstore")),
	}
}

// Migrate applies the store's schema.
func (s *Store) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.db, s.dialect, s.log)
}

// Create inserts a new resource. It returns ErrDuplicate when one with the same identifier exists.
func (s *Store) Create(ctx context.Context, res model.Resource) error {
	return s.write(ctx, res, false)
}

// Put inserts res or replaces its attributes and relationships.
func (s *Store) Put(ctx context.Context, res model.Resource) error {
	return s.write(ctx, res, true)
}

func (s *Store) write(ctx context.Context, res model.Resource, upsert bool) error {
	attrs, err := json.Marshal(res.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes of %s: %w", res.Identifier(), err)
	}
	if res.Attributes == nil {
		attrs = []byte("{}")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := `INSERT INTO resources (type, id, attributes) VALUES (?, ?, ?)`
	if upsert {
		insert += ` ON CONFLICT (type, id) DO UPDATE SET attributes = excluded.attributes, updated_at = CURRENT_TIMESTAMP`
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(insert), res.Type, res.ID, string(attrs)); err != nil {
		s.log.ErrorContext(ctx, "failed to write resource", "resource", res.Identifier().String(), "error", err)
		return mapError(err)
	}

	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM relation_targets WHERE owner_type = ? AND owner_id = ?`), res.Type, res.ID); err != nil {
		return mapError(err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM relations WHERE owner_type = ? AND owner_id = ?`), res.Type, res.ID); err != nil {
		return mapError(err)
	}

	for ordinal, rel := range res.Relationships {
		cardinality, err := rel.Cardinality.MarshalText()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(
			`INSERT INTO relations (owner_type, owner_id, name, ordinal, target_type, cardinality, resolved) VALUES (?, ?, ?, ?, ?, ?, ?)`),
			res.Type, res.ID, rel.Name, ordinal, rel.TargetType, string(cardinality), rel.Resolved,
		); err != nil {
			return mapError(err)
		}

		for position, ident := range rel.Identifiers() {
			if _, err := tx.ExecContext(ctx, s.dialect.rebind(
				`INSERT INTO relation_targets (owner_type, owner_id, name, position, target_type, target_id) VALUES (?, ?, ?, ?, ?, ?)`),
				res.Type, res.ID, rel.Name, position, ident.Type, ident.ID,
			); err != nil {
				return mapError(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.DebugContext(ctx, "resource written", "resource", res.Identifier().String(), "relationships", len(res.Relationships))
	return nil
}

// Delete removes a resource and the relationships it owns.
func (s *Store) Delete(ctx context.Context, typ, id string) error {
	result, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM resources WHERE type = ? AND id = ?`), typ, id)
	if err != nil {
		return mapError(err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s/%s: %w", typ, id, hypermedia.ErrNotFound)
	}
	return nil
}

func (s *Store) LoadResource(ctx context.Context, typ, id string) (model.Resource, error) {
	var attrs string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT attributes FROM resources WHERE type = ? AND id = ?`), typ, id).Scan(&attrs)
	if err != nil {
		return model.Resource{}, mapError(err)
	}
	return s.build(ctx, typ, id, attrs)
}

// LoadRelated returns every stored target of relation in position order.
// Targets missing from the store are skipped.
func (s *Store) LoadRelated(ctx context.Context, typ, id, relation string) ([]model.Resource, error) {
	members, _, err := s.related(ctx, typ, id, relation, 0, -1)
	return members, err
}

// LoadRelatedPage pages through a relation. Cursors are target positions.
func (s *Store) LoadRelatedPage(ctx context.Context, typ, id, relation, cursor string, size int) ([]model.Resource, string, error) {
	from := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, "", fmt.Errorf("%w: %q", hypermedia.ErrInvalidCursor, cursor)
		}
		from = n
	}
	if size <= 0 {
		return nil, "", fmt.Errorf("page size must be positive, got %d", size)
	}
	return s.related(ctx, typ, id, relation, from, size)
}

// related loads up to size targets starting at position from; a negative size loads all.
// The returned cursor is the position of the first target of the next page.
func (s *Store) related(ctx context.Context, typ, id, relation string, from, size int) ([]model.Resource, string, error) {
	if err := s.ensureOwner(ctx, typ, id); err != nil {
		return nil, "", err
	}

	query := `SELECT t.position, r.type, r.id, r.attributes
		FROM relation_targets t
		JOIN resources r ON r.type = t.target_type AND r.id = t.target_id
		WHERE t.owner_type = ? AND t.owner_id = ? AND t.name = ? AND t.position >= ?
		ORDER BY t.position`
	args := []any{typ, id, relation, from}
	if size >= 0 {
		query += ` LIMIT ?`
		args = append(args, size+1)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, "", mapError(err)
	}
	type row struct {
		position       int
		typ, id, attrs string
	}
	var found []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.position, &r.typ, &r.id, &r.attrs); err != nil {
			rows.Close()
			return nil, "", err
		}
		found = append(found, r)
	}
	if err := rows.Close(); err != nil {
		return nil, "", err
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := ""
	if size >= 0 && len(found) > size {
		next = strconv.Itoa(found[size].position)
		found = found[:size]
	}

	members := make([]model.Resource, 0, len(found))
	for _, r := range found {
		res, err := s.build(ctx, r.typ, r.id, r.attrs)
		if err != nil {
			return nil, "", err
		}
		members = append(members, res)
	}
	return members, next, nil
}

func (s *Store) ensureOwner(ctx context.Context, typ, id string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT 1 FROM resources WHERE type = ? AND id = ?`), typ, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", typ, id, hypermedia.ErrNotFound)
	}
	return mapError(err)
}

// build assembles a resource from its attribute column and stored relationships.
func (s *Store) build(ctx context.Context, typ, id, rawAttrs string) (model.Resource, error) {
	attrs := map[string]any{}
	if err := json.Unmarshal([]byte(rawAttrs), &attrs); err != nil {
		return model.Resource{}, fmt.Errorf("decode attributes of %s/%s: %w", typ, id, err)
	}

	rels, err := s.relationships(ctx, typ, id)
	if err != nil {
		return model.Resource{}, err
	}
	return model.New(typ, id, attrs, rels...)
}

func (s *Store) relationships(ctx context.Context, typ, id string) ([]model.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT name, target_type, cardinality, resolved FROM relations WHERE owner_type = ? AND owner_id = ? ORDER BY ordinal`),
		typ, id)
	if err != nil {
		return nil, mapError(err)
	}

	var rels []model.Relationship
	for rows.Next() {
		var (
			rel         model.Relationship
			cardinality string
		)
		if err := rows.Scan(&rel.Name, &rel.TargetType, &cardinality, &rel.Resolved); err != nil {
			rows.Close()
			return nil, err
		}
		if err := rel.Cardinality.UnmarshalText([]byte(cardinality)); err != nil {
			rows.Close()
			return nil, err
		}
		rels = append(rels, rel)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range rels {
		if !rels[i].Resolved {
			continue
		}
		if rels[i].IDs, err = s.targetIDs(ctx, typ, id, rels[i].Name); err != nil {
			return nil, err
		}
	}
	return rels, nil
}

func (s *Store) targetIDs(ctx context.Context, typ, id, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT target_id FROM relation_targets WHERE owner_type = ? AND owner_id = ? AND name = ? ORDER BY position`),
		typ, id, name)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, err
		}
		ids = append(ids, target)
	}
	return ids, rows.Err()
}
