package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/haywire-mail/relay-crm/internal/domain"
	"github.com/haywire-mail/relay-crm/internal/repository"
)

func (s *Store) listTags(ctx context.Context, databaseID string) ([]domain.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, database_id, name FROM tags
		WHERE database_id = $1 ORDER BY name ASC
	`, databaseID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []domain.Tag
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.DatabaseID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AddTag creates a tag. Names are unique per database.
func (s *Store) AddTag(ctx context.Context, databaseID string, tag *domain.Tag) (string, error) {
	if tag.ID == "" {
		tag.ID = uuid.New().String()
	}
	tag.DatabaseID = databaseID
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (id, database_id, name) VALUES ($1, $2, $3)
	`, tag.ID, databaseID, tag.Name)
	if err != nil {
		return "", mapConstraintErr(fmt.Errorf("create tag: %w", err), repository.ErrDuplicateName)
	}
	return tag.ID, nil
}

// UpdateTag renames a tag.
func (s *Store) UpdateTag(ctx context.Context, tag *domain.Tag) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tags SET name = $3 WHERE id = $1 AND database_id = $2
	`, tag.ID, tag.DatabaseID, tag.Name)
	if err != nil {
		return mapConstraintErr(fmt.Errorf("update tag: %w", err), repository.ErrDuplicateName)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteTag removes a tag; subscriber links cascade. Campaign targets keep
// the dangling id, which simply never matches again.
func (s *Store) DeleteTag(ctx context.Context, databaseID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tags WHERE id = $1 AND database_id = $2`, id, databaseID)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
