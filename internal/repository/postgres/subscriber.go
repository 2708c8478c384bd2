package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/haywire-mail/relay-crm/internal/domain"
	"github.com/haywire-mail/relay-crm/internal/repository"
)

func (s *Store) listSubscribers(ctx context.Context, databaseID string) ([]domain.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.database_id, s.email, COALESCE(s.name,''),
		       COALESCE(s.external_id,''), COALESCE(s.notes,''),
		       s.subscribed_at, s.unsubscribed_at,
		       COALESCE(array_agg(st.tag_id::text) FILTER (WHERE st.tag_id IS NOT NULL), '{}')
		FROM subscribers s
		LEFT JOIN subscriber_tags st ON st.subscriber_id = s.id
		WHERE s.database_id = $1
		GROUP BY s.id
		ORDER BY s.subscribed_at ASC
	`, databaseID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscriber
	for rows.Next() {
		var sub domain.Subscriber
		var tagIDs pq.StringArray
		if err := rows.Scan(
			&sub.ID, &sub.DatabaseID, &sub.Email, &sub.Name,
			&sub.ExternalID, &sub.Notes,
			&sub.SubscribedAt, &sub.UnsubscribedAt, &tagIDs,
		); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		sub.TagIDs = []string(tagIDs)
		out = append(out, sub)
	}
	return out, rows.Err()
}

// GetSubscriber returns a subscriber with resolved tag ids.
func (s *Store) GetSubscriber(ctx context.Context, databaseID, id string) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	var tagIDs pq.StringArray
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.database_id, s.email, COALESCE(s.name,''),
		       COALESCE(s.external_id,''), COALESCE(s.notes,''),
		       s.subscribed_at, s.unsubscribed_at,
		       COALESCE(array_agg(st.tag_id::text) FILTER (WHERE st.tag_id IS NOT NULL), '{}')
		FROM subscribers s
		LEFT JOIN subscriber_tags st ON st.subscriber_id = s.id
		WHERE s.id = $1 AND s.database_id = $2
		GROUP BY s.id
	`, id, databaseID).Scan(
		&sub.ID, &sub.DatabaseID, &sub.Email, &sub.Name,
		&sub.ExternalID, &sub.Notes,
		&sub.SubscribedAt, &sub.UnsubscribedAt, &tagIDs,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	sub.TagIDs = []string(tagIDs)
	return &sub, nil
}

// AddSubscriber creates a subscriber and links any provided tag ids.
func (s *Store) AddSubscriber(ctx context.Context, databaseID string, sub *domain.Subscriber) (string, error) {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	sub.DatabaseID = databaseID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO subscribers
			(id, database_id, email, name, external_id, notes, subscribed_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
	`, sub.ID, databaseID, sub.Email, sub.Name, sub.ExternalID, sub.Notes,
		nullTime(sub.SubscribedAt))
	if err != nil {
		return "", mapConstraintErr(fmt.Errorf("create subscriber: %w", err), repository.ErrDuplicateEmail)
	}

	for _, tagID := range sub.TagIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO subscriber_tags (subscriber_id, tag_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING
		`, sub.ID, tagID); err != nil {
			return "", fmt.Errorf("link tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return sub.ID, nil
}

// UpdateSubscriber persists profile fields. Tag links are managed via
// LinkTag/UnlinkTag.
func (s *Store) UpdateSubscriber(ctx context.Context, sub *domain.Subscriber) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscribers SET
			email=$3, name=$4, external_id=$5, notes=$6, unsubscribed_at=$7
		WHERE id=$1 AND database_id=$2
	`, sub.ID, sub.DatabaseID, sub.Email, sub.Name, sub.ExternalID, sub.Notes, sub.UnsubscribedAt)
	if err != nil {
		return mapConstraintErr(fmt.Errorf("update subscriber: %w", err), repository.ErrDuplicateEmail)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteSubscriber removes a subscriber; tag links cascade.
func (s *Store) DeleteSubscriber(ctx context.Context, databaseID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscribers WHERE id = $1 AND database_id = $2`, id, databaseID)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// LinkTag attaches a tag to a subscriber. Linking twice is a no-op.
func (s *Store) LinkTag(ctx context.Context, databaseID, subscriberID, tagID string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriber_tags (subscriber_id, tag_id)
		SELECT s.id, t.id
		FROM subscribers s, tags t
		WHERE s.id = $1 AND s.database_id = $2 AND t.id = $3 AND t.database_id = $2
		ON CONFLICT DO NOTHING
	`, subscriberID, databaseID, tagID)
	if err != nil {
		return fmt.Errorf("link tag: %w", err)
	}
	// Zero rows with no conflict means subscriber or tag doesn't exist in
	// this database; re-check to distinguish from an existing link.
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		err := s.db.QueryRowContext(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM subscriber_tags WHERE subscriber_id = $1 AND tag_id = $2
			)`, subscriberID, tagID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check link: %w", err)
		}
		if !exists {
			return repository.ErrNotFound
		}
	}
	return nil
}

// UnlinkTag detaches a tag from a subscriber.
func (s *Store) UnlinkTag(ctx context.Context, databaseID, subscriberID, tagID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM subscriber_tags st
		USING subscribers s
		WHERE st.subscriber_id = s.id
		  AND st.subscriber_id = $1 AND st.tag_id = $2 AND s.database_id = $3
	`, subscriberID, tagID, databaseID)
	if err != nil {
		return fmt.Errorf("unlink tag: %w", err)
	}
	return nil
}

func nullTime(t interface{ IsZero() bool }) any {
	if t.IsZero() {
		return nil
	}
	return t
}
