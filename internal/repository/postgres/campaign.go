package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haywire-mail/relay-crm/internal/domain"
	"github.com/haywire-mail/relay-crm/internal/service/campaign"
)

const campaignCols = `
	id, database_id, subject, COALESCE(body,''), status,
	sent_at, scheduled_at, recipient_count,
	COALESCE(recipients,'[]'), COALESCE(target,'{}'),
	created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var recipients, target []byte
	err := row.Scan(
		&c.ID, &c.DatabaseID, &c.Subject, &c.Body, &c.Status,
		&c.SentAt, &c.ScheduledAt, &c.RecipientCount,
		&recipients, &target,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(recipients, &c.Recipients); err != nil {
		return nil, fmt.Errorf("decode recipients: %w", err)
	}
	if err := json.Unmarshal(target, &c.Target); err != nil {
		return nil, fmt.Errorf("decode target: %w", err)
	}
	return c, nil
}

// GetCampaign returns a single campaign.
func (s *Store) GetCampaign(ctx context.Context, databaseID, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(s.db.QueryRowContext(ctx,
		`SELECT `+campaignCols+` FROM campaigns WHERE id = $1 AND database_id = $2`,
		id, databaseID))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (s *Store) listCampaigns(ctx context.Context, databaseID string) ([]domain.Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+campaignCols+` FROM campaigns WHERE database_id = $1 ORDER BY created_at ASC`,
		databaseID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// GetDueCampaigns returns scheduled campaigns whose time has arrived,
// oldest first.
func (s *Store) GetDueCampaigns(ctx context.Context, databaseID string, now time.Time) ([]domain.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+campaignCols+`
		FROM campaigns
		WHERE database_id = $1 AND status = 'scheduled' AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
	`, databaseID, now)
	if err != nil {
		return nil, fmt.Errorf("due campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateCampaign persists the full campaign record in a single statement, so
// status, timestamps, counts, recipients, and target commit atomically.
func (s *Store) UpdateCampaign(ctx context.Context, c *domain.Campaign) error {
	recipients, target, err := encodeCampaign(c)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET
			subject=$3, body=$4, status=$5, sent_at=$6, scheduled_at=$7,
			recipient_count=$8, recipients=$9, target=$10, updated_at=NOW()
		WHERE id=$1 AND database_id=$2
	`, c.ID, c.DatabaseID, c.Subject, c.Body, c.Status, c.SentAt, c.ScheduledAt,
		c.RecipientCount, recipients, target)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// AddCampaign inserts a campaign and returns its id.
func (s *Store) AddCampaign(ctx context.Context, databaseID string, c *domain.Campaign) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.DatabaseID = databaseID
	recipients, target, err := encodeCampaign(c)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, database_id, subject, body, status, sent_at, scheduled_at,
			 recipient_count, recipients, target, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())
	`, c.ID, databaseID, c.Subject, c.Body, c.Status, c.SentAt, c.ScheduledAt,
		c.RecipientCount, recipients, target)
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	return c.ID, nil
}

// DeleteCampaign permanently removes a campaign.
func (s *Store) DeleteCampaign(ctx context.Context, databaseID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM campaigns WHERE id = $1 AND database_id = $2`, id, databaseID)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// encodeCampaign renders the JSONB columns. They go over the wire as text;
// pq would encode []byte as bytea, which jsonb rejects.
func encodeCampaign(c *domain.Campaign) (recipients, target string, err error) {
	rec := c.Recipients
	if rec == nil {
		rec = []string{}
	}
	recBytes, err := json.Marshal(rec)
	if err != nil {
		return "", "", fmt.Errorf("encode recipients: %w", err)
	}
	targetBytes, err := json.Marshal(c.Target)
	if err != nil {
		return "", "", fmt.Errorf("encode target: %w", err)
	}
	return string(recBytes), string(targetBytes), nil
}
