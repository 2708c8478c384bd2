package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/haywire-mail/relay-crm/internal/domain"
	"github.com/haywire-mail/relay-crm/internal/repository"
)

const databaseCols = `
	id, name, COALESCE(description,''),
	COALESCE(street,''), COALESCE(city,''), COALESCE(state,''), COALESCE(zip_code,''),
	COALESCE(county,''), COALESCE(website,''), COALESCE(phone,''), COALESCE(fax_number,''),
	COALESCE(key_contact_name,''), COALESCE(key_contact_phone,''), COALESCE(key_contact_email,''),
	COALESCE(social_links,'[]'), created_at, updated_at`

func scanDatabase(row interface{ Scan(...any) error }) (*domain.Database, error) {
	db := &domain.Database{}
	var socialLinks []byte
	err := row.Scan(
		&db.ID, &db.Name, &db.Description,
		&db.Street, &db.City, &db.State, &db.ZipCode,
		&db.County, &db.Website, &db.Phone, &db.FaxNumber,
		&db.KeyContactName, &db.KeyContactPhone, &db.KeyContactEmail,
		&socialLinks, &db.CreatedAt, &db.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(socialLinks) > 0 {
		if err := json.Unmarshal(socialLinks, &db.SocialLinks); err != nil {
			return nil, fmt.Errorf("decode social links: %w", err)
		}
	}
	return db, nil
}

// ListDatabases returns every tenant, ordered by creation time.
func (s *Store) ListDatabases(ctx context.Context) ([]domain.Database, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+databaseCols+` FROM databases ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	defer rows.Close()

	var out []domain.Database
	for rows.Next() {
		db, err := scanDatabase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan database: %w", err)
		}
		out = append(out, *db)
	}
	return out, rows.Err()
}

// GetDatabase returns a single tenant record.
func (s *Store) GetDatabase(ctx context.Context, id string) (*domain.Database, error) {
	db, err := scanDatabase(s.db.QueryRowContext(ctx,
		`SELECT `+databaseCols+` FROM databases WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get database: %w", err)
	}
	return db, nil
}

// AddDatabase creates a tenant and returns its id.
func (s *Store) AddDatabase(ctx context.Context, db *domain.Database) (string, error) {
	if db.ID == "" {
		db.ID = uuid.New().String()
	}
	links, err := json.Marshal(db.SocialLinks)
	if err != nil {
		return "", fmt.Errorf("encode social links: %w", err)
	}
	socialLinks := string(links)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO databases
			(id, name, description, street, city, state, zip_code, county,
			 website, phone, fax_number, key_contact_name, key_contact_phone,
			 key_contact_email, social_links, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW(),NOW())
	`, db.ID, db.Name, db.Description, db.Street, db.City, db.State, db.ZipCode,
		db.County, db.Website, db.Phone, db.FaxNumber, db.KeyContactName,
		db.KeyContactPhone, db.KeyContactEmail, socialLinks)
	if err != nil {
		return "", mapConstraintErr(fmt.Errorf("create database: %w", err), repository.ErrDuplicateName)
	}
	return db.ID, nil
}

// UpdateDatabase persists name/description/profile changes.
func (s *Store) UpdateDatabase(ctx context.Context, db *domain.Database) error {
	links, err := json.Marshal(db.SocialLinks)
	if err != nil {
		return fmt.Errorf("encode social links: %w", err)
	}
	socialLinks := string(links)
	res, err := s.db.ExecContext(ctx, `
		UPDATE databases SET
			name=$2, description=$3, street=$4, city=$5, state=$6, zip_code=$7,
			county=$8, website=$9, phone=$10, fax_number=$11,
			key_contact_name=$12, key_contact_phone=$13, key_contact_email=$14,
			social_links=$15, updated_at=NOW()
		WHERE id=$1
	`, db.ID, db.Name, db.Description, db.Street, db.City, db.State, db.ZipCode,
		db.County, db.Website, db.Phone, db.FaxNumber, db.KeyContactName,
		db.KeyContactPhone, db.KeyContactEmail, socialLinks)
	if err != nil {
		return mapConstraintErr(fmt.Errorf("update database: %w", err), repository.ErrDuplicateName)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteDatabase removes a tenant. Subscribers, tags, campaigns, and tag
// links go with it via ON DELETE CASCADE; the active pointer is cleared if
// it referenced the tenant.
func (s *Store) DeleteDatabase(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM databases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete database: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM settings WHERE key = $1 AND value = $2`, activeDatabaseKey, id)
	if err != nil {
		return fmt.Errorf("clear active pointer: %w", err)
	}
	return nil
}

// GetDatabaseContents returns the full tenant snapshot: the database record
// plus subscribers (with tag ids aggregated from the join table), tags, and
// campaigns.
func (s *Store) GetDatabaseContents(ctx context.Context, databaseID string) (*domain.DatabaseContents, error) {
	db, err := s.GetDatabase(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	contents := &domain.DatabaseContents{Database: *db}

	contents.Subscribers, err = s.listSubscribers(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	contents.Tags, err = s.listTags(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	contents.Campaigns, err = s.listCampaigns(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	return contents, nil
}

// GetDatabaseStats summarizes a tenant for the dashboard.
func (s *Store) GetDatabaseStats(ctx context.Context, databaseID string) (*domain.DatabaseStats, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM databases WHERE id = $1)`, databaseID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check database: %w", err)
	}
	if !exists {
		return nil, repository.ErrNotFound
	}

	stats := &domain.DatabaseStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM subscribers WHERE database_id = $1),
			(SELECT COUNT(*) FROM subscribers WHERE database_id = $1 AND unsubscribed_at IS NULL),
			(SELECT COUNT(*) FROM tags WHERE database_id = $1),
			(SELECT COUNT(*) FROM campaigns WHERE database_id = $1),
			(SELECT COUNT(*) FROM campaigns WHERE database_id = $1 AND status = 'sent'),
			(SELECT MAX(sent_at) FROM campaigns WHERE database_id = $1 AND status = 'sent')
	`, databaseID).Scan(
		&stats.SubscriberCount, &stats.ActiveSubscribers, &stats.TagCount,
		&stats.CampaignCount, &stats.SentCampaigns, &stats.LastSentAt,
	)
	if err != nil {
		return nil, fmt.Errorf("database stats: %w", err)
	}
	return stats, nil
}
