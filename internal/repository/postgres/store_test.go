package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/haywire-mail/relay-crm/internal/domain"
	"github.com/haywire-mail/relay-crm/internal/repository"
	"github.com/haywire-mail/relay-crm/internal/service/campaign"
)

func setupTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	return NewStore(db), mock, func() { db.Close() }
}

func campaignRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "database_id", "subject", "body", "status",
		"sent_at", "scheduled_at", "recipient_count",
		"recipients", "target", "created_at", "updated_at",
	})
}

// =============================================================================
// CAMPAIGN TESTS
// =============================================================================

func TestStore_GetDueCampaigns(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	now := time.Now()
	past := now.Add(-time.Minute)
	target, _ := json.Marshal(domain.Target{})

	mock.ExpectQuery(`SELECT (.+) FROM campaigns WHERE database_id = \$1 AND status = 'scheduled' AND scheduled_at <= \$2 ORDER BY scheduled_at ASC`).
		WithArgs("db-1", now).
		WillReturnRows(campaignRows().AddRow(
			"c-1", "db-1", "Hello", "<p>Hi</p>", "scheduled",
			nil, past, 3, []byte(`["a@x.com"]`), target, now, now,
		))

	due, err := store.GetDueCampaigns(context.Background(), "db-1", now)
	if err != nil {
		t.Fatalf("GetDueCampaigns() error: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("len(due) = %d, want 1", len(due))
	}
	if due[0].Status != domain.CampaignScheduled {
		t.Errorf("status = %q, want scheduled", due[0].Status)
	}
	if len(due[0].Recipients) != 1 || due[0].Recipients[0] != "a@x.com" {
		t.Errorf("recipients = %v", due[0].Recipients)
	}
}

func TestStore_GetCampaignNotFound(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT (.+) FROM campaigns WHERE id = \$1 AND database_id = \$2`).
		WithArgs("missing", "db-1").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetCampaign(context.Background(), "db-1", "missing")
	if !errors.Is(err, campaign.ErrNotFound) {
		t.Errorf("error = %v, want campaign.ErrNotFound", err)
	}
}

func TestStore_UpdateCampaign(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	sentAt := time.Now()
	c := &domain.Campaign{
		ID:             "c-1",
		DatabaseID:     "db-1",
		Subject:        "Hello",
		Status:         domain.CampaignSent,
		SentAt:         &sentAt,
		RecipientCount: 2,
		Recipients:     []string{"a@x.com", "b@x.com"},
	}

	mock.ExpectExec(`UPDATE campaigns SET`).
		WithArgs("c-1", "db-1", "Hello", "", domain.CampaignSent,
			sentAt, nil, 2, `["a@x.com","b@x.com"]`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.UpdateCampaign(context.Background(), c); err != nil {
		t.Errorf("UpdateCampaign() error: %v", err)
	}
}

func TestStore_UpdateCampaignNotFound(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE campaigns SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateCampaign(context.Background(), &domain.Campaign{ID: "ghost", DatabaseID: "db-1"})
	if !errors.Is(err, campaign.ErrNotFound) {
		t.Errorf("error = %v, want campaign.ErrNotFound", err)
	}
}

func TestStore_AddCampaignAssignsID(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO campaigns`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := store.AddCampaign(context.Background(), "db-1", &domain.Campaign{
		Subject: "New",
		Status:  domain.CampaignDraft,
	})
	if err != nil {
		t.Fatalf("AddCampaign() error: %v", err)
	}
	if id == "" {
		t.Error("AddCampaign() returned empty id")
	}
}

func TestStore_DeleteCampaignNotFound(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectExec(`DELETE FROM campaigns`).
		WithArgs("ghost", "db-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteCampaign(context.Background(), "db-1", "ghost")
	if !errors.Is(err, campaign.ErrNotFound) {
		t.Errorf("error = %v, want campaign.ErrNotFound", err)
	}
}

// =============================================================================
// SUBSCRIBER TESTS
// =============================================================================

func TestStore_GetSubscriberWithTags(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "database_id", "email", "name", "external_id", "notes",
		"subscribed_at", "unsubscribed_at", "tag_ids",
	}).AddRow("s-1", "db-1", "a@x.com", "Alice", "", "",
		now, nil, "{t-1,t-2}")

	mock.ExpectQuery(`SELECT (.+) FROM subscribers s`).
		WithArgs("s-1", "db-1").
		WillReturnRows(rows)

	sub, err := store.GetSubscriber(context.Background(), "db-1", "s-1")
	if err != nil {
		t.Fatalf("GetSubscriber() error: %v", err)
	}
	if len(sub.TagIDs) != 2 {
		t.Errorf("tag_ids = %v, want 2 entries", sub.TagIDs)
	}
}

func TestStore_AddSubscriberDuplicateEmail(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO subscribers`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "subscribers_database_id_email_key"})
	mock.ExpectRollback()

	_, err := store.AddSubscriber(context.Background(), "db-1", &domain.Subscriber{Email: "a@x.com"})
	if !errors.Is(err, repository.ErrDuplicateEmail) {
		t.Errorf("error = %v, want repository.ErrDuplicateEmail", err)
	}
}

// =============================================================================
// TAG TESTS
// =============================================================================

func TestStore_AddTagDuplicateName(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO tags`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "tags_database_id_name_key"})

	_, err := store.AddTag(context.Background(), "db-1", &domain.Tag{Name: "vip"})
	if !errors.Is(err, repository.ErrDuplicateName) {
		t.Errorf("error = %v, want repository.ErrDuplicateName", err)
	}
}

func TestStore_DeleteTagNotFound(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectExec(`DELETE FROM tags`).
		WithArgs("ghost", "db-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteTag(context.Background(), "db-1", "ghost")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("error = %v, want repository.ErrNotFound", err)
	}
}

// =============================================================================
// ACTIVE DATABASE POINTER TESTS
// =============================================================================

func TestStore_ActiveDatabasePointer(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO settings`).
		WithArgs("active_database_id", "db-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetActiveDatabaseID(context.Background(), "db-1"); err != nil {
		t.Fatalf("SetActiveDatabaseID() error: %v", err)
	}

	mock.ExpectQuery(`SELECT value FROM settings`).
		WithArgs("active_database_id").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("db-1"))

	id, err := store.GetActiveDatabaseID(context.Background())
	if err != nil {
		t.Fatalf("GetActiveDatabaseID() error: %v", err)
	}
	if id != "db-1" {
		t.Errorf("active id = %q, want db-1", id)
	}
}

func TestStore_ActiveDatabasePointerUnset(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT value FROM settings`).
		WithArgs("active_database_id").
		WillReturnError(sql.ErrNoRows)

	id, err := store.GetActiveDatabaseID(context.Background())
	if err != nil {
		t.Fatalf("GetActiveDatabaseID() error: %v", err)
	}
	if id != "" {
		t.Errorf("active id = %q, want empty", id)
	}
}
