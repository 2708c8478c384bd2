package campaign

import (
	"context"
	"time"

	"github.com/haywire-mail/relay-crm/internal/domain"
)

// Store defines the persistence contract the lifecycle state machine and the
// scheduler require. Implementations must be safe for concurrent use, and
// every mutation must be durably persisted before the call returns: the next
// scheduler tick or user action has to observe the committed state.
type Store interface {
	// GetCampaign returns a single campaign. Returns ErrNotFound if it
	// doesn't exist within the given database.
	GetCampaign(ctx context.Context, databaseID, id string) (*domain.Campaign, error)

	// GetDueCampaigns returns campaigns in status Scheduled whose
	// scheduled_at is at or before now, for the given database.
	GetDueCampaigns(ctx context.Context, databaseID string, now time.Time) ([]domain.Campaign, error)

	// UpdateCampaign persists the full campaign record. Status, sent_at,
	// scheduled_at, recipient_count, recipients, and target are written
	// atomically as seen by subsequent reads.
	UpdateCampaign(ctx context.Context, c *domain.Campaign) error

	// AddCampaign inserts a new campaign and returns its id. Used by the
	// clone-to-draft and test-send side branches.
	AddCampaign(ctx context.Context, databaseID string, c *domain.Campaign) (string, error)

	// DeleteCampaign permanently removes a campaign.
	DeleteCampaign(ctx context.Context, databaseID, id string) error

	// GetDatabaseContents returns the full tenant snapshot: subscribers with
	// resolved tag-id sets, tags, and campaigns.
	GetDatabaseContents(ctx context.Context, databaseID string) (*domain.DatabaseContents, error)
}

// Lock is the mutual-exclusion primitive guarding a single campaign's send
// path. A single in-process flag is not enough once the scheduler worker and
// the API server can run as separate processes.
type Lock interface {
	// Acquire tries to take the lock without blocking. Returns true on
	// success.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if still held.
	Release(ctx context.Context) error
}

// LockFactory builds a Lock for the given key.
type LockFactory func(key string) Lock

// Deliverer performs the actual (simulated) delivery of a campaign to its
// resolved recipients. It runs inside the Sending window; a delivery error
// is logged but does not abort the Sent commit, since Sending is
// non-cancelable once entered.
type Deliverer interface {
	Deliver(ctx context.Context, c *domain.Campaign, recipients []domain.Subscriber) error
}
