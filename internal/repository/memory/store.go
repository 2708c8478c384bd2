// Package memory implements the persistence contracts with in-process maps.
// It backs single-process deployments and unit tests; semantics mirror the
// postgres implementation, including cascade deletes and per-database
// uniqueness rules.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haywire-mail/relay-crm/internal/domain"
	"github.com/haywire-mail/relay-crm/internal/repository"
	"github.com/haywire-mail/relay-crm/internal/service/campaign"
)

// Store is an in-memory implementation of every store contract in the
// application: campaign.Store, the scheduler's settings store, and the CRUD
// surface the API needs. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	databases   map[string]*domain.Database
	subscribers map[string]*domain.Subscriber
	tags        map[string]*domain.Tag
	campaigns   map[string]*domain.Campaign

	// subscriber id -> set of tag ids
	links map[string]map[string]struct{}

	activeDatabaseID string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		databases:   make(map[string]*domain.Database),
		subscribers: make(map[string]*domain.Subscriber),
		tags:        make(map[string]*domain.Tag),
		campaigns:   make(map[string]*domain.Campaign),
		links:       make(map[string]map[string]struct{}),
	}
}

// ---------------------------------------------------------------------------
// Databases
// ---------------------------------------------------------------------------

// ListDatabases returns every tenant, ordered by creation time.
func (s *Store) ListDatabases(context.Context) ([]domain.Database, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Database, 0, len(s.databases))
	for _, db := range s.databases {
		out = append(out, *db)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GetDatabase returns a single tenant record.
func (s *Store) GetDatabase(_ context.Context, id string) (*domain.Database, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, ok := s.databases[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *db
	return &cp, nil
}

// AddDatabase creates a tenant. Names must be unique.
func (s *Store) AddDatabase(_ context.Context, db *domain.Database) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.databases {
		if strings.EqualFold(existing.Name, db.Name) {
			return "", repository.ErrDuplicateName
		}
	}
	if db.ID == "" {
		db.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	db.CreatedAt = now
	db.UpdatedAt = now
	cp := *db
	s.databases[cp.ID] = &cp
	return cp.ID, nil
}

// UpdateDatabase persists name/description/profile changes.
func (s *Store) UpdateDatabase(_ context.Context, db *domain.Database) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.databases[db.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, other := range s.databases {
		if other.ID != db.ID && strings.EqualFold(other.Name, db.Name) {
			return repository.ErrDuplicateName
		}
	}
	cp := *db
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	s.databases[cp.ID] = &cp
	return nil
}

// DeleteDatabase removes a tenant and everything it owns.
func (s *Store) DeleteDatabase(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.databases[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.databases, id)
	for sid, sub := range s.subscribers {
		if sub.DatabaseID == id {
			delete(s.subscribers, sid)
			delete(s.links, sid)
		}
	}
	for tid, tag := range s.tags {
		if tag.DatabaseID == id {
			delete(s.tags, tid)
		}
	}
	for cid, c := range s.campaigns {
		if c.DatabaseID == id {
			delete(s.campaigns, cid)
		}
	}
	if s.activeDatabaseID == id {
		s.activeDatabaseID = ""
	}
	return nil
}

// GetActiveDatabaseID returns the current active tenant pointer, which may
// be empty when none is selected.
func (s *Store) GetActiveDatabaseID(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeDatabaseID, nil
}

// SetActiveDatabaseID moves the active tenant pointer.
func (s *Store) SetActiveDatabaseID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		if _, ok := s.databases[id]; !ok {
			return repository.ErrNotFound
		}
	}
	s.activeDatabaseID = id
	return nil
}

// GetDatabaseContents returns the full tenant snapshot with resolved
// subscriber tag sets.
func (s *Store) GetDatabaseContents(_ context.Context, databaseID string) (*domain.DatabaseContents, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, ok := s.databases[databaseID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	contents := &domain.DatabaseContents{Database: *db}
	for _, sub := range s.subscribers {
		if sub.DatabaseID != databaseID {
			continue
		}
		cp := *sub
		cp.TagIDs = s.tagIDsFor(sub.ID)
		contents.Subscribers = append(contents.Subscribers, cp)
	}
	sort.Slice(contents.Subscribers, func(i, j int) bool {
		return contents.Subscribers[i].SubscribedAt.Before(contents.Subscribers[j].SubscribedAt)
	})

	for _, tag := range s.tags {
		if tag.DatabaseID == databaseID {
			contents.Tags = append(contents.Tags, *tag)
		}
	}
	sort.Slice(contents.Tags, func(i, j int) bool { return contents.Tags[i].Name < contents.Tags[j].Name })

	for _, c := range s.campaigns {
		if c.DatabaseID == databaseID {
			contents.Campaigns = append(contents.Campaigns, *copyCampaign(c))
		}
	}
	sort.Slice(contents.Campaigns, func(i, j int) bool {
		return contents.Campaigns[i].CreatedAt.Before(contents.Campaigns[j].CreatedAt)
	})

	return contents, nil
}

// GetDatabaseStats summarizes a tenant for the dashboard.
func (s *Store) GetDatabaseStats(_ context.Context, databaseID string) (*domain.DatabaseStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.databases[databaseID]; !ok {
		return nil, repository.ErrNotFound
	}

	stats := &domain.DatabaseStats{}
	for _, sub := range s.subscribers {
		if sub.DatabaseID != databaseID {
			continue
		}
		stats.SubscriberCount++
		if sub.IsActive() {
			stats.ActiveSubscribers++
		}
	}
	for _, tag := range s.tags {
		if tag.DatabaseID == databaseID {
			stats.TagCount++
		}
	}
	for _, c := range s.campaigns {
		if c.DatabaseID != databaseID {
			continue
		}
		stats.CampaignCount++
		if c.Status == domain.CampaignSent {
			stats.SentCampaigns++
			if c.SentAt != nil && (stats.LastSentAt == nil || c.SentAt.After(*stats.LastSentAt)) {
				t := *c.SentAt
				stats.LastSentAt = &t
			}
		}
	}
	return stats, nil
}

func (s *Store) tagIDsFor(subscriberID string) []string {
	set := s.links[subscriberID]
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ---------------------------------------------------------------------------
// Subscribers
// ---------------------------------------------------------------------------

// AddSubscriber creates a subscriber. Emails are unique per database.
func (s *Store) AddSubscriber(_ context.Context, databaseID string, sub *domain.Subscriber) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.databases[databaseID]; !ok {
		return "", repository.ErrNotFound
	}
	for _, existing := range s.subscribers {
		if existing.DatabaseID == databaseID && strings.EqualFold(existing.Email, sub.Email) {
			return "", repository.ErrDuplicateEmail
		}
	}
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	sub.DatabaseID = databaseID
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = time.Now().UTC()
	}
	cp := *sub
	cp.TagIDs = nil
	s.subscribers[cp.ID] = &cp
	for _, tagID := range sub.TagIDs {
		s.linkLocked(cp.ID, tagID)
	}
	return cp.ID, nil
}

// GetSubscriber returns a subscriber with resolved tag ids.
func (s *Store) GetSubscriber(_ context.Context, databaseID, id string) (*domain.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscribers[id]
	if !ok || sub.DatabaseID != databaseID {
		return nil, repository.ErrNotFound
	}
	cp := *sub
	cp.TagIDs = s.tagIDsFor(id)
	return &cp, nil
}

// UpdateSubscriber persists profile fields (email, name, notes, external id,
// unsubscribe state). Tag links are managed separately.
func (s *Store) UpdateSubscriber(_ context.Context, sub *domain.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.subscribers[sub.ID]
	if !ok || existing.DatabaseID != sub.DatabaseID {
		return repository.ErrNotFound
	}
	for _, other := range s.subscribers {
		if other.ID != sub.ID && other.DatabaseID == sub.DatabaseID && strings.EqualFold(other.Email, sub.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	cp := *sub
	cp.TagIDs = nil
	cp.SubscribedAt = existing.SubscribedAt
	s.subscribers[cp.ID] = &cp
	return nil
}

// DeleteSubscriber removes a subscriber and its tag links.
func (s *Store) DeleteSubscriber(_ context.Context, databaseID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[id]
	if !ok || sub.DatabaseID != databaseID {
		return repository.ErrNotFound
	}
	delete(s.subscribers, id)
	delete(s.links, id)
	return nil
}

// LinkTag attaches a tag to a subscriber. Linking twice is a no-op.
func (s *Store) LinkTag(_ context.Context, databaseID, subscriberID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[subscriberID]
	if !ok || sub.DatabaseID != databaseID {
		return repository.ErrNotFound
	}
	tag, ok := s.tags[tagID]
	if !ok || tag.DatabaseID != databaseID {
		return repository.ErrNotFound
	}
	s.linkLocked(subscriberID, tagID)
	return nil
}

// UnlinkTag detaches a tag from a subscriber.
func (s *Store) UnlinkTag(_ context.Context, databaseID, subscriberID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[subscriberID]
	if !ok || sub.DatabaseID != databaseID {
		return repository.ErrNotFound
	}
	if set, ok := s.links[subscriberID]; ok {
		delete(set, tagID)
	}
	return nil
}

func (s *Store) linkLocked(subscriberID, tagID string) {
	set, ok := s.links[subscriberID]
	if !ok {
		set = make(map[string]struct{})
		s.links[subscriberID] = set
	}
	set[tagID] = struct{}{}
}

// ---------------------------------------------------------------------------
// Tags
// ---------------------------------------------------------------------------

// AddTag creates a tag. Names are unique per database.
func (s *Store) AddTag(_ context.Context, databaseID string, tag *domain.Tag) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.databases[databaseID]; !ok {
		return "", repository.ErrNotFound
	}
	for _, existing := range s.tags {
		if existing.DatabaseID == databaseID && strings.EqualFold(existing.Name, tag.Name) {
			return "", repository.ErrDuplicateName
		}
	}
	if tag.ID == "" {
		tag.ID = uuid.New().String()
	}
	tag.DatabaseID = databaseID
	cp := *tag
	s.tags[cp.ID] = &cp
	return cp.ID, nil
}

// UpdateTag renames a tag.
func (s *Store) UpdateTag(_ context.Context, tag *domain.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tags[tag.ID]
	if !ok || existing.DatabaseID != tag.DatabaseID {
		return repository.ErrNotFound
	}
	for _, other := range s.tags {
		if other.ID != tag.ID && other.DatabaseID == tag.DatabaseID && strings.EqualFold(other.Name, tag.Name) {
			return repository.ErrDuplicateName
		}
	}
	cp := *tag
	s.tags[cp.ID] = &cp
	return nil
}

// DeleteTag removes a tag and every subscriber link to it. Campaign targets
// referencing the tag are left alone; a deleted tag simply stops matching.
func (s *Store) DeleteTag(_ context.Context, databaseID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag, ok := s.tags[id]
	if !ok || tag.DatabaseID != databaseID {
		return repository.ErrNotFound
	}
	delete(s.tags, id)
	for _, set := range s.links {
		delete(set, id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Campaigns (campaign.Store)
// ---------------------------------------------------------------------------

// GetCampaign returns a single campaign.
func (s *Store) GetCampaign(_ context.Context, databaseID, id string) (*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok || c.DatabaseID != databaseID {
		return nil, campaign.ErrNotFound
	}
	return copyCampaign(c), nil
}

// GetDueCampaigns returns scheduled campaigns whose time has arrived.
func (s *Store) GetDueCampaigns(_ context.Context, databaseID string, now time.Time) ([]domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Campaign
	for _, c := range s.campaigns {
		if c.DatabaseID == databaseID && c.IsDue(now) {
			out = append(out, *copyCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	return out, nil
}

// UpdateCampaign persists the full campaign record.
func (s *Store) UpdateCampaign(_ context.Context, c *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.campaigns[c.ID]
	if !ok || existing.DatabaseID != c.DatabaseID {
		return campaign.ErrNotFound
	}
	cp := copyCampaign(c)
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	s.campaigns[cp.ID] = cp
	return nil
}

// AddCampaign inserts a campaign and returns its id.
func (s *Store) AddCampaign(_ context.Context, databaseID string, c *domain.Campaign) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.databases[databaseID]; !ok {
		return "", repository.ErrNotFound
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.DatabaseID = databaseID
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.campaigns[c.ID] = copyCampaign(c)
	return c.ID, nil
}

// DeleteCampaign permanently removes a campaign.
func (s *Store) DeleteCampaign(_ context.Context, databaseID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.DatabaseID != databaseID {
		return campaign.ErrNotFound
	}
	delete(s.campaigns, id)
	return nil
}

func copyCampaign(c *domain.Campaign) *domain.Campaign {
	cp := *c
	cp.Recipients = append([]string(nil), c.Recipients...)
	cp.Target = domain.Target{GroupsLogic: c.Target.GroupsLogic}
	for _, g := range c.Target.Groups {
		cg := domain.TagGroup{ID: g.ID, Logic: g.Logic, AtLeast: g.AtLeast}
		cg.TagIDs = append([]string(nil), g.TagIDs...)
		cp.Target.Groups = append(cp.Target.Groups, cg)
	}
	if c.SentAt != nil {
		t := *c.SentAt
		cp.SentAt = &t
	}
	if c.ScheduledAt != nil {
		t := *c.ScheduledAt
		cp.ScheduledAt = &t
	}
	return &cp
}
