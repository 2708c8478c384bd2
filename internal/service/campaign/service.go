package campaign

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/haywire-mail/relay-crm/internal/audience"
	"github.com/haywire-mail/relay-crm/internal/domain"
)

// Service implements the campaign lifecycle state machine. Manual sends from
// the API (Send) and scheduler-triggered sends (SendDue) funnel through the
// same delivery path, so the per-campaign lock taken there is the single
// mutual-exclusion point for delivery.
type Service struct {
	store     Store
	locks     LockFactory
	deliverer Deliverer
}

// NewService creates a campaign service backed by the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// SetLockFactory sets the factory used to guard sends per campaign. Without
// one, sends proceed unguarded (single-process deployments only).
func (s *Service) SetLockFactory(f LockFactory) {
	s.locks = f
}

// SetDeliverer sets the delivery backend invoked during the Sending window.
func (s *Service) SetDeliverer(d Deliverer) {
	s.deliverer = d
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, databaseID, id string) (*domain.Campaign, error) {
	return s.store.GetCampaign(ctx, databaseID, id)
}

// Estimate resolves the current recipient count for a target against the
// database's current subscriber set. It uses the same resolution logic as
// Send, so the live estimate is a preview of exactly what would be frozen.
func (s *Service) Estimate(ctx context.Context, databaseID string, target domain.Target) (int, error) {
	contents, err := s.store.GetDatabaseContents(ctx, databaseID)
	if err != nil {
		return 0, fmt.Errorf("load database contents: %w", err)
	}
	return audience.Count(target, contents.Subscribers), nil
}

// Schedule transitions a Draft (or already Scheduled) campaign to Scheduled
// at the given future time. The recipient count is recomputed against the
// current target and subscriber set; a zero-recipient or subjectless campaign
// is rejected. Any prior recipient snapshot is cleared: the audience is
// re-resolved at actual send time, not at scheduling time.
func (s *Service) Schedule(ctx context.Context, databaseID, id string, at time.Time) error {
	c, err := s.store.GetCampaign(ctx, databaseID, id)
	if err != nil {
		return err
	}

	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignScheduled {
		return ErrInvalidTransition
	}
	if c.Subject == "" {
		return ErrEmptySubject
	}
	if !at.After(time.Now()) {
		return ErrScheduleInPast
	}

	n, err := s.Estimate(ctx, databaseID, c.Target)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoRecipients
	}

	c.Status = domain.CampaignScheduled
	c.ScheduledAt = &at
	c.SentAt = nil
	c.Recipients = nil
	c.RecipientCount = 0

	if err := s.store.UpdateCampaign(ctx, c); err != nil {
		return fmt.Errorf("persist schedule: %w", err)
	}
	return nil
}

// Unschedule reverts a Scheduled campaign to Draft. Only scheduled_at is
// touched; subject, body, and target remain as last edited.
func (s *Service) Unschedule(ctx context.Context, databaseID, id string) error {
	c, err := s.store.GetCampaign(ctx, databaseID, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignScheduled {
		return ErrInvalidTransition
	}

	c.Status = domain.CampaignDraft
	c.ScheduledAt = nil

	if err := s.store.UpdateCampaign(ctx, c); err != nil {
		return fmt.Errorf("persist unschedule: %w", err)
	}
	return nil
}

// Send drives a Draft or Scheduled campaign through Sending to Sent. The
// recipient list is resolved once, at the moment of entering Sending, and
// that same list is frozen at the Sent commit; subscribers changing mid-send
// do not alter the snapshot. Each phase is persisted separately so the
// transient Sending state is observable.
//
// Returns the number of recipients the campaign was sent to.
func (s *Service) Send(ctx context.Context, databaseID, id string) (int, error) {
	return s.send(ctx, databaseID, id, false)
}

// SendDue completes delivery of a campaign whose scheduled time has arrived.
// Content validation happened at Schedule time and is not repeated here: if
// the target no longer matches anyone, or the subject was edited away, the
// campaign still finishes the Sending to Sent commit, with an empty frozen
// snapshot and recipient_count 0. A campaign left in Scheduled would be
// retried every tick forever.
func (s *Service) SendDue(ctx context.Context, databaseID, id string) (int, error) {
	return s.send(ctx, databaseID, id, true)
}

func (s *Service) send(ctx context.Context, databaseID, id string, due bool) (int, error) {
	if s.locks != nil {
		lock := s.locks("campaign-send:" + id)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return 0, fmt.Errorf("acquire send lock: %w", err)
		}
		if !ok {
			return 0, ErrSendInProgress
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.Printf("[campaign.Service] release send lock for %s: %v", id, err)
			}
		}()
	}

	// Fetch after the lock so a send racing us is observed as Sent.
	c, err := s.store.GetCampaign(ctx, databaseID, id)
	if err != nil {
		return 0, err
	}

	switch c.Status {
	case domain.CampaignDraft, domain.CampaignScheduled:
	case domain.CampaignSending:
		return 0, ErrSendInProgress
	case domain.CampaignSent:
		return 0, ErrAlreadySent
	default:
		return 0, ErrInvalidTransition
	}

	if !due && c.Subject == "" {
		return 0, ErrEmptySubject
	}

	contents, err := s.store.GetDatabaseContents(ctx, databaseID)
	if err != nil {
		return 0, fmt.Errorf("load database contents: %w", err)
	}

	ids := audience.Resolve(c.Target, contents.Subscribers)
	if !due && len(ids) == 0 {
		return 0, ErrNoRecipients
	}

	// Phase 1: mark as sending. Recipients stay empty during this window.
	now := time.Now().UTC()
	c.Status = domain.CampaignSending
	c.SentAt = &now
	c.RecipientCount = len(ids)
	c.Recipients = nil
	if err := s.store.UpdateCampaign(ctx, c); err != nil {
		return 0, fmt.Errorf("commit sending state: %w", err)
	}

	if s.deliverer != nil && len(ids) > 0 {
		recipients := subscribersByID(contents.Subscribers, ids)
		if err := s.deliverer.Deliver(ctx, c, recipients); err != nil {
			// Sending is non-cancelable once entered; record the failure
			// and complete the snapshot.
			log.Printf("[campaign.Service] delivery error for campaign %s: %v", id, err)
		}
	}

	// Phase 2: freeze the snapshot resolved above. No re-resolution here.
	c.Status = domain.CampaignSent
	c.Recipients = ids
	if err := s.store.UpdateCampaign(ctx, c); err != nil {
		return 0, fmt.Errorf("commit sent state: %w", err)
	}

	return len(ids), nil
}

// Delete permanently removes a campaign. A campaign in the Sending window
// cannot be deleted.
func (s *Service) Delete(ctx context.Context, databaseID, id string) error {
	c, err := s.store.GetCampaign(ctx, databaseID, id)
	if err != nil {
		return err
	}
	if c.Status == domain.CampaignSending {
		return ErrSendInProgress
	}
	return s.store.DeleteCampaign(ctx, databaseID, id)
}

// Duplicate clones a campaign into a fresh Draft: subject, body, and target
// are copied; delivery state is reset. The original is untouched.
func (s *Service) Duplicate(ctx context.Context, databaseID, id string) (*domain.Campaign, error) {
	c, err := s.store.GetCampaign(ctx, databaseID, id)
	if err != nil {
		return nil, err
	}

	clone := &domain.Campaign{
		ID:         uuid.New().String(),
		DatabaseID: databaseID,
		Subject:    c.Subject,
		Body:       c.Body,
		Status:     domain.CampaignDraft,
		Target:     cloneTarget(c.Target),
	}

	newID, err := s.store.AddCampaign(ctx, databaseID, clone)
	if err != nil {
		return nil, fmt.Errorf("create draft clone: %w", err)
	}
	clone.ID = newID
	return clone, nil
}

// TestSend creates and immediately sends a new campaign targeted at
// subscribers holding the designated test tag. The original campaign is not
// modified in any way; the test is an entirely separate Sent record.
func (s *Service) TestSend(ctx context.Context, databaseID, id, testTagID string) (*domain.Campaign, error) {
	c, err := s.store.GetCampaign(ctx, databaseID, id)
	if err != nil {
		return nil, err
	}
	if c.Subject == "" {
		return nil, ErrEmptySubject
	}

	target := domain.Target{
		Groups: []domain.TagGroup{{
			ID:     uuid.New().String(),
			TagIDs: []string{testTagID},
			Logic:  domain.LogicAny,
		}},
		GroupsLogic: domain.GroupsAnd,
	}

	contents, err := s.store.GetDatabaseContents(ctx, databaseID)
	if err != nil {
		return nil, fmt.Errorf("load database contents: %w", err)
	}
	ids := audience.Resolve(target, contents.Subscribers)
	if len(ids) == 0 {
		return nil, ErrNoRecipients
	}

	now := time.Now().UTC()
	test := &domain.Campaign{
		ID:             uuid.New().String(),
		DatabaseID:     databaseID,
		Subject:        "[Test] " + c.Subject,
		Body:           c.Body,
		Status:         domain.CampaignSent,
		SentAt:         &now,
		RecipientCount: len(ids),
		Recipients:     ids,
		Target:         target,
	}

	if s.deliverer != nil {
		recipients := subscribersByID(contents.Subscribers, ids)
		if err := s.deliverer.Deliver(ctx, test, recipients); err != nil {
			log.Printf("[campaign.Service] test delivery error for campaign %s: %v", id, err)
		}
	}

	newID, err := s.store.AddCampaign(ctx, databaseID, test)
	if err != nil {
		return nil, fmt.Errorf("create test campaign: %w", err)
	}
	test.ID = newID
	return test, nil
}

func subscribersByID(subs []domain.Subscriber, ids []string) []domain.Subscriber {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]domain.Subscriber, 0, len(ids))
	for _, sub := range subs {
		if _, ok := want[sub.ID]; ok {
			out = append(out, sub)
		}
	}
	return out
}

func cloneTarget(t domain.Target) domain.Target {
	out := domain.Target{GroupsLogic: t.GroupsLogic}
	for _, g := range t.Groups {
		cg := domain.TagGroup{ID: g.ID, Logic: g.Logic, AtLeast: g.AtLeast}
		cg.TagIDs = append([]string(nil), g.TagIDs...)
		out.Groups = append(out.Groups, cg)
	}
	return out
}
