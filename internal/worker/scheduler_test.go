package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haywire-mail/relay-crm/internal/domain"
	"github.com/haywire-mail/relay-crm/internal/repository/memory"
	"github.com/haywire-mail/relay-crm/internal/service/campaign"
)

type stubSettings struct{ id string }

func (s stubSettings) GetActiveDatabaseID(context.Context) (string, error) { return s.id, nil }

type stubStore struct {
	mu  sync.Mutex
	due []domain.Campaign
}

func (s *stubStore) GetDueCampaigns(_ context.Context, databaseID string, now time.Time) ([]domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Campaign
	for _, c := range s.due {
		if c.DatabaseID == databaseID && c.IsDue(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

type stubSender struct {
	mu    sync.Mutex
	sent  []string
	fail  map[string]error
	calls int64
}

func (s *stubSender) SendDue(_ context.Context, _, id string) (int, error) {
	atomic.AddInt64(&s.calls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[id]; ok {
		return 0, err
	}
	s.sent = append(s.sent, id)
	return 1, nil
}

func scheduled(id string, at time.Time) domain.Campaign {
	return domain.Campaign{
		ID:          id,
		DatabaseID:  "db-1",
		Subject:     "Due",
		Status:      domain.CampaignScheduled,
		ScheduledAt: &at,
	}
}

func TestTickSendsDueCampaign(t *testing.T) {
	store := &stubStore{due: []domain.Campaign{
		scheduled("c1", time.Now().Add(-5*time.Minute)),
	}}
	sender := &stubSender{}
	cs := NewCampaignScheduler(store, sender, stubSettings{id: "db-1"})

	cs.Tick(context.Background())

	if len(sender.sent) != 1 || sender.sent[0] != "c1" {
		t.Fatalf("sent = %v, want [c1]", sender.sent)
	}

	// The same tick again finds no due campaigns if the store no longer
	// reports them; exactly one transition occurred, not zero and not two.
	store.mu.Lock()
	store.due = nil
	store.mu.Unlock()
	cs.Tick(context.Background())
	if len(sender.sent) != 1 {
		t.Fatalf("campaign sent twice: %v", sender.sent)
	}
}

func TestTickSkipsFutureCampaigns(t *testing.T) {
	store := &stubStore{due: []domain.Campaign{
		scheduled("later", time.Now().Add(time.Hour)),
	}}
	sender := &stubSender{}
	cs := NewCampaignScheduler(store, sender, stubSettings{id: "db-1"})

	cs.Tick(context.Background())
	if len(sender.sent) != 0 {
		t.Fatalf("future campaign sent early: %v", sender.sent)
	}
}

func TestTickDroppedWhileInFlight(t *testing.T) {
	store := &stubStore{due: []domain.Campaign{
		scheduled("c1", time.Now().Add(-time.Minute)),
	}}
	sender := &stubSender{}
	cs := NewCampaignScheduler(store, sender, stubSettings{id: "db-1"})

	// Simulate a tick still in progress.
	atomic.StoreInt32(&cs.inFlight, 1)
	cs.Tick(context.Background())

	if atomic.LoadInt64(&sender.calls) != 0 {
		t.Fatal("overlapping tick must perform zero work")
	}
	if got := atomic.LoadInt64(&cs.ticksDropped); got != 1 {
		t.Fatalf("ticksDropped = %d, want 1", got)
	}

	// Release and verify future ticks proceed.
	atomic.StoreInt32(&cs.inFlight, 0)
	cs.Tick(context.Background())
	if len(sender.sent) != 1 {
		t.Fatalf("tick after release did not send: %v", sender.sent)
	}
}

func TestTickErrorDoesNotAbortBatchOrWedgeGuard(t *testing.T) {
	store := &stubStore{due: []domain.Campaign{
		scheduled("bad", time.Now().Add(-2*time.Minute)),
		scheduled("good", time.Now().Add(-time.Minute)),
	}}
	sender := &stubSender{fail: map[string]error{"bad": fmt.Errorf("store unavailable")}}
	cs := NewCampaignScheduler(store, sender, stubSettings{id: "db-1"})

	cs.Tick(context.Background())

	if len(sender.sent) != 1 || sender.sent[0] != "good" {
		t.Fatalf("remaining due campaigns not processed after error: %v", sender.sent)
	}
	if atomic.LoadInt32(&cs.inFlight) != 0 {
		t.Fatal("guard not released after a failing tick")
	}

	// Next tick must still run.
	cs.Tick(context.Background())
	if atomic.LoadInt64(&sender.calls) != 4 {
		t.Fatalf("calls = %d, want 4 (two per tick)", sender.calls)
	}
}

func TestTickRacingManualSendIsQuiet(t *testing.T) {
	store := &stubStore{due: []domain.Campaign{
		scheduled("c1", time.Now().Add(-time.Minute)),
	}}
	sender := &stubSender{fail: map[string]error{"c1": campaign.ErrAlreadySent}}
	cs := NewCampaignScheduler(store, sender, stubSettings{id: "db-1"})

	cs.Tick(context.Background())

	if got := atomic.LoadInt64(&cs.errs); got != 0 {
		t.Fatalf("a campaign handled elsewhere is not an error, errs = %d", got)
	}
}

func TestTickNoActiveDatabase(t *testing.T) {
	store := &stubStore{due: []domain.Campaign{
		scheduled("c1", time.Now().Add(-time.Minute)),
	}}
	sender := &stubSender{}
	cs := NewCampaignScheduler(store, sender, stubSettings{id: ""})

	cs.Tick(context.Background())
	if atomic.LoadInt64(&sender.calls) != 0 {
		t.Fatal("scheduler must not fire without an active database")
	}
}

func TestTickPromotesZeroMatchCampaignToSent(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	dbID, err := store.AddDatabase(ctx, &domain.Database{Name: "Acme"})
	if err != nil {
		t.Fatalf("add database: %v", err)
	}
	if err := store.SetActiveDatabaseID(ctx, dbID); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if _, err := store.AddSubscriber(ctx, dbID, &domain.Subscriber{Email: "a@example.com"}); err != nil {
		t.Fatalf("add subscriber: %v", err)
	}

	// Scheduled in the past, targeting a tag nobody carries.
	at := time.Now().Add(-5 * time.Minute)
	id, err := store.AddCampaign(ctx, dbID, &domain.Campaign{
		Subject: "Orphaned",
		Status:  domain.CampaignScheduled,
		Target: domain.Target{
			Groups:      []domain.TagGroup{{ID: "g1", TagIDs: []string{"deleted-tag"}, Logic: domain.LogicAny}},
			GroupsLogic: domain.GroupsAnd,
		},
		ScheduledAt: &at,
	})
	if err != nil {
		t.Fatalf("add campaign: %v", err)
	}

	cs := NewCampaignScheduler(store, campaign.NewService(store), store)
	cs.Tick(ctx)

	c, err := store.GetCampaign(ctx, dbID, id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if c.Status != domain.CampaignSent {
		t.Fatalf("status = %s, want sent", c.Status)
	}
	if c.RecipientCount != 0 || len(c.Recipients) != 0 {
		t.Fatalf("snapshot = %v (count %d), want empty", c.Recipients, c.RecipientCount)
	}
	if c.SentAt == nil {
		t.Fatal("sent_at not set")
	}
	if got := atomic.LoadInt64(&cs.errs); got != 0 {
		t.Fatalf("errs = %d, want 0", got)
	}

	// The campaign left the due set; the next tick finds nothing to do.
	cs.Tick(ctx)
	if got := atomic.LoadInt64(&cs.campaignsSent); got != 1 {
		t.Fatalf("campaignsSent = %d, want exactly 1", got)
	}
}

func TestStartStop(t *testing.T) {
	store := &stubStore{}
	sender := &stubSender{}
	cs := NewCampaignScheduler(store, sender, stubSettings{id: "db-1"})
	cs.SetPollInterval(time.Hour) // only the immediate tick runs

	if err := cs.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := cs.Start(); err == nil {
		t.Fatal("double Start() should return error")
	}
	cs.Stop()

	cs.mu.RLock()
	running := cs.running
	cs.mu.RUnlock()
	if running {
		t.Fatal("scheduler should not be running after Stop()")
	}
}
