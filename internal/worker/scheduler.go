package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haywire-mail/relay-crm/internal/domain"
	"github.com/haywire-mail/relay-crm/internal/service/campaign"
)

// DefaultSchedulerPollInterval is how often the scheduler checks for due
// campaigns.
const DefaultSchedulerPollInterval = 30 * time.Second

// CampaignSender is the slice of the campaign service the scheduler drives.
// Due campaigns go through the same two-phase transition as manual sends,
// minus the compose-time validation: once the scheduled moment has passed
// the campaign must reach Sent, even if its audience resolves to nobody.
type CampaignSender interface {
	SendDue(ctx context.Context, databaseID, id string) (int, error)
}

// SettingsStore resolves the active database the scheduler operates on. The
// active pointer can change between ticks, so it is re-read every tick.
type SettingsStore interface {
	GetActiveDatabaseID(ctx context.Context) (string, error)
}

// DueCampaignStore is the read side the scheduler needs from persistence.
type DueCampaignStore interface {
	GetDueCampaigns(ctx context.Context, databaseID string, now time.Time) ([]domain.Campaign, error)
}

// CampaignScheduler polls for scheduled campaigns whose time has arrived and
// drives each one through the Sending→Sent transition. Due campaigns are
// processed sequentially; a tick that fires while a previous tick is still in
// flight is dropped entirely rather than queued, so overlapping timer firings
// can never double-send the same campaign.
type CampaignScheduler struct {
	store    DueCampaignStore
	sender   CampaignSender
	settings SettingsStore

	pollInterval time.Duration

	// inFlight gates tick entry; 0 = idle, 1 = a tick is running.
	inFlight int32

	// Stats
	campaignsSent int64
	ticksDropped  int64
	errs          int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewCampaignScheduler creates a scheduler over the given store and sender.
func NewCampaignScheduler(store DueCampaignStore, sender CampaignSender, settings SettingsStore) *CampaignScheduler {
	return &CampaignScheduler{
		store:        store,
		sender:       sender,
		settings:     settings,
		pollInterval: DefaultSchedulerPollInterval,
	}
}

// SetPollInterval overrides the polling cadence. Must be called before Start.
func (cs *CampaignScheduler) SetPollInterval(d time.Duration) {
	if d > 0 {
		cs.pollInterval = d
	}
}

// Start begins the polling loop, with one immediate tick before the first
// interval elapses.
func (cs *CampaignScheduler) Start() error {
	cs.mu.Lock()
	if cs.running {
		cs.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	cs.running = true
	cs.ctx, cs.cancel = context.WithCancel(context.Background())
	cs.mu.Unlock()

	log.Printf("[CampaignScheduler] Starting with poll interval: %v", cs.pollInterval)

	cs.wg.Add(1)
	go cs.loop()

	return nil
}

// Stop gracefully stops the scheduler and waits for an in-flight tick to
// finish.
func (cs *CampaignScheduler) Stop() {
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		return
	}
	cs.running = false
	cs.mu.Unlock()

	cs.cancel()
	cs.wg.Wait()
	log.Printf("[CampaignScheduler] Stopped. Sent: %d campaigns, dropped ticks: %d, errors: %d",
		atomic.LoadInt64(&cs.campaignsSent), atomic.LoadInt64(&cs.ticksDropped), atomic.LoadInt64(&cs.errs))
}

func (cs *CampaignScheduler) loop() {
	defer cs.wg.Done()

	// Immediate run on startup, then the fixed interval.
	cs.Tick(cs.ctx)

	ticker := time.NewTicker(cs.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cs.ctx.Done():
			return
		case <-ticker.C:
			cs.Tick(cs.ctx)
		}
	}
}

// Tick runs one scheduler pass. If a previous pass is still in flight the
// call returns immediately without touching any state; the dropped tick is
// expected and logged only as a diagnostic. The guard is released on every
// exit path so a failing pass can never wedge future ticks.
func (cs *CampaignScheduler) Tick(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&cs.inFlight, 0, 1) {
		atomic.AddInt64(&cs.ticksDropped, 1)
		return
	}
	defer atomic.StoreInt32(&cs.inFlight, 0)

	databaseID, err := cs.settings.GetActiveDatabaseID(ctx)
	if err != nil {
		log.Printf("[CampaignScheduler] Error resolving active database: %v", err)
		atomic.AddInt64(&cs.errs, 1)
		return
	}
	if databaseID == "" {
		return
	}

	// The due set is recomputed from scratch every tick; it changes with
	// wall-clock time even when nothing was edited.
	due, err := cs.store.GetDueCampaigns(ctx, databaseID, time.Now())
	if err != nil {
		log.Printf("[CampaignScheduler] Error fetching due campaigns: %v", err)
		atomic.AddInt64(&cs.errs, 1)
		return
	}
	if len(due) == 0 {
		return
	}

	log.Printf("[CampaignScheduler] Found %d due campaign(s)", len(due))

	// One campaign fully completed before the next begins. An error on one
	// campaign must not abort the rest of the batch.
	for _, c := range due {
		if ctx.Err() != nil {
			return
		}
		n, err := cs.sender.SendDue(ctx, databaseID, c.ID)
		if err != nil {
			// A racing manual send shows up as already-sent/in-progress;
			// that is the lock doing its job, not a failure.
			if errors.Is(err, campaign.ErrAlreadySent) || errors.Is(err, campaign.ErrSendInProgress) {
				log.Printf("[CampaignScheduler] Campaign %s already handled elsewhere", c.ID)
				continue
			}
			log.Printf("[CampaignScheduler] Error sending campaign %s: %v", c.ID, err)
			atomic.AddInt64(&cs.errs, 1)
			continue
		}
		atomic.AddInt64(&cs.campaignsSent, 1)
		log.Printf("[CampaignScheduler] Campaign %s sent to %d recipients", c.ID, n)
	}
}
