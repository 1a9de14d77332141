package moderation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/tommygebru/vitrine-highlights/internal/common"
	"github.com/tommygebru/vitrine-highlights/internal/highlights"
)

const DefaultPollInterval = 30 * time.Second

var ErrPollerRunning = errors.New("poller already running")

// DiffNew returns the ids present in next but absent from prev, sorted
func DiffNew(prev, next map[string]struct{}) []string {
	var out []string
	for id := range next {
		if _, ok := prev[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Poller re-reads the pending partition on an interval while a moderator is
// viewing it and counts submissions that arrived since the last look.
type Poller struct {
	queue    *Queue
	interval time.Duration
	logger   *zap.Logger
	onNew    func(ids []string)

	mu        sync.Mutex
	scheduler gocron.Scheduler
	cancel    context.CancelFunc
	viewerID  string
	known     map[string]struct{}
	newIDs    []string
}

type PollerOption func(*Poller)

// WithOnNew registers a callback fired with every batch of new pending ids
func WithOnNew(fn func(ids []string)) PollerOption {
	return func(p *Poller) { p.onNew = fn }
}

func NewPoller(queue *Queue, interval time.Duration, logger *zap.Logger, opts ...PollerOption) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{queue: queue, interval: interval, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins polling on behalf of viewerID. It first reads the pending
// partition; whatever that read returns is the baseline and never counts
// as new.
func (p *Poller) Start(ctx context.Context, viewerID string) error {
	if strings.TrimSpace(viewerID) == "" {
		return common.ErrNoViewer
	}
	if p.Running() {
		return ErrPollerRunning
	}

	baseline, err := p.queue.FetchPending(WithActor(ctx, viewerID))
	switch {
	case errors.Is(err, ErrSuperseded):
		// a newer read already landed in the queue
		baseline = p.queue.Items(PartitionPending)
	case err != nil:
		return fmt.Errorf("failed to load pending baseline: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scheduler != nil {
		return ErrPollerRunning
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	pollCtx, cancel := context.WithCancel(WithActor(ctx, viewerID))
	_, err = scheduler.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(func() {
			if pollCtx.Err() != nil {
				return
			}
			if _, err := p.Poll(pollCtx); err != nil && !errors.Is(err, ErrSuperseded) {
				p.logger.Warn("pending poll failed, retrying next interval", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		_ = scheduler.Shutdown()
		return fmt.Errorf("failed to schedule pending poll: %w", err)
	}

	p.known = idSet(itemIDs(baseline))
	p.newIDs = nil
	p.viewerID = viewerID
	p.scheduler = scheduler
	p.cancel = cancel
	scheduler.Start()

	p.logger.Info("pending poller started",
		zap.String("viewer_id", viewerID),
		zap.Duration("interval", p.interval),
	)
	return nil
}

// Poll runs one refresh of the pending partition and returns the new ids
func (p *Poller) Poll(ctx context.Context) ([]string, error) {
	items, err := p.queue.FetchPending(ctx)
	if err != nil {
		return nil, err
	}
	next := idSet(itemIDs(items))

	p.mu.Lock()
	fresh := DiffNew(p.known, next)
	p.known = next
	p.newIDs = append(p.newIDs, fresh...)
	onNew := p.onNew
	p.mu.Unlock()

	if len(fresh) > 0 {
		p.logger.Info("new pending highlights", zap.Strings("ids", fresh))
		if onNew != nil {
			onNew(fresh)
		}
	}
	return fresh, nil
}

// NewCount is the number of new pending items not yet acknowledged
func (p *Poller) NewCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.newIDs)
}

// Acknowledge clears the new-item counter and returns the ids it held
func (p *Poller) Acknowledge() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := p.newIDs
	p.newIDs = nil
	return ids
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scheduler != nil
}

// Stop shuts the scheduler down. Safe to call when not running.
func (p *Poller) Stop() error {
	p.mu.Lock()
	scheduler, cancel, viewer := p.scheduler, p.cancel, p.viewerID
	p.scheduler, p.cancel = nil, nil
	p.mu.Unlock()

	if scheduler == nil {
		return nil
	}
	cancel()
	if err := scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down scheduler: %w", err)
	}
	p.logger.Info("pending poller stopped", zap.String("viewer_id", viewer))
	return nil
}

func itemIDs(items []*highlights.Item) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}
