package moderation_test

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/tommygebru/vitrine-highlights/internal/common"
	"github.com/tommygebru/vitrine-highlights/internal/highlights"
	"github.com/tommygebru/vitrine-highlights/internal/moderation"
)

func set(ids ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func TestDiffNew(t *testing.T) {
	tests := []struct {
		name string
		prev map[string]struct{}
		next map[string]struct{}
		want []string
	}{
		{"one arrival", set("A", "B"), set("A", "B", "C"), []string{"C"}},
		{"unchanged", set("A", "B"), set("A", "B"), nil},
		{"removal is not new", set("A", "B"), set("A"), nil},
		{"from empty", nil, set("B", "A"), []string{"A", "B"}},
		{"replacement", set("A"), set("B"), []string{"B"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := moderation.DiffNew(tt.prev, tt.next); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("DiffNew = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPollCountsNewPendingItems(t *testing.T) {
	q, store := newQueue(t)
	ctx := context.Background()

	gomock.InOrder(
		store.EXPECT().List(gomock.Any(), gomock.Any()).Return(ok(
			item("A", highlights.StatusPending, false, 0),
			item("B", highlights.StatusPending, false, 0),
		), nil),
		store.EXPECT().List(gomock.Any(), gomock.Any()).Return(ok(
			item("A", highlights.StatusPending, false, 0),
			item("B", highlights.StatusPending, false, 0),
			item("C", highlights.StatusPending, false, 0),
		), nil),
		store.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout")),
	)

	var notified []string
	p := moderation.NewPoller(q, time.Hour, nil, moderation.WithOnNew(func(ids []string) {
		notified = append(notified, ids...)
	}))
	if err := p.Start(ctx, "mod-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	fresh, err := p.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !reflect.DeepEqual(fresh, []string{"C"}) || !reflect.DeepEqual(notified, []string{"C"}) {
		t.Fatalf("fresh = %v notified = %v", fresh, notified)
	}
	if p.NewCount() != 1 {
		t.Fatalf("NewCount = %d", p.NewCount())
	}

	if _, err := p.Poll(ctx); err == nil {
		t.Fatalf("expected poll failure")
	}
	if p.NewCount() != 1 {
		t.Fatalf("failed poll changed counter: %d", p.NewCount())
	}

	if acked := p.Acknowledge(); !reflect.DeepEqual(acked, []string{"C"}) || p.NewCount() != 0 {
		t.Fatalf("Acknowledge = %v, count = %d", acked, p.NewCount())
	}
}

func TestStartBaselineIgnoresPendingItemsAlreadyInStore(t *testing.T) {
	q, store := newQueue(t)
	ctx := context.Background()

	gomock.InOrder(
		store.EXPECT().List(gomock.Any(), gomock.Any()).Return(ok(
			item("A", highlights.StatusPending, false, 0),
			item("B", highlights.StatusPending, false, 0),
		), nil),
		store.EXPECT().List(gomock.Any(), gomock.Any()).Return(ok(
			item("A", highlights.StatusPending, false, 0),
			item("B", highlights.StatusPending, false, 0),
		), nil),
	)

	// nothing loaded in the queue before Start
	p := moderation.NewPoller(q, time.Hour, nil)
	if err := p.Start(ctx, "mod-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	if got := q.Items(moderation.PartitionPending); len(got) != 2 {
		t.Fatalf("baseline not loaded into queue: %v", got)
	}
	fresh, err := p.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(fresh) != 0 || p.NewCount() != 0 {
		t.Fatalf("existing items reported as new: fresh = %v count = %d", fresh, p.NewCount())
	}
}

func TestStartFailsWhenBaselineFetchFails(t *testing.T) {
	q, store := newQueue(t)
	store.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))

	p := moderation.NewPoller(q, time.Hour, nil)
	if err := p.Start(context.Background(), "mod-1"); err == nil {
		t.Fatalf("expected Start to fail")
	}
	if p.Running() {
		t.Fatalf("poller running without a baseline")
	}
}

func TestPollerRequiresViewer(t *testing.T) {
	q, _ := newQueue(t)
	p := moderation.NewPoller(q, time.Second, nil)

	if err := p.Start(context.Background(), " "); !errors.Is(err, common.ErrNoViewer) {
		t.Fatalf("Start without viewer = %v", err)
	}
	if p.Running() {
		t.Fatalf("poller should not be running")
	}
}

func TestPollerRunsOnScheduleAndStops(t *testing.T) {
	q, store := newQueue(t)

	var calls int32
	store.EXPECT().List(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, moderation.ListParams) (*moderation.ListResult, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return ok(item("A", highlights.StatusPending, false, 0)), nil
			}
			return ok(
				item("A", highlights.StatusPending, false, 0),
				item("B", highlights.StatusPending, false, 0),
			), nil
		}).MinTimes(2)

	p := moderation.NewPoller(q, 20*time.Millisecond, nil)
	if err := p.Start(context.Background(), "mod-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(context.Background(), "mod-1"); !errors.Is(err, moderation.ErrPollerRunning) {
		t.Fatalf("second Start while running = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&calls) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.Running() {
		t.Fatalf("poller still running after Stop")
	}

	stopped := atomic.LoadInt32(&calls)
	if stopped < 2 {
		t.Fatalf("scheduled poll never ran")
	}
	time.Sleep(80 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != stopped {
		t.Fatalf("poll ran after Stop: %d -> %d", stopped, got)
	}
	if p.NewCount() != 1 {
		t.Fatalf("NewCount = %d, want 1", p.NewCount())
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
