package moderation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tommygebru/vitrine-highlights/internal/highlights"
)

var (
	ErrReasonRequired   = errors.New("a rejection reason is required")
	ErrNotConfirmed     = errors.New("deletion was not confirmed")
	ErrSuperseded       = errors.New("fetch superseded by a newer request")
	ErrNotAdminAuthored = errors.New("only admin-authored highlights can be deactivated or reactivated")
	ErrUnknownItem      = errors.New("highlight is not in the loaded queue")
	ErrStoreRejected    = errors.New("store reported failure")
	ErrNoRecord         = errors.New("store returned no record; reload the queue")
	ErrMissingFields    = errors.New("title and media url are required")
)

// Partition is a moderator-facing view of the queue
type Partition string

const (
	PartitionPending  Partition = "pending"
	PartitionApproved Partition = "approved"
	PartitionAdmin    Partition = "admin"
)

var partitions = []Partition{PartitionPending, PartitionApproved, PartitionAdmin}

func (p Partition) params(limit int) ListParams {
	switch p {
	case PartitionPending:
		return ListParams{Status: FilterPending, Limit: limit}
	case PartitionApproved:
		return ListParams{Status: FilterApproved, Limit: limit}
	default:
		return ListParams{Status: FilterAll, AdminOnly: true, Limit: limit}
	}
}

func (p Partition) contains(item *highlights.Item) bool {
	switch p {
	case PartitionPending:
		return item.Status == highlights.StatusPending
	case PartitionApproved:
		return item.Status == highlights.StatusApproved
	default:
		return item.IsAdmin()
	}
}

// Confirmer asks the moderator to confirm a destructive action
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Queue keeps the moderator's partitioned view of the backing store.
// Local lists change only from a successful read or from the record the
// store returns for a successful mutation. Every read is tagged with a
// per-partition generation; a result whose generation has been overtaken
// is dropped with ErrSuperseded.
type Queue struct {
	store    Store
	logger   *zap.Logger
	pageSize int

	mu          sync.Mutex
	lists       map[Partition][]*highlights.Item
	generations map[Partition]uint64
}

func NewQueue(store Store, pageSize int, logger *zap.Logger) *Queue {
	if pageSize <= 0 {
		pageSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		store:       store,
		logger:      logger,
		pageSize:    pageSize,
		lists:       make(map[Partition][]*highlights.Item),
		generations: make(map[Partition]uint64),
	}
}

func (q *Queue) FetchPending(ctx context.Context) ([]*highlights.Item, error) {
	return q.fetch(ctx, PartitionPending)
}

func (q *Queue) FetchApproved(ctx context.Context) ([]*highlights.Item, error) {
	return q.fetch(ctx, PartitionApproved)
}

func (q *Queue) FetchAdminAuthored(ctx context.Context) ([]*highlights.Item, error) {
	return q.fetch(ctx, PartitionAdmin)
}

// Fetch reads any partition
func (q *Queue) Fetch(ctx context.Context, p Partition) ([]*highlights.Item, error) {
	return q.fetch(ctx, p)
}

func (q *Queue) fetch(ctx context.Context, p Partition) ([]*highlights.Item, error) {
	q.mu.Lock()
	q.generations[p]++
	gen := q.generations[p]
	q.mu.Unlock()

	res, err := q.store.List(ctx, p.params(q.pageSize))
	if err == nil && (res == nil || !res.Success) {
		err = ErrStoreRejected
	}
	if err != nil {
		q.logger.Warn("queue fetch failed, keeping previous list",
			zap.String("partition", string(p)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("fetch %s: %w", p, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.generations[p] != gen {
		q.logger.Debug("dropping superseded fetch",
			zap.String("partition", string(p)),
			zap.Uint64("generation", gen),
		)
		return nil, ErrSuperseded
	}
	q.lists[p] = copyItems(res.Items)
	return copyItems(res.Items), nil
}

// Items returns the cached list of a partition
func (q *Queue) Items(p Partition) []*highlights.Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return copyItems(q.lists[p])
}

// Lookup finds a loaded item in any partition
func (q *Queue) Lookup(id string) (*highlights.Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lookupLocked(id)
}

func (q *Queue) lookupLocked(id string) (*highlights.Item, bool) {
	for _, p := range partitions {
		for _, item := range q.lists[p] {
			if item.ID == id {
				return item, true
			}
		}
	}
	return nil, false
}

// Search filters a loaded partition by title, description or author name
func (q *Queue) Search(p Partition, term string) []*highlights.Item {
	term = strings.ToLower(strings.TrimSpace(term))
	items := q.Items(p)
	if term == "" {
		return items
	}

	out := items[:0]
	for _, item := range items {
		if matches(item, term) {
			out = append(out, item)
		}
	}
	return out
}

func matches(item *highlights.Item, term string) bool {
	if strings.Contains(strings.ToLower(item.Title), term) ||
		strings.Contains(strings.ToLower(item.AuthorName), term) {
		return true
	}
	return item.Description != nil && strings.Contains(strings.ToLower(*item.Description), term)
}

func (q *Queue) Approve(ctx context.Context, id string) (*highlights.Item, error) {
	return q.update(ctx, id, StatusUpdate{Status: highlights.StatusApproved})
}

// Reject fails fast on a blank reason without calling the store
func (q *Queue) Reject(ctx context.Context, id, reason string) (*highlights.Item, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	return q.update(ctx, id, StatusUpdate{Status: highlights.StatusRejected, RejectionReason: &reason})
}

func (q *Queue) Deactivate(ctx context.Context, id string) (*highlights.Item, error) {
	if err := q.requireAdminAuthored(id); err != nil {
		return nil, err
	}
	return q.update(ctx, id, StatusUpdate{Status: highlights.StatusInactive})
}

func (q *Queue) Reactivate(ctx context.Context, id string) (*highlights.Item, error) {
	if err := q.requireAdminAuthored(id); err != nil {
		return nil, err
	}
	return q.update(ctx, id, StatusUpdate{Status: highlights.StatusApproved})
}

func (q *Queue) requireAdminAuthored(id string) error {
	item, ok := q.Lookup(id)
	if !ok {
		return ErrUnknownItem
	}
	if !item.IsAdmin() {
		return ErrNotAdminAuthored
	}
	return nil
}

// Remove deletes a highlight once the moderator confirms
func (q *Queue) Remove(ctx context.Context, id string, confirm Confirmer) error {
	if confirm == nil {
		return ErrNotConfirmed
	}

	prompt := fmt.Sprintf("Delete highlight %s permanently?", id)
	if item, ok := q.Lookup(id); ok {
		prompt = fmt.Sprintf("Delete highlight %q by %s permanently?", item.Title, item.AuthorName)
	}

	ok, err := confirm.Confirm(ctx, prompt)
	if err != nil {
		return fmt.Errorf("confirm deletion: %w", err)
	}
	if !ok {
		return ErrNotConfirmed
	}

	if err := q.store.Delete(ctx, id); err != nil {
		q.logger.Error("delete failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("delete %s: %w", id, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(id)
	q.logger.Info("highlight deleted", zap.String("id", id))
	return nil
}

// Publish creates an auto-approved admin highlight
func (q *Queue) Publish(ctx context.Context, req *highlights.SubmitRequest) (*highlights.Item, error) {
	if req == nil || strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.MediaURL) == "" {
		return nil, ErrMissingFields
	}

	item, err := q.store.Create(ctx, req)
	if err != nil {
		q.logger.Error("publish failed", zap.Error(err))
		return nil, fmt.Errorf("publish: %w", err)
	}
	if item == nil {
		q.logger.Warn("publish succeeded without a record")
		q.invalidateAll()
		return nil, ErrNoRecord
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.reconcileLocked(item)
	return item, nil
}

func (q *Queue) update(ctx context.Context, id string, update StatusUpdate) (*highlights.Item, error) {
	item, err := q.store.Update(ctx, id, update)
	if err != nil {
		q.logger.Error("moderation update failed",
			zap.String("id", id),
			zap.String("status", string(update.Status)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("update %s: %w", id, err)
	}

	if item == nil {
		// The change landed but we cannot place it; reads in flight predate it.
		q.logger.Warn("moderation update returned no record",
			zap.String("id", id),
			zap.String("status", string(update.Status)),
		)
		q.invalidateAll()
		return nil, ErrNoRecord
	}
	q.logger.Info("highlight moderated", zap.String("id", id), zap.String("status", string(update.Status)))

	q.mu.Lock()
	defer q.mu.Unlock()
	q.reconcileLocked(item)
	return item, nil
}

// reconcileLocked places a server-confirmed record into the partitions it
// belongs to. Reads already in flight are invalidated since they predate it.
func (q *Queue) reconcileLocked(item *highlights.Item) {
	q.removeLocked(item.ID)
	for _, p := range partitions {
		if !p.contains(item) {
			continue
		}
		cp := *item
		list := append(q.lists[p], &cp)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		})
		q.lists[p] = list
	}
}

func (q *Queue) removeLocked(id string) {
	for _, p := range partitions {
		list := q.lists[p]
		for i, item := range list {
			if item.ID == id {
				q.lists[p] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
	q.bumpLocked()
}

func (q *Queue) invalidateAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.bumpLocked()
}

func (q *Queue) bumpLocked() {
	for _, p := range partitions {
		q.generations[p]++
	}
}

func copyItems(items []*highlights.Item) []*highlights.Item {
	out := make([]*highlights.Item, len(items))
	for i, item := range items {
		cp := *item
		out[i] = &cp
	}
	return out
}
