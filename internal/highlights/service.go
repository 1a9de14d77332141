package highlights

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types published to live moderators
const (
	EventCreated = "highlight.created"
	EventUpdated = "highlight.updated"
	EventDeleted = "highlight.deleted"
)

// Event describes a change to the moderation queue
type Event struct {
	Type   string    `json:"type"`
	ItemID string    `json:"item_id"`
	Item   *Item     `json:"item,omitempty"`
	Actor  string    `json:"actor,omitempty"`
	At     time.Time `json:"at"`
}

// Notifier tells an author about a moderation decision
type Notifier interface {
	NotifyDecision(ctx context.Context, item *Item) error
}

// Publisher pushes queue events to connected moderators
type Publisher interface {
	Publish(ctx context.Context, event *Event)
}

// Limiter throttles submissions per author
type Limiter interface {
	Allow(key string) bool
}

type Config struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
	MaxLimit   int
}

type Service interface {
	Submit(ctx context.Context, actor Actor, req *SubmitRequest) (*Item, error)
	CreateAdmin(ctx context.Context, actor Actor, req *SubmitRequest) (*Item, error)
	Get(ctx context.Context, id string) (*Item, error)
	List(ctx context.Context, filter ListFilter) ([]*Item, int64, error)
	Visible(ctx context.Context) ([]*Item, error)
	Feed(ctx context.Context) ([]*AuthorGroup, error)
	Moderate(ctx context.Context, actor Actor, id string, req *ModerateRequest) (*Item, error)
	Delete(ctx context.Context, actor Actor, id string) error
	RecordView(ctx context.Context, id string) error
	Stats(ctx context.Context) (*Stats, error)
}

type service struct {
	repo      Repository
	cache     FeedCache
	notifier  Notifier
	publisher Publisher
	limiter   Limiter
	config    *Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the highlight service. cache, notifier, publisher and
// limiter may be nil.
func NewService(repo Repository, cache FeedCache, notifier Notifier, publisher Publisher, limiter Limiter, config *Config, logger *zap.Logger) Service {
	if cache == nil {
		cache = NopFeedCache{}
	}
	if config == nil {
		config = &Config{}
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultTTL
	}
	if config.MaxTTL < config.DefaultTTL {
		config.MaxTTL = 30 * 24 * time.Hour
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &service{
		repo:      repo,
		cache:     cache,
		notifier:  notifier,
		publisher: publisher,
		limiter:   limiter,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *service) Submit(ctx context.Context, actor Actor, req *SubmitRequest) (*Item, error) {
	if s.limiter != nil && !s.limiter.Allow(actor.ID) {
		return nil, ErrRateLimited
	}

	item, err := s.newItem(actor, req)
	if err != nil {
		return nil, err
	}
	item.Status = StatusPending

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create highlight: %w", err)
	}

	s.logger.Info("highlight submitted",
		zap.String("id", item.ID),
		zap.String("author_id", item.AuthorID),
	)
	s.publish(ctx, EventCreated, item.ID, item, actor.ID)
	return item, nil
}

func (s *service) CreateAdmin(ctx context.Context, actor Actor, req *SubmitRequest) (*Item, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}

	item, err := s.newItem(actor, req)
	if err != nil {
		return nil, err
	}
	item.Status = StatusApproved
	item.IsAdminPost = true
	item.Priority = MaxPriority
	item.ModeratedBy = &actor.ID
	item.ModeratedAt = &item.CreatedAt

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create highlight: %w", err)
	}

	s.invalidate(ctx)
	s.logger.Info("admin highlight created", zap.String("id", item.ID), zap.String("actor", actor.ID))
	s.publish(ctx, EventCreated, item.ID, item, actor.ID)
	return item, nil
}

func (s *service) newItem(actor Actor, req *SubmitRequest) (*Item, error) {
	mediaURL, ok := SanitizeMediaURL(req.MediaURL)
	if !ok {
		return nil, ErrInvalidMedia
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.config.DefaultTTL)
	if req.ExpiresAt != nil {
		expiresAt = req.ExpiresAt.UTC()
		if !expiresAt.After(now) || expiresAt.Sub(now) > s.config.MaxTTL {
			return nil, ErrInvalidExpiry
		}
	}

	item := &Item{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		MediaURL:    mediaURL,
		MediaType:   DetectMediaType(req.MediaType, mediaURL),
		LinkURL:     req.LinkURL,
		LinkText:    req.LinkText,
		AuthorID:    actor.ID,
		AuthorName:  actor.Name,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
		UpdatedAt:   now,
	}
	if actor.AvatarURL != "" {
		item.AuthorAvatarURL = &actor.AvatarURL
	}
	if actor.Email != "" {
		item.AuthorEmail = &actor.Email
	}
	return item, nil
}

func (s *service) Get(ctx context.Context, id string) (*Item, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]*Item, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > s.config.MaxLimit {
		filter.Limit = s.config.MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

func (s *service) Visible(ctx context.Context) ([]*Item, error) {
	now := s.now()

	items, hit, err := s.cache.Get(ctx)
	if err != nil {
		s.logger.Warn("feed cache read failed", zap.Error(err))
	}
	if !hit {
		version, verr := s.cache.Version(ctx)
		items, err = s.repo.ListVisible(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("failed to list visible highlights: %w", err)
		}
		switch {
		case verr != nil:
			s.logger.Warn("feed cache version read failed, not caching", zap.Error(verr))
		default:
			err := s.cache.Set(ctx, version, items)
			if errors.Is(err, ErrStaleFeed) {
				s.logger.Debug("dropping feed read superseded by a change")
			} else if err != nil {
				s.logger.Warn("feed cache write failed", zap.Error(err))
			}
		}
	}

	return FilterVisible(items, now), nil
}

func (s *service) Feed(ctx context.Context) ([]*AuthorGroup, error) {
	items, err := s.Visible(ctx)
	if err != nil {
		return nil, err
	}
	return Group(items), nil
}

func (s *service) Moderate(ctx context.Context, actor Actor, id string, req *ModerateRequest) (*Item, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}

	var reason *string
	if req.Status == StatusRejected {
		trimmed, ok := NormalizeReason(req.RejectionReason)
		if !ok {
			return nil, ErrReasonRequired
		}
		reason = &trimmed
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Transition(current.Status, req.Status, current.IsAdmin()); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, current.Status, StatusUpdate{
		Status:          req.Status,
		RejectionReason: reason,
		ModeratedBy:     actor.ID,
		ModeratedAt:     s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("highlight moderated",
		zap.String("id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(updated.Status)),
		zap.String("actor", actor.ID),
	)

	if s.notifier != nil && !updated.IsAdmin() {
		if err := s.notifier.NotifyDecision(ctx, updated); err != nil {
			s.logger.Warn("failed to notify author", zap.String("id", id), zap.Error(err))
		}
	}
	s.publish(ctx, EventUpdated, id, updated, actor.ID)
	return updated, nil
}

func (s *service) Delete(ctx context.Context, actor Actor, id string) error {
	if !actor.IsAdmin {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx)
	s.logger.Info("highlight deleted", zap.String("id", id), zap.String("actor", actor.ID))
	s.publish(ctx, EventDeleted, id, nil, actor.ID)
	return nil
}

func (s *service) RecordView(ctx context.Context, id string) error {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !IsVisible(item, s.now()) {
		return ErrNotFound
	}
	return s.repo.IncrementViews(ctx, id)
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx, s.now())
}

func (s *service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("feed cache invalidation failed", zap.Error(err))
	}
}

func (s *service) publish(ctx context.Context, eventType, id string, item *Item, actor string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, &Event{
		Type:   eventType,
		ItemID: id,
		Item:   item,
		Actor:  actor,
		At:     s.now().UTC(),
	})
}
