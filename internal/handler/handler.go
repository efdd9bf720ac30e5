// Package handler implements the dermalink.v1.Dermalink RPCs. Every method
// returns gRPC status errors carrying a short user-facing message.
package handler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dermalink-api/internal/auth"
	"dermalink-api/internal/middleware"
	"dermalink-api/internal/model"
	"dermalink-api/internal/store"
	"dermalink-api/internal/textutil"
)

// Store is the persistence the handlers need. *store.Store implements it.
type Store interface {
	CreateUser(ctx context.Context, u *model.User) error
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	UserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error

	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*store.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID, newID, userID, newHash string, newExpiry time.Time) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error

	UpsertExpert(ctx context.Context, e *model.Expert) error
	GetExpert(ctx context.Context, id string) (*model.Expert, error)
	ListExperts(ctx context.Context, specialty string) ([]model.Expert, error)
	GetAvailability(ctx context.Context, expertID string) (*model.Availability, error)
	SetAvailability(ctx context.Context, a *model.Availability) error

	BookAppointment(ctx context.Context, a *model.Appointment) error
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, from, to model.AppointmentStatus) (*model.Appointment, error)
	HasCompletedAppointment(ctx context.Context, userID, expertID string) (bool, error)

	CreateProduct(ctx context.Context, p *model.Product) error
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListProducts(ctx context.Context, category string) ([]model.Product, error)
	CreateReview(ctx context.Context, r *model.Review) error
	ListReviews(ctx context.Context, kind model.ReviewTarget, targetID string) ([]model.Review, error)

	CreateResource(ctx context.Context, r *model.Resource) error
	ViewResource(ctx context.Context, id string) (*model.Resource, error)
	ListResources(ctx context.Context, kind model.ResourceKind) ([]model.Resource, error)
	SetLike(ctx context.Context, resourceID, userID string, liked bool) (int64, error)
	AddComment(ctx context.Context, c *model.Comment) error
	ListComments(ctx context.Context, resourceID string) ([]model.Comment, error)
	DeleteComment(ctx context.Context, id, userID string) error

	AddHistory(ctx context.Context, h *model.HistoryEntry) error
	ListHistory(ctx context.Context, userID string) ([]model.HistoryEntry, error)
	DeleteHistory(ctx context.Context, id, userID string) error

	AddFeed(ctx context.Context, f *model.ResourceFeed) error
	ListFeeds(ctx context.Context) ([]model.ResourceFeed, error)
}

// Cache is a JSON read-through cache. *cache.Redis implements it.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DelPrefix(ctx context.Context, prefix string) error
}

// Publisher pushes an event to the connected clients of a user.
type Publisher interface {
	Publish(ctx context.Context, userID string, ev model.Event) error
}

type Handler struct {
	store      Store
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	cache      Cache
	cacheTTL   time.Duration
	events     Publisher
	san        *textutil.Sanitizer
	log        zerolog.Logger
	now        func() time.Time
}

type Option func(*Handler)

func WithTokenTTL(access, refresh time.Duration) Option {
	return func(h *Handler) {
		h.accessTTL = access
		h.refreshTTL = refresh
	}
}

func WithCache(c Cache, ttl time.Duration) Option {
	return func(h *Handler) {
		h.cache = c
		h.cacheTTL = ttl
	}
}

func WithPublisher(p Publisher) Option {
	return func(h *Handler) { h.events = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func New(st Store, secret string, opts ...Option) *Handler {
	h := &Handler{
		store:      st,
		secret:     secret,
		accessTTL:  auth.DefaultAccessTTL,
		refreshTTL: auth.DefaultRefreshTTL,
		cache:      nopCache{},
		cacheTTL:   5 * time.Minute,
		events:     nopPublisher{},
		san:        textutil.NewSanitizer(),
		log:        zerolog.Nop(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// caller returns the authenticated user. The auth interceptor guarantees it
// for every non-open method.
func caller(ctx context.Context) (string, model.Role, error) {
	uid, role := middleware.Caller(ctx)
	if uid == "" {
		return "", "", status.Error(codes.Unauthenticated, "not signed in")
	}
	return uid, model.Role(role), nil
}

// checkID rejects a missing or malformed identifier before it reaches the
// store, where every id column is a UUID.
func checkID(field, id string) error {
	if id == "" {
		return status.Error(codes.InvalidArgument, field+" required")
	}
	if uuid.Validate(id) != nil {
		return status.Error(codes.InvalidArgument, field+" is not a valid id")
	}
	return nil
}

func requireRole(ctx context.Context, roles ...model.Role) (string, error) {
	uid, role, err := caller(ctx)
	if err != nil {
		return "", err
	}
	for _, r := range roles {
		if role == r {
			return uid, nil
		}
	}
	return "", status.Error(codes.PermissionDenied, "not allowed")
}

// fail maps a store error onto a status. Unexpected errors are logged and
// hidden behind a generic message.
func (h *Handler) fail(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, store.ErrSlotTaken):
		return status.Error(codes.AlreadyExists, "slot already booked")
	case errors.Is(err, store.ErrDuplicate):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, store.ErrConflict):
		return status.Error(codes.FailedPrecondition, "changed by someone else, reload and retry")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "timed out")
	}
	h.log.Error().Err(err).Str("op", op).Msg("request failed")
	return status.Error(codes.Internal, "internal error")
}

func (h *Handler) publish(ctx context.Context, ev model.Event, userIDs ...string) {
	for _, uid := range userIDs {
		if err := h.events.Publish(ctx, uid, ev); err != nil {
			h.log.Warn().Err(err).Str("user_id", uid).Str("type", ev.Type).Msg("publish failed")
		}
	}
}

// cached loads key into dst, or fills it with load and stores the result.
// Cache errors only cost a trip to the store.
func (h *Handler) cached(ctx context.Context, key string, dst any, load func() error) error {
	if ok, err := h.cache.Get(ctx, key, dst); err != nil {
		h.log.Warn().Err(err).Str("key", key).Msg("cache get")
	} else if ok {
		return nil
	}
	if err := load(); err != nil {
		return err
	}
	if err := h.cache.Set(ctx, key, dst, h.cacheTTL); err != nil {
		h.log.Warn().Err(err).Str("key", key).Msg("cache set")
	}
	return nil
}

func (h *Handler) invalidate(ctx context.Context, prefix string, keys ...string) {
	if err := h.cache.Del(ctx, keys...); err != nil {
		h.log.Warn().Err(err).Strs("keys", keys).Msg("cache del")
	}
	if prefix == "" {
		return
	}
	if err := h.cache.DelPrefix(ctx, prefix); err != nil {
		h.log.Warn().Err(err).Str("prefix", prefix).Msg("cache del prefix")
	}
}

type nopCache struct{}

func (nopCache) Get(context.Context, string, any) (bool, error)        { return false, nil }
func (nopCache) Set(context.Context, string, any, time.Duration) error { return nil }
func (nopCache) Del(context.Context, ...string) error                  { return nil }
func (nopCache) DelPrefix(context.Context, string) error               { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, model.Event) error { return nil }
