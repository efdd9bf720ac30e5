package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dermalink-api/internal/api"
	"dermalink-api/internal/feeds"
	"dermalink-api/internal/model"
	"dermalink-api/internal/store"
)

func (h *Handler) AddHistory(ctx context.Context, req *api.AddHistoryRequest) (*api.AddHistoryResponse, error) {
	uid, _, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	label := h.san.PlainText(req.Label)
	if label == "" {
		return nil, status.Error(codes.InvalidArgument, "label required")
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		return nil, status.Error(codes.InvalidArgument, "confidence must be between 0 and 1")
	}
	img, err := checkURL("image_url", req.ImageURL)
	if err != nil {
		return nil, err
	}

	e := &model.HistoryEntry{
		ID:         uuid.New().String(),
		UserID:     uid,
		ImageURL:   img,
		Label:      label,
		Confidence: req.Confidence,
		Scores:     fromScores(req.Scores),
	}
	if err := h.store.AddHistory(ctx, e); err != nil {
		return nil, h.fail("add history", err)
	}
	return &api.AddHistoryResponse{Entry: toHistory(e)}, nil
}

func (h *Handler) ListHistory(ctx context.Context, _ *api.ListHistoryRequest) (*api.ListHistoryResponse, error) {
	uid, _, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	es, err := h.store.ListHistory(ctx, uid)
	if err != nil {
		return nil, h.fail("list history", err)
	}
	out := make([]*api.HistoryEntry, len(es))
	for i := range es {
		out[i] = toHistory(&es[i])
	}
	return &api.ListHistoryResponse{Entries: out}, nil
}

func (h *Handler) DeleteHistory(ctx context.Context, req *api.DeleteHistoryRequest) (*api.DeleteHistoryResponse, error) {
	uid, _, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkID("id", req.ID); err != nil {
		return nil, err
	}
	if err := h.store.DeleteHistory(ctx, req.ID, uid); err != nil {
		return nil, h.fail("delete history", err)
	}
	return &api.DeleteHistoryResponse{}, nil
}

func (h *Handler) AddResourceFeed(ctx context.Context, req *api.AddResourceFeedRequest) (*api.AddResourceFeedResponse, error) {
	if _, err := requireRole(ctx, model.RoleAdmin); err != nil {
		return nil, err
	}
	u := strings.TrimSpace(req.URL)
	if err := feeds.ValidateURL(u); err != nil {
		return nil, status.Error(codes.InvalidArgument, "feed url is not allowed")
	}
	kind := model.KindArticle
	if req.Kind != "" {
		kind = model.ResourceKind(req.Kind)
		if !kind.Valid() {
			return nil, status.Error(codes.InvalidArgument, "unknown kind")
		}
	}

	f := &model.ResourceFeed{ID: uuid.New().String(), URL: u, Kind: kind}
	if err := h.store.AddFeed(ctx, f); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, status.Error(codes.AlreadyExists, "feed already registered")
		}
		return nil, h.fail("add feed", err)
	}
	return &api.AddResourceFeedResponse{Feed: toFeed(f)}, nil
}

func (h *Handler) ListResourceFeeds(ctx context.Context, _ *api.ListResourceFeedsRequest) (*api.ListResourceFeedsResponse, error) {
	if _, err := requireRole(ctx, model.RoleAdmin); err != nil {
		return nil, err
	}
	fs, err := h.store.ListFeeds(ctx)
	if err != nil {
		return nil, h.fail("list feeds", err)
	}
	out := make([]*api.ResourceFeed, len(fs))
	for i := range fs {
		out[i] = toFeed(&fs[i])
	}
	return &api.ListResourceFeedsResponse{Feeds: out}, nil
}
