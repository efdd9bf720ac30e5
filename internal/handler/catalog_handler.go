package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dermalink-api/internal/api"
	"dermalink-api/internal/model"
	"dermalink-api/internal/store"
	"dermalink-api/internal/textutil"
)

const maxReviewRunes = 2000

func (h *Handler) CreateProduct(ctx context.Context, req *api.CreateProductRequest) (*api.CreateProductResponse, error) {
	if _, err := requireRole(ctx, model.RoleAdmin); err != nil {
		return nil, err
	}
	name := textutil.Truncate(h.san.PlainText(req.Name), 200)
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name required")
	}
	if req.PriceCents < 0 {
		return nil, status.Error(codes.InvalidArgument, "price cannot be negative")
	}
	img, err := checkURL("image_url", req.ImageURL)
	if err != nil {
		return nil, err
	}

	p := &model.Product{
		ID:          uuid.New().String(),
		Name:        name,
		Description: textutil.Truncate(h.san.PlainText(req.Description), 5000),
		PriceCents:  req.PriceCents,
		ImageURL:    img,
		Category:    strings.ToLower(h.san.PlainText(req.Category)),
	}
	if err := h.store.CreateProduct(ctx, p); err != nil {
		return nil, h.fail("create product", err)
	}
	return &api.CreateProductResponse{Product: toProduct(p)}, nil
}

func (h *Handler) ListProducts(ctx context.Context, req *api.ListProductsRequest) (*api.ListProductsResponse, error) {
	ps, err := h.store.ListProducts(ctx, strings.ToLower(strings.TrimSpace(req.Category)))
	if err != nil {
		return nil, h.fail("list products", err)
	}
	out := make([]*api.Product, len(ps))
	for i := range ps {
		out[i] = toProduct(&ps[i])
	}
	return &api.ListProductsResponse{Products: out}, nil
}

func (h *Handler) GetProduct(ctx context.Context, req *api.GetProductRequest) (*api.GetProductResponse, error) {
	if err := checkID("id", req.ID); err != nil {
		return nil, err
	}
	p, err := h.store.GetProduct(ctx, req.ID)
	if err != nil {
		return nil, h.fail("get product", err)
	}
	return &api.GetProductResponse{Product: toProduct(p)}, nil
}

func (h *Handler) CreateReview(ctx context.Context, req *api.CreateReviewRequest) (*api.CreateReviewResponse, error) {
	uid, _, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	kind := model.ReviewTarget(req.TargetKind)
	if kind != model.TargetExpert && kind != model.TargetProduct {
		return nil, status.Error(codes.InvalidArgument, "target_kind must be expert or product")
	}
	if err := checkID("target_id", req.TargetID); err != nil {
		return nil, err
	}
	if req.Rating < 1 || req.Rating > 5 {
		return nil, status.Error(codes.InvalidArgument, "rating must be 1 to 5")
	}

	if kind == model.TargetExpert {
		if req.TargetID == uid {
			return nil, status.Error(codes.InvalidArgument, "cannot review yourself")
		}
		ok, err := h.store.HasCompletedAppointment(ctx, uid, req.TargetID)
		if err != nil {
			return nil, h.fail("completed appointment", err)
		}
		if !ok {
			return nil, status.Error(codes.FailedPrecondition, "you can review an expert after a completed appointment")
		}
	}

	u, err := h.store.UserByID(ctx, uid)
	if err != nil {
		return nil, h.fail("user by id", err)
	}

	r := &model.Review{
		ID:         uuid.New().String(),
		UserID:     uid,
		UserName:   u.Name,
		TargetKind: kind,
		TargetID:   req.TargetID,
		Rating:     req.Rating,
		Comment:    textutil.Truncate(h.san.PlainText(req.Comment), maxReviewRunes),
	}
	if err := h.store.CreateReview(ctx, r); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return nil, status.Error(codes.AlreadyExists, "already reviewed")
		case errors.Is(err, store.ErrNotFound):
			return nil, status.Errorf(codes.NotFound, "%s not found", kind)
		}
		return nil, h.fail("create review", err)
	}
	if kind == model.TargetExpert {
		h.invalidate(ctx, expertsPrefix, expertKey(req.TargetID))
	}
	return &api.CreateReviewResponse{Review: toReview(r)}, nil
}

func (h *Handler) ListReviews(ctx context.Context, req *api.ListReviewsRequest) (*api.ListReviewsResponse, error) {
	kind := model.ReviewTarget(req.TargetKind)
	if kind != model.TargetExpert && kind != model.TargetProduct {
		return nil, status.Error(codes.InvalidArgument, "target_kind must be expert or product")
	}
	if err := checkID("target_id", req.TargetID); err != nil {
		return nil, err
	}
	rs, err := h.store.ListReviews(ctx, kind, req.TargetID)
	if err != nil {
		return nil, h.fail("list reviews", err)
	}
	out := make([]*api.Review, len(rs))
	for i := range rs {
		out[i] = toReview(&rs[i])
	}
	return &api.ListReviewsResponse{Reviews: out}, nil
}
