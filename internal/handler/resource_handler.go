package handler

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dermalink-api/internal/api"
	"dermalink-api/internal/model"
	"dermalink-api/internal/store"
	"dermalink-api/internal/textutil"
)

const maxCommentRunes = 2000

func (h *Handler) CreateResource(ctx context.Context, req *api.CreateResourceRequest) (*api.CreateResourceResponse, error) {
	uid, err := requireRole(ctx, model.RoleExpert, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	kind := model.ResourceKind(req.Kind)
	if !kind.Valid() {
		return nil, status.Error(codes.InvalidArgument, "kind must be article, video or infographic")
	}
	title := textutil.Truncate(h.san.PlainText(req.Title), 200)
	if title == "" {
		return nil, status.Error(codes.InvalidArgument, "title required")
	}
	media, err := checkURL("media_url", req.MediaURL)
	if err != nil {
		return nil, err
	}
	source, err := checkURL("source_url", req.SourceURL)
	if err != nil {
		return nil, err
	}
	if kind != model.KindArticle && media == "" {
		return nil, status.Errorf(codes.InvalidArgument, "media_url required for %s", kind)
	}

	r := &model.Resource{
		ID:        uuid.New().String(),
		AuthorID:  uid,
		Kind:      kind,
		Title:     title,
		Body:      h.san.HTML(req.Body),
		MediaURL:  media,
		SourceURL: source,
	}
	if err := h.store.CreateResource(ctx, r); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, status.Error(codes.AlreadyExists, "a resource with this source_url exists")
		}
		return nil, h.fail("create resource", err)
	}
	return &api.CreateResourceResponse{Resource: toResource(r)}, nil
}

func (h *Handler) ListResources(ctx context.Context, req *api.ListResourcesRequest) (*api.ListResourcesResponse, error) {
	kind := model.ResourceKind(req.Kind)
	if kind != "" && !kind.Valid() {
		return nil, status.Error(codes.InvalidArgument, "unknown kind")
	}
	rs, err := h.store.ListResources(ctx, kind)
	if err != nil {
		return nil, h.fail("list resources", err)
	}
	out := make([]*api.Resource, len(rs))
	for i := range rs {
		out[i] = toResource(&rs[i])
	}
	return &api.ListResourcesResponse{Resources: out}, nil
}

// GetResource counts a view.
func (h *Handler) GetResource(ctx context.Context, req *api.GetResourceRequest) (*api.GetResourceResponse, error) {
	if err := checkID("id", req.ID); err != nil {
		return nil, err
	}
	r, err := h.store.ViewResource(ctx, req.ID)
	if err != nil {
		return nil, h.fail("view resource", err)
	}
	return &api.GetResourceResponse{Resource: toResource(r)}, nil
}

func (h *Handler) LikeResource(ctx context.Context, req *api.LikeResourceRequest) (*api.LikeResourceResponse, error) {
	return h.setLike(ctx, req.ID, true)
}

func (h *Handler) UnlikeResource(ctx context.Context, req *api.LikeResourceRequest) (*api.LikeResourceResponse, error) {
	return h.setLike(ctx, req.ID, false)
}

func (h *Handler) setLike(ctx context.Context, id string, liked bool) (*api.LikeResourceResponse, error) {
	uid, _, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkID("id", id); err != nil {
		return nil, err
	}
	n, err := h.store.SetLike(ctx, id, uid, liked)
	if err != nil {
		return nil, h.fail("set like", err)
	}
	return &api.LikeResourceResponse{Likes: n, Liked: liked}, nil
}

func (h *Handler) AddComment(ctx context.Context, req *api.AddCommentRequest) (*api.AddCommentResponse, error) {
	uid, _, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkID("resource_id", req.ResourceID); err != nil {
		return nil, err
	}
	body := h.san.PlainText(req.Body)
	if n := utf8.RuneCountInString(body); n == 0 || n > maxCommentRunes {
		return nil, status.Error(codes.InvalidArgument, "comment must be 1 to 2000 characters")
	}

	u, err := h.store.UserByID(ctx, uid)
	if err != nil {
		return nil, h.fail("user by id", err)
	}
	c := &model.Comment{
		ID:         uuid.New().String(),
		ResourceID: req.ResourceID,
		UserID:     uid,
		UserName:   u.Name,
		Body:       body,
	}
	if err := h.store.AddComment(ctx, c); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, status.Error(codes.NotFound, "resource not found")
		}
		return nil, h.fail("add comment", err)
	}
	return &api.AddCommentResponse{Comment: toComment(c)}, nil
}

func (h *Handler) ListComments(ctx context.Context, req *api.ListCommentsRequest) (*api.ListCommentsResponse, error) {
	if err := checkID("resource_id", req.ResourceID); err != nil {
		return nil, err
	}
	cs, err := h.store.ListComments(ctx, req.ResourceID)
	if err != nil {
		return nil, h.fail("list comments", err)
	}
	out := make([]*api.Comment, len(cs))
	for i := range cs {
		out[i] = toComment(&cs[i])
	}
	return &api.ListCommentsResponse{Comments: out}, nil
}

// DeleteComment removes one of the caller's own comments.
func (h *Handler) DeleteComment(ctx context.Context, req *api.DeleteCommentRequest) (*api.DeleteCommentResponse, error) {
	uid, _, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkID("id", req.ID); err != nil {
		return nil, err
	}
	if err := h.store.DeleteComment(ctx, req.ID, uid); err != nil {
		return nil, h.fail("delete comment", err)
	}
	return &api.DeleteCommentResponse{}, nil
}
