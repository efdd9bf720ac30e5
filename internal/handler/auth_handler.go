package handler

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dermalink-api/internal/api"
	"dermalink-api/internal/auth"
	"dermalink-api/internal/model"
	"dermalink-api/internal/store"
)

var errBadRefresh = status.Error(codes.Unauthenticated, "invalid refresh token")

func (h *Handler) Register(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := h.san.PlainText(req.Name)
	if email == "" || req.Password == "" || name == "" {
		return nil, status.Error(codes.InvalidArgument, "all fields required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid email")
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	role := model.RoleUser
	switch model.Role(req.Role) {
	case "", model.RoleUser:
	case model.RoleExpert:
		role = model.RoleExpert
	default:
		// admin is granted out of band
		return nil, status.Error(codes.InvalidArgument, "invalid role")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, h.fail("hash password", err)
	}

	u := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
	}
	if err := h.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// don't reveal which emails are taken
			return nil, status.Error(codes.AlreadyExists, "registration failed")
		}
		return nil, h.fail("create user", err)
	}

	if role == model.RoleExpert {
		// listed right away; details come from UpsertExpertProfile
		if err := h.store.UpsertExpert(ctx, &model.Expert{ID: u.ID}); err != nil {
			return nil, h.fail("create expert", err)
		}
		h.invalidate(ctx, expertsPrefix)
	}

	access, refresh, err := h.issue(ctx, u)
	if err != nil {
		return nil, err
	}
	return &api.RegisterResponse{UserID: u.ID, Token: access, RefreshToken: refresh}, nil
}

func (h *Handler) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "email and password required")
	}

	u, err := h.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, status.Error(codes.Unauthenticated, "invalid credentials")
		}
		return nil, h.fail("user by email", err)
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}

	access, refresh, err := h.issue(ctx, u)
	if err != nil {
		return nil, err
	}
	return &api.LoginResponse{
		Token:        access,
		RefreshToken: refresh,
		UserID:       u.ID,
		Name:         u.Name,
		Role:         string(u.Role),
	}, nil
}

// Refresh rotates a refresh token. Presenting a token that was already
// rotated means it leaked, so every session of its owner is revoked.
func (h *Handler) Refresh(ctx context.Context, req *api.RefreshRequest) (*api.RefreshResponse, error) {
	if req.RefreshToken == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh token required")
	}

	rt, err := h.store.GetRefreshTokenByHash(ctx, auth.HashRefreshToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errBadRefresh
		}
		return nil, h.fail("get refresh token", err)
	}
	if rt.Revoked {
		h.revokeOnReuse(ctx, rt.UserID)
		return nil, errBadRefresh
	}
	if h.now().After(rt.ExpiresAt) {
		return nil, status.Error(codes.Unauthenticated, "refresh token expired")
	}

	u, err := h.store.UserByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errBadRefresh
		}
		return nil, h.fail("user by id", err)
	}

	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, h.fail("generate refresh token", err)
	}
	err = h.store.RotateRefreshToken(ctx, rt.ID, uuid.New().String(), u.ID, hash, h.now().Add(h.refreshTTL))
	if errors.Is(err, store.ErrConflict) {
		// lost a race against another use of the same token
		h.revokeOnReuse(ctx, rt.UserID)
		return nil, errBadRefresh
	}
	if err != nil {
		return nil, h.fail("rotate refresh token", err)
	}

	access, err := auth.MakeToken(u.ID, string(u.Role), h.secret, h.accessTTL)
	if err != nil {
		return nil, h.fail("make token", err)
	}
	return &api.RefreshResponse{Token: access, RefreshToken: raw}, nil
}

func (h *Handler) Logout(ctx context.Context, _ *api.LogoutRequest) (*api.LogoutResponse, error) {
	uid, _, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.store.RevokeAllRefreshTokens(ctx, uid); err != nil {
		return nil, h.fail("revoke refresh tokens", err)
	}
	return &api.LogoutResponse{}, nil
}

func (h *Handler) revokeOnReuse(ctx context.Context, uid string) {
	h.log.Warn().Str("user_id", uid).Msg("refresh token reuse, revoking all sessions")
	if err := h.store.RevokeAllRefreshTokens(ctx, uid); err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("revoke refresh tokens")
	}
}

// issue creates an access token and a stored refresh token for u.
func (h *Handler) issue(ctx context.Context, u *model.User) (string, string, error) {
	access, err := auth.MakeToken(u.ID, string(u.Role), h.secret, h.accessTTL)
	if err != nil {
		return "", "", h.fail("make token", err)
	}
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return "", "", h.fail("generate refresh token", err)
	}
	if _, err := h.store.CreateRefreshToken(ctx, u.ID, hash, h.now().Add(h.refreshTTL)); err != nil {
		return "", "", h.fail("create refresh token", err)
	}
	return access, raw, nil
}
