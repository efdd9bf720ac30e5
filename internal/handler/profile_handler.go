package handler

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dermalink-api/internal/api"
	"dermalink-api/internal/model"
	"dermalink-api/internal/store"
	"dermalink-api/internal/textutil"
)

const (
	expertsPrefix = "experts:"
	maxBioRunes   = 2000
	maxSlotRunes  = 64
)

func expertKey(id string) string       { return "expert:" + id }
func availabilityKey(id string) string { return "avail:" + id }

// checkURL accepts an empty string or an absolute http(s) URL.
func checkURL(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if !textutil.WebURL(raw) {
		return "", status.Errorf(codes.InvalidArgument, "%s must be an http(s) url", field)
	}
	return raw, nil
}

func (h *Handler) GetProfile(ctx context.Context, _ *api.GetProfileRequest) (*api.GetProfileResponse, error) {
	uid, _, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	u, err := h.store.UserByID(ctx, uid)
	if err != nil {
		return nil, h.fail("user by id", err)
	}
	return &api.GetProfileResponse{Profile: toProfile(u)}, nil
}

func (h *Handler) UpdateProfile(ctx context.Context, req *api.UpdateProfileRequest) (*api.UpdateProfileResponse, error) {
	uid, role, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	name := h.san.PlainText(req.Name)
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name required")
	}
	photo, err := checkURL("photo_url", req.PhotoURL)
	if err != nil {
		return nil, err
	}

	u, err := h.store.UserByID(ctx, uid)
	if err != nil {
		return nil, h.fail("user by id", err)
	}
	u.Name = textutil.Truncate(name, 100)
	u.Phone = textutil.Truncate(h.san.PlainText(req.Phone), 32)
	u.PhotoURL = photo
	if err := h.store.UpdateUser(ctx, u); err != nil {
		return nil, h.fail("update user", err)
	}
	if role == model.RoleExpert {
		// name is shown on the expert card
		h.invalidate(ctx, expertsPrefix, expertKey(uid))
	}
	return &api.UpdateProfileResponse{Profile: toProfile(u)}, nil
}

func (h *Handler) UpsertExpertProfile(ctx context.Context, req *api.UpsertExpertProfileRequest) (*api.UpsertExpertProfileResponse, error) {
	uid, err := requireRole(ctx, model.RoleExpert)
	if err != nil {
		return nil, err
	}
	if req.FeeCents < 0 {
		return nil, status.Error(codes.InvalidArgument, "fee cannot be negative")
	}
	photo, err := checkURL("photo_url", req.PhotoURL)
	if err != nil {
		return nil, err
	}

	e := &model.Expert{
		ID:        uid,
		Specialty: textutil.Truncate(h.san.PlainText(req.Specialty), 100),
		Bio:       textutil.Truncate(h.san.PlainText(req.Bio), maxBioRunes),
		FeeCents:  req.FeeCents,
		PhotoURL:  photo,
	}
	if err := h.store.UpsertExpert(ctx, e); err != nil {
		return nil, h.fail("upsert expert", err)
	}
	h.invalidate(ctx, expertsPrefix, expertKey(uid))

	saved, err := h.store.GetExpert(ctx, uid)
	if err != nil {
		return nil, h.fail("get expert", err)
	}
	return &api.UpsertExpertProfileResponse{Expert: toExpert(saved)}, nil
}

func (h *Handler) ListExperts(ctx context.Context, req *api.ListExpertsRequest) (*api.ListExpertsResponse, error) {
	specialty := strings.ToLower(strings.TrimSpace(req.Specialty))

	var out []*api.Expert
	err := h.cached(ctx, expertsPrefix+specialty, &out, func() error {
		experts, err := h.store.ListExperts(ctx, specialty)
		if err != nil {
			return err
		}
		out = make([]*api.Expert, len(experts))
		for i := range experts {
			out[i] = toExpert(&experts[i])
		}
		return nil
	})
	if err != nil {
		return nil, h.fail("list experts", err)
	}
	return &api.ListExpertsResponse{Experts: out}, nil
}

func (h *Handler) GetExpert(ctx context.Context, req *api.GetExpertRequest) (*api.GetExpertResponse, error) {
	if err := checkID("id", req.ID); err != nil {
		return nil, err
	}
	e, err := h.expert(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &api.GetExpertResponse{Expert: e}, nil
}

func (h *Handler) expert(ctx context.Context, id string) (*api.Expert, error) {
	var out api.Expert
	err := h.cached(ctx, expertKey(id), &out, func() error {
		e, err := h.store.GetExpert(ctx, id)
		if err != nil {
			return err
		}
		out = *toExpert(e)
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, status.Error(codes.NotFound, "expert not found")
	}
	if err != nil {
		return nil, h.fail("get expert", err)
	}
	return &out, nil
}

func (h *Handler) GetAvailability(ctx context.Context, req *api.GetAvailabilityRequest) (*api.GetAvailabilityResponse, error) {
	if err := checkID("expert_id", req.ExpertID); err != nil {
		return nil, err
	}
	if _, err := h.expert(ctx, req.ExpertID); err != nil {
		return nil, err
	}
	a, err := h.availability(ctx, req.ExpertID)
	if err != nil {
		return nil, h.fail("get availability", err)
	}
	return &api.GetAvailabilityResponse{ExpertID: req.ExpertID, Days: a.Days}, nil
}

func (h *Handler) availability(ctx context.Context, expertID string) (*model.Availability, error) {
	var days map[string][]string
	err := h.cached(ctx, availabilityKey(expertID), &days, func() error {
		a, err := h.store.GetAvailability(ctx, expertID)
		if err != nil {
			return err
		}
		days = a.Days
		return nil
	})
	if err != nil {
		return nil, err
	}
	if days == nil {
		days = map[string][]string{}
	}
	return &model.Availability{ExpertID: expertID, Days: days}, nil
}

// SetAvailability replaces the caller's whole week. Slots are trimmed and
// otherwise kept verbatim.
func (h *Handler) SetAvailability(ctx context.Context, req *api.SetAvailabilityRequest) (*api.SetAvailabilityResponse, error) {
	uid, err := requireRole(ctx, model.RoleExpert)
	if err != nil {
		return nil, err
	}

	days := make(map[string][]string, len(req.Days))
	seen := make(map[string]bool, len(req.Days))
	for k, slots := range req.Days {
		day, err := model.NormalizeWeekday(k)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "unknown weekday %q", k)
		}
		if seen[day] {
			return nil, status.Errorf(codes.InvalidArgument, "%s given more than once", day)
		}
		seen[day] = true
		for _, s := range slots {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if len([]rune(s)) > maxSlotRunes {
				return nil, status.Error(codes.InvalidArgument, "time slot too long")
			}
			days[day] = append(days[day], s)
		}
	}

	err = h.store.SetAvailability(ctx, &model.Availability{ExpertID: uid, Days: days})
	if errors.Is(err, store.ErrNotFound) {
		return nil, status.Error(codes.FailedPrecondition, "create an expert profile first")
	}
	if err != nil {
		return nil, h.fail("set availability", err)
	}
	h.invalidate(ctx, "", availabilityKey(uid))
	return &api.SetAvailabilityResponse{ExpertID: uid, Days: days}, nil
}
