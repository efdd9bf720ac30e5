package handler

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dermalink-api/internal/api"
	"dermalink-api/internal/model"
	"dermalink-api/internal/observability"
	"dermalink-api/internal/store"
	"dermalink-api/internal/textutil"
)

const maxNoteRunes = 500

func (h *Handler) BookAppointment(ctx context.Context, req *api.BookAppointmentRequest) (*api.BookAppointmentResponse, error) {
	uid, _, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	slot := strings.TrimSpace(req.Time)
	if req.Date == "" || slot == "" {
		return nil, status.Error(codes.InvalidArgument, "date and time required")
	}
	if err := checkID("expert_id", req.ExpertID); err != nil {
		return nil, err
	}
	if req.ExpertID == uid {
		return nil, status.Error(codes.InvalidArgument, "cannot book yourself")
	}
	day, err := model.ParseDate(req.Date)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "date must be YYYY-MM-DD")
	}
	today := h.now().UTC().Truncate(24 * time.Hour)
	if day.Before(today) {
		return nil, status.Error(codes.InvalidArgument, "cannot book in the past")
	}

	if _, err := h.expert(ctx, req.ExpertID); err != nil {
		return nil, err
	}

	avail, err := h.availability(ctx, req.ExpertID)
	if err != nil {
		return nil, h.fail("get availability", err)
	}
	slots := avail.Slots(day)
	if len(slots) == 0 {
		observability.ObserveBooking("unavailable")
		return nil, status.Errorf(codes.FailedPrecondition, "expert is not available on %s", day.Weekday())
	}
	if !slices.Contains(slots, slot) {
		observability.ObserveBooking("unavailable")
		return nil, status.Error(codes.FailedPrecondition, "time is not one of the expert's slots")
	}

	a := &model.Appointment{
		ID:       uuid.New().String(),
		UserID:   uid,
		ExpertID: req.ExpertID,
		Date:     day,
		Time:     slot,
		Note:     textutil.Truncate(h.san.PlainText(req.Note), maxNoteRunes),
		Status:   model.StatusPending,
	}
	if err := h.store.BookAppointment(ctx, a); err != nil {
		if errors.Is(err, store.ErrSlotTaken) {
			observability.ObserveBooking("conflict")
			return nil, status.Error(codes.AlreadyExists, "slot already booked")
		}
		observability.ObserveBooking("error")
		return nil, h.fail("book appointment", err)
	}
	observability.ObserveBooking("booked")

	h.publish(ctx, AppointmentEvent(a), a.UserID, a.ExpertID)
	return &api.BookAppointmentResponse{Appointment: toAppointment(a)}, nil
}

func (h *Handler) ListMyAppointments(ctx context.Context, req *api.ListAppointmentsRequest) (*api.ListAppointmentsResponse, error) {
	uid, _, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	return h.listAppointments(ctx, model.AppointmentFilter{UserID: uid}, req.Status)
}

func (h *Handler) ListExpertAppointments(ctx context.Context, req *api.ListAppointmentsRequest) (*api.ListAppointmentsResponse, error) {
	uid, err := requireRole(ctx, model.RoleExpert)
	if err != nil {
		return nil, err
	}
	return h.listAppointments(ctx, model.AppointmentFilter{ExpertID: uid}, req.Status)
}

func (h *Handler) listAppointments(ctx context.Context, f model.AppointmentFilter, st string) (*api.ListAppointmentsResponse, error) {
	if st != "" {
		f.Status = model.AppointmentStatus(st)
		if !f.Status.Valid() {
			return nil, status.Error(codes.InvalidArgument, "unknown status")
		}
	}
	apts, err := h.store.ListAppointments(ctx, f)
	if err != nil {
		return nil, h.fail("list appointments", err)
	}
	out := make([]*api.Appointment, len(apts))
	for i := range apts {
		out[i] = toAppointment(&apts[i])
	}
	return &api.ListAppointmentsResponse{Appointments: out}, nil
}

// party loads an appointment the caller takes part in. Others get NotFound
// so ids of foreign appointments cannot be probed.
func (h *Handler) party(ctx context.Context, id string) (*model.Appointment, string, error) {
	uid, _, err := caller(ctx)
	if err != nil {
		return nil, "", err
	}
	if err := checkID("id", id); err != nil {
		return nil, "", err
	}
	a, err := h.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, "", h.fail("get appointment", err)
	}
	if a.UserID != uid && a.ExpertID != uid {
		return nil, "", status.Error(codes.NotFound, "not found")
	}
	return a, uid, nil
}

func (h *Handler) GetAppointment(ctx context.Context, req *api.GetAppointmentRequest) (*api.GetAppointmentResponse, error) {
	a, _, err := h.party(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &api.GetAppointmentResponse{Appointment: toAppointment(a)}, nil
}

func (h *Handler) UpdateAppointmentStatus(ctx context.Context, req *api.UpdateAppointmentStatusRequest) (*api.UpdateAppointmentStatusResponse, error) {
	to := model.AppointmentStatus(req.Status)
	if !to.Valid() {
		return nil, status.Error(codes.InvalidArgument, "unknown status")
	}
	a, uid, err := h.party(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	byExpert := a.ExpertID == uid
	if !model.CanTransition(a.Status, to, byExpert) {
		if !byExpert && model.CanTransition(a.Status, to, true) {
			return nil, status.Error(codes.PermissionDenied, "only the expert can do that")
		}
		return nil, status.Errorf(codes.FailedPrecondition, "cannot change a %s appointment to %s", a.Status, to)
	}

	updated, err := h.store.UpdateAppointmentStatus(ctx, a.ID, a.Status, to)
	if err != nil {
		return nil, h.fail("update appointment status", err)
	}

	h.publish(ctx, AppointmentEvent(updated), updated.UserID, updated.ExpertID)
	return &api.UpdateAppointmentStatusResponse{Appointment: toAppointment(updated)}, nil
}
