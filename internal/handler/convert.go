package handler

import (
	"dermalink-api/internal/api"
	"dermalink-api/internal/model"
)

func toProfile(u *model.User) *api.Profile {
	return &api.Profile{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		Phone:     u.Phone,
		PhotoURL:  u.PhotoURL,
		CreatedAt: u.CreatedAt,
	}
}

func toExpert(e *model.Expert) *api.Expert {
	return &api.Expert{
		ID:          e.ID,
		Name:        e.Name,
		Specialty:   e.Specialty,
		Bio:         e.Bio,
		FeeCents:    e.FeeCents,
		PhotoURL:    e.PhotoURL,
		Rating:      e.Rating,
		ReviewCount: e.ReviewCount,
	}
}

func toAppointment(a *model.Appointment) *api.Appointment {
	return &api.Appointment{
		ID:        a.ID,
		UserID:    a.UserID,
		ExpertID:  a.ExpertID,
		Date:      a.Date.Format(model.DateLayout),
		Time:      a.Time,
		Note:      a.Note,
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// AppointmentEvent is what both parties of a receive when it changes.
func AppointmentEvent(a *model.Appointment) model.Event {
	return model.Event{Type: "appointment", Data: toAppointment(a)}
}

func toProduct(p *model.Product) *api.Product {
	return &api.Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		ImageURL:    p.ImageURL,
		Category:    p.Category,
		Rating:      p.Rating,
		ReviewCount: p.ReviewCount,
		CreatedAt:   p.CreatedAt,
	}
}

func toReview(r *model.Review) *api.Review {
	return &api.Review{
		ID:         r.ID,
		UserID:     r.UserID,
		UserName:   r.UserName,
		TargetKind: string(r.TargetKind),
		TargetID:   r.TargetID,
		Rating:     r.Rating,
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt,
	}
}

func toResource(r *model.Resource) *api.Resource {
	return &api.Resource{
		ID:        r.ID,
		AuthorID:  r.AuthorID,
		Kind:      string(r.Kind),
		Title:     r.Title,
		Body:      r.Body,
		MediaURL:  r.MediaURL,
		SourceURL: r.SourceURL,
		Likes:     r.Likes,
		Views:     r.Views,
		Comments:  r.Comments,
		CreatedAt: r.CreatedAt,
	}
}

func toComment(c *model.Comment) *api.Comment {
	return &api.Comment{
		ID:         c.ID,
		ResourceID: c.ResourceID,
		UserID:     c.UserID,
		UserName:   c.UserName,
		Body:       c.Body,
		CreatedAt:  c.CreatedAt,
	}
}

func toScores(in []model.Score) []api.Score {
	if len(in) == 0 {
		return nil
	}
	out := make([]api.Score, len(in))
	for i, s := range in {
		out[i] = api.Score{Label: s.Label, Probability: s.Probability}
	}
	return out
}

func fromScores(in []api.Score) []model.Score {
	out := make([]model.Score, len(in))
	for i, s := range in {
		out[i] = model.Score{Label: s.Label, Probability: s.Probability}
	}
	return out
}

func toHistory(e *model.HistoryEntry) *api.HistoryEntry {
	return &api.HistoryEntry{
		ID:         e.ID,
		ImageURL:   e.ImageURL,
		Label:      e.Label,
		Confidence: e.Confidence,
		Scores:     toScores(e.Scores),
		CreatedAt:  e.CreatedAt,
	}
}

func toFeed(f *model.ResourceFeed) *api.ResourceFeed {
	return &api.ResourceFeed{
		ID:            f.ID,
		URL:           f.URL,
		Kind:          string(f.Kind),
		LastFetchedAt: f.LastFetchedAt,
		CreatedAt:     f.CreatedAt,
	}
}
