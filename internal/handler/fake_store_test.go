package handler_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"dermalink-api/internal/model"
	"dermalink-api/internal/store"
)

// fakeStore is an in-memory handler.Store with the same error contract as
// the Postgres store.
type fakeStore struct {
	mu sync.Mutex

	users    map[string]*model.User
	tokens   map[string]*store.RefreshToken // by hash
	experts  map[string]*model.Expert
	avail    map[string]map[string][]string
	appts    map[string]*model.Appointment
	products map[string]*model.Product
	reviews  []*model.Review
	res      map[string]*model.Resource
	likes    map[string]map[string]bool
	comments map[string]*model.Comment
	history  map[string]*model.HistoryEntry
	feeds    map[string]*model.ResourceFeed
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]*model.User{},
		tokens:   map[string]*store.RefreshToken{},
		experts:  map[string]*model.Expert{},
		avail:    map[string]map[string][]string{},
		appts:    map[string]*model.Appointment{},
		products: map[string]*model.Product{},
		res:      map[string]*model.Resource{},
		likes:    map[string]map[string]bool{},
		comments: map[string]*model.Comment{},
		history:  map[string]*model.HistoryEntry{},
		feeds:    map[string]*model.ResourceFeed{},
	}
}

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.users {
		if o.Email == u.Email {
			return store.ErrDuplicate
		}
	}
	u.CreatedAt = time.Now()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) UserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) UserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) UpdateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) setRole(id string, r model.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id].Role = r
}

func (f *fakeStore) CreateRefreshToken(_ context.Context, userID, hash string, exp time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "rt-" + hash[:8]
	f.tokens[hash] = &store.RefreshToken{ID: id, UserID: userID, TokenHash: hash, ExpiresAt: exp}
	return id, nil
}

func (f *fakeStore) GetRefreshTokenByHash(_ context.Context, hash string) (*store.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.tokens[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rt
	return &cp, nil
}

func (f *fakeStore) RotateRefreshToken(_ context.Context, oldID, newID, userID, newHash string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rt := range f.tokens {
		if rt.ID != oldID {
			continue
		}
		if rt.Revoked {
			return store.ErrConflict
		}
		rt.Revoked = true
		rt.ReplacedBy = &newID
		f.tokens[newHash] = &store.RefreshToken{ID: newID, UserID: userID, TokenHash: newHash, ExpiresAt: exp}
		return nil
	}
	return store.ErrConflict
}

func (f *fakeStore) RevokeAllRefreshTokens(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rt := range f.tokens {
		if rt.UserID == userID {
			rt.Revoked = true
		}
	}
	return nil
}

func (f *fakeStore) activeTokens(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rt := range f.tokens {
		if rt.UserID == userID && !rt.Revoked {
			n++
		}
	}
	return n
}

func (f *fakeStore) UpsertExpert(_ context.Context, e *model.Expert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[e.ID]; !ok {
		return store.ErrNotFound
	}
	old, ok := f.experts[e.ID]
	cp := *e
	if ok {
		cp.Rating, cp.ReviewCount = old.Rating, old.ReviewCount
	}
	f.experts[e.ID] = &cp
	return nil
}

func (f *fakeStore) GetExpert(_ context.Context, id string) (*model.Expert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.experts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	cp.Name = f.users[id].Name
	return &cp, nil
}

func (f *fakeStore) ListExperts(_ context.Context, specialty string) ([]model.Expert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Expert
	for id, e := range f.experts {
		if specialty != "" && !strings.EqualFold(e.Specialty, specialty) {
			continue
		}
		cp := *e
		cp.Name = f.users[id].Name
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) GetAvailability(_ context.Context, expertID string) (*model.Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	days := map[string][]string{}
	for k, v := range f.avail[expertID] {
		days[k] = append([]string(nil), v...)
	}
	return &model.Availability{ExpertID: expertID, Days: days}, nil
}

func (f *fakeStore) SetAvailability(_ context.Context, a *model.Availability) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.experts[a.ExpertID]; !ok {
		return store.ErrNotFound
	}
	f.avail[a.ExpertID] = a.Days
	return nil
}

func (f *fakeStore) BookAppointment(_ context.Context, a *model.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.appts {
		if o.ExpertID == a.ExpertID && o.Date.Equal(a.Date) && o.Time == a.Time && o.Status.Active() {
			return store.ErrSlotTaken
		}
	}
	a.CreatedAt, a.UpdatedAt = time.Now(), time.Now()
	cp := *a
	f.appts[a.ID] = &cp
	return nil
}

func (f *fakeStore) GetAppointment(_ context.Context, id string) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) ListAppointments(_ context.Context, flt model.AppointmentFilter) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Appointment
	for _, a := range f.appts {
		if flt.UserID != "" && a.UserID != flt.UserID {
			continue
		}
		if flt.ExpertID != "" && a.ExpertID != flt.ExpertID {
			continue
		}
		if flt.Status != "" && a.Status != flt.Status {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeStore) UpdateAppointmentStatus(_ context.Context, id string, from, to model.AppointmentStatus) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok || a.Status != from {
		return nil, store.ErrConflict
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (f *fakeStore) setStatus(id string, s model.AppointmentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appts[id].Status = s
}

func (f *fakeStore) HasCompletedAppointment(_ context.Context, userID, expertID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.appts {
		if a.UserID == userID && a.ExpertID == expertID && a.Status == model.StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateProduct(_ context.Context, p *model.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.CreatedAt = time.Now()
	cp := *p
	f.products[p.ID] = &cp
	return nil
}

func (f *fakeStore) GetProduct(_ context.Context, id string) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ListProducts(_ context.Context, category string) ([]model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Product
	for _, p := range f.products {
		if category == "" || p.Category == category {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateReview(_ context.Context, r *model.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.reviews {
		if o.UserID == r.UserID && o.TargetKind == r.TargetKind && o.TargetID == r.TargetID {
			return store.ErrDuplicate
		}
	}
	var sum, n int
	for _, o := range append(f.reviews, r) {
		if o.TargetKind == r.TargetKind && o.TargetID == r.TargetID {
			sum += o.Rating
			n++
		}
	}
	avg := float64(sum) / float64(n)
	switch r.TargetKind {
	case model.TargetExpert:
		e, ok := f.experts[r.TargetID]
		if !ok {
			return store.ErrNotFound
		}
		e.Rating, e.ReviewCount = avg, n
	case model.TargetProduct:
		p, ok := f.products[r.TargetID]
		if !ok {
			return store.ErrNotFound
		}
		p.Rating, p.ReviewCount = avg, n
	}
	r.CreatedAt = time.Now()
	cp := *r
	f.reviews = append(f.reviews, &cp)
	return nil
}

func (f *fakeStore) ListReviews(_ context.Context, kind model.ReviewTarget, targetID string) ([]model.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Review
	for _, r := range f.reviews {
		if r.TargetKind == kind && r.TargetID == targetID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateResource(_ context.Context, r *model.Resource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.CreatedAt = time.Now()
	cp := *r
	f.res[r.ID] = &cp
	return nil
}

func (f *fakeStore) ViewResource(_ context.Context, id string) (*model.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.res[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	r.Views++
	cp := *r
	return &cp, nil
}

func (f *fakeStore) ListResources(_ context.Context, kind model.ResourceKind) ([]model.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Resource
	for _, r := range f.res {
		if kind == "" || r.Kind == kind {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) SetLike(_ context.Context, resourceID, userID string, liked bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.res[resourceID]
	if !ok {
		return 0, store.ErrNotFound
	}
	set := f.likes[resourceID]
	if set == nil {
		set = map[string]bool{}
		f.likes[resourceID] = set
	}
	switch {
	case liked && !set[userID]:
		set[userID] = true
		r.Likes++
	case !liked && set[userID]:
		delete(set, userID)
		r.Likes--
	}
	return r.Likes, nil
}

func (f *fakeStore) AddComment(_ context.Context, c *model.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.res[c.ResourceID]
	if !ok {
		return store.ErrNotFound
	}
	r.Comments++
	c.CreatedAt = time.Now()
	cp := *c
	f.comments[c.ID] = &cp
	return nil
}

func (f *fakeStore) ListComments(_ context.Context, resourceID string) ([]model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Comment
	for _, c := range f.comments {
		if c.ResourceID == resourceID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteComment(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[id]
	if !ok || c.UserID != userID {
		return store.ErrNotFound
	}
	delete(f.comments, id)
	f.res[c.ResourceID].Comments--
	return nil
}

func (f *fakeStore) AddHistory(_ context.Context, e *model.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.CreatedAt = time.Now()
	cp := *e
	f.history[e.ID] = &cp
	return nil
}

func (f *fakeStore) ListHistory(_ context.Context, userID string) ([]model.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.HistoryEntry
	for _, e := range f.history {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteHistory(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.history[id]
	if !ok || e.UserID != userID {
		return store.ErrNotFound
	}
	delete(f.history, id)
	return nil
}

func (f *fakeStore) AddFeed(_ context.Context, fd *model.ResourceFeed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.feeds {
		if o.URL == fd.URL {
			return store.ErrDuplicate
		}
	}
	fd.CreatedAt = time.Now()
	cp := *fd
	f.feeds[fd.ID] = &cp
	return nil
}

func (f *fakeStore) ListFeeds(context.Context) ([]model.ResourceFeed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ResourceFeed
	for _, fd := range f.feeds {
		out = append(out, *fd)
	}
	return out, nil
}
