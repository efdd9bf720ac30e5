package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dermalink-api/internal/api"
	"dermalink-api/internal/model"
)

var fixedNow = time.Date(2030, 1, 10, 3, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu       sync.Mutex
	appts    []model.Appointment
	tokens   map[string]time.Time
	expireOn time.Time
	err      error
}

func (f *fakeStore) ExpirePending(_ context.Context, day time.Time) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.expireOn = day
	var out []model.Appointment
	for i := range f.appts {
		a := &f.appts[i]
		if a.Status == model.StatusPending && a.Date.Before(day) {
			a.Status = model.StatusCancelled
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) PurgeRefreshTokens(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, exp := range f.tokens {
		if exp.Before(cutoff) {
			delete(f.tokens, id)
			n++
		}
	}
	return n, nil
}

type sent struct {
	uid string
	ev  model.Event
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) Publish(_ context.Context, uid string, ev model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{uid, ev})
	return nil
}

type importer struct{ calls int }

func (i *importer) ImportAll(context.Context) (int, error) {
	i.calls++
	return 3, nil
}

func day(d int) time.Time { return time.Date(2030, 1, d, 0, 0, 0, 0, time.UTC) }

func TestExpireAppointments(t *testing.T) {
	st := &fakeStore{appts: []model.Appointment{
		{ID: "old", UserID: "u1", ExpertID: "e1", Date: day(9), Time: "9:00 AM", Status: model.StatusPending},
		{ID: "accepted", UserID: "u1", ExpertID: "e1", Date: day(9), Time: "10:00 AM", Status: model.StatusAccepted},
		{ID: "today", UserID: "u2", ExpertID: "e1", Date: day(10), Time: "9:00 AM", Status: model.StatusPending},
	}}
	rec := &recorder{}
	s := New(st, rec, zerolog.Nop(), WithClock(func() time.Time { return fixedNow }))

	require.NoError(t, s.ExpireAppointments(context.Background()))
	assert.Equal(t, day(10), st.expireOn)
	assert.Equal(t, model.StatusCancelled, st.appts[0].Status)
	assert.Equal(t, model.StatusAccepted, st.appts[1].Status)
	assert.Equal(t, model.StatusPending, st.appts[2].Status)

	require.Len(t, rec.sent, 2)
	assert.Equal(t, "u1", rec.sent[0].uid)
	assert.Equal(t, "e1", rec.sent[1].uid)
	assert.Equal(t, "appointment", rec.sent[0].ev.Type)
	out, ok := rec.sent[0].ev.Data.(*api.Appointment)
	require.True(t, ok)
	assert.Equal(t, "cancelled", out.Status)
	assert.Equal(t, "2030-01-09", out.Date)
}

func TestExpireAppointmentsError(t *testing.T) {
	st := &fakeStore{err: errors.New("db down")}
	s := New(st, &recorder{}, zerolog.Nop())
	assert.ErrorContains(t, s.ExpireAppointments(context.Background()), "db down")
}

func TestPurgeTokens(t *testing.T) {
	st := &fakeStore{tokens: map[string]time.Time{
		"long-gone": fixedNow.Add(-48 * time.Hour),
		"recent":    fixedNow.Add(-time.Hour),
		"live":      fixedNow.Add(time.Hour),
	}}
	s := New(st, &recorder{}, zerolog.Nop(), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, s.PurgeTokens(context.Background()))
	assert.Len(t, st.tokens, 2)
	assert.NotContains(t, st.tokens, "long-gone")
}

func TestImportFeeds(t *testing.T) {
	imp := &importer{}
	s := New(&fakeStore{}, &recorder{}, zerolog.Nop(), WithImporter(imp))
	require.NoError(t, s.ImportFeeds(context.Background()))
	assert.Equal(t, 1, imp.calls)

	assert.NoError(t, New(&fakeStore{}, &recorder{}, zerolog.Nop()).ImportFeeds(context.Background()))
}

func TestStart(t *testing.T) {
	s := New(&fakeStore{}, &recorder{}, zerolog.Nop(), WithImporter(&importer{}))
	require.NoError(t, s.Start("@every 1h", "@daily"))
	assert.Equal(t, 3, s.Entries())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	bad := New(&fakeStore{}, &recorder{}, zerolog.Nop())
	assert.Error(t, bad.Start("not a schedule", "@daily"))

	noFeeds := New(&fakeStore{}, &recorder{}, zerolog.Nop())
	require.NoError(t, noFeeds.Start("@hourly", "ignored"))
	assert.Equal(t, 2, noFeeds.Entries())
	noFeeds.Stop(ctx)
}
