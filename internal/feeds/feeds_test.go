package feeds_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dermalink-api/internal/feeds"
	"dermalink-api/internal/model"
	"dermalink-api/internal/textutil"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url string
		ok  bool
	}{
		{"https://www.aad.org/rss.xml", true},
		{"http://example.com/feed", true},
		{"ftp://example.com/feed", false},
		{"file:///etc/passwd", false},
		{"https://", false},
		{"http://localhost/feed", false},
		{"http://127.0.0.1:8080/feed", false},
		{"http://10.1.2.3/feed", false},
		{"http://169.254.169.254/latest/meta-data", false},
		{"http://[::1]/feed", false},
		{"http://8.8.8.8/feed", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := feeds.ValidateURL(tt.url)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, feeds.ErrUnsafeURL)
			}
		})
	}
}

type fakeStore struct {
	mu       sync.Mutex
	feeds    []model.ResourceFeed
	bySource map[string]*model.Resource
	fetched  map[string]time.Time
}

func newFakeStore(feeds ...model.ResourceFeed) *fakeStore {
	return &fakeStore{feeds: feeds, bySource: map[string]*model.Resource{}, fetched: map[string]time.Time{}}
}

func (f *fakeStore) ListFeeds(context.Context) ([]model.ResourceFeed, error) {
	return f.feeds, nil
}

func (f *fakeStore) ImportResource(_ context.Context, r *model.Resource) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bySource[r.SourceURL]; ok {
		return false, nil
	}
	f.bySource[r.SourceURL] = r
	return true, nil
}

func (f *fakeStore) MarkFeedFetched(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched[id] = at
	return nil
}

const rss = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Derm news</title>
<item>
  <title>Sun &amp; skin</title>
  <link>https://news.example/sun</link>
  <description><![CDATA[<p>Use sunscreen</p><script>alert(1)</script>]]></description>
  <enclosure url="https://news.example/sun.jpg" type="image/jpeg" length="1"/>
</item>
<item>
  <title>Eczema basics</title>
  <link>https://news.example/eczema</link>
  <description>Moisturise daily.</description>
</item>
<item>
  <title>No link here</title>
</item>
</channel></rss>`

func allowAll(string) error { return nil }

func TestImportFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rss))
	}))
	defer srv.Close()

	feed := model.ResourceFeed{ID: "f-1", URL: srv.URL, Kind: model.KindArticle}
	st := newFakeStore(feed)
	im := feeds.NewImporter(st, textutil.NewSanitizer(), zerolog.Nop(), feeds.WithClient(srv.Client(), allowAll))

	n, err := im.ImportFeed(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sun := st.bySource["https://news.example/sun"]
	require.NotNil(t, sun)
	assert.Equal(t, "Sun & skin", sun.Title)
	assert.Equal(t, model.KindArticle, sun.Kind)
	assert.Contains(t, sun.Body, "<p>Use sunscreen</p>")
	assert.NotContains(t, sun.Body, "script")
	assert.Equal(t, "https://news.example/sun.jpg", sun.MediaURL)
	assert.Contains(t, st.fetched, "f-1")

	// second run finds nothing new
	n, err = im.ImportFeed(context.Background(), feed)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestImportAllSkipsFailingFeeds(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rss))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer bad.Close()

	st := newFakeStore(
		model.ResourceFeed{ID: "bad", URL: bad.URL},
		model.ResourceFeed{ID: "good", URL: good.URL},
	)
	im := feeds.NewImporter(st, textutil.NewSanitizer(), zerolog.Nop(), feeds.WithClient(http.DefaultClient, allowAll))

	n, err := im.ImportAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotContains(t, st.fetched, "bad")
	assert.Contains(t, st.fetched, "good")
}

func TestImportFeedRejectsUnsafeURL(t *testing.T) {
	st := newFakeStore()
	im := feeds.NewImporter(st, textutil.NewSanitizer(), zerolog.Nop())
	_, err := im.ImportFeed(context.Background(), model.ResourceFeed{ID: "x", URL: "http://127.0.0.1/feed"})
	assert.True(t, errors.Is(err, feeds.ErrUnsafeURL))
}

const hostileRSS = `<?xml version="1.0"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/"><channel><title>Hostile</title>
<item>
  <title>Scripted image</title>
  <link>https://news.example/scripted</link>
  <enclosure url="javascript:alert(1)" type="image/png" length="1"/>
</item>
<item>
  <title>Data image</title>
  <link>https://news.example/data</link>
  <enclosure url="data:image/png;base64,AAAA" type="image/png" length="1"/>
  <enclosure url="https://news.example/ok.png" type="image/png" length="1"/>
</item>
<item>
  <title>Scripted link</title>
  <link>javascript:alert(1)</link>
</item>
</channel></rss>`

func TestImportFeedDropsNonWebURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(hostileRSS))
	}))
	defer srv.Close()

	feed := model.ResourceFeed{ID: "h", URL: srv.URL, Kind: model.KindArticle}
	st := newFakeStore(feed)
	im := feeds.NewImporter(st, textutil.NewSanitizer(), zerolog.Nop(), feeds.WithClient(srv.Client(), allowAll))

	n, err := im.ImportFeed(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	scripted := st.bySource["https://news.example/scripted"]
	require.NotNil(t, scripted)
	assert.Empty(t, scripted.MediaURL)

	data := st.bySource["https://news.example/data"]
	require.NotNil(t, data)
	assert.Equal(t, "https://news.example/ok.png", data.MediaURL)

	assert.Nil(t, st.bySource["javascript:alert(1)"])
}
