// Package feeds imports articles from external RSS and Atom feeds as
// resources.
package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"dermalink-api/internal/model"
	"dermalink-api/internal/observability"
	"dermalink-api/internal/textutil"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 5 << 20
	maxTitleRunes  = 200
)

type Store interface {
	ListFeeds(ctx context.Context) ([]model.ResourceFeed, error)
	ImportResource(ctx context.Context, r *model.Resource) (bool, error)
	MarkFeedFetched(ctx context.Context, id string, at time.Time) error
}

type Importer struct {
	store    Store
	san      *textutil.Sanitizer
	client   *http.Client
	validate func(string) error
	log      zerolog.Logger
	now      func() time.Time
}

type Option func(*Importer)

// WithClient replaces the SSRF-safe client and the URL check. Tests use it
// to reach httptest servers on loopback.
func WithClient(c *http.Client, validate func(string) error) Option {
	return func(im *Importer) {
		im.client = c
		im.validate = validate
	}
}

func NewImporter(st Store, san *textutil.Sanitizer, l zerolog.Logger, opts ...Option) *Importer {
	im := &Importer{
		store:    st,
		san:      san,
		client:   NewSafeClient(defaultTimeout),
		validate: ValidateURL,
		log:      l.With().Str("component", "feeds").Logger(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(im)
	}
	return im
}

// ImportAll imports every registered feed. A failing feed is logged and
// skipped; the total number of new resources is returned.
func (im *Importer) ImportAll(ctx context.Context) (int, error) {
	feeds, err := im.store.ListFeeds(ctx)
	if err != nil {
		return 0, fmt.Errorf("list feeds: %w", err)
	}
	total := 0
	for _, f := range feeds {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := im.ImportFeed(ctx, f)
		if err != nil {
			im.log.Warn().Err(err).Str("feed_id", f.ID).Str("url", f.URL).Msg("import failed")
			continue
		}
		total += n
	}
	return total, nil
}

// ImportFeed fetches one feed and stores entries not seen before.
func (im *Importer) ImportFeed(ctx context.Context, f model.ResourceFeed) (int, error) {
	if err := im.validate(f.URL); err != nil {
		return 0, err
	}
	parsed, err := im.fetch(ctx, f.URL)
	if err != nil {
		return 0, err
	}

	kind := f.Kind
	if !kind.Valid() {
		kind = model.KindArticle
	}
	n := 0
	for _, item := range parsed.Items {
		r := im.toResource(item, kind)
		if r == nil {
			continue
		}
		created, err := im.store.ImportResource(ctx, r)
		if err != nil {
			return n, fmt.Errorf("import %s: %w", r.SourceURL, err)
		}
		if created {
			n++
		}
	}

	if err := im.store.MarkFeedFetched(ctx, f.ID, im.now()); err != nil {
		return n, fmt.Errorf("mark fetched: %w", err)
	}
	im.log.Info().Str("feed_id", f.ID).Int("items", len(parsed.Items)).Int("imported", n).Msg("feed imported")
	return n, nil
}

func (im *Importer) fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "dermalink-feeds/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	start := time.Now()
	resp, err := im.client.Do(req)
	if err != nil {
		observability.ObserveExternal("feed", 0, time.Since(start))
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal("feed", resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return parsed, nil
}

func (im *Importer) toResource(item *gofeed.Item, kind model.ResourceKind) *model.Resource {
	if item == nil || !textutil.WebURL(item.Link) {
		return nil
	}
	title := textutil.Truncate(im.san.PlainText(item.Title), maxTitleRunes)
	if title == "" {
		return nil
	}
	body := item.Content
	if body == "" {
		body = item.Description
	}

	r := &model.Resource{
		ID:        uuid.New().String(),
		Kind:      kind,
		Title:     title,
		Body:      im.san.HTML(body),
		SourceURL: strings.TrimSpace(item.Link),
	}
	if item.Image != nil && textutil.WebURL(item.Image.URL) {
		r.MediaURL = strings.TrimSpace(item.Image.URL)
	} else {
		for _, e := range item.Enclosures {
			if e != nil && strings.HasPrefix(e.Type, "image/") && textutil.WebURL(e.URL) {
				r.MediaURL = strings.TrimSpace(e.URL)
				break
			}
		}
	}
	return r
}
