// Package inference calls the external skin-lesion classifier.
package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"dermalink-api/internal/model"
	"dermalink-api/internal/observability"
)

// DefaultLabels are the HAM10000 classes in the order most published
// models emit them.
var DefaultLabels = []string{
	"Actinic keratoses",
	"Basal cell carcinoma",
	"Benign keratosis-like lesions",
	"Dermatofibroma",
	"Melanoma",
	"Melanocytic nevi",
	"Vascular lesions",
}

var (
	ErrUpstream    = errors.New("inference: upstream error")
	ErrBadResponse = errors.New("inference: unrecognised response")
)

type Prediction struct {
	Label      string        `json:"label"`
	Confidence float64       `json:"confidence"`
	Scores     []model.Score `json:"scores"`
}

type Client struct {
	url    string
	hc     *http.Client
	rl     *rate.Limiter
	labels []string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func WithLabels(labels []string) Option {
	return func(c *Client) {
		if len(labels) > 0 {
			c.labels = labels
		}
	}
}

func New(url string, rps float64, opts ...Option) *Client {
	if rps <= 0 {
		rps = 2
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	c := &Client{
		url:    url,
		hc:     &http.Client{Timeout: 30 * time.Second},
		rl:     rate.NewLimiter(rate.Limit(rps), burst),
		labels: DefaultLabels,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// LoadLabels reads a YAML file of the form "labels: [a, b, ...]".
func LoadLabels(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inference: read labels: %w", err)
	}
	var doc struct {
		Labels []string `yaml:"labels"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("inference: parse labels: %w", err)
	}
	if len(doc.Labels) == 0 {
		return nil, fmt.Errorf("inference: %s has no labels", path)
	}
	return doc.Labels, nil
}

// Classify uploads the image as multipart field "file" and returns the
// scores sorted by probability, highest first.
func (c *Client) Classify(ctx context.Context, filename string, img io.Reader) (*Prediction, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, img); err != nil {
		return nil, fmt.Errorf("inference: read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("inference", 0, time.Since(start))
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal("inference", resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return c.parse(raw)
}

func (c *Client) parse(raw []byte) (*Prediction, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrBadResponse
	}
	vec := probabilities(gjson.ParseBytes(raw))
	if len(vec) == 0 {
		return nil, ErrBadResponse
	}

	scores := make([]model.Score, len(vec))
	for i, p := range vec {
		label := fmt.Sprintf("class_%d", i)
		if i < len(c.labels) {
			label = c.labels[i]
		}
		scores[i] = model.Score{Label: label, Probability: p}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Probability > scores[j].Probability
	})
	return &Prediction{Label: scores[0].Label, Confidence: scores[0].Probability, Scores: scores}, nil
}

// probabilities finds the vector at "predictions", the top level or
// "probabilities". A batch of one ([[...]]) is unwrapped. Logits or any
// value outside [0, 1] reject the whole vector.
func probabilities(res gjson.Result) []float64 {
	var arr gjson.Result
	switch {
	case res.Get("predictions").IsArray():
		arr = res.Get("predictions")
	case res.IsArray():
		arr = res
	case res.Get("probabilities").IsArray():
		arr = res.Get("probabilities")
	default:
		return nil
	}
	if first := arr.Get("0"); first.IsArray() {
		arr = first
	}

	var out []float64
	ok := true
	arr.ForEach(func(_, v gjson.Result) bool {
		if v.Type != gjson.Number || v.Float() < 0 || v.Float() > 1 {
			ok = false
			return false
		}
		out = append(out, v.Float())
		return true
	})
	if !ok {
		return nil
	}
	return out
}
