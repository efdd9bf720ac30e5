package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dermalink-api/internal/api"
	"dermalink-api/internal/auth"
	"dermalink-api/internal/blob"
	"dermalink-api/internal/inference"
	"dermalink-api/internal/middleware"
	"dermalink-api/internal/model"
	"dermalink-api/internal/observability"
)

const secret = "web-test-secret-0123456"

var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

type fakeClassifier struct {
	err   error
	calls int
}

func (f *fakeClassifier) Classify(_ context.Context, _ string, img io.Reader) (*inference.Prediction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	_, _ = io.Copy(io.Discard, img)
	return &inference.Prediction{
		Label:      "Melanocytic nevi",
		Confidence: 0.9,
		Scores: []model.Score{
			{Label: "Melanocytic nevi", Probability: 0.9},
			{Label: "Melanoma", Probability: 0.1},
		},
	}, nil
}

type fakeHistory struct {
	mu   sync.Mutex
	uids []string
	reqs []*api.AddHistoryRequest
	err  error
}

func (f *fakeHistory) AddHistory(ctx context.Context, req *api.AddHistoryRequest) (*api.AddHistoryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	uid, _ := middleware.Caller(ctx)
	f.uids = append(f.uids, uid)
	f.reqs = append(f.reqs, req)
	return &api.AddHistoryResponse{Entry: &api.HistoryEntry{
		ID: "h-1", ImageURL: req.ImageURL, Label: req.Label, Confidence: req.Confidence, CreatedAt: time.Now(),
	}}, nil
}

type env struct {
	srv     *Server
	blobs   *blob.Local
	cls     *fakeClassifier
	history *fakeHistory
}

func setup(t *testing.T, mutate ...func(*Config)) *env {
	t.Helper()
	blobs, err := blob.NewLocal(t.TempDir(), "http://files.test", 1<<20)
	require.NoError(t, err)
	e := &env{blobs: blobs, cls: &fakeClassifier{}, history: &fakeHistory{}}
	cfg := Config{
		Secret:     secret,
		MaxUpload:  1 << 20,
		Log:        zerolog.Nop(),
		Registry:   observability.InitRegistry(),
		Blobs:      blobs,
		Classifier: e.cls,
		History:    e.history,
		Bridge: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("bridge:" + r.URL.Path))
		}),
		Realtime: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, _ := middleware.Caller(r.Context())
			_, _ = w.Write([]byte("ws:" + uid))
		}),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	e.srv = New(cfg)
	return e
}

func token(t *testing.T, uid string) string {
	t.Helper()
	tok, err := auth.MakeToken(uid, "user", secret, time.Minute)
	require.NoError(t, err)
	return tok
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (e *env) do(t *testing.T, method, path, tok string, body io.Reader, ctype string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	e := setup(t)
	rr := e.do(t, http.MethodGet, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	rr = e.do(t, http.MethodGet, "/readyz", "", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	down := setup(t, func(c *Config) {
		c.Ready = func(context.Context) error { return errors.New("db down") }
	})
	rr = down.do(t, http.MethodGet, "/readyz", "", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestMetricsRecordsRoutes(t *testing.T) {
	e := setup(t)
	e.do(t, http.MethodGet, "/healthz", "", nil, "")
	rr := e.do(t, http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `dermalink_http_requests_total{method="GET",route="/healthz",status="200"}`)
}

func TestBridgeAndRealtimeMounted(t *testing.T) {
	e := setup(t)
	rr := e.do(t, http.MethodPost, "/dermalink.v1.Dermalink/Login", "", strings.NewReader(""), "")
	assert.Equal(t, "bridge:/dermalink.v1.Dermalink/Login", rr.Body.String())

	rr = e.do(t, http.MethodGet, "/ws", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = e.do(t, http.MethodGet, "/ws?token="+token(t, "u-7"), "", nil, "")
	assert.Equal(t, "ws:u-7", rr.Body.String())
}

func TestUploadAndServe(t *testing.T) {
	e := setup(t)
	body, ct := multipartBody(t, "file", "spot.png", pngPixel)
	rr := e.do(t, http.MethodPost, "/v1/uploads", "", body, ct)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	body, ct = multipartBody(t, "file", "spot.png", pngPixel)
	rr = e.do(t, http.MethodPost, "/v1/uploads", token(t, "u-1"), body, ct)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var obj blob.Object
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &obj))
	assert.True(t, strings.HasPrefix(obj.Path, "images/u-1/"), obj.Path)
	assert.Equal(t, "http://files.test/files/"+obj.Path, obj.URL)

	rr = e.do(t, http.MethodGet, "/files/"+obj.Path, "", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, pngPixel, rr.Body.Bytes())
}

func TestUploadValidation(t *testing.T) {
	e := setup(t)
	tok := token(t, "u-1")

	rr := e.do(t, http.MethodPost, "/v1/uploads", tok, strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body, ct := multipartBody(t, "other", "x.png", pngPixel)
	rr = e.do(t, http.MethodPost, "/v1/uploads", tok, body, ct)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	small := setup(t, func(c *Config) { c.MaxUpload = 16 })
	body, ct = multipartBody(t, "file", "x.png", pngPixel)
	rr = small.do(t, http.MethodPost, "/v1/uploads", tok, body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestClassify(t *testing.T) {
	e := setup(t)
	body, ct := multipartBody(t, "image", "arm.png", pngPixel)
	rr := e.do(t, http.MethodPost, "/v1/classify", token(t, "u-3"), body, ct)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out classifyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, "Melanocytic nevi", out.Label)
	assert.InDelta(t, 0.9, out.Confidence, 1e-9)
	assert.Len(t, out.Scores, 2)
	assert.True(t, strings.HasPrefix(out.ImageURL, "http://files.test/files/images/u-3/"))
	require.NotNil(t, out.History)
	assert.Equal(t, "h-1", out.History.ID)

	require.Len(t, e.history.reqs, 1)
	assert.Equal(t, []string{"u-3"}, e.history.uids)
	assert.Equal(t, out.ImageURL, e.history.reqs[0].ImageURL)
}

func TestClassifyFailures(t *testing.T) {
	tok := token(t, "u-3")

	disabled := setup(t, func(c *Config) { c.Classifier = nil })
	body, ct := multipartBody(t, "image", "arm.png", pngPixel)
	rr := disabled.do(t, http.MethodPost, "/v1/classify", tok, body, ct)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	e := setup(t)
	body, ct = multipartBody(t, "image", "notes.txt", []byte("not an image at all"))
	rr = e.do(t, http.MethodPost, "/v1/classify", tok, body, ct)
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	assert.Zero(t, e.cls.calls)

	e.cls.err = inference.ErrUpstream
	body, ct = multipartBody(t, "image", "arm.png", pngPixel)
	rr = e.do(t, http.MethodPost, "/v1/classify", tok, body, ct)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Empty(t, e.history.reqs)

	e.cls.err = nil
	e.history.err = status.Error(codes.InvalidArgument, "label required")
	body, ct = multipartBody(t, "image", "arm.png", pngPixel)
	rr = e.do(t, http.MethodPost, "/v1/classify", tok, body, ct)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var p problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, "label required", p.Detail)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, httpStatus(codes.NotFound))
	assert.Equal(t, http.StatusConflict, httpStatus(codes.AlreadyExists))
	assert.Equal(t, http.StatusForbidden, httpStatus(codes.PermissionDenied))
	assert.Equal(t, http.StatusInternalServerError, httpStatus(codes.Internal))
}
