package web

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"dermalink-api/internal/api"
	"dermalink-api/internal/blob"
	"dermalink-api/internal/middleware"
)

type classifyResponse struct {
	Label      string            `json:"label"`
	Confidence float64           `json:"confidence"`
	Scores     []api.Score       `json:"scores"`
	ImageURL   string            `json:"image_url"`
	History    *api.HistoryEntry `json:"history"`
}

// formFile reads one multipart file of at most max bytes into memory.
func formFile(w http.ResponseWriter, r *http.Request, field string, max int64) ([]byte, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, max+1<<20)
	if err := r.ParseMultipartForm(max); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeProblem(w, r, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "upload too large")
			return nil, nil, false
		}
		writeProblem(w, r, http.StatusBadRequest, "Bad Request", "expected multipart/form-data")
		return nil, nil, false
	}
	f, hdr, err := r.FormFile(field)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "Bad Request", "missing "+field+" file")
		return nil, nil, false
	}
	defer f.Close()
	if hdr.Size > max {
		writeProblem(w, r, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "upload too large")
		return nil, nil, false
	}
	data, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "Bad Request", "could not read upload")
		return nil, nil, false
	}
	if int64(len(data)) > max {
		writeProblem(w, r, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "upload too large")
		return nil, nil, false
	}
	if len(data) == 0 {
		writeProblem(w, r, http.StatusBadRequest, "Bad Request", "empty upload")
		return nil, nil, false
	}
	return data, hdr, true
}

func (s *Server) store(w http.ResponseWriter, r *http.Request, filename string, data []byte) (*blob.Object, bool) {
	uid, _ := middleware.Caller(r.Context())
	obj, err := s.cfg.Blobs.Put(r.Context(), uid, filename, bytes.NewReader(data))
	switch {
	case errors.Is(err, blob.ErrTooLarge):
		writeProblem(w, r, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "upload too large")
		return nil, false
	case errors.Is(err, blob.ErrEmpty):
		writeProblem(w, r, http.StatusBadRequest, "Bad Request", "empty upload")
		return nil, false
	case err != nil:
		s.cfg.Log.Error().Err(err).Str("user_id", uid).Msg("store upload")
		writeProblem(w, r, http.StatusInternalServerError, "Internal Server Error", "could not store upload")
		return nil, false
	}
	return obj, true
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Blobs == nil {
		writeProblem(w, r, http.StatusServiceUnavailable, "Service Unavailable", "uploads disabled")
		return
	}
	data, hdr, ok := formFile(w, r, "file", s.cfg.MaxUpload)
	if !ok {
		return
	}
	obj, ok := s.store(w, r, hdr.Filename, data)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, obj)
}

// classify stores the image, runs it through the classifier and records the
// result in the caller's history.
func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Classifier == nil || s.cfg.Blobs == nil || s.cfg.History == nil {
		writeProblem(w, r, http.StatusServiceUnavailable, "Service Unavailable", "classification disabled")
		return
	}
	data, hdr, ok := formFile(w, r, "image", s.cfg.MaxUpload)
	if !ok {
		return
	}
	if ct := http.DetectContentType(data); !strings.HasPrefix(ct, "image/") {
		writeProblem(w, r, http.StatusUnsupportedMediaType, "Unsupported Media Type", "image required")
		return
	}

	obj, ok := s.store(w, r, hdr.Filename, data)
	if !ok {
		return
	}

	pred, err := s.cfg.Classifier.Classify(r.Context(), hdr.Filename, bytes.NewReader(data))
	if err != nil {
		s.cfg.Log.Error().Err(err).Str("image", obj.Path).Msg("classify")
		writeProblem(w, r, http.StatusBadGateway, "Bad Gateway", "classification failed")
		return
	}

	scores := make([]api.Score, len(pred.Scores))
	for i, sc := range pred.Scores {
		scores[i] = api.Score{Label: sc.Label, Probability: sc.Probability}
	}
	res, err := s.cfg.History.AddHistory(r.Context(), &api.AddHistoryRequest{
		ImageURL:   obj.URL,
		Label:      pred.Label,
		Confidence: pred.Confidence,
		Scores:     scores,
	})
	if err != nil {
		writeStatus(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, classifyResponse{
		Label:      pred.Label,
		Confidence: pred.Confidence,
		Scores:     scores,
		ImageURL:   obj.URL,
		History:    res.Entry,
	})
}
