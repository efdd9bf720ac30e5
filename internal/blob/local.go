// Package blob stores uploaded files on local disk under generated paths and
// serves them back read-only.
package blob

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrTooLarge = errors.New("blob: object too large")
	ErrEmpty    = errors.New("blob: empty object")
)

type Object struct {
	Path        string `json:"path"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type Local struct {
	root    string
	baseURL string
	max     int64
}

// NewLocal creates root if needed. Public URLs are baseURL + "/files/" + path.
func NewLocal(root, baseURL string, maxBytes int64) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	return &Local{root: root, baseURL: strings.TrimRight(baseURL, "/"), max: maxBytes}, nil
}

// Put writes r to <images|documents>/<userID>/<uuid><ext>. The kind and
// extension come from the sniffed content, falling back to filename.
func (l *Local) Put(ctx context.Context, userID, filename string, r io.Reader) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" || strings.ContainsAny(userID, `/\.`) {
		return nil, fmt.Errorf("blob: bad owner %q", userID)
	}

	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("blob: read: %w", err)
	}
	if len(head) == 0 {
		return nil, ErrEmpty
	}
	ctype := http.DetectContentType(head)

	rel := path.Join(kindOf(ctype), userID, uuid.New().String()+extension(ctype, filename))
	full := filepath.Join(l.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("blob: mkdir: %w", err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blob: create: %w", err)
	}
	var src io.Reader = br
	if l.max > 0 {
		src = io.LimitReader(br, l.max+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && l.max > 0 && n > l.max {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("blob: write: %w", err)
	}

	return &Object{Path: rel, URL: l.URL(rel), ContentType: ctype, Size: n}, nil
}

// Open returns the stored object at rel, which must be a path returned by Put.
func (l *Local) Open(rel string) (*os.File, error) {
	clean := path.Clean("/" + rel)[1:]
	if clean == "" || clean != rel {
		return nil, os.ErrNotExist
	}
	return os.Open(filepath.Join(l.root, filepath.FromSlash(clean)))
}

func (l *Local) URL(rel string) string {
	return l.baseURL + "/files/" + rel
}

// Handler serves stored objects; mount it with the /files/ prefix stripped.
func (l *Local) Handler() http.Handler {
	fs := http.FileServer(noDirs{http.Dir(l.root)})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
		fs.ServeHTTP(w, r)
	})
}

// noDirs hides directory listings.
type noDirs struct{ fs http.FileSystem }

func (n noDirs) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil || st.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}

func kindOf(ctype string) string {
	if strings.HasPrefix(ctype, "image/") {
		return "images"
	}
	return "documents"
}

func extension(ctype, filename string) string {
	switch {
	case strings.HasPrefix(ctype, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(ctype, "image/png"):
		return ".png"
	case strings.HasPrefix(ctype, "image/webp"):
		return ".webp"
	case strings.HasPrefix(ctype, "image/gif"):
		return ".gif"
	case strings.HasPrefix(ctype, "application/pdf"):
		return ".pdf"
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" && len(ext) <= 6 && !strings.ContainsAny(ext[1:], `./\`) {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(ctype); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
