package textutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dermalink-api/internal/textutil"
)

func TestPlainText(t *testing.T) {
	s := textutil.NewSanitizer()

	tests := []struct {
		name, in, want string
	}{
		{"script removed", `great doctor<script>alert(1)</script>`, "great doctor"},
		{"tags stripped", `<b>very</b> <i>kind</i>`, "very kind"},
		{"whitespace collapsed", "  a \n\n b\t", "a b"},
		{"entities decoded", `Tom &amp; Jerry`, "Tom & Jerry"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.PlainText(tt.in))
		})
	}
}

func TestHTML(t *testing.T) {
	s := textutil.NewSanitizer()

	out := s.HTML(`<p onclick="x()">Hi</p><iframe src="https://evil"></iframe><img src="http://a/b.png"><img src="https://a/c.png">`)
	assert.Contains(t, out, "<p>Hi</p>")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "iframe")
	assert.NotContains(t, out, "http://a/b.png")
	assert.Contains(t, out, `src="https://a/c.png"`)

	link := s.HTML(`<a href="https://example.com">x</a>`)
	assert.Contains(t, link, "noreferrer")
	assert.Contains(t, link, `target="_blank"`)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héll", textutil.Truncate("héllo", 4))
	assert.Equal(t, "ok", textutil.Truncate("ok", 4))
}

func TestWebURL(t *testing.T) {
	for raw, want := range map[string]bool{
		"https://news.example/a.jpg": true,
		" HTTP://news.example/a ":    true,
		"javascript:alert(1)":        false,
		"data:image/png;base64,AAAA": false,
		"//news.example/a.jpg":       false,
		"/relative.jpg":              false,
		"https://":                   false,
		"":                           false,
	} {
		assert.Equal(t, want, textutil.WebURL(raw), raw)
	}
}
