// Package textutil cleans user and feed supplied text before it is stored.
package textutil

import (
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer holds the two policies in use. Policies are safe for concurrent use.
type Sanitizer struct {
	plain *bluemonday.Policy
	rich  *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "h2", "h3",
	)
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowRelativeURLs(false)
	rich.AddTargetBlankToFullyQualifiedLinks(true)
	rich.RequireNoReferrerOnLinks(true)
	rich.AllowAttrs("src", "alt").OnElements("img")
	rich.AllowURLSchemeWithCustomPolicy("https", func(*url.URL) bool { return true })

	return &Sanitizer{plain: bluemonday.StrictPolicy(), rich: rich}
}

// PlainText strips all markup and collapses whitespace. Entities the policy
// escaped are decoded again, since the result is rendered as text.
func (s *Sanitizer) PlainText(in string) string {
	out := html.UnescapeString(s.plain.Sanitize(in))
	return strings.Join(strings.Fields(out), " ")
}

// HTML keeps a small allow-list of formatting tags, https images and links.
func (s *Sanitizer) HTML(in string) string {
	return strings.TrimSpace(s.rich.Sanitize(in))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
