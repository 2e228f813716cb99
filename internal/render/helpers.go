package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
)

// avatarBase serves gravatar-compatible images keyed by the comment author's
// mail hash.
const avatarBase = "https://g.imsun.org/avatar/"

var markdown = goldmark.New(
	goldmark.WithRendererOptions(
		gmhtml.WithUnsafe(),
	),
)

// RenderBody converts a post body to HTML. The upstream stores a mix of raw
// HTML and markdown, so bodies that already open with a tag pass through
// unchanged and everything else goes through goldmark.
func RenderBody(content string) template.HTML {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}
	if looksLikeHTML(trimmed) {
		return template.HTML(trimmed)
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(trimmed), &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(trimmed) + "</pre>")
	}
	return template.HTML(buf.String())
}

func looksLikeHTML(s string) bool {
	if !strings.HasPrefix(s, "<") {
		return false
	}
	end := strings.IndexByte(s, '>')
	if end < 2 {
		return false
	}
	tag := strings.ToLower(strings.TrimLeft(s[1:end], "/!"))
	for _, known := range []string{"p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "blockquote", "pre", "table", "figure", "img", "a", "section", "article", "br"} {
		if tag == known || strings.HasPrefix(tag, known+" ") {
			return true
		}
	}
	return false
}

// Excerpt strips markup from a body and truncates it to limit runes for list
// views. Digest fields from the server are preferred; this is the fallback.
func Excerpt(content string, limit int) string {
	text := stripTags(content)
	text = strings.Join(strings.Fields(text), " ")
	if limit <= 0 {
		limit = 200
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

func stripTags(s string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	var out strings.Builder
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return out.String()
		case html.TextToken:
			out.Write(tokenizer.Text())
			out.WriteByte(' ')
		}
	}
}

// AvatarURL returns the avatar image URL for a comment's mail hash, or the
// empty string when no hash was provided.
func AvatarURL(mailHash string) string {
	hash := strings.TrimSpace(mailHash)
	if hash == "" {
		return ""
	}
	return avatarBase + hash
}

// ParseTimezone turns the settings timezone value into a *time.Location.
// The server reports the UTC offset in seconds ("28800" = UTC+8); IANA names
// are accepted too. Anything unparseable falls back to UTC+8.
func ParseTimezone(tz string) *time.Location {
	trimmed := strings.TrimSpace(tz)
	if trimmed == "" {
		return time.FixedZone("UTC+8", 8*3600)
	}
	if seconds, err := strconv.Atoi(trimmed); err == nil {
		hours := seconds / 3600
		name := fmt.Sprintf("UTC%+d", hours)
		return time.FixedZone(name, seconds)
	}
	if loc, err := time.LoadLocation(trimmed); err == nil {
		return loc
	}
	return time.FixedZone("UTC+8", 8*3600)
}

// FormatDate renders an epoch-seconds timestamp as a date in the given zone.
func FormatDate(epoch int64, loc *time.Location) string {
	if epoch == 0 {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(epoch, 0).In(loc).Format("2006-01-02")
}

// FormatDateTime renders an epoch-seconds timestamp with the time of day.
func FormatDateTime(epoch int64, loc *time.Location) string {
	if epoch == 0 {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(epoch, 0).In(loc).Format("2006-01-02 15:04")
}
