package upstream

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Category is a post category. The remote API sometimes returns a bare
// string here; Post.UnmarshalJSON promotes it to this shape.
type Category struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	Count       int    `json:"count,omitempty"`
}

// Tag is a post tag as returned by /api/tags.
type Tag struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Count int    `json:"count,omitempty"`
}

// Post is the canonical shape for a post or page. Content always holds the
// body after normalization, regardless of whether the remote envelope used
// "content" or the legacy "text" field.
type Post struct {
	CID         int        `json:"cid"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Created     int64      `json:"created"`
	Modified    int64      `json:"modified,omitempty"`
	Content     string     `json:"content,omitempty"`
	Digest      string     `json:"digest,omitempty"`
	Category    *Category  `json:"category,omitempty"`
	Categories  []Category `json:"categories,omitempty"`
	Directory   []string   `json:"directory,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	CommentsNum int        `json:"commentsNum,omitempty"`

	// Token is the comment submission token attached by the post endpoint,
	// via the envelope's csrfToken field or the X-Csrf-Token header.
	// Empty means the server did not issue one; it is never synthesized.
	Token string `json:"-"`
}

// Comment is one user comment. The server pre-nests replies one level deep:
// Parent == 0 means top-level, nonzero means the comment lives inside some
// top-level comment's Children. The client never re-groups.
type Comment struct {
	ID           int64     `json:"coid"`
	Parent       int64     `json:"parent"`
	ParentAuthor string    `json:"parent_author,omitempty"`
	Author       string    `json:"author"`
	URL          string    `json:"url,omitempty"`
	MailHash     string    `json:"mailHash,omitempty"`
	Text         string    `json:"text"` // pre-rendered HTML
	Created      int64     `json:"created"`
	CID          int       `json:"cid,omitempty"`
	Title        string    `json:"title,omitempty"` // set on recentComments entries
	Children     []Comment `json:"children,omitempty"`
}

// Settings is the site metadata from /api/settings.
type Settings struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Keywords    string `json:"keywords"`
	Timezone    string `json:"timezone"` // UTC offset in seconds, e.g. "28800"
}

// DefaultSettings is the fixed fallback used whenever /api/settings cannot
// be fetched or returns a non-success envelope.
func DefaultSettings() Settings {
	return Settings{
		Title:       "Blog",
		Description: "",
		Keywords:    "",
		Timezone:    "28800",
	}
}

// CommentPayload is the body of POST /api/comment.
type CommentPayload struct {
	Author string `json:"author"`
	Mail   string `json:"mail"`
	URL    string `json:"url"`
	Text   string `json:"text"`
	Parent int64  `json:"parent"`
	CID    int    `json:"cid"`
	Token  string `json:"token"`
}

// SubmitReceipt is the echoed payload of a confirmed comment submission.
type SubmitReceipt struct {
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// FilterType discriminates the mutually exclusive post list filters.
type FilterType string

const (
	FilterCategory FilterType = "category"
	FilterTag      FilterType = "tag"
	FilterSearch   FilterType = "search"
)

// Filter narrows a post listing by category slug, tag slug or search term.
type Filter struct {
	Type FilterType
	Slug string
}

// ListQuery carries pagination and filtering for post listings.
type ListQuery struct {
	Page        int
	PageSize    int
	ShowContent bool
	ShowDigest  bool
	Filter      *Filter
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if q.ShowContent {
		v.Set("showContent", "true")
	}
	if q.ShowDigest {
		v.Set("showDigest", "true")
	}
	if q.Filter != nil && strings.TrimSpace(q.Filter.Slug) != "" {
		v.Set("filterType", string(q.Filter.Type))
		v.Set("filterSlug", q.Filter.Slug)
	}
	return v
}

// ListResult is the canonical paginated list shape.
type ListResult struct {
	Items      []Post `json:"items"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	TotalPages int    `json:"totalPages"`
	TotalCount int    `json:"totalCount"`
}

// zeroListResult is what list operations resolve to on any failure: an empty
// first page. Callers that need to tell "no results" from "broken response"
// must inspect the returned error; the value alone does not distinguish them.
func zeroListResult() ListResult {
	return ListResult{
		Items:      []Post{},
		Page:       1,
		PageSize:   10,
		TotalPages: 1,
		TotalCount: 0,
	}
}

// ArchivePost is one entry in the archives listing.
type ArchivePost struct {
	CID     int    `json:"cid"`
	Title   string `json:"title"`
	Slug    string `json:"slug"`
	Created int64  `json:"created"`
	Year    string `json:"year,omitempty"`
	Month   string `json:"month,omitempty"`
}

// Archives holds posts grouped by year then month.
type Archives struct {
	TotalPosts int
	Groups     map[string]map[string][]ArchivePost
}

// envelope is the remote response convention:
// {status: "success"|"error", data: {...}, message?, csrfToken?}.
type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message,omitempty"`
	CSRFToken string          `json:"csrfToken,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// listData is the paginated list envelope nested under data.
type listData struct {
	DataSet  json.RawMessage `json:"dataSet"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
	Pages    int             `json:"pages"`
	Count    int             `json:"count"`
}
