package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the production content origin.
	DefaultBaseURL = "https://www.imsun.org"

	defaultTimeout = 15 * time.Second
	csrfHeader     = "X-Csrf-Token"
	maxBodyBytes   = 4 << 20
)

// Client is the typed gateway to the remote content API. It normalizes the
// heterogeneous response envelopes into canonical shapes and converts every
// transport failure into a tagged *APIError; nothing is raised past this
// boundary.
type Client struct {
	base   *url.URL
	client *http.Client
	log    *zap.Logger
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// New creates a gateway client for the given origin.
func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base url %q: %w", raw, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid upstream base url %q: expected http(s)", raw)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{base: base, client: hc, log: log}, nil
}

// BaseURL returns the configured upstream origin.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// ListPosts fetches a page of posts, optionally filtered by category slug,
// tag slug or search term. On any failure it resolves to the empty first
// page alongside the error.
func (c *Client) ListPosts(ctx context.Context, q ListQuery) (ListResult, error) {
	return c.list(ctx, "list posts", "/api/posts", q.values())
}

// ListPages fetches the page listing.
func (c *Client) ListPages(ctx context.Context) (ListResult, error) {
	return c.list(ctx, "list pages", "/api/pages", nil)
}

func (c *Client) list(ctx context.Context, op, path string, query url.Values) (ListResult, error) {
	env, _, err := c.getEnvelope(ctx, op, path, query)
	if err != nil {
		return zeroListResult(), err
	}

	var data listData
	if jsonErr := json.Unmarshal(env.Data, &data); jsonErr != nil {
		return zeroListResult(), envelopeErr(op, http.StatusOK, "malformed list body")
	}

	out := zeroListResult()
	if len(data.DataSet) > 0 {
		var items []Post
		if jsonErr := json.Unmarshal(data.DataSet, &items); jsonErr != nil {
			return zeroListResult(), envelopeErr(op, http.StatusOK, "malformed dataSet")
		}
		if items != nil {
			out.Items = items
		}
	}
	if data.Page > 0 {
		out.Page = data.Page
	}
	if data.PageSize > 0 {
		out.PageSize = data.PageSize
	}
	if data.Pages > 0 {
		out.TotalPages = data.Pages
	}
	if data.Count > 0 {
		out.TotalCount = data.Count
	}
	return out, nil
}

// GetPost fetches a single post. A fully numeric identifier is queried by
// cid, anything else by slug. Returns (nil, err) when the post is absent or
// the envelope is unusable; the submission token, when issued, is attached
// to the returned post.
func (c *Client) GetPost(ctx context.Context, identifier string) (*Post, error) {
	const op = "get post"

	query := url.Values{}
	if IsNumericID(identifier) {
		query.Set("cid", strings.TrimSpace(identifier))
	} else {
		query.Set("slug", identifier)
	}

	env, header, err := c.getEnvelope(ctx, op, "/api/post", query)
	if err != nil {
		return nil, err
	}

	var post Post
	if jsonErr := json.Unmarshal(env.Data, &post); jsonErr != nil {
		return nil, envelopeErr(op, http.StatusOK, "malformed post body")
	}
	post.Token = tokenFrom(env, header)
	return &post, nil
}

// GetPage fetches a single page by slug.
func (c *Client) GetPage(ctx context.Context, slug string) (*Post, error) {
	const op = "get page"

	env, header, err := c.getEnvelope(ctx, op, "/api/page", url.Values{"slug": {slug}})
	if err != nil {
		return nil, err
	}

	var page Post
	if jsonErr := json.Unmarshal(env.Data, &page); jsonErr != nil {
		return nil, envelopeErr(op, http.StatusOK, "malformed page body")
	}
	page.Token = tokenFrom(env, header)
	return &page, nil
}

// ListCategories fetches all categories.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	const op = "list categories"

	env, _, err := c.getEnvelope(ctx, op, "/api/categories", nil)
	if err != nil {
		return []Category{}, err
	}
	var categories []Category
	if jsonErr := json.Unmarshal(env.Data, &categories); jsonErr != nil {
		return []Category{}, envelopeErr(op, http.StatusOK, "malformed categories body")
	}
	if categories == nil {
		categories = []Category{}
	}
	return categories, nil
}

// ListTags fetches all tags.
func (c *Client) ListTags(ctx context.Context) ([]Tag, error) {
	const op = "list tags"

	env, _, err := c.getEnvelope(ctx, op, "/api/tags", nil)
	if err != nil {
		return []Tag{}, err
	}
	var tags []Tag
	if jsonErr := json.Unmarshal(env.Data, &tags); jsonErr != nil {
		return []Tag{}, envelopeErr(op, http.StatusOK, "malformed tags body")
	}
	if tags == nil {
		tags = []Tag{}
	}
	return tags, nil
}

// GetArchives fetches posts grouped by year and month. The server may return
// either the pre-grouped map or a flat list; flat lists are grouped here.
func (c *Client) GetArchives(ctx context.Context) (Archives, error) {
	const op = "get archives"

	empty := Archives{Groups: map[string]map[string][]ArchivePost{}}
	env, _, err := c.getEnvelope(ctx, op, "/api/archives", nil)
	if err != nil {
		return empty, err
	}

	var grouped struct {
		DataSet map[string]map[string][]ArchivePost `json:"dataSet"`
		Count   int                                 `json:"count"`
	}
	if jsonErr := json.Unmarshal(env.Data, &grouped); jsonErr == nil && grouped.DataSet != nil {
		return Archives{TotalPosts: grouped.Count, Groups: grouped.DataSet}, nil
	}

	var flat []ArchivePost
	if jsonErr := json.Unmarshal(env.Data, &flat); jsonErr == nil {
		return groupArchives(flat), nil
	}

	return empty, envelopeErr(op, http.StatusOK, "malformed archives body")
}

// ListComments fetches the comments of one content item, pre-nested one
// level deep by the server. No additional grouping is performed here.
func (c *Client) ListComments(ctx context.Context, cid int) ([]Comment, error) {
	return c.commentList(ctx, "list comments", "/api/comments", url.Values{"cid": {strconv.Itoa(cid)}})
}

// RecentComments fetches the most recent size comments site-wide.
func (c *Client) RecentComments(ctx context.Context, size int) ([]Comment, error) {
	if size <= 0 {
		size = 9
	}
	return c.commentList(ctx, "recent comments", "/api/recentComments", url.Values{"size": {strconv.Itoa(size)}})
}

func (c *Client) commentList(ctx context.Context, op, path string, query url.Values) ([]Comment, error) {
	env, _, err := c.getEnvelope(ctx, op, path, query)
	if err != nil {
		return []Comment{}, err
	}

	var data struct {
		DataSet []Comment `json:"dataSet"`
	}
	if jsonErr := json.Unmarshal(env.Data, &data); jsonErr != nil {
		return []Comment{}, envelopeErr(op, http.StatusOK, "malformed comments body")
	}
	if data.DataSet == nil {
		return []Comment{}, nil
	}
	return data.DataSet, nil
}

// GetToken fetches the submission token for one content item. Absence is
// reported as ErrTokenMissing, never papered over with a generated value.
func (c *Client) GetToken(ctx context.Context, cid int) (string, error) {
	const op = "get token"

	env, header, err := c.getEnvelope(ctx, op, "/api/csrf", url.Values{"cid": {strconv.Itoa(cid)}})
	if err != nil {
		return "", err
	}
	if token := tokenFrom(env, header); token != "" {
		return token, nil
	}
	return "", ErrTokenMissing
}

// GetSettings fetches site metadata. The fixed default object is a
// deliberate fallback for any failure, not an error swallow: the error is
// still returned so callers can log it, but the settings are always usable.
func (c *Client) GetSettings(ctx context.Context) (Settings, error) {
	const op = "get settings"

	env, _, err := c.getEnvelope(ctx, op, "/api/settings", nil)
	if err != nil {
		return DefaultSettings(), err
	}

	var settings Settings
	if jsonErr := json.Unmarshal(env.Data, &settings); jsonErr != nil {
		return DefaultSettings(), envelopeErr(op, http.StatusOK, "malformed settings body")
	}
	if settings.Title == "" {
		return DefaultSettings(), nil
	}
	return settings, nil
}

// SubmitCommentJSON posts a comment as a JSON body. A non-success envelope
// or non-2xx status is an application rejection (KindEnvelope); only
// transport failures should trigger the form fallback.
func (c *Client) SubmitCommentJSON(ctx context.Context, payload CommentPayload) (*SubmitReceipt, error) {
	const op = "submit comment"

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, envelopeErr(op, 0, "unencodable payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/comment", nil), bytes.NewReader(body))
	if err != nil {
		return nil, transportErr(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportErr(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportErr(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, envelopeErr(op, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var env envelope
	if jsonErr := json.Unmarshal(raw, &env); jsonErr != nil {
		// Sent and accepted, body unreadable. The caller records this as
		// unconfirmed rather than rejected.
		return nil, nil
	}
	if env.Status == "error" {
		return nil, envelopeErr(op, resp.StatusCode, env.Message)
	}
	return &SubmitReceipt{Message: env.Message, Data: env.Data}, nil
}

// SubmitCommentForm posts a comment as a form-encoded body carrying the JSON
// payload in a single "json" field — the hidden-form fallback path. It is
// fire-and-forget: a nil error only means the request reached the server.
func (c *Client) SubmitCommentForm(ctx context.Context, payload CommentPayload) error {
	const op = "submit comment form"

	raw, err := json.Marshal(payload)
	if err != nil {
		return envelopeErr(op, 0, "unencodable payload")
	}
	form := url.Values{"json": {string(raw)}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/comment", nil), strings.NewReader(form.Encode()))
	if err != nil {
		return transportErr(op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return transportErr(op, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	return resp.Body.Close()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// getEnvelope performs a GET and peels the {status, data} envelope. All
// failure modes come back as *APIError values.
func (c *Client) getEnvelope(ctx context.Context, op, path string, query url.Values) (*envelope, http.Header, *APIError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return nil, nil, transportErr(op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Debug("upstream request failed", zap.String("op", op), zap.Error(err))
		return nil, nil, transportErr(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, transportErr(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, envelopeErr(op, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var env envelope
	if jsonErr := json.Unmarshal(raw, &env); jsonErr != nil {
		return nil, nil, envelopeErr(op, resp.StatusCode, "malformed response body")
	}
	if env.Status != "success" {
		return nil, nil, envelopeErr(op, resp.StatusCode, env.Message)
	}
	return &env, resp.Header, nil
}

func tokenFrom(env *envelope, header http.Header) string {
	if env != nil && strings.TrimSpace(env.CSRFToken) != "" {
		return strings.TrimSpace(env.CSRFToken)
	}
	if header != nil {
		return strings.TrimSpace(header.Get(csrfHeader))
	}
	return ""
}
