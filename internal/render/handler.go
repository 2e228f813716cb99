// Package render is the server-side view layer: it turns the upstream
// content into HTML pages and drives the comment form flow.
package render

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imsunorg/blog-front/internal/comments"
	"github.com/imsunorg/blog-front/internal/pkg/pagination"
	"github.com/imsunorg/blog-front/internal/upstream"
)

const (
	recentCommentsSize = 9
	themeCookie        = "theme"
	themeCookieTTL     = 365 * 24 * 3600

	settingsTTL = 5 * time.Minute
)

// Handler serves the HTML pages. Comment state lives inside each request; the
// only cross-request pieces are the duplicate-submit guard and the settings
// cache.
type Handler struct {
	api      *upstream.Client
	renderer *Renderer
	log      *zap.Logger
	guard    *comments.Guard

	mu         sync.Mutex
	settings   upstream.Settings
	settingsAt time.Time
}

// NewHandler creates the view handler.
func NewHandler(api *upstream.Client, renderer *Renderer, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		api:      api,
		renderer: renderer,
		log:      log,
		guard:    comments.NewGuard(),
	}
}

// RegisterRoutes mounts all page routes.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.home)
	r.GET("/posts/:slug", h.showPost)
	r.POST("/posts/:slug/comment", h.submitComment)
	r.GET("/pages/:slug", h.showPage)
	r.GET("/categories", h.listCategories)
	r.GET("/category/:slug", h.listByCategory)
	r.GET("/tags", h.listTags)
	r.GET("/tag/:slug", h.listByTag)
	r.GET("/archives", h.showArchives)
	r.GET("/search", h.search)
	r.GET("/about", h.showAbout)
	r.POST("/theme", h.toggleTheme)
	r.StaticFS("/static", StaticFS())
}

// NotFound renders the 404 page; wired as the router's NoRoute handler.
func (h *Handler) NotFound(c *gin.Context) {
	h.renderError(c, http.StatusNotFound, "页面不存在")
}

func (h *Handler) home(c *gin.Context) {
	h.renderListing(c, "", "/", nil)
}

func (h *Handler) showAbout(c *gin.Context) {
	c.Params = append(c.Params, gin.Param{Key: "slug", Value: "about"})
	h.showPage(c)
}

func (h *Handler) listByCategory(c *gin.Context) {
	slug := c.Param("slug")
	h.renderListing(c, "分类: "+slug, "/category/"+slug, &upstream.Filter{
		Type: upstream.FilterCategory,
		Slug: slug,
	})
}

func (h *Handler) listByTag(c *gin.Context) {
	slug := c.Param("slug")
	h.renderListing(c, "标签: "+slug, "/tag/"+slug, &upstream.Filter{
		Type: upstream.FilterTag,
		Slug: slug,
	})
}

func (h *Handler) search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.Redirect(http.StatusFound, "/")
		return
	}
	h.renderListing(c, "搜索: "+q, "/search", &upstream.Filter{
		Type: upstream.FilterSearch,
		Slug: q,
	})
}

func (h *Handler) renderListing(c *gin.Context, heading, pageBase string, filter *upstream.Filter) {
	q := pagination.FromContext(c)
	result, err := h.api.ListPosts(c.Request.Context(), upstream.ListQuery{
		Page:       q.Page,
		PageSize:   q.Size,
		ShowDigest: true,
		Filter:     filter,
	})
	if err != nil {
		// The empty first page still renders; the failure is logged only.
		h.log.Warn("list posts failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}

	data := listPage{
		basePage:   h.basePage(c),
		Heading:    heading,
		Posts:      result.Items,
		Page:       result.Page,
		TotalPages: result.TotalPages,
		Window:     pagination.Window(result.Page, result.TotalPages),
		PageBase:   pageBase,
	}
	data.PageTitle = heading

	// The recent-comments rail only appears on the unfiltered front page.
	if filter == nil && pageBase == "/" {
		recent, recentErr := h.api.RecentComments(c.Request.Context(), recentCommentsSize)
		if recentErr != nil {
			h.log.Warn("recent comments failed", zap.Error(recentErr))
		}
		data.Recent = recent
	}

	h.render(c, http.StatusOK, "home", data)
}

func (h *Handler) showPost(c *gin.Context) {
	slug := c.Param("slug")
	post, err := h.api.GetPost(c.Request.Context(), slug)
	if err != nil {
		h.renderUpstreamError(c, err, "文章不存在")
		return
	}

	session := h.newCommentSession(post)
	session.Load(c.Request.Context())
	thread := session.Comments()

	data := postPage{
		basePage:   h.basePage(c),
		Post:       *post,
		Comments:   thread,
		TokenReady: session.TokenReady(),
	}
	data.PageTitle = post.Title
	if replyID := strings.TrimSpace(c.Query("reply")); replyID != "" {
		if id, convErr := strconv.ParseInt(replyID, 10, 64); convErr == nil {
			data.ReplyingTo = replyTarget(thread, id)
		}
	}
	data.Flash, data.FlashKind = flashFor(c.Query("posted"))

	h.render(c, http.StatusOK, "post", data)
}

func (h *Handler) submitComment(c *gin.Context) {
	slug := c.Param("slug")
	post, err := h.api.GetPost(c.Request.Context(), slug)
	if err != nil {
		h.renderUpstreamError(c, err, "文章不存在")
		return
	}

	session := h.newCommentSession(post)
	session.Load(c.Request.Context())

	parent, _ := strconv.ParseInt(c.PostForm("parent"), 10, 64)
	draft := comments.Draft{
		Author: c.PostForm("author"),
		Email:  c.PostForm("mail"),
		URL:    c.PostForm("url"),
		Text:   c.PostForm("text"),
		Parent: parent,
	}

	result := session.Submit(c.Request.Context(), draft)
	switch result.Outcome {
	case comments.OutcomeConfirmed:
		c.Redirect(http.StatusFound, "/posts/"+slug+"?posted=confirmed#comments")
	case comments.OutcomeUnconfirmedSent:
		c.Redirect(http.StatusFound, "/posts/"+slug+"?posted=sent#comments")
	default:
		h.renderRejectedSubmit(c, post, session, draft, result.Message)
	}
}

// renderRejectedSubmit re-renders the post page with the submitter's own
// draft filled back in. The draft only travels inside this response; it is
// never stored, so no other visitor can see it.
func (h *Handler) renderRejectedSubmit(c *gin.Context, post *upstream.Post, session *comments.Session, draft comments.Draft, message string) {
	thread := session.Comments()
	data := postPage{
		basePage:   h.basePage(c),
		Post:       *post,
		Comments:   thread,
		TokenReady: session.TokenReady(),
		Draft: draftView{
			Author: draft.Author,
			Email:  draft.Email,
			URL:    draft.URL,
			Text:   draft.Text,
		},
	}
	data.PageTitle = post.Title
	if draft.Parent != 0 {
		data.ReplyingTo = replyTarget(thread, draft.Parent)
	}
	if message == "" {
		message = "评论提交失败"
	}
	data.Flash, data.FlashKind = message, "error"
	h.render(c, http.StatusOK, "post", data)
}

// newCommentSession builds the per-request comment session for a post,
// seeding the token the post payload carried.
func (h *Handler) newCommentSession(post *upstream.Post) *comments.Session {
	session := comments.NewSession(h.api, h.guard, post.CID, h.log)
	session.SeedToken(post.Token)
	return session
}

func (h *Handler) showPage(c *gin.Context) {
	slug := c.Param("slug")
	page, err := h.api.GetPage(c.Request.Context(), slug)
	if err != nil {
		h.renderUpstreamError(c, err, "页面不存在")
		return
	}

	data := pagePage{basePage: h.basePage(c), Post: *page}
	data.PageTitle = page.Title
	h.render(c, http.StatusOK, "page", data)
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.api.ListCategories(c.Request.Context())
	if err != nil {
		h.log.Warn("list categories failed", zap.Error(err))
	}
	data := categoriesPage{basePage: h.basePage(c), Categories: categories}
	data.PageTitle = "分类"
	h.render(c, http.StatusOK, "categories", data)
}

func (h *Handler) listTags(c *gin.Context) {
	tags, err := h.api.ListTags(c.Request.Context())
	if err != nil {
		h.log.Warn("list tags failed", zap.Error(err))
	}
	data := tagsPage{basePage: h.basePage(c), Tags: tags}
	data.PageTitle = "标签"
	h.render(c, http.StatusOK, "tags", data)
}

func (h *Handler) showArchives(c *gin.Context) {
	archives, err := h.api.GetArchives(c.Request.Context())
	if err != nil {
		h.log.Warn("get archives failed", zap.Error(err))
	}
	data := archivesPage{basePage: h.basePage(c), Archives: archives}
	data.PageTitle = "归档"
	h.render(c, http.StatusOK, "archives", data)
}

func (h *Handler) toggleTheme(c *gin.Context) {
	next := "dark"
	if current, err := c.Cookie(themeCookie); err == nil && current == "dark" {
		next = "light"
	}
	c.SetCookie(themeCookie, next, themeCookieTTL, "/", "", false, false)

	back := c.PostForm("back")
	if !strings.HasPrefix(back, "/") || strings.HasPrefix(back, "//") {
		back = "/"
	}
	c.Redirect(http.StatusFound, back)
}

// siteSettings returns the cached site metadata, refetching after the TTL.
// Failures fall back to the previous (or default) settings.
func (h *Handler) siteSettings(c *gin.Context) upstream.Settings {
	h.mu.Lock()
	fresh := time.Since(h.settingsAt) < settingsTTL && h.settings.Title != ""
	cached := h.settings
	h.mu.Unlock()
	if fresh {
		return cached
	}

	settings, err := h.api.GetSettings(c.Request.Context())
	if err != nil {
		h.log.Warn("get settings failed", zap.Error(err))
	}
	h.renderer.SetTimezone(settings.Timezone)

	h.mu.Lock()
	h.settings = settings
	h.settingsAt = time.Now()
	h.mu.Unlock()
	return settings
}

func (h *Handler) basePage(c *gin.Context) basePage {
	// Cookie wins; without one the default follows the site clock, dark
	// through the evening and night hours.
	var theme string
	switch v, err := c.Cookie(themeCookie); {
	case err == nil && (v == "dark" || v == "light"):
		theme = v
	default:
		theme = defaultTheme(time.Now().In(h.renderer.location()))
	}
	return basePage{
		Site:  h.siteSettings(c),
		Theme: theme,
		Path:  c.Request.URL.RequestURI(),
		Query: strings.TrimSpace(c.Query("q")),
	}
}

func (h *Handler) render(c *gin.Context, status int, name string, data any) {
	if err := h.renderer.HTML(c, status, name, data); err != nil {
		h.log.Error("render failed", zap.String("template", name), zap.Error(err))
	}
}

func (h *Handler) renderUpstreamError(c *gin.Context, err error, notFoundMessage string) {
	if upstream.IsTransport(err) {
		h.log.Warn("upstream unreachable", zap.String("path", c.Request.URL.Path), zap.Error(err))
		h.renderError(c, http.StatusBadGateway, "上游服务暂时不可用")
		return
	}
	h.renderError(c, http.StatusNotFound, notFoundMessage)
}

func (h *Handler) renderError(c *gin.Context, status int, message string) {
	data := errorPage{basePage: h.basePage(c), Status: status, Message: message}
	data.PageTitle = strconv.Itoa(status)
	h.render(c, status, "error", data)
}

func flashFor(posted string) (string, string) {
	switch posted {
	case "confirmed":
		return "评论已提交", "ok"
	case "sent":
		return "评论已发送，等待服务器确认", "warn"
	case "rejected":
		return "评论提交失败", "error"
	}
	return "", ""
}

func defaultTheme(now time.Time) string {
	if hour := now.Hour(); hour >= 19 || hour < 7 {
		return "dark"
	}
	return "light"
}

func replyTarget(thread []upstream.Comment, id int64) *replyView {
	if author := findAuthor(thread, id); author != "" {
		return &replyView{ID: id, Author: author}
	}
	return nil
}

func findAuthor(thread []upstream.Comment, id int64) string {
	for _, comment := range thread {
		if comment.ID == id {
			return comment.Author
		}
		for _, child := range comment.Children {
			if child.ID == id {
				return child.Author
			}
		}
	}
	return ""
}
