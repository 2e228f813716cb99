package render

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/imsunorg/blog-front/internal/upstream"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// pageNames lists the content templates; each is parsed together with the
// shared layout into its own template set.
var pageNames = []string{
	"home", "post", "page", "categories", "tags", "archives", "error",
}

// Renderer holds the parsed template sets and the site-wide view state.
type Renderer struct {
	pages map[string]*template.Template

	mu  sync.Mutex
	loc *time.Location
}

// NewRenderer parses the embedded templates. The timezone is applied to all
// date formatting and updated whenever fresh settings arrive.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		pages: make(map[string]*template.Template, len(pageNames)),
		loc:   ParseTimezone(""),
	}

	funcs := template.FuncMap{
		"body":    RenderBody,
		"excerpt": Excerpt,
		"avatar":  AvatarURL,
		"date":    func(epoch int64) string { return FormatDate(epoch, r.location()) },
		"datetime": func(epoch int64) string {
			return FormatDateTime(epoch, r.location())
		},
		"inc": func(n int) int { return n + 1 },
		"dec": func(n int) int { return n - 1 },
	}

	for _, name := range pageNames {
		tmpl, err := template.New("layout").Funcs(funcs).ParseFS(
			templateFS,
			"templates/layout.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parse template %q: %w", name, err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

// SetTimezone updates the zone used for date formatting.
func (r *Renderer) SetTimezone(tz string) {
	loc := ParseTimezone(tz)
	r.mu.Lock()
	r.loc = loc
	r.mu.Unlock()
}

func (r *Renderer) location() *time.Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loc
}

// HTML renders one page template into the response.
func (r *Renderer) HTML(c *gin.Context, status int, name string, data any) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}
	c.Writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	return tmpl.ExecuteTemplate(c.Writer, "layout", data)
}

// StaticFS exposes the embedded assets rooted at static/.
func StaticFS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}

// basePage carries the fields every template expects.
type basePage struct {
	Site  upstream.Settings
	Theme string
	Path  string
	Query string

	PageTitle string
}

// listPage is the data for home and the filtered listings.
type listPage struct {
	basePage
	Heading    string
	Posts      []upstream.Post
	Page       int
	TotalPages int
	Window     []int
	PageBase   string
	Recent     []upstream.Comment
}

// postPage is the data for a single post with its comment section.
type postPage struct {
	basePage
	Post       upstream.Post
	Comments   []upstream.Comment
	TokenReady bool
	Draft      draftView
	ReplyingTo *replyView
	Flash      string
	FlashKind  string
}

type draftView struct {
	Author string
	Email  string
	URL    string
	Text   string
}

type replyView struct {
	ID     int64
	Author string
}

type pagePage struct {
	basePage
	Post upstream.Post
}

type categoriesPage struct {
	basePage
	Categories []upstream.Category
}

type tagsPage struct {
	basePage
	Tags []upstream.Tag
}

type archivesPage struct {
	basePage
	Archives upstream.Archives
}

type errorPage struct {
	basePage
	Status  int
	Message string
}
