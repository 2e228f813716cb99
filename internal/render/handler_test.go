package render

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/imsunorg/blog-front/internal/upstream"
)

// fakeOriginState lets a test change what the comments endpoint returns
// between requests.
type fakeOriginState struct {
	mu           sync.Mutex
	commentsJSON string
}

func (s *fakeOriginState) setComments(payload string) {
	s.mu.Lock()
	s.commentsJSON = payload
	s.mu.Unlock()
}

func (s *fakeOriginState) comments() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commentsJSON
}

// fakeOrigin is a minimal content API covering the endpoints the pages hit.
func fakeOrigin(t *testing.T) (*httptest.Server, *fakeOriginState) {
	t.Helper()
	state := &fakeOriginState{
		commentsJSON: `{"status":"success","data":{"dataSet":[
			{"coid":10,"parent":0,"author":"alice","mailHash":"h1","text":"<p>nice</p>","created":1700000100,
			 "children":[{"coid":11,"parent":10,"parent_author":"alice","author":"bob","text":"<p>agreed</p>","created":1700000200}]}
		]}}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"title":"My Blog","description":"d","keywords":"k","timezone":"28800"}}`))
	})
	mux.HandleFunc("/api/posts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{
			"dataSet":[{"cid":1,"title":"First Post","slug":"first-post","created":1700000000,"digest":"a digest"}],
			"page":1,"pageSize":10,"pages":1,"count":1}}`))
	})
	mux.HandleFunc("/api/post", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("slug") != "first-post" && r.URL.Query().Get("cid") != "1" {
			w.Write([]byte(`{"status":"error","message":"not found"}`))
			return
		}
		w.Write([]byte(`{"status":"success","csrfToken":"tok-1","data":{
			"cid":1,"title":"First Post","slug":"first-post","created":1700000000,"text":"# Heading\n\nbody"}}`))
	})
	mux.HandleFunc("/api/comments", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(state.comments()))
	})
	mux.HandleFunc("/api/recentComments", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"dataSet":[
			{"coid":10,"author":"alice","text":"<p>nice</p>","created":1700000100,"cid":1,"title":"First Post"}
		]}}`))
	})
	mux.HandleFunc("/api/csrf", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","csrfToken":"tok-1","data":{}}`))
	})
	mux.HandleFunc("/api/comment", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","message":"saved"}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, state
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeOriginState) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	origin, state := fakeOrigin(t)
	client, err := upstream.New(upstream.Options{BaseURL: origin.URL})
	if err != nil {
		t.Fatal(err)
	}
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatal(err)
	}
	handler := NewHandler(client, renderer, nil)

	router := gin.New()
	handler.RegisterRoutes(router)
	router.NoRoute(handler.NotFound)
	return router, state
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func postForm(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHomeRendersListing(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := get(router, "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"My Blog", "First Post", "/posts/first-post", "a digest", "最近评论", "alice"} {
		if !strings.Contains(body, want) {
			t.Errorf("home missing %q", want)
		}
	}
}

func TestPostPageRendersCommentsAndForm(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := get(router, "/posts/first-post")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"First Post",
		"<h1>Heading</h1>", // markdown body rendered
		"alice",
		"agreed", // nested reply
		`action="/posts/first-post/comment"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("post page missing %q", want)
		}
	}
}

func TestPostPageFetchesFreshThread(t *testing.T) {
	router, origin := newTestRouter(t)

	first := get(router, "/posts/first-post")
	if !strings.Contains(first.Body.String(), "alice") {
		t.Fatal("initial thread missing")
	}
	if strings.Contains(first.Body.String(), "newcomer") {
		t.Fatal("comment visible before it exists")
	}

	origin.setComments(`{"status":"success","data":{"dataSet":[
		{"coid":12,"parent":0,"author":"newcomer","text":"<p>fresh</p>","created":1700000300}
	]}}`)

	second := get(router, "/posts/first-post")
	if !strings.Contains(second.Body.String(), "newcomer") {
		t.Error("comment posted by another client missing, thread not fetched per request")
	}
}

func TestReplyTargetFromQuery(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := get(router, "/posts/first-post?reply=10")
	body := rec.Body.String()
	if !strings.Contains(body, "回复 @alice") {
		t.Error("reply banner missing")
	}
	if !strings.Contains(body, `name="parent" value="10"`) {
		t.Error("hidden parent field missing")
	}

	// Without the query the form is back to top-level.
	rec = get(router, "/posts/first-post")
	if strings.Contains(rec.Body.String(), "回复 @") {
		t.Error("reply banner shown without a reply parameter")
	}
}

func TestUnknownPostRenders404(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := get(router, "/posts/missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSubmitCommentRedirectsConfirmed(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postForm(router, "/posts/first-post/comment", url.Values{
		"author": {"carol"},
		"mail":   {"carol@example.com"},
		"text":   {"great post"},
	})

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "posted=confirmed") {
		t.Errorf("Location = %q, want posted=confirmed", loc)
	}
}

func TestBackToBackSubmitsBothConfirmed(t *testing.T) {
	router, _ := newTestRouter(t)

	for i, form := range []url.Values{
		{"author": {"carol"}, "mail": {"carol@example.com"}, "text": {"first"}},
		{"author": {"dave"}, "mail": {"dave@example.com"}, "text": {"second"}},
	} {
		rec := postForm(router, "/posts/first-post/comment", form)
		if rec.Code != http.StatusFound {
			t.Fatalf("submit %d: status = %d, want 302", i, rec.Code)
		}
		if loc := rec.Header().Get("Location"); !strings.Contains(loc, "posted=confirmed") {
			t.Errorf("submit %d: Location = %q, want posted=confirmed", i, loc)
		}
	}
}

func TestSubmitCommentValidationRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postForm(router, "/posts/first-post/comment", url.Values{
		"author": {"carol"},
		"mail":   {"carol@example.com"},
	}) // text missing

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want the page re-rendered", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "flash-error") {
		t.Error("rejected submit should show an error flash")
	}
	for _, want := range []string{`value="carol"`, `value="carol@example.com"`} {
		if !strings.Contains(body, want) {
			t.Errorf("rejected submit lost the submitter's own draft: missing %q", want)
		}
	}
}

func TestRejectedDraftNotVisibleToOthers(t *testing.T) {
	router, _ := newTestRouter(t)

	postForm(router, "/posts/first-post/comment", url.Values{
		"author": {"alice"},
		"mail":   {"alice-secret@example.com"},
	}) // text missing, rejected

	rec := get(router, "/posts/first-post")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "alice-secret@example.com") {
		t.Error("another visitor's page contains the rejected draft's email")
	}
}

func TestThemeToggleSetsCookie(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postForm(router, "/theme", url.Values{"back": {"/posts/first-post"}})
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/posts/first-post" {
		t.Errorf("Location = %q", loc)
	}
	cookie := rec.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, "theme=dark") {
		t.Errorf("Set-Cookie = %q, want theme=dark", cookie)
	}

	// An off-site back target is not followed.
	rec = postForm(router, "/theme", url.Values{"back": {"https://evil.example.com"}})
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
}
