package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Options{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client, server
}

func TestListPostsParsesEnvelope(t *testing.T) {
	var gotQuery url.Values
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/posts" {
			t.Errorf("path = %q, want /api/posts", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		w.Write([]byte(`{
			"status": "success",
			"data": {
				"dataSet": [{"cid": 7, "title": "hello", "slug": "hello"}],
				"page": 2, "pageSize": 5, "pages": 3, "count": 11
			}
		}`))
	}))

	result, err := client.ListPosts(context.Background(), ListQuery{Page: 2, PageSize: 5, ShowDigest: true})
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if gotQuery.Get("page") != "2" || gotQuery.Get("pageSize") != "5" || gotQuery.Get("showDigest") != "true" {
		t.Errorf("query = %v", gotQuery)
	}
	if len(result.Items) != 1 || result.Items[0].CID != 7 {
		t.Fatalf("items = %+v", result.Items)
	}
	if result.Page != 2 || result.PageSize != 5 || result.TotalPages != 3 || result.TotalCount != 11 {
		t.Errorf("pagination = %+v", result)
	}
}

func TestListPostsFilterQuery(t *testing.T) {
	var gotQuery url.Values
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"status":"success","data":{"dataSet":[],"page":1,"pageSize":10,"pages":1,"count":0}}`))
	}))

	_, err := client.ListPosts(context.Background(), ListQuery{
		Filter: &Filter{Type: FilterCategory, Slug: "tech"},
	})
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if gotQuery.Get("filterType") != "category" || gotQuery.Get("filterSlug") != "tech" {
		t.Errorf("filter query = %v", gotQuery)
	}
}

func TestListPostsEmptyPageOnFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	result, err := client.ListPosts(context.Background(), ListQuery{})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(result.Items) != 0 || result.Page != 1 || result.TotalPages != 1 || result.TotalCount != 0 {
		t.Errorf("result = %+v, want empty first page", result)
	}
	if result.Items == nil {
		t.Error("Items is nil, want empty slice")
	}
	if IsTransport(err) {
		t.Error("HTTP 500 should be an envelope error, not transport")
	}
}

func TestListPostsErrorEnvelope(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"nope"}`))
	}))

	_, err := client.ListPosts(context.Background(), ListQuery{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Kind != KindEnvelope || apiErr.Message != "nope" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestGetPostIdentifierRouting(t *testing.T) {
	cases := []struct {
		identifier string
		wantKey    string
	}{
		{"123", "cid"},
		{"hello-world", "slug"},
		{"2023-review", "slug"},
	}
	for _, tc := range cases {
		var gotQuery url.Values
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()
			w.Write([]byte(`{"status":"success","data":{"cid":1,"title":"t","slug":"s"}}`))
		}))

		if _, err := client.GetPost(context.Background(), tc.identifier); err != nil {
			t.Fatalf("GetPost(%q): %v", tc.identifier, err)
		}
		if gotQuery.Get(tc.wantKey) != tc.identifier {
			t.Errorf("GetPost(%q): query = %v, want %s=%s", tc.identifier, gotQuery, tc.wantKey, tc.identifier)
		}
	}
}

func TestGetPostTokenFromBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","csrfToken":"body-token","data":{"cid":1,"title":"t","slug":"s"}}`))
	}))

	post, err := client.GetPost(context.Background(), "s")
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if post.Token != "body-token" {
		t.Errorf("Token = %q, want body-token", post.Token)
	}
}

func TestGetPostTokenFromHeader(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Csrf-Token", "header-token")
		w.Write([]byte(`{"status":"success","data":{"cid":1,"title":"t","slug":"s"}}`))
	}))

	post, err := client.GetPost(context.Background(), "s")
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if post.Token != "header-token" {
		t.Errorf("Token = %q, want header-token", post.Token)
	}
}

func TestGetTokenMissing(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{}}`))
	}))

	_, err := client.GetToken(context.Background(), 1)
	if !errors.Is(err, ErrTokenMissing) {
		t.Fatalf("err = %v, want ErrTokenMissing", err)
	}
}

func TestGetSettingsFallsBackToDefaults(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))

	settings, err := client.GetSettings(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if settings != DefaultSettings() {
		t.Errorf("settings = %+v, want defaults", settings)
	}

	client2, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"title":"","description":"x"}}`))
	}))
	settings, err = client2.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if settings != DefaultSettings() {
		t.Errorf("empty title should fall back to defaults, got %+v", settings)
	}
}

func TestGetArchivesGroupedAndFlat(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"dataSet":{"2024":{"3":[{"cid":1,"title":"a","slug":"a"}]}},"count":1}}`))
	}))
	archives, err := client.GetArchives(context.Background())
	if err != nil {
		t.Fatalf("GetArchives: %v", err)
	}
	if archives.TotalPosts != 1 || len(archives.Groups["2024"]["3"]) != 1 {
		t.Errorf("archives = %+v", archives)
	}

	client2, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":[{"cid":1,"title":"a","slug":"a","year":"2023","month":"12"}]}`))
	}))
	archives, err = client2.GetArchives(context.Background())
	if err != nil {
		t.Fatalf("GetArchives flat: %v", err)
	}
	if len(archives.Groups["2023"]["12"]) != 1 {
		t.Errorf("flat archives = %+v", archives)
	}
}

func TestListComments(t *testing.T) {
	var gotQuery url.Values
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"status":"success","data":{"dataSet":[
			{"coid":1,"parent":0,"author":"a","text":"<p>t</p>","created":1,
			 "children":[{"coid":2,"parent":1,"author":"b","text":"<p>r</p>","created":2}]}
		]}}`))
	}))

	comments, err := client.ListComments(context.Background(), 42)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if gotQuery.Get("cid") != "42" {
		t.Errorf("query = %v", gotQuery)
	}
	if len(comments) != 1 || len(comments[0].Children) != 1 {
		t.Fatalf("comments = %+v, nesting must be preserved as-is", comments)
	}
	if comments[0].Children[0].Parent != comments[0].ID {
		t.Error("child parent does not reference the top-level comment")
	}
}

func TestRecentCommentsDefaultSize(t *testing.T) {
	var gotQuery url.Values
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"status":"success","data":{"dataSet":[]}}`))
	}))

	if _, err := client.RecentComments(context.Background(), 0); err != nil {
		t.Fatalf("RecentComments: %v", err)
	}
	if gotQuery.Get("size") != "9" {
		t.Errorf("size = %q, want default 9", gotQuery.Get("size"))
	}
}

func TestSubmitCommentJSON(t *testing.T) {
	var gotBody CommentPayload
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"status":"success","message":"saved"}`))
	}))

	payload := CommentPayload{Author: "a", Mail: "a@b.c", Text: "hi", CID: 3, Token: "tok"}
	receipt, err := client.SubmitCommentJSON(context.Background(), payload)
	if err != nil {
		t.Fatalf("SubmitCommentJSON: %v", err)
	}
	if receipt == nil || receipt.Message != "saved" {
		t.Errorf("receipt = %+v", receipt)
	}
	if gotBody.Token != "tok" || gotBody.CID != 3 {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestSubmitCommentJSONRejection(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"spam"}`))
	}))

	_, err := client.SubmitCommentJSON(context.Background(), CommentPayload{})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if IsTransport(err) {
		t.Error("server rejection must not be a transport error")
	}
}

func TestSubmitCommentJSONUnreadableBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>accepted</html>`))
	}))

	receipt, err := client.SubmitCommentJSON(context.Background(), CommentPayload{})
	if err != nil {
		t.Fatalf("unreadable 2xx body should not error: %v", err)
	}
	if receipt != nil {
		t.Errorf("receipt = %+v, want nil (unconfirmed)", receipt)
	}
}

func TestSubmitCommentFormEncoding(t *testing.T) {
	var gotJSON string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotJSON = r.PostForm.Get("json")
		w.WriteHeader(http.StatusOK)
	}))

	err := client.SubmitCommentForm(context.Background(), CommentPayload{Author: "a", CID: 5})
	if err != nil {
		t.Fatalf("SubmitCommentForm: %v", err)
	}
	var decoded CommentPayload
	if err := json.Unmarshal([]byte(gotJSON), &decoded); err != nil {
		t.Fatalf("form json field: %v", err)
	}
	if decoded.Author != "a" || decoded.CID != 5 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestTransportErrorKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client, err := New(Options{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	server.Close()

	_, err = client.ListPosts(context.Background(), ListQuery{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransport(err) {
		t.Errorf("connection refused should be a transport error, got %v", err)
	}
}

func TestNewRejectsBadScheme(t *testing.T) {
	if _, err := New(Options{BaseURL: "ftp://example.com"}); err == nil {
		t.Error("expected error for non-http scheme")
	}
}
