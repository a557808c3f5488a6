package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/nbhugo/internal/artifact"
	"github.com/starford/nbhugo/internal/blog"
	"github.com/starford/nbhugo/internal/notebook"
	"github.com/starford/nbhugo/internal/registry"
	"github.com/starford/nbhugo/internal/render"
	"github.com/starford/nbhugo/internal/testutil"
	"github.com/starford/nbhugo/internal/watch"
)

// testEnv sets up a temp Hugo site, service, and router for testing.
// An empty authToken means auth is disabled.
func testEnv(t *testing.T, authToken string) (string, http.Handler) {
	t.Helper()
	return testEnvWithRoutes(t, authToken, Routes{})
}

func testEnvWithRoutes(t *testing.T, authToken string, routes Routes) (string, http.Handler) {
	t.Helper()
	root, store := testutil.Site(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	meta := notebook.NewManager(store, notebook.Defaults{},
		notebook.WithClock(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }),
		notebook.WithLogger(logger))
	svc := blog.NewService(store, meta, render.New(), artifact.NewWriter(store, artifact.DefaultLayout()),
		registry.NewMemory(), blog.Options{NotebooksDir: "notebooks", ContentDirs: []string{"content/post"}}, logger)
	return root, NewRouter(svc, authToken != "", authToken, routes)
}

type fakeTrigger struct {
	mu     sync.Mutex
	events []watch.Event
	err    error
}

func (f *fakeTrigger) Enqueue(_ context.Context, ev watch.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

type fakeStates map[string]watch.State

func (f fakeStates) States() map[string]watch.State { return f }

func do(router http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListAndGetNotebook(t *testing.T) {
	root, router := testEnv(t, "")
	testutil.WriteNotebook(t, root, "notebooks/hello.ipynb", testutil.StampedMetadata("hello", "content/post/"),
		testutil.MarkdownCell("# Hello"), testutil.CodeCell("print(1)"))
	testutil.WriteNotebook(t, root, "notebooks/draft.ipynb", nil)

	w := do(router, http.MethodGet, "/notebooks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, body = %s", w.Code, w.Body.String())
	}
	var list NotebookListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 2 {
		t.Errorf("total = %d, want 2", list.Total)
	}

	w = do(router, http.MethodGet, "/notebooks/hello", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var detail NotebookDetail
	_ = json.Unmarshal(w.Body.Bytes(), &detail)
	if detail.Path != "notebooks/hello.ipynb" {
		t.Errorf("path = %q", detail.Path)
	}
	if detail.Slug != "hello" || !detail.Stamped {
		t.Errorf("slug = %q stamped = %v", detail.Slug, detail.Stamped)
	}
	if detail.Cells["code"] != 1 || detail.Cells["markdown"] != 1 {
		t.Errorf("cells = %v", detail.Cells)
	}
}

func TestGetNotebook_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(router, http.MethodGet, "/notebooks/nope.ipynb", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing notebook = %d, want 404", w.Code)
	}
}

func TestRenderNotebook_Synchronous(t *testing.T) {
	root, router := testEnv(t, "")
	testutil.WriteNotebook(t, root, "notebooks/hello.ipynb", testutil.StampedMetadata("hello", "content/post/"),
		testutil.CodeCell("print(1)"))

	w := do(router, http.MethodPost, "/notebooks/hello.ipynb/render", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("render = %d, body = %s", w.Code, w.Body.String())
	}
	var resp RenderResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Artifact.Markdown != "content/post/hello.md" {
		t.Errorf("markdown = %q", resp.Artifact.Markdown)
	}
	if _, err := os.Stat(filepath.Join(root, "content", "post", "hello.md")); err != nil {
		t.Errorf("rendered file missing: %v", err)
	}
}

func TestRenderNotebook_DestinationOverride(t *testing.T) {
	root, router := testEnv(t, "")
	testutil.WriteNotebook(t, root, "notebooks/hello.ipynb", testutil.StampedMetadata("hello", "content/post/"))

	w := do(router, http.MethodPost, "/notebooks/hello/render?dest=content/blog/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("render = %d, body = %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(filepath.Join(root, "content", "blog", "hello.md")); err != nil {
		t.Errorf("override destination not used: %v", err)
	}
}

func TestRenderNotebook_MissingFrontMatter(t *testing.T) {
	root, router := testEnv(t, "")
	testutil.WriteNotebook(t, root, "notebooks/raw.ipynb", nil)

	w := do(router, http.MethodPost, "/notebooks/raw/render", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unstamped render = %d, want 422", w.Code)
	}
}

func TestRenderNotebook_Queued(t *testing.T) {
	trigger := &fakeTrigger{}
	root, router := testEnvWithRoutes(t, "", Routes{Trigger: trigger})
	testutil.WriteNotebook(t, root, "notebooks/hello.ipynb", nil)

	w := do(router, http.MethodPost, "/notebooks/hello/render", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("queued render = %d, body = %s", w.Code, w.Body.String())
	}
	if len(trigger.events) != 1 {
		t.Fatalf("events = %v", trigger.events)
	}
	ev := trigger.events[0]
	if ev.Kind != watch.Modified || ev.Path != "notebooks/hello.ipynb" {
		t.Errorf("event = %v", ev)
	}

	w = do(router, http.MethodPost, "/notebooks/missing/render", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("queued render of missing notebook = %d, want 404", w.Code)
	}
	if len(trigger.events) != 1 {
		t.Errorf("missing notebook must not be queued")
	}
}

func TestRenderNotebook_WatcherStopped(t *testing.T) {
	trigger := &fakeTrigger{err: errors.New("watcher stopped")}
	root, router := testEnvWithRoutes(t, "", Routes{Trigger: trigger})
	testutil.WriteNotebook(t, root, "notebooks/hello.ipynb", nil)

	w := do(router, http.MethodPost, "/notebooks/hello/render", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("stopped watcher = %d, want 503", w.Code)
	}
}

func TestRenderNotebook_IgnoredName(t *testing.T) {
	trigger := &fakeTrigger{}
	_, router := testEnvWithRoutes(t, "", Routes{Trigger: trigger})

	w := do(router, http.MethodPost, "/notebooks/Untitled1/render", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("ignored = %d, want 422", w.Code)
	}
	if len(trigger.events) != 0 {
		t.Errorf("ignored notebook was queued")
	}
}

func TestUpdateMetadata(t *testing.T) {
	root, router := testEnv(t, "")
	testutil.WriteNotebook(t, root, "notebooks/hello.ipynb", nil)

	body, _ := json.Marshal(MetadataRequest{Title: "Hello World", Slug: "hello-world"})
	w := do(router, http.MethodPatch, "/notebooks/hello/metadata", bytes.NewReader(body))
	if w.Code != http.StatusOK {
		t.Fatalf("metadata = %d, body = %s", w.Code, w.Body.String())
	}
	var resp MetadataResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Changed {
		t.Error("first update should change the notebook")
	}

	w = do(router, http.MethodGet, "/notebooks/hello", nil)
	var detail NotebookDetail
	_ = json.Unmarshal(w.Body.Bytes(), &detail)
	if detail.Title != "Hello World" || detail.Slug != "hello-world" {
		t.Errorf("title = %q slug = %q", detail.Title, detail.Slug)
	}

	// Same overrides again: nothing to rewrite.
	w = do(router, http.MethodPatch, "/notebooks/hello/metadata", bytes.NewReader(body))
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Changed {
		t.Error("repeated update should be a no-op")
	}
}

func TestUpdateMetadata_BadRequest(t *testing.T) {
	root, router := testEnv(t, "")
	testutil.WriteNotebook(t, root, "notebooks/hello.ipynb", nil)

	w := do(router, http.MethodPatch, "/notebooks/hello/metadata", strings.NewReader("{nope"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body = %d, want 400", w.Code)
	}
	w = do(router, http.MethodPatch, "/notebooks/missing/metadata", strings.NewReader("{}"))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing notebook = %d, want 404", w.Code)
	}
}

func TestUpdateMetadata_InvalidSlug(t *testing.T) {
	root, router := testEnv(t, "")
	testutil.WriteNotebook(t, root, "notebooks/hello.ipynb", nil)

	body, _ := json.Marshal(MetadataRequest{Slug: "../outside"})
	w := do(router, http.MethodPatch, "/notebooks/hello/metadata", bytes.NewReader(body))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("slug with separator = %d, want 422", w.Code)
	}
}

func TestStates(t *testing.T) {
	_, router := testEnvWithRoutes(t, "", Routes{States: fakeStates{
		"notebooks/a.ipynb": watch.StateRendered,
		"notebooks/b.ipynb": watch.StateMetadataPending,
	}})

	w := do(router, http.MethodGet, "/states", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("states = %d", w.Code)
	}
	var resp StatesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.States["notebooks/a.ipynb"] != "rendered" || resp.States["notebooks/b.ipynb"] != "metadata-pending" {
		t.Errorf("states = %v", resp.States)
	}
}

func TestStates_NotMountedWithoutSource(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(router, http.MethodGet, "/states", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("states without source = %d, want 404", w.Code)
	}
}

// Auth tests.

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/notebooks", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(router, http.MethodGet, "/notebooks", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/notebooks", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// SSE and metrics mounting.

func blockingSSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithRoutes(t, "secret", Routes{SSE: blockingSSE()})

	w := do(router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithRoutes(t, "tok", Routes{SSE: blockingSSE()})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

// Upload tests.

func uploadFile(t *testing.T, router http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/notebooks", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadNotebook(t *testing.T) {
	root, router := testEnv(t, "")
	data := testutil.NotebookBytes(t, nil, testutil.MarkdownCell("hi"))

	w := uploadFile(t, router, "post.ipynb", data)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp UploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Notebook != "notebooks/post.ipynb" {
		t.Errorf("notebook = %q", resp.Notebook)
	}
	got, err := os.ReadFile(filepath.Join(root, "notebooks", "post.ipynb"))
	if err != nil {
		t.Fatalf("file not on disk: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("content mismatch")
	}

	w = uploadFile(t, router, "post.ipynb", data)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate upload = %d, want 409", w.Code)
	}
}

func TestUploadNotebook_Rejected(t *testing.T) {
	_, router := testEnv(t, "")
	data := testutil.NotebookBytes(t, nil)

	for _, name := range []string{"notes.txt", ".hidden.ipynb", "Untitled.ipynb"} {
		if w := uploadFile(t, router, name, data); w.Code != http.StatusBadRequest {
			t.Errorf("upload %q = %d, want 400", name, w.Code)
		}
	}
	if w := uploadFile(t, router, "broken.ipynb", []byte("{not json")); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("malformed upload = %d, want 422", w.Code)
	}
}

func TestUploadNotebook_MissingFileField(t *testing.T) {
	_, router := testEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "value")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/notebooks", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_QueryTokenForGet(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(router, http.MethodGet, "/notebooks?access_token=secret123", nil)
	if w.Code != http.StatusOK {
		t.Errorf("GET with query token = %d, want 200", w.Code)
	}

	w = do(router, http.MethodPatch, "/notebooks/x/metadata?access_token=secret123", strings.NewReader("{}"))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("PATCH with query token = %d, want 401", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("401 without WWW-Authenticate")
	}
}
