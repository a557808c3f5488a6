package mcpserver

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/nbhugo/internal/artifact"
	"github.com/starford/nbhugo/internal/blog"
	"github.com/starford/nbhugo/internal/notebook"
	"github.com/starford/nbhugo/internal/registry"
	"github.com/starford/nbhugo/internal/render"
	"github.com/starford/nbhugo/internal/testutil"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	root, store := testutil.Site(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	meta := notebook.NewManager(store, notebook.Defaults{},
		notebook.WithClock(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }),
		notebook.WithLogger(logger))
	svc := blog.NewService(store, meta, render.New(), artifact.NewWriter(store, artifact.DefaultLayout()),
		registry.NewMemory(), blog.Options{NotebooksDir: "notebooks", ContentDirs: []string{"content/post"}}, logger)
	return New(svc, "test"), root
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_notebooks":
		result, err = srv.listNotebooks(ctx, req)
	case "inspect_notebook":
		result, err = srv.inspectNotebook(ctx, req)
	case "render_notebook":
		result, err = srv.renderNotebook(ctx, req)
	case "update_metadata":
		result, err = srv.updateMetadata(ctx, req)
	case "import_notebook":
		result, err = srv.importNotebook(ctx, req)
	case "get_metadata_contract":
		result, err = srv.getMetadataContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListNotebooks(t *testing.T) {
	srv, root := testServer(t)

	r := callTool(t, srv, "list_notebooks", map[string]interface{}{})
	if text := resultText(r); text != "no notebooks found" {
		t.Errorf("empty list = %q", text)
	}

	testutil.WriteNotebook(t, root, "notebooks/a.ipynb", testutil.StampedMetadata("a", "content/post/"))
	testutil.WriteNotebook(t, root, "notebooks/b.ipynb", nil)

	text := resultText(callTool(t, srv, "list_notebooks", map[string]interface{}{}))
	if !strings.Contains(text, "notebooks/a.ipynb\ta\tcontent/post/") {
		t.Errorf("stamped entry missing: %q", text)
	}
	if !strings.Contains(text, "notebooks/b.ipynb\t(no front matter)") {
		t.Errorf("unstamped entry missing: %q", text)
	}
}

func TestUpdateMetadataThenRender(t *testing.T) {
	srv, root := testServer(t)
	testutil.WriteNotebook(t, root, "notebooks/post.ipynb", nil, testutil.CodeCell("x = 1"))

	r := callTool(t, srv, "update_metadata", map[string]interface{}{
		"name":  "post",
		"title": "Post",
	})
	if text := resultText(r); text != "updated: notebooks/post.ipynb" {
		t.Errorf("update = %q", text)
	}

	r = callTool(t, srv, "update_metadata", map[string]interface{}{"name": "post", "title": "Post"})
	if text := resultText(r); text != "unchanged: notebooks/post.ipynb" {
		t.Errorf("second update = %q", text)
	}

	r = callTool(t, srv, "render_notebook", map[string]interface{}{"name": "post.ipynb"})
	if r.IsError {
		t.Fatalf("render failed: %s", resultText(r))
	}
	if _, err := os.Stat(filepath.Join(root, "content", "post", "post.md")); err != nil {
		t.Errorf("rendered post missing: %v", err)
	}

	r = callTool(t, srv, "inspect_notebook", map[string]interface{}{"name": "post"})
	if !strings.Contains(resultText(r), `"content/post/post.md"`) {
		t.Errorf("inspect does not list the artifact: %s", resultText(r))
	}
}

func TestRenderUnstampedNotebook(t *testing.T) {
	srv, root := testServer(t)
	testutil.WriteNotebook(t, root, "notebooks/raw.ipynb", nil)

	r := callTool(t, srv, "render_notebook", map[string]interface{}{"name": "raw"})
	if !r.IsError {
		t.Error("expected error for notebook without front matter")
	}
}

func TestInspectMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "inspect_notebook", map[string]interface{}{"name": "nope"})
	if !r.IsError {
		t.Fatal("expected error for missing notebook")
	}
	if text := resultText(r); text != "not found: notebooks/nope.ipynb" {
		t.Errorf("error = %q", text)
	}
}

func TestIgnoredName(t *testing.T) {
	srv, root := testServer(t)
	testutil.WriteNotebook(t, root, "notebooks/Untitled.ipynb", nil)

	r := callTool(t, srv, "update_metadata", map[string]interface{}{"name": "Untitled"})
	if !r.IsError {
		t.Error("ignored notebook must not be stamped")
	}
}

func TestImportNotebook_DataURI(t *testing.T) {
	srv, root := testServer(t)
	data := testutil.NotebookBytes(t, nil, testutil.MarkdownCell("imported"))
	uri := "data:application/x-ipynb+json;base64," + base64.StdEncoding.EncodeToString(data)

	r := callTool(t, srv, "import_notebook", map[string]interface{}{"url": uri, "name": "fresh"})
	if r.IsError {
		t.Fatalf("import failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"notebooks/fresh.ipynb"`) {
		t.Errorf("result = %s", resultText(r))
	}
	if _, err := os.Stat(filepath.Join(root, "notebooks", "fresh.ipynb")); err != nil {
		t.Errorf("imported notebook missing: %v", err)
	}

	r = callTool(t, srv, "import_notebook", map[string]interface{}{"url": uri, "name": "fresh"})
	if !r.IsError {
		t.Error("expected error importing over an existing notebook")
	}
}

func TestImportNotebook_Rejected(t *testing.T) {
	srv, _ := testServer(t)

	cases := map[string]string{
		"not base64":   "data:application/json,{}",
		"wrong mime":   "data:image/png;base64,AAAA",
		"bad scheme":   "ftp://example.org/a.ipynb",
		"loopback":     "http://127.0.0.1/a.ipynb",
		"not notebook": "data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte("[1,2]")),
	}
	for name, uri := range cases {
		r := callTool(t, srv, "import_notebook", map[string]interface{}{"url": uri})
		if !r.IsError {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := sanitizeFilename("../../etc/my post.ipynb"); got != "my_post.ipynb" {
		t.Errorf("sanitize = %q", got)
	}
	if got := filenameFromURL("https://example.org/nb/demo.ipynb?raw=1"); got != "demo.ipynb" {
		t.Errorf("from URL = %q", got)
	}
	if got := filenameFromURL("data:application/json;base64,e30="); !strings.HasPrefix(got, "imported-") {
		t.Errorf("data URI name = %q", got)
	}
}

func TestMetadataContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_metadata_contract", map[string]interface{}{})
	if !strings.Contains(resultText(r), "hugo-jupyter") {
		t.Error("contract does not describe the render destination key")
	}
}
