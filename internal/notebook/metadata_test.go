package notebook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/nbhugo/internal/apperr"
	"github.com/starford/nbhugo/internal/testutil"
)

type recordingTrustor struct {
	calls []string
	read  func(string) []byte
	seen  [][]byte
	err   error
}

func (r *recordingTrustor) Trust(_ context.Context, absPath string) error {
	r.calls = append(r.calls, absPath)
	if r.read != nil {
		r.seen = append(r.seen, r.read(absPath))
	}
	return r.err
}

func fixedClock() time.Time { return time.Date(2024, 3, 9, 15, 4, 5, 0, time.UTC) }

func metadataOf(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var doc struct {
		Metadata map[string]any `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc.Metadata
}

func TestUpdate_FillsDefaults(t *testing.T) {
	root, store := testutil.Site(t)
	testutil.WriteNotebook(t, root, "notebooks/My First Post.ipynb", nil, testutil.CodeCell("print(1)"))

	m := NewManager(store, Defaults{}, WithClock(fixedClock))
	changed, err := m.Update(context.Background(), "notebooks/My First Post.ipynb", Overrides{})
	require.NoError(t, err)
	require.True(t, changed)

	data, err := store.Read("notebooks/My First Post.ipynb")
	require.NoError(t, err)
	meta := metadataOf(t, data)
	require.Equal(t, map[string]any{
		"title":    "My First Post",
		"subtitle": "Generic subtitle",
		"date":     "2024-03-09",
		"slug":     "my-first-post",
		"toc":      "true",
	}, meta["front-matter"])
	require.Equal(t, map[string]any{"render-to": "content/post/"}, meta["hugo-jupyter"])
}

func TestUpdate_OverridesBeatStoredValues(t *testing.T) {
	root, store := testutil.Site(t)
	testutil.WriteNotebook(t, root, "notebooks/post.ipynb", testutil.StampedMetadata("post", "content/post/"))

	m := NewManager(store, Defaults{}, WithClock(fixedClock))
	_, err := m.Update(context.Background(), "notebooks/post.ipynb", Overrides{Title: "New Title", RenderTo: "content/blog"})
	require.NoError(t, err)

	nb, _, err := m.Load("notebooks/post.ipynb")
	require.NoError(t, err)
	require.Equal(t, "New Title", nb.Metadata.FrontMatter.Title)
	// Stored slug survives a title change.
	require.Equal(t, "post", nb.Metadata.FrontMatter.Slug)
	require.Equal(t, "2024-01-02", nb.Metadata.FrontMatter.Date)
	require.Equal(t, "content/blog/", nb.Metadata.RenderTo())
}

func TestUpdate_RejectsSlugWithSeparator(t *testing.T) {
	root, store := testutil.Site(t)
	testutil.WriteNotebook(t, root, "notebooks/post.ipynb", testutil.StampedMetadata("post", "content/post/"))
	before, err := store.Read("notebooks/post.ipynb")
	require.NoError(t, err)

	m := NewManager(store, Defaults{}, WithClock(fixedClock))
	for _, slug := range []string{"../escape", "sub/post", ".."} {
		changed, err := m.Update(context.Background(), "notebooks/post.ipynb", Overrides{Slug: slug})
		require.True(t, errors.Is(err, apperr.ErrInvalidSlug), slug)
		require.False(t, changed)
	}

	after, err := store.Read("notebooks/post.ipynb")
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestUpdate_TitleWithSlashGivesFlatSlug(t *testing.T) {
	root, store := testutil.Site(t)
	testutil.WriteNotebook(t, root, "notebooks/ab.ipynb", nil)

	m := NewManager(store, Defaults{}, WithClock(fixedClock))
	_, err := m.Update(context.Background(), "notebooks/ab.ipynb", Overrides{Title: "A/B Testing"})
	require.NoError(t, err)

	nb, _, err := m.Load("notebooks/ab.ipynb")
	require.NoError(t, err)
	require.Equal(t, "a-b-testing", nb.Metadata.FrontMatter.Slug)
}

func TestUpdate_IsIdempotent(t *testing.T) {
	root, store := testutil.Site(t)
	testutil.WriteNotebook(t, root, "notebooks/idem.ipynb", map[string]any{"custom": map[string]any{"b": 1, "a": "<x>"}},
		testutil.MarkdownCell("# Title & more\n"))

	trust := &recordingTrustor{}
	m := NewManager(store, Defaults{}, WithClock(fixedClock), WithTrustor(trust))

	changed, err := m.Update(context.Background(), "notebooks/idem.ipynb", Overrides{})
	require.NoError(t, err)
	require.True(t, changed)
	first, err := store.Read("notebooks/idem.ipynb")
	require.NoError(t, err)

	changed, err = m.Update(context.Background(), "notebooks/idem.ipynb", Overrides{})
	require.NoError(t, err)
	require.False(t, changed)
	second, err := store.Read("notebooks/idem.ipynb")
	require.NoError(t, err)

	require.Equal(t, string(first), string(second))
	require.Len(t, trust.calls, 1, "unchanged notebook must not be re-trusted")
}

func TestUpdate_PreservesUnknownMetadataAndExtraFrontMatter(t *testing.T) {
	root, store := testutil.Site(t)
	meta := testutil.StampedMetadata("kept", "content/post/")
	meta["front-matter"].(map[string]any)["tags"] = []any{"go", "jupyter"}
	meta["celltoolbar"] = "Slideshow"
	testutil.WriteNotebook(t, root, "notebooks/kept.ipynb", meta)

	m := NewManager(store, Defaults{}, WithClock(fixedClock))
	_, err := m.Update(context.Background(), "notebooks/kept.ipynb", Overrides{Subtitle: "changed"})
	require.NoError(t, err)

	data, err := store.Read("notebooks/kept.ipynb")
	require.NoError(t, err)
	got := metadataOf(t, data)
	require.Equal(t, "Slideshow", got["celltoolbar"])
	fm := got["front-matter"].(map[string]any)
	require.Equal(t, []any{"go", "jupyter"}, fm["tags"])
	require.Equal(t, "changed", fm["subtitle"])
}

func TestUpdate_WritesBeforeTrust(t *testing.T) {
	root, store := testutil.Site(t)
	testutil.WriteNotebook(t, root, "notebooks/order.ipynb", nil)

	trust := &recordingTrustor{}
	trust.read = func(string) []byte {
		data, _ := store.Read("notebooks/order.ipynb")
		return data
	}
	m := NewManager(store, Defaults{}, WithClock(fixedClock), WithTrustor(trust))
	_, err := m.Update(context.Background(), "notebooks/order.ipynb", Overrides{})
	require.NoError(t, err)

	require.Len(t, trust.seen, 1)
	require.Contains(t, string(trust.seen[0]), `"front-matter"`)
}

func TestUpdate_TrustFailureIsReported(t *testing.T) {
	root, store := testutil.Site(t)
	testutil.WriteNotebook(t, root, "notebooks/t.ipynb", nil)

	m := NewManager(store, Defaults{}, WithTrustor(&recordingTrustor{err: errors.New("jupyter missing")}))
	changed, err := m.Update(context.Background(), "notebooks/t.ipynb", Overrides{})
	require.Error(t, err)
	require.True(t, changed)
}

func TestUpdate_MalformedNotebook(t *testing.T) {
	_, store := testutil.Site(t)
	require.NoError(t, store.Write("notebooks/bad.ipynb", []byte("{not json")))

	m := NewManager(store, Defaults{})
	_, err := m.Update(context.Background(), "notebooks/bad.ipynb", Overrides{})
	require.ErrorIs(t, err, apperr.ErrMalformedNotebook)
}

func TestUpdate_NormalizeSlugMode(t *testing.T) {
	root, store := testutil.Site(t)
	testutil.WriteNotebook(t, root, "notebooks/Hello World.ipynb", nil)

	m := NewManager(store, Defaults{SlugMode: SlugNormalize}, WithClock(fixedClock))
	_, err := m.Update(context.Background(), "notebooks/Hello World.ipynb", Overrides{})
	require.NoError(t, err)

	nb, _, err := m.Load("notebooks/Hello World.ipynb")
	require.NoError(t, err)
	slug := nb.Metadata.FrontMatter.Slug
	require.NotEmpty(t, slug)
	require.NotContains(t, slug, " ")
	require.Equal(t, strings.ToLower(slug), slug)
}

func TestNormalizeDir(t *testing.T) {
	require.Equal(t, "content/post/", NormalizeDir("content/post"))
	require.Equal(t, "content/post/", NormalizeDir("content/post//"))
	require.Equal(t, "content/blog/", NormalizeDir(`content\blog`))
}
