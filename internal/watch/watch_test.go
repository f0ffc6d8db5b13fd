package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/veridoc/internal/project"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestClassify(t *testing.T) {
	docs := t.TempDir()
	code := t.TempDir()
	nested := filepath.Join(docs, "api")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	w, err := New(Config{
		Roots: []Root{
			{Category: project.Documentation, Dir: docs},
			{Category: project.Backend, Dir: code},
			{Category: project.Frontend, Dir: nested},
		},
		Exclude: []string{"**/*.tmp"},
	})
	require.NoError(t, err)
	defer w.fsw.Close()

	tests := []struct {
		path string
		cat  project.Category
		rel  string
		ok   bool
	}{
		{filepath.Join(docs, "guide", "auth.md"), project.Documentation, "guide/auth.md", true},
		{filepath.Join(code, "main.go"), project.Backend, "main.go", true},
		{filepath.Join(nested, "openapi.yaml"), project.Frontend, "openapi.yaml", true},
		{filepath.Join(code, ".git", "index"), "", "", false},
		{filepath.Join(code, "x.tmp"), "", "", false},
		{"/elsewhere/file.go", "", "", false},
	}
	for _, tt := range tests {
		c, rel, ok := w.classify(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.cat, c, tt.path)
		assert.Equal(t, tt.rel, rel, tt.path)
	}
}

func TestNew_NoRoots(t *testing.T) {
	_, err := New(Config{Roots: []Root{{Category: project.Backend, Dir: filepath.Join(t.TempDir(), "missing")}}})
	assert.Error(t, err)
}

func TestBatch_All(t *testing.T) {
	b := Batch{Changed: map[project.Category][]string{
		project.Documentation: {"b.md", "a.md"},
		project.Backend:       {"a.md", "c.go"},
	}}
	assert.Equal(t, []string{"a.md", "b.md", "c.go"}, b.All())
	assert.True(t, Batch{}.Empty())
}

func TestRun_DeliversDebouncedBatch(t *testing.T) {
	docs := t.TempDir()
	w, err := New(Config{
		Roots:    []Root{{Category: project.Documentation, Dir: docs}},
		Debounce: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	batches := make(chan Batch, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, b Batch) { batches <- b })
	}()

	// Give the loop a moment, then write a burst.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(docs, "auth.md"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "auth.md"), []byte("ab"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "cart.md"), []byte("c"), 0o644))

	select {
	case b := <-batches:
		assert.Equal(t, []string{"auth.md", "cart.md"}, b.Changed[project.Documentation])
	case <-time.After(5 * time.Second):
		t.Fatal("no batch delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
