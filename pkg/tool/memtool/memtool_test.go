package memtool_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"google.golang.org/genai"

	"github.com/m-mizutani/burrow/pkg/memory"
	"github.com/m-mizutani/burrow/pkg/repository"
	"github.com/m-mizutani/burrow/pkg/tool/memtool"
)

const testDimension = 4

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embedding(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0, 1}, nil
}

func setupMemory(t *testing.T) *memory.Manager {
	t.Helper()

	repo, err := repository.NewSQLite(":memory:", testDimension)
	gt.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	mgr, err := memory.New(memory.NewInput{Repo: repo, Dimension: testDimension})
	gt.NoError(t, err)
	return mgr
}

func TestStoreThenSearch(t *testing.T) {
	mgr := setupMemory(t)
	ctx := context.Background()

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"the user prefers dark mode": {1, 0, 0, 0},
		"user preferences":           {0.9, 0.1, 0, 0},
	}}

	store := memtool.NewStore(mgr, embedder)
	resp, err := store.Execute(ctx, genai.FunctionCall{
		Name: "memory_store",
		Args: map[string]any{
			"content":  "the user prefers dark mode",
			"metadata": map[string]any{"kind": "preference"},
		},
	})
	gt.NoError(t, err)
	gt.S(t, resp.Response["result"].(string)).Contains("Stored as document")

	search := memtool.NewSearch(mgr, embedder)
	resp, err = search.Execute(ctx, genai.FunctionCall{
		Name: "memory_search",
		Args: map[string]any{"query": "user preferences"},
	})
	gt.NoError(t, err)
	gt.S(t, resp.Response["result"].(string)).Contains("dark mode")
}

func TestSearchWithFilters(t *testing.T) {
	mgr := setupMemory(t)
	ctx := context.Background()

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"fact about projects": {1, 0, 0, 0},
		"fact about people":   {1, 0, 0, 0},
		"facts":               {1, 0, 0, 0},
	}}

	store := memtool.NewStore(mgr, embedder)
	for content, kind := range map[string]string{
		"fact about projects": "project",
		"fact about people":   "person",
	} {
		_, err := store.Execute(ctx, genai.FunctionCall{
			Name: "memory_store",
			Args: map[string]any{
				"content":  content,
				"metadata": map[string]any{"kind": kind},
			},
		})
		gt.NoError(t, err)
	}

	search := memtool.NewSearch(mgr, embedder)
	resp, err := search.Execute(ctx, genai.FunctionCall{
		Name: "memory_search",
		Args: map[string]any{
			"query":   "facts",
			"filters": map[string]any{"kind": "person"},
		},
	})
	gt.NoError(t, err)

	result := resp.Response["result"].(string)
	gt.S(t, result).Contains("fact about people")
	gt.S(t, result).NotContains("fact about projects")
}

func TestSearchEmptyMemory(t *testing.T) {
	mgr := setupMemory(t)

	search := memtool.NewSearch(mgr, &fakeEmbedder{})
	resp, err := search.Execute(context.Background(), genai.FunctionCall{
		Name: "memory_search",
		Args: map[string]any{"query": "anything"},
	})
	gt.NoError(t, err)
	gt.S(t, resp.Response["result"].(string)).Contains("No matching documents")
}

func TestStoreEmptyContent(t *testing.T) {
	mgr := setupMemory(t)

	store := memtool.NewStore(mgr, &fakeEmbedder{})
	_, err := store.Execute(context.Background(), genai.FunctionCall{
		Name: "memory_store",
		Args: map[string]any{"content": "   "},
	})
	gt.Error(t, err)
}
