// Package memtool exposes the durable memory layer as agent tools, so the
// model can search and extend its own long-term memory mid-conversation.
package memtool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"

	"github.com/m-mizutani/burrow/pkg/memory"
	"github.com/m-mizutani/burrow/pkg/model"
)

// Embedder turns text into an embedding vector. adapter.Gemini satisfies it.
type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}

type searchInput struct {
	Query   string         `json:"query"`
	TopK    int            `json:"top_k"`
	Filters map[string]any `json:"filters"`
}

// Search is the memory_search tool
type Search struct {
	memory   *memory.Manager
	embedder Embedder
}

// NewSearch creates the memory_search tool
func NewSearch(mgr *memory.Manager, embedder Embedder) *Search {
	return &Search{memory: mgr, embedder: embedder}
}

func (x *Search) Flags() []cli.Flag { return nil }

func (x *Search) Prompt(ctx context.Context) string {
	return `Use the memory_search tool to recall facts and documents stored in long-term memory before asking the user for information they may have given before.`
}

func (x *Search) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "memory_search",
				Description: "Search long-term memory for documents semantically similar to a query",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"query": {
							Type:        genai.TypeString,
							Description: "Natural language description of what to recall",
						},
						"top_k": {
							Type:        genai.TypeInteger,
							Description: "Max results (default: 5)",
						},
						"filters": {
							Type:        genai.TypeObject,
							Description: "Metadata key/value pairs results must match exactly",
						},
					},
					Required: []string{"query"},
				},
			},
		},
	}
}

func (x *Search) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	input, err := parseArgs[searchInput](fc)
	if err != nil {
		return nil, err
	}
	if input.TopK <= 0 {
		input.TopK = 5
	}

	vector, err := x.embedder.Embedding(ctx, input.Query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed search query")
	}

	results, err := x.memory.SemanticSearch(ctx, vector, input.TopK, model.Metadata(input.Filters))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memory")
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"result": formatResults(results)},
	}, nil
}

type storeInput struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// Store is the memory_store tool
type Store struct {
	memory   *memory.Manager
	embedder Embedder
}

// NewStore creates the memory_store tool
func NewStore(mgr *memory.Manager, embedder Embedder) *Store {
	return &Store{memory: mgr, embedder: embedder}
}

func (x *Store) Flags() []cli.Flag { return nil }

func (x *Store) Prompt(ctx context.Context) string {
	return `Use the memory_store tool to persist facts worth remembering across sessions, such as user preferences or conclusions of an investigation.`
}

func (x *Store) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "memory_store",
				Description: "Store a fact or document in long-term memory for later semantic recall",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"content": {
							Type:        genai.TypeString,
							Description: "The text to remember",
						},
						"metadata": {
							Type:        genai.TypeObject,
							Description: "Optional metadata key/value pairs to attach",
						},
					},
					Required: []string{"content"},
				},
			},
		},
	}
}

func (x *Store) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	input, err := parseArgs[storeInput](fc)
	if err != nil {
		return nil, err
	}

	vector, err := x.embedder.Embedding(ctx, input.Content)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content")
	}

	docID, err := x.memory.StoreDocument(ctx, input.Content, model.Metadata(input.Metadata), vector)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store document")
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"result": fmt.Sprintf("Stored as document %s", docID)},
	}, nil
}

func parseArgs[T any](fc genai.FunctionCall) (*T, error) {
	raw, err := json.Marshal(fc.Args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal function arguments")
	}

	var input T
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, goerr.Wrap(err, "failed to parse input parameters")
	}
	return &input, nil
}

func formatResults(results []*model.ScoredDocument) string {
	if len(results) == 0 {
		return "No matching documents in memory."
	}

	out := fmt.Sprintf("Found %d document(s):\n\n", len(results))
	for i, r := range results {
		out += fmt.Sprintf("%d. [distance=%.4f] %s\n", i+1, r.Distance, r.Document.Content)
		if len(r.Document.Metadata) > 0 {
			if meta, err := json.Marshal(r.Document.Metadata); err == nil {
				out += fmt.Sprintf("   metadata: %s\n", meta)
			}
		}
		out += "\n"
	}

	return out
}
