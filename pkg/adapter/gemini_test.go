package adapter_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/burrow/pkg/adapter"
)

func TestGeminiEmbedding(t *testing.T) {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}

	ctx := context.Background()
	client, err := adapter.NewGemini(ctx, projectID, "us-central1",
		adapter.WithEmbeddingDimension(256),
	)
	gt.NoError(t, err)

	vec, err := client.Embedding(ctx, "What is the capital of France?")
	gt.NoError(t, err)
	gt.A(t, vec).Length(256)
}
