package tool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"

	"github.com/m-mizutani/burrow/pkg/tool"
)

type stubTool struct {
	name   string
	prompt string
}

func (s *stubTool) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{Name: s.name},
		},
	}
}

func (s *stubTool) Execute(_ context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"result": "ok from " + s.name},
	}, nil
}

func (s *stubTool) Prompt(_ context.Context) string { return s.prompt }
func (s *stubTool) Flags() []cli.Flag               { return nil }

func TestRegistryNames(t *testing.T) {
	r := tool.New(
		&stubTool{name: "web_search"},
		&stubTool{name: "read_file"},
	)

	names := r.Names()
	gt.A(t, names).Length(2)
	gt.Equal(t, names[0], "read_file")
	gt.Equal(t, names[1], "web_search")

	gt.True(t, r.Has("web_search"))
	gt.False(t, r.Has("delete_file"))
}

func TestRegistryExecute(t *testing.T) {
	r := tool.New(&stubTool{name: "web_search"})
	ctx := context.Background()

	resp, err := r.Execute(ctx, genai.FunctionCall{Name: "web_search"})
	gt.NoError(t, err)
	gt.Equal(t, resp.Response["result"], "ok from web_search")

	_, err = r.Execute(ctx, genai.FunctionCall{Name: "missing_tool"})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, tool.ErrToolNotFound))
}

func TestRegistryPrompts(t *testing.T) {
	r := tool.New(
		&stubTool{name: "a", prompt: "use a wisely"},
		&stubTool{name: "b"},
	)

	prompts := r.Prompts(context.Background())
	gt.S(t, prompts).Contains("use a wisely")
}
