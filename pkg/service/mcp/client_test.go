package mcp_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/genai"

	"github.com/m-mizutani/burrow/pkg/service/mcp"
)

func newEchoHTTPServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "test-http-server",
		Version: "1.0.0",
	}, nil)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "echo",
		Description: "Echo back the message",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, params *struct {
		Message string `json:"message" jsonschema:"Message to echo"`
	}) (*mcpsdk.CallToolResult, any, error) {
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{
				&mcpsdk.TextContent{Text: params.Message},
			},
		}, nil, nil
	})

	handler := mcpsdk.NewStreamableHTTPHandler(func(r *http.Request) *mcpsdk.Server {
		return server
	}, nil)

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestStdioTransport(t *testing.T) {
	ctx := context.Background()

	client := mcp.NewClient()
	err := client.Connect(ctx, mcp.ServerConfig{
		Name:      "test-stdio",
		Transport: "stdio",
		Command:   []string{"go", "run", "./testdata/stdio/main.go"},
	})
	gt.NoError(t, err)
	defer client.Close()

	servers := client.GetAllServers()
	gt.A(t, servers).Length(1)
	gt.Equal(t, servers[0], "test-stdio")

	tools, err := client.GetTools("test-stdio")
	gt.NoError(t, err)
	gt.A(t, tools).Length(1)
	gt.Equal(t, tools[0].Name, "greet")

	result, err := client.CallTool(ctx, "test-stdio", "greet", map[string]any{
		"name": "Burrow",
	})
	gt.NoError(t, err)
	gt.V(t, result).NotNil()
	gt.A(t, result.Content).Length(1)

	textContent, ok := result.Content[0].(*mcpsdk.TextContent)
	gt.True(t, ok)
	gt.Equal(t, textContent.Text, "Hello, Burrow!")
}

func TestHTTPStreamableTransport(t *testing.T) {
	ctx := context.Background()
	ts := newEchoHTTPServer(t)

	client := mcp.NewClient()
	err := client.Connect(ctx, mcp.ServerConfig{
		Name:      "test-http",
		Transport: "http",
		URL:       ts.URL,
	})
	gt.NoError(t, err)
	defer client.Close()

	tools, err := client.GetTools("test-http")
	gt.NoError(t, err)
	gt.A(t, tools).Length(1)
	gt.Equal(t, tools[0].Name, "echo")

	result, err := client.CallTool(ctx, "test-http", "echo", map[string]any{
		"message": "Hello from HTTP!",
	})
	gt.NoError(t, err)
	gt.A(t, result.Content).Length(1)

	textContent, ok := result.Content[0].(*mcpsdk.TextContent)
	gt.True(t, ok)
	gt.Equal(t, textContent.Text, "Hello from HTTP!")
}

func TestProviderExposesMCPTools(t *testing.T) {
	ctx := context.Background()
	ts := newEchoHTTPServer(t)

	client := mcp.NewClient()
	err := client.Connect(ctx, mcp.ServerConfig{
		Name:      "test-http",
		Transport: "http",
		URL:       ts.URL,
	})
	gt.NoError(t, err)
	defer client.Close()

	provider, err := mcp.NewProvider(client)
	gt.NoError(t, err)

	spec := provider.Spec()
	gt.NotNil(t, spec)
	gt.A(t, spec.FunctionDeclarations).Length(1)
	gt.Equal(t, spec.FunctionDeclarations[0].Name, "echo")
	gt.NotNil(t, spec.FunctionDeclarations[0].Parameters)

	resp, err := provider.Execute(ctx, genai.FunctionCall{
		Name: "echo",
		Args: map[string]any{"message": "through the provider"},
	})
	gt.NoError(t, err)
	gt.S(t, resp.Response["result"].(string)).Contains("through the provider")

	_, err = provider.Execute(ctx, genai.FunctionCall{Name: "missing"})
	gt.Error(t, err)
}

func TestUnsupportedTransport(t *testing.T) {
	client := mcp.NewClient()
	err := client.Connect(context.Background(), mcp.ServerConfig{
		Name:      "bad",
		Transport: "carrier-pigeon",
	})
	gt.Error(t, err)
}
