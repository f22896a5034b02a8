package adapter

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/m-mizutani/burrow/pkg/model"
)

//go:embed prompt/extract_capabilities.md
var extractPromptRaw string

var extractPromptTmpl = template.Must(template.New("extract").Parse(extractPromptRaw))

// CapabilityExtractor asks the model which tool capabilities a task needs.
// It satisfies the gap package's extractor interface.
type CapabilityExtractor struct {
	gemini Gemini
}

// NewCapabilityExtractor creates an extractor backed by a Gemini client
func NewCapabilityExtractor(gemini Gemini) *CapabilityExtractor {
	return &CapabilityExtractor{gemini: gemini}
}

// ExtractCapabilities returns the snake_case capability names the task
// requires. Callers treat both an error and an empty list as "cannot
// verify", so there is no silent fallback here.
func (x *CapabilityExtractor) ExtractCapabilities(ctx context.Context, taskDescription string) ([]string, error) {
	var buf bytes.Buffer
	if err := extractPromptTmpl.Execute(&buf, map[string]any{
		"Task": taskDescription,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute capability prompt template")
	}

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"capabilities": {
					Type:        genai.TypeArray,
					Description: "Tool capabilities required by the task, snake_case",
					Items: &genai.Schema{
						Type: genai.TypeString,
					},
				},
			},
			Required: []string{"capabilities"},
		},
	}

	contents := []*genai.Content{
		genai.NewContentFromText(buf.String(), genai.RoleUser),
	}

	resp, err := x.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to extract capabilities", goerr.T(model.TagOracle))
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, goerr.New("invalid response structure from gemini", goerr.T(model.TagOracle))
	}

	rawJSON := resp.Candidates[0].Content.Parts[0].Text

	var parsed struct {
		Capabilities []string `json:"capabilities"`
	}
	if err := json.Unmarshal([]byte(rawJSON), &parsed); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal capability JSON",
			goerr.V("json", rawJSON), goerr.T(model.TagOracle))
	}

	return parsed.Capabilities, nil
}
