// Package agent runs a task end to end: gap check, memory recall, and a
// Gemini function-calling loop where every tool call passes through the
// risk classifier and the approval gate before it executes.
package agent

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/oklog/ulid/v2"
	"google.golang.org/genai"

	"github.com/m-mizutani/burrow/pkg/adapter"
	"github.com/m-mizutani/burrow/pkg/approval"
	"github.com/m-mizutani/burrow/pkg/gap"
	"github.com/m-mizutani/burrow/pkg/memory"
	"github.com/m-mizutani/burrow/pkg/model"
	"github.com/m-mizutani/burrow/pkg/risk"
	"github.com/m-mizutani/burrow/pkg/telemetry"
	"github.com/m-mizutani/burrow/pkg/tool"
	"github.com/m-mizutani/burrow/pkg/utils/logging"
)

//go:embed prompt/system.md
var systemPromptRaw string

var systemPromptTmpl = template.Must(template.New("system").Parse(systemPromptRaw))

const (
	// DefaultMaxIterations bounds the function-calling loop
	DefaultMaxIterations = 8

	// DefaultConfidence is deliberately below the gate threshold, so
	// delayed actions wait for a human unless the caller raises it.
	DefaultConfidence = 0.5

	// DefaultArchiveLimit is the result size in bytes above which the
	// payload moves to object storage and the record keeps a reference.
	DefaultArchiveLimit = 8 * 1024

	recallTopK = 5
)

// ToolCallExporter streams tool call records to an audit sink.
// adapter.AuditExporter satisfies it.
type ToolCallExporter interface {
	ExportToolCall(ctx context.Context, record *model.ToolCallRecord) error
}

// Executor orchestrates one task run
type Executor struct {
	gemini     adapter.Gemini
	memory     *memory.Manager
	registry   *tool.Registry
	classifier *risk.Classifier
	gate       *approval.Gate
	detector   *gap.Detector
	recorder   *telemetry.Recorder
	storage    adapter.Storage
	audit      ToolCallExporter

	maxIterations int
	confidence    float64
	archiveLimit  int
}

// NewInput contains dependencies for creating an Executor
type NewInput struct {
	Gemini     adapter.Gemini
	Memory     *memory.Manager
	Registry   *tool.Registry
	Classifier *risk.Classifier
	Gate       *approval.Gate
	Detector   *gap.Detector
	Recorder   *telemetry.Recorder
	Storage    adapter.Storage
	Audit      ToolCallExporter

	// MaxIterations overrides DefaultMaxIterations when > 0
	MaxIterations int
	// Confidence overrides DefaultConfidence when > 0
	Confidence float64
	// ArchiveLimit overrides DefaultArchiveLimit when > 0
	ArchiveLimit int
}

// New creates an Executor
func New(input NewInput) (*Executor, error) {
	switch {
	case input.Gemini == nil:
		return nil, goerr.New("gemini client is required", goerr.T(model.TagInvalidArgument))
	case input.Memory == nil:
		return nil, goerr.New("memory manager is required", goerr.T(model.TagInvalidArgument))
	case input.Registry == nil:
		return nil, goerr.New("tool registry is required", goerr.T(model.TagInvalidArgument))
	case input.Classifier == nil:
		return nil, goerr.New("risk classifier is required", goerr.T(model.TagInvalidArgument))
	case input.Gate == nil:
		return nil, goerr.New("approval gate is required", goerr.T(model.TagInvalidArgument))
	case input.Detector == nil:
		return nil, goerr.New("gap detector is required", goerr.T(model.TagInvalidArgument))
	}

	if input.Recorder == nil {
		input.Recorder = telemetry.NewNoop()
	}
	if input.MaxIterations <= 0 {
		input.MaxIterations = DefaultMaxIterations
	}
	if input.Confidence <= 0 {
		input.Confidence = DefaultConfidence
	}
	if input.ArchiveLimit <= 0 {
		input.ArchiveLimit = DefaultArchiveLimit
	}

	return &Executor{
		gemini:        input.Gemini,
		memory:        input.Memory,
		registry:      input.Registry,
		classifier:    input.Classifier,
		gate:          input.Gate,
		detector:      input.Detector,
		recorder:      input.Recorder,
		storage:       input.Storage,
		audit:         input.Audit,
		maxIterations: input.MaxIterations,
		confidence:    input.Confidence,
		archiveLimit:  input.ArchiveLimit,
	}, nil
}

// RunInput describes one task
type RunInput struct {
	SessionID model.SessionID
	Task      string

	// Confidence overrides the executor default for this run
	Confidence float64
}

// Result is the structured outcome of a run. Exactly one of Answer and
// GapReport carries the primary outcome: a gap report means the task was
// refused up front, never silently worked around.
type Result struct {
	Answer    string                  `json:"answer,omitempty"`
	GapReport *model.ToolGapReport    `json:"gap_report,omitempty"`
	ToolCalls []*model.ToolCallRecord `json:"tool_calls"`
}

// Run executes the task
func (x *Executor) Run(ctx context.Context, input RunInput) (result *Result, err error) {
	ctx, span := x.recorder.StartSpan(ctx, "agent.run")
	defer func() { span.End(err) }()

	if strings.TrimSpace(input.Task) == "" {
		err = goerr.New("task is empty", goerr.T(model.TagInvalidArgument))
		return nil, err
	}

	confidence := input.Confidence
	if confidence <= 0 {
		confidence = x.confidence
	}

	logger := logging.From(ctx)

	if _, err = x.memory.StoreMessage(ctx, input.SessionID, model.RoleUser, input.Task, nil); err != nil {
		return nil, err
	}

	report, err := x.detector.Detect(ctx, input.Task, x.registry.Names())
	if err != nil {
		return nil, err
	}
	if report != nil {
		span.SetAttr("gap_detected", true)
		refusal := fmt.Sprintf("Cannot complete the task: missing capabilities %v",
			report.MissingCapabilities)
		if _, storeErr := x.memory.StoreMessage(ctx, input.SessionID, model.RoleAssistant, refusal, nil); storeErr != nil {
			logger.Warn("failed to store gap refusal", "error", storeErr)
		}
		return &Result{GapReport: report}, nil
	}

	memories := x.recall(ctx, input.Task)

	systemPrompt, err := x.buildSystemPrompt(ctx, memories)
	if err != nil {
		return nil, err
	}

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, ""),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
		Tools: x.registry.Specs(),
	}

	contents := []*genai.Content{
		genai.NewContentFromText(input.Task, genai.RoleUser),
	}

	var answer strings.Builder
	var toolCalls []*model.ToolCallRecord

	for i := 0; i < x.maxIterations; i++ {
		resp, genErr := x.gemini.GenerateContent(ctx, contents, config)
		if genErr != nil {
			err = genErr
			return nil, err
		}

		hasFunctionCall := false
		var functionResponses []*genai.Part

		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			contents = append(contents, candidate.Content)

			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					answer.WriteString(part.Text)
				}

				if part.FunctionCall == nil {
					continue
				}
				hasFunctionCall = true

				record, funcResp := x.handleToolCall(ctx, *part.FunctionCall, confidence)
				toolCalls = append(toolCalls, record)
				x.exportRecord(ctx, record)

				functionResponses = append(functionResponses, &genai.Part{FunctionResponse: funcResp})
			}
		}

		if len(functionResponses) > 0 {
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: functionResponses,
			})
		}

		if !hasFunctionCall {
			break
		}
	}

	final := strings.TrimSpace(answer.String())
	if final != "" {
		// The answer is also embedded so later runs can recall it. A failed
		// embedding degrades to a message-only write.
		embedding, embErr := x.gemini.Embedding(ctx, final)
		if embErr != nil {
			logger.Warn("failed to embed answer", "error", embErr)
			embedding = nil
		}
		if storeErr := x.memory.Remember(ctx, input.SessionID, final, nil, embedding); storeErr != nil {
			logger.Warn("failed to store answer", "error", storeErr)
		}
	}

	span.SetAttr("tool_calls", len(toolCalls))
	return &Result{Answer: final, ToolCalls: toolCalls}, nil
}

// recall is opportunistic: a failed embedding or search degrades to an
// empty context, it never fails the run.
func (x *Executor) recall(ctx context.Context, task string) []string {
	logger := logging.From(ctx)

	vector, err := x.gemini.Embedding(ctx, task)
	if err != nil {
		logger.Warn("failed to embed task for recall", "error", err)
		return nil
	}

	results, err := x.memory.SemanticSearch(ctx, vector, recallTopK, nil)
	if err != nil {
		logger.Warn("failed to search memory for recall", "error", err)
		return nil
	}

	memories := make([]string, 0, len(results))
	for _, r := range results {
		memories = append(memories, r.Document.Content)
	}
	return memories
}

func (x *Executor) buildSystemPrompt(ctx context.Context, memories []string) (string, error) {
	var buf bytes.Buffer
	if err := systemPromptTmpl.Execute(&buf, map[string]any{
		"ToolPrompts": x.registry.Prompts(ctx),
		"Memories":    memories,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute system prompt template")
	}
	return buf.String(), nil
}

// handleToolCall classifies, gates, and (when allowed) executes a single
// function call. It always returns a record and a function response for
// the model; a blocked call reports the block instead of a result.
func (x *Executor) handleToolCall(ctx context.Context, fc genai.FunctionCall, confidence float64) (*model.ToolCallRecord, *genai.FunctionResponse) {
	params := model.Metadata(fc.Args)
	level := x.classifier.Classify(fc.Name, params)

	record := &model.ToolCallRecord{
		ToolName:   fc.Name,
		Parameters: params,
		Risk:       level,
		CalledAt:   time.Now(),
	}

	switch x.gate.Decide(ctx, level, confidence) {
	case model.DecisionProceed:
		// fall through to execution

	case model.DecisionAwaitApproval:
		state, err := x.awaitApproval(ctx, fc, level, confidence)
		if err != nil {
			record.Status = model.CallBlocked
			return record, blockedResponse(fc.Name, "approval failed: "+err.Error())
		}
		if !state.Allows() {
			record.Status = model.CallBlocked
			return record, blockedResponse(fc.Name, "tool call was not approved ("+string(state)+")")
		}

	default:
		record.Status = model.CallBlocked
		return record, blockedResponse(fc.Name, "tool call denied by policy")
	}

	start := time.Now()
	resp, err := x.registry.Execute(ctx, fc)
	record.Duration = time.Since(start)

	if err != nil {
		record.Status = model.CallFailed
		if ctx.Err() != nil {
			record.Status = model.CallTimeout
		}
		return record, &genai.FunctionResponse{
			Name:     fc.Name,
			Response: map[string]any{"error": err.Error()},
		}
	}

	record.Status = model.CallSuccess
	if result, ok := resp.Response["result"].(string); ok {
		record.Result = result
		x.archiveIfOversized(ctx, record)
	}

	return record, resp
}

func (x *Executor) awaitApproval(ctx context.Context, fc genai.FunctionCall, level model.RiskLevel, confidence float64) (model.ApprovalState, error) {
	record, err := x.gate.Request(ctx, approval.RequestInput{
		ActionType:  "tool_call",
		Description: fmt.Sprintf("agent wants to call %s", fc.Name),
		ToolName:    fc.Name,
		Parameters:  model.Metadata(fc.Args),
		Risk:        level,
		Confidence:  confidence,
	})
	if err != nil {
		return "", err
	}

	return x.gate.Wait(ctx, record.ID)
}

// archiveIfOversized moves a large result to object storage, keeping only
// the reference in the record. The model still saw the full payload.
func (x *Executor) archiveIfOversized(ctx context.Context, record *model.ToolCallRecord) {
	if x.storage == nil || len(record.Result) <= x.archiveLimit {
		return
	}

	key := fmt.Sprintf("tool-results/%s/%s", record.ToolName, ulid.Make().String())
	ref, err := x.storage.Archive(ctx, key, []byte(record.Result))
	if err != nil {
		logging.From(ctx).Warn("failed to archive tool result",
			"tool", record.ToolName, "error", err)
		return
	}

	record.ResultRef = ref
	record.Result = ""
}

func (x *Executor) exportRecord(ctx context.Context, record *model.ToolCallRecord) {
	if x.audit == nil {
		return
	}
	if err := x.audit.ExportToolCall(ctx, record); err != nil {
		logging.From(ctx).Warn("failed to export tool call record",
			"tool", record.ToolName, "error", err)
	}
}

func blockedResponse(name, reason string) *genai.FunctionResponse {
	return &genai.FunctionResponse{
		Name:     name,
		Response: map[string]any{"error": reason},
	}
}
