// Package gap detects missing tool capabilities before execution starts,
// so the agent reports what it cannot do instead of failing mid-task.
package gap

import (
	"context"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/burrow/pkg/model"
	"github.com/m-mizutani/burrow/pkg/telemetry"
)

// CapabilityExtractor derives the capabilities a task description needs.
// Implementations typically ask an LLM; see the adapter package.
type CapabilityExtractor interface {
	ExtractCapabilities(ctx context.Context, taskDescription string) ([]string, error)
}

// Detector compares required capabilities against the registered tool set
type Detector struct {
	extractor CapabilityExtractor
	recorder  *telemetry.Recorder
}

// New creates a Detector. The extractor is required.
func New(extractor CapabilityExtractor, recorder *telemetry.Recorder) (*Detector, error) {
	if extractor == nil {
		return nil, goerr.New("capability extractor is required", goerr.T(model.TagInvalidArgument))
	}
	if recorder == nil {
		recorder = telemetry.NewNoop()
	}
	return &Detector{extractor: extractor, recorder: recorder}, nil
}

// unresolvableLabel marks a task whose requirements could not be derived.
// Extraction failure must surface as a gap, never as silent availability.
const unresolvableLabel = "unresolvable_task"

// Detect returns nil when every required capability is covered by an
// available tool, and a report naming the missing ones otherwise. An
// extractor error or an empty extraction degrades to a report rather
// than letting the task through unchecked.
func (d *Detector) Detect(ctx context.Context, taskDescription string, availableTools []string) (report *model.ToolGapReport, err error) {
	ctx, span := d.recorder.StartSpan(ctx, "gap.detect")
	defer func() { span.End(err) }()

	if strings.TrimSpace(taskDescription) == "" {
		err = goerr.New("task description is empty", goerr.T(model.TagInvalidArgument))
		return nil, err
	}

	checked := make([]string, len(availableTools))
	copy(checked, availableTools)
	sort.Strings(checked)

	required, extractErr := d.extractor.ExtractCapabilities(ctx, taskDescription)
	if extractErr != nil || len(required) == 0 {
		span.SetAttr("unresolvable", true)
		return &model.ToolGapReport{
			MissingCapabilities:  []string{unresolvableLabel},
			TaskDescription:      taskDescription,
			ExistingToolsChecked: checked,
		}, nil
	}

	var missing []string
	for _, capability := range required {
		if !covered(capability, availableTools) {
			missing = append(missing, capability)
		}
	}

	span.SetAttr("required", len(required))
	span.SetAttr("missing", len(missing))

	if len(missing) == 0 {
		return nil, nil
	}

	return &model.ToolGapReport{
		MissingCapabilities:  missing,
		TaskDescription:      taskDescription,
		ExistingToolsChecked: checked,
	}, nil
}

// covered reports whether any available tool satisfies the capability.
// Matching is on normalized names: exact match, or one name containing
// the other ("search" is covered by "web_search" and vice versa).
func covered(capability string, tools []string) bool {
	want := normalize(capability)
	if want == "" {
		return false
	}
	for _, tool := range tools {
		have := normalize(tool)
		if have == "" {
			continue
		}
		if have == want || strings.Contains(have, want) || strings.Contains(want, have) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
