// Package risk classifies tool invocations by reversibility. Classification
// is a pure in-memory lookup so it can sit on the hot path before every
// tool call; the table and denylist are assembled once at construction.
package risk

import (
	"strings"

	"github.com/m-mizutani/burrow/pkg/model"
)

// Classifier maps a tool invocation to a RiskLevel
type Classifier struct {
	table     map[string]model.RiskLevel
	sensitive []string
}

// Option configures a Classifier
type Option func(*Classifier)

// WithTool adds or overrides a single tool entry
func WithTool(name string, level model.RiskLevel) Option {
	return func(c *Classifier) {
		c.table[name] = level
	}
}

// WithSensitiveMarker adds a substring to the parameter escalation denylist
func WithSensitiveMarker(marker string) Option {
	return func(c *Classifier) {
		c.sensitive = append(c.sensitive, strings.ToLower(marker))
	}
}

// New creates a Classifier seeded with the built-in tool table
func New(opts ...Option) *Classifier {
	c := &Classifier{
		table:     defaultTable(),
		sensitive: defaultSensitiveMarkers(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultTable() map[string]model.RiskLevel {
	return map[string]model.RiskLevel{
		// Read-only tools leave no trace to undo
		"web_search":       model.RiskReversible,
		"read_file":        model.RiskReversible,
		"list_files":       model.RiskReversible,
		"get_current_time": model.RiskReversible,
		"get_weather":      model.RiskReversible,
		"fetch_url":        model.RiskReversible,
		"memory_search":    model.RiskReversible,
		"memory_store":     model.RiskReversible,

		// Delayed-effect tools can still be recalled within a window
		"send_message":     model.RiskReversibleWithDelay,
		"send_email":       model.RiskReversibleWithDelay,
		"schedule_meeting": model.RiskReversibleWithDelay,
		"create_reminder":  model.RiskReversibleWithDelay,
		"post_comment":     model.RiskReversibleWithDelay,

		// Destructive, financial or production-mutating tools
		"delete_file":        model.RiskIrreversible,
		"delete_record":      model.RiskIrreversible,
		"drop_table":         model.RiskIrreversible,
		"execute_payment":    model.RiskIrreversible,
		"transfer_funds":     model.RiskIrreversible,
		"deploy_production":  model.RiskIrreversible,
		"terminate_instance": model.RiskIrreversible,
	}
}

func defaultSensitiveMarkers() []string {
	return []string{
		"credential",
		"secret",
		"password",
		"passwd",
		"token",
		"api_key",
		"private_key",
		"id_rsa",
		".ssh",
		".env",
	}
}

// Classify maps (tool name, parameters) to a RiskLevel. Tools absent from
// the table fall through to IRREVERSIBLE: unknown capability is always
// treated as maximally risky.
func (c *Classifier) Classify(toolName string, params model.Metadata) model.RiskLevel {
	level, ok := c.table[toolName]
	if !ok {
		return model.RiskIrreversible
	}

	// Parameter escalation: a nominally reversible read that touches
	// secret-like paths gets a delay window instead.
	if level == model.RiskReversible && c.touchesSensitive(params) {
		return model.RiskReversibleWithDelay
	}

	return level
}

// Known reports whether the tool is present in the classification table
func (c *Classifier) Known(toolName string) bool {
	_, ok := c.table[toolName]
	return ok
}

func (c *Classifier) touchesSensitive(params model.Metadata) bool {
	for k, v := range params {
		if c.matchesSensitive(k) || c.valueSensitive(v) {
			return true
		}
	}
	return false
}

func (c *Classifier) valueSensitive(v any) bool {
	switch val := v.(type) {
	case string:
		return c.matchesSensitive(val)
	case []any:
		for _, e := range val {
			if c.valueSensitive(e) {
				return true
			}
		}
	case map[string]any:
		return c.touchesSensitive(model.Metadata(val))
	}
	return false
}

func (c *Classifier) matchesSensitive(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range c.sensitive {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
