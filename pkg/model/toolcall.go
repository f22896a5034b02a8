package model

import "time"

// ToolGapReport is a structured admission that a task cannot be completed
// with the currently available tools. A nil report means no gap was
// detected and the agent may proceed.
type ToolGapReport struct {
	MissingCapabilities  []string `json:"missing_capabilities"`
	TaskDescription      string   `json:"task_description"`
	ExistingToolsChecked []string `json:"existing_tools_checked"`
}

// CallStatus is the terminal status of a tool invocation.
type CallStatus string

const (
	CallSuccess CallStatus = "SUCCESS"
	CallFailed  CallStatus = "FAILED"
	CallTimeout CallStatus = "TIMEOUT"
	// CallBlocked marks a call that never executed because the approval
	// gate denied it or the approval was rejected, timed out or cancelled.
	CallBlocked CallStatus = "BLOCKED"
)

// ToolCallRecord captures one tool invocation for the structured agent
// response and for telemetry. Result is empty when the call failed or was
// blocked.
type ToolCallRecord struct {
	ToolName   string        `json:"tool_name"`
	Parameters Metadata      `json:"parameters"`
	Result     string        `json:"result,omitempty"`
	ResultRef  string        `json:"result_ref,omitempty"`
	Risk       RiskLevel     `json:"risk"`
	Status     CallStatus    `json:"status"`
	CalledAt   time.Time     `json:"called_at"`
	Duration   time.Duration `json:"duration"`
}
