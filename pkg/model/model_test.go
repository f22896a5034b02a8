package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/burrow/pkg/model"
)

func TestRoleValidate(t *testing.T) {
	gt.NoError(t, model.RoleUser.Validate())
	gt.NoError(t, model.RoleAssistant.Validate())
	gt.NoError(t, model.RoleSystem.Validate())

	err := model.Role("tool").Validate()
	gt.Error(t, err)
	gt.True(t, model.IsInvalidArgument(err))
}

func TestSessionValidate(t *testing.T) {
	s := &model.Session{ID: model.NewSessionID(), Owner: "alice"}
	gt.NoError(t, s.Validate())

	s.Owner = "   "
	gt.Error(t, s.Validate())
}

func TestMessageValidate(t *testing.T) {
	msg := &model.Message{
		ID:        model.NewMessageID(),
		SessionID: model.NewSessionID(),
		Role:      model.RoleUser,
		Content:   "hello",
	}
	gt.NoError(t, msg.Validate())

	empty := *msg
	empty.Content = "  "
	gt.Error(t, empty.Validate())

	badRole := *msg
	badRole.Role = "operator"
	gt.Error(t, badRole.Validate())

	orphan := *msg
	orphan.SessionID = ""
	gt.True(t, model.IsNotFound(orphan.Validate()))
}

func TestMessageIDOrdering(t *testing.T) {
	a := model.NewMessageID()
	b := model.NewMessageID()
	gt.True(t, string(a) < string(b))
}

func TestMetadataValidate(t *testing.T) {
	meta := model.Metadata{
		"name":  "portfolio",
		"count": 3,
		"ratio": 0.5,
		"flags": []any{"a", "b"},
		"inner": map[string]any{"ok": true},
		"none":  nil,
	}
	gt.NoError(t, meta.Validate())

	bad := model.Metadata{"ch": make(chan int)}
	err := bad.Validate()
	gt.Error(t, err)
	gt.True(t, model.IsInvalidArgument(err))

	nested := model.Metadata{"inner": map[string]any{"ch": make(chan int)}}
	gt.Error(t, nested.Validate())
}

func TestMetadataMatches(t *testing.T) {
	meta := model.Metadata{"kind": "person", "age": 30}

	gt.True(t, meta.Matches(nil))
	gt.True(t, meta.Matches(model.Metadata{"kind": "person"}))
	gt.False(t, meta.Matches(model.Metadata{"kind": "project"}))
	gt.False(t, meta.Matches(model.Metadata{"missing": "x"}))

	// JSON round-trips turn ints into float64; filters still match
	gt.True(t, meta.Matches(model.Metadata{"age": float64(30)}))
	gt.True(t, model.Metadata{"age": float64(30)}.Matches(model.Metadata{"age": 30}))
	gt.False(t, meta.Matches(model.Metadata{"age": 31}))
}

func TestMetadataMatchesNestedValues(t *testing.T) {
	meta := model.Metadata{
		"tags":  []any{"a", "b"},
		"nums":  []any{1, 2},
		"inner": map[string]any{"kind": "person", "depth": 2},
	}

	gt.True(t, meta.Matches(model.Metadata{"tags": []any{"a", "b"}}))
	gt.False(t, meta.Matches(model.Metadata{"tags": []any{"b", "a"}}))
	gt.False(t, meta.Matches(model.Metadata{"tags": []any{"a"}}))
	gt.False(t, meta.Matches(model.Metadata{"tags": "a"}))

	// Numeric normalization applies inside slices and maps too
	gt.True(t, meta.Matches(model.Metadata{"nums": []any{float64(1), float64(2)}}))
	gt.True(t, meta.Matches(model.Metadata{"inner": map[string]any{"kind": "person", "depth": float64(2)}}))
	gt.False(t, meta.Matches(model.Metadata{"inner": map[string]any{"kind": "person"}}))
	gt.False(t, meta.Matches(model.Metadata{"inner": map[string]any{"kind": "project", "depth": 2}}))
}

func TestDocumentValidate(t *testing.T) {
	doc := &model.Document{
		ID:        model.NewDocumentID(),
		Content:   "remember this",
		Embedding: []float32{0.1, 0.2, 0.3, 0.4},
	}
	gt.NoError(t, doc.Validate(4))

	err := doc.Validate(8)
	gt.Error(t, err)
	gt.True(t, model.IsInvalidArgument(err))

	blank := &model.Document{ID: model.NewDocumentID(), Content: " "}
	gt.Error(t, blank.Validate(4))
}

func TestRiskLevel(t *testing.T) {
	gt.NoError(t, model.RiskReversible.Validate())
	gt.NoError(t, model.RiskReversibleWithDelay.Validate())
	gt.NoError(t, model.RiskIrreversible.Validate())
	gt.Error(t, model.RiskLevel("SOMEWHAT_RISKY").Validate())

	gt.True(t, model.RiskReversible.Severity() < model.RiskReversibleWithDelay.Severity())
	gt.True(t, model.RiskReversibleWithDelay.Severity() < model.RiskIrreversible.Severity())
	gt.Equal(t, model.RiskLevel("unknown").Severity(), model.RiskIrreversible.Severity())
}

func TestApprovalState(t *testing.T) {
	gt.False(t, model.ApprovalPending.Resolved())
	for _, s := range []model.ApprovalState{
		model.ApprovalApproved,
		model.ApprovalRejected,
		model.ApprovalTimedOut,
		model.ApprovalCancelled,
	} {
		gt.True(t, s.Resolved())
	}

	gt.True(t, model.ApprovalApproved.Allows())
	gt.False(t, model.ApprovalRejected.Allows())
	gt.False(t, model.ApprovalTimedOut.Allows())
	gt.False(t, model.ApprovalCancelled.Allows())
	gt.False(t, model.ApprovalPending.Allows())
}
