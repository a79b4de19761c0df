package orchestration

import (
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncboard/syncboard/pkg/sync"
	"github.com/syncboard/syncboard/pkg/toolresult"
)

type recordingSyncer struct {
	actions   []sync.ActionDescriptor
	fallback  sync.FallbackContext
	sessionID string
	turnID    string
	raws      []interface{}
}

func (r *recordingSyncer) ProcessActions(actions []sync.ActionDescriptor, fallback sync.FallbackContext, sessionID, turnID string) {
	r.actions = actions
	r.fallback = fallback
	r.sessionID = sessionID
	r.turnID = turnID
}

func (r *recordingSyncer) MergeToolResults(existing []toolresult.Payload, raws []interface{}) []toolresult.Payload {
	r.raws = raws
	return toolresult.Merge(existing, nil)
}

func TestProcessTurn(t *testing.T) {
	rec := &recordingSyncer{}
	p := NewTurnProcessor(rec)

	planID := int64(7)
	msg := &sdk.Message{
		ID: "msg_01",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "On it."},
			{
				Type:  "tool_use",
				ID:    "tu-1",
				Name:  "create_task",
				Input: json.RawMessage(`{"title":"Write docs"}`),
			},
			{
				Type:  "tool_use",
				ID:    "tu-2",
				Name:  "web_search",
				Input: json.RawMessage(`{"query":"markdown style"}`),
			},
		},
	}
	outputs := map[string]map[string]interface{}{
		"tu-2": {"summary": "Searched", "result": map[string]interface{}{"query": "markdown style"}},
	}

	p.ProcessTurn(TurnContext{SessionID: "sess-1", PlanID: &planID}, msg, outputs, nil)

	assert.Equal(t, "sess-1", rec.sessionID)
	assert.Equal(t, "msg_01", rec.turnID)
	require.NotNil(t, rec.fallback.PlanID)
	assert.Equal(t, int64(7), *rec.fallback.PlanID)

	require.Len(t, rec.actions, 2)
	assert.Equal(t, "create_task", rec.actions[0].Name)

	// Both tool calls contribute raw results, even tu-1 with no output.
	require.Len(t, rec.raws, 2)
	first, ok := rec.raws[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "create_task", first["name"])
	second, ok := rec.raws[1].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Searched", second["summary"])
}

func TestProcessTurnNilMessage(t *testing.T) {
	rec := &recordingSyncer{}
	p := NewTurnProcessor(rec)

	existing := []toolresult.Payload{{Name: "web_search", Summary: "before"}}
	got := p.ProcessTurn(TurnContext{SessionID: "sess-1"}, nil, nil, existing)

	assert.Equal(t, existing, got)
	assert.Nil(t, rec.actions)
}
