package providers

import (
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncboard/syncboard/pkg/sync"
)

func TestActionsFromMessage(t *testing.T) {
	msg := &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Creating your plan now."},
			{
				Type:  "tool_use",
				ID:    "tu-1",
				Name:  "create_plan",
				Input: json.RawMessage(`{"title":"Launch checklist","plan_id":42}`),
			},
			{
				Type:  "tool_use",
				ID:    "tu-2",
				Name:  "web_search",
				Input: json.RawMessage(`{"query":"golang sqlite wal"}`),
			},
		},
	}

	actions := ActionsFromMessage(msg)
	require.Len(t, actions, 2)

	assert.Equal(t, sync.KindPlanOperation, actions[0].Kind)
	assert.Equal(t, "create_plan", actions[0].Name)
	assert.Equal(t, "Launch checklist", actions[0].Parameters["title"])
	assert.Equal(t, "tu-1", actions[0].Details["tool_use_id"])

	assert.Equal(t, sync.KindToolOperation, actions[1].Kind)
	assert.Equal(t, "web_search", actions[1].Name)
}

func TestActionsFromMessageSkipsMalformedBlocks(t *testing.T) {
	msg := &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "tool_use", ID: "tu-1", Name: ""},
			{
				Type:  "tool_use",
				ID:    "tu-2",
				Name:  "update_task",
				Input: json.RawMessage(`not json`),
			},
		},
	}

	actions := ActionsFromMessage(msg)
	require.Len(t, actions, 1)
	assert.Equal(t, sync.KindTaskOperation, actions[0].Kind)
	assert.Nil(t, actions[0].Parameters)
}

func TestActionsFromMessageNil(t *testing.T) {
	assert.Nil(t, ActionsFromMessage(nil))
}

func TestActionKindIsCaseNormalized(t *testing.T) {
	msg := &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "tool_use", ID: "tu-1", Name: "Delete_Plan"},
		},
	}

	actions := ActionsFromMessage(msg)
	require.Len(t, actions, 1)
	assert.Equal(t, sync.KindPlanOperation, actions[0].Kind)
	assert.Equal(t, "Delete_Plan", actions[0].Name)
}

func TestRawResultFor(t *testing.T) {
	block := sdk.ContentBlockUnion{
		Type:  "tool_use",
		ID:    "tu-9",
		Name:  "web_search",
		Input: json.RawMessage(`{"query":"weather"}`),
	}
	out := map[string]interface{}{
		"summary": "Searched the web",
		"result":  map[string]interface{}{"query": "weather", "total_results": 3},
	}

	rr := RawResultFor(block, out)
	assert.Equal(t, "tu-9", rr.ToolUseID)
	assert.Equal(t, "web_search", rr.Raw["name"])
	assert.Equal(t, "Searched the web", rr.Raw["summary"])

	params, ok := rr.Raw["parameters"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "weather", params["query"])

	result, ok := rr.Raw["result"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 3, result["total_results"])
}

func TestRawResultForWrapsBareOutput(t *testing.T) {
	block := sdk.ContentBlockUnion{Type: "tool_use", ID: "tu-3", Name: "web_search"}
	out := map[string]interface{}{"query": "weather", "answer": "sunny"}

	rr := RawResultFor(block, out)
	result, ok := rr.Raw["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "sunny", result["answer"])
}
