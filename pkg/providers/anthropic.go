// Package providers adapts LLM provider responses into the shapes the sync
// core consumes. A chat turn driven by the Anthropic Messages API reports
// the tools the model invoked; those tool_use blocks are the raw-action
// source feeding the classifier, and the tool runner's outputs are the raw
// tool-result source feeding the normalizer.
package providers

import (
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/syncboard/syncboard/pkg/sync"
)

// kindByName tags backend tool names with the action kind the classifier
// expects. Names outside both sets are plain tool invocations.
var (
	planOperationNames = map[string]bool{
		"create_plan": true, "generate_plan": true, "delete_plan": true,
		"archive_plan": true, "update_plan": true, "rename_plan": true,
		"update_plan_metadata": true, "decompose_task": true,
		"add_tasks": true, "reorder_tasks": true, "regenerate_tasks": true,
	}
	taskOperationNames = map[string]bool{
		"create_task": true, "update_task": true, "delete_task": true,
		"complete_task": true, "move_task": true, "assign_task": true,
		"update_task_status": true,
	}
)

func actionKind(name string) sync.ActionKind {
	switch {
	case planOperationNames[name]:
		return sync.KindPlanOperation
	case taskOperationNames[name]:
		return sync.KindTaskOperation
	default:
		return sync.KindToolOperation
	}
}

// ActionsFromMessage converts the tool_use blocks of an assistant message
// into action descriptors, in block order. Blocks that are not tool calls
// (text, thinking) are skipped.
func ActionsFromMessage(msg *sdk.Message) []sync.ActionDescriptor {
	if msg == nil {
		return nil
	}

	var actions []sync.ActionDescriptor
	for _, block := range msg.Content {
		if block.Type != "tool_use" {
			continue
		}
		name := strings.TrimSpace(block.Name)
		if name == "" {
			continue
		}

		var params map[string]interface{}
		if len(block.Input) > 0 {
			// Malformed input still yields a descriptor; the classifier
			// falls back to caller context for plan identity.
			_ = json.Unmarshal(block.Input, &params)
		}

		actions = append(actions, sync.ActionDescriptor{
			Kind:       actionKind(strings.ToLower(name)),
			Name:       name,
			Parameters: params,
			Details: map[string]interface{}{
				"tool_use_id": block.ID,
			},
		})
	}
	return actions
}

// RawResult pairs a completed tool invocation with its output so the
// orchestration layer can hand both to the normalizer in one pass.
type RawResult struct {
	ToolUseID string
	Raw       map[string]interface{}
}

// RawResultFor builds the normalizer input for one executed tool call:
// the tool name and parameters from the assistant's tool_use block plus
// whatever the tool runner returned.
func RawResultFor(block sdk.ContentBlockUnion, output map[string]interface{}) RawResult {
	raw := map[string]interface{}{
		"name": block.Name,
	}
	var params map[string]interface{}
	if len(block.Input) > 0 {
		_ = json.Unmarshal(block.Input, &params)
	}
	if len(params) > 0 {
		raw["parameters"] = params
	}
	if len(output) > 0 {
		if summary, ok := output["summary"]; ok {
			raw["summary"] = summary
		}
		if result, ok := output["result"]; ok {
			raw["result"] = result
		} else {
			raw["result"] = output
		}
	}
	return RawResult{ToolUseID: block.ID, Raw: raw}
}
