// Package orchestration drives the sync pipeline for one completed chat
// turn: it extracts the tool invocations from the assistant message, feeds
// them to the classifier, and folds the executed tools' outputs into the
// turn's accumulated result payloads.
package orchestration

import (
	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/syncboard/syncboard/pkg/logger"
	"github.com/syncboard/syncboard/pkg/providers"
	"github.com/syncboard/syncboard/pkg/sync"
	"github.com/syncboard/syncboard/pkg/toolresult"
)

// TurnSyncer is the slice of the sync service a turn processor needs.
type TurnSyncer interface {
	ProcessActions(actions []sync.ActionDescriptor, fallback sync.FallbackContext, sessionID, turnID string)
	MergeToolResults(existing []toolresult.Payload, raws []interface{}) []toolresult.Payload
}

// TurnContext carries the session state the classifier may need when a
// tool call does not name its plan.
type TurnContext struct {
	SessionID string
	PlanID    *int64
	PlanTitle string
}

// TurnProcessor converts completed chat turns into sync events and merged
// tool results.
type TurnProcessor struct {
	syncer TurnSyncer
}

// NewTurnProcessor creates a turn processor.
func NewTurnProcessor(syncer TurnSyncer) *TurnProcessor {
	return &TurnProcessor{syncer: syncer}
}

// ProcessTurn handles one assistant message after its tool calls have run.
// outputs maps tool_use block ids to what each tool returned; missing
// entries are fine, the invocation still contributes its name and
// parameters. It returns the result payloads with this turn's merged in.
func (p *TurnProcessor) ProcessTurn(tc TurnContext, msg *sdk.Message, outputs map[string]map[string]interface{}, existing []toolresult.Payload) []toolresult.Payload {
	if msg == nil {
		return existing
	}

	actions := providers.ActionsFromMessage(msg)
	// The message id is the turn's stable identity: a retried delivery of
	// the same turn carries the same id and debounces at the bus.
	p.syncer.ProcessActions(actions, sync.FallbackContext{
		PlanID:    tc.PlanID,
		PlanTitle: tc.PlanTitle,
	}, tc.SessionID, msg.ID)

	var raws []interface{}
	for _, block := range msg.Content {
		if block.Type != "tool_use" {
			continue
		}
		rr := providers.RawResultFor(block, outputs[block.ID])
		raws = append(raws, rr.Raw)
	}
	merged := p.syncer.MergeToolResults(existing, raws)

	logger.DebugCF("orchestration", "Turn processed", map[string]interface{}{
		"session": tc.SessionID,
		"actions": len(actions),
		"results": len(merged) - len(existing),
	})
	return merged
}
