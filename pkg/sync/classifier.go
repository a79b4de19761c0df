package sync

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
)

// ActionKind tags the origin of an action descriptor.
type ActionKind string

const (
	KindPlanOperation ActionKind = "plan_operation"
	KindTaskOperation ActionKind = "task_operation"
	KindToolOperation ActionKind = "tool_operation"
)

// ActionDescriptor is the loosely typed description of a completed backend
// operation. Parameters and Details vary by action type; the classifier
// only ever reads a small set of known keys out of them.
type ActionDescriptor struct {
	Kind       ActionKind             `json:"kind"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// FallbackContext supplies plan identity when the action itself carries
// none (e.g., actions inside a plan-scoped chat turn).
type FallbackContext struct {
	PlanID    *int64
	PlanTitle string
}

// classificationRule maps a (kind, name-set) pair to an event type. Rules
// are evaluated in declaration order and the first match wins, so a name
// appearing in two sets classifies as the earlier one.
type classificationRule struct {
	kind  ActionKind
	names map[string]bool
	event EventType
}

func nameSet(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

var classificationRules = []classificationRule{
	{KindPlanOperation, nameSet("create_plan", "generate_plan", "plan_created"), EventPlanCreated},
	{KindPlanOperation, nameSet("delete_plan", "archive_plan", "plan_deleted", "plan_archived"), EventPlanDeleted},
	{KindPlanOperation, nameSet("update_plan", "rename_plan", "update_plan_metadata", "plan_updated"), EventPlanUpdated},
	{KindTaskOperation, nameSet(
		"create_task", "update_task", "delete_task", "complete_task",
		"move_task", "assign_task", "update_task_status", "task_changed",
	), EventTaskChanged},
	// Plan-level actions that rewrite the task set.
	{KindPlanOperation, nameSet("decompose_task", "add_tasks", "reorder_tasks", "regenerate_tasks"), EventTaskChanged},
}

// containerKeys is the declared, finite set of nested mappings the resolver
// is allowed to descend into when hunting for plan identity.
var containerKeys = []string{
	"plan", "task", "result", "data", "payload", "context", "details", "response", "job", "metadata",
}

// maxResolveDepth bounds the structural search.
const maxResolveDepth = 5

// Classify maps a batch of action descriptors to canonical sync events.
// Unmapped (kind, name) pairs are dropped silently — most backend actions
// (tool invocations in particular) have no sync consequence. Within one
// call the output is deduplicated on (type, plan_id), first occurrence
// wins, and events come out in source-action order.
func Classify(actions []ActionDescriptor, fallback FallbackContext) []Event {
	var events []Event
	seen := make(map[string]bool)

	for _, action := range actions {
		kind := ActionKind(strings.ToLower(strings.TrimSpace(string(action.Kind))))
		name := strings.ToLower(strings.TrimSpace(action.Name))

		eventType, ok := classifyName(kind, name)
		if !ok {
			continue
		}

		planID := resolvePlanID(action, fallback)
		planTitle := resolvePlanTitle(action, fallback)

		key := string(eventType) + "|"
		if planID != nil {
			key += strconv.FormatInt(*planID, 10)
		} else {
			key += "null"
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		events = append(events, Event{
			Type:      eventType,
			PlanID:    planID,
			PlanTitle: planTitle,
			Raw: map[string]interface{}{
				"kind":       string(action.Kind),
				"name":       action.Name,
				"parameters": action.Parameters,
				"details":    action.Details,
			},
		})
	}
	return events
}

func classifyName(kind ActionKind, name string) (EventType, bool) {
	for _, rule := range classificationRules {
		if rule.kind == kind && rule.names[name] {
			return rule.event, true
		}
	}
	return "", false
}

// resolvePlanID resolves plan identity in priority order: explicit
// parameter, bounded structural search, caller fallback. An explicit nil
// parameter value is a terminal "no plan" resolution and suppresses both
// the search and the fallback.
func resolvePlanID(action ActionDescriptor, fallback FallbackContext) *int64 {
	if raw, present := action.Parameters["plan_id"]; present {
		if raw == nil {
			return nil
		}
		if id, ok := coercePlanID(raw); ok {
			return &id
		}
		// Malformed explicit value: keep searching.
	}

	if raw, found := searchValue(action, "plan_id", ""); found {
		if id, ok := coercePlanID(raw); ok {
			return &id
		}
	}

	return fallback.PlanID
}

// resolvePlanTitle mirrors resolvePlanID. Inside a "plan" container the
// generic "title" key also counts.
func resolvePlanTitle(action ActionDescriptor, fallback FallbackContext) string {
	if raw, present := action.Parameters["plan_title"]; present {
		if raw == nil {
			return ""
		}
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}

	if raw, found := searchValue(action, "plan_title", "title"); found {
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}

	return fallback.PlanTitle
}

type searchNode struct {
	m     map[string]interface{}
	depth int
	// viaPlan is true when this node was reached through a "plan"
	// container key, which widens the accepted title keys.
	viaPlan bool
}

// searchValue runs a worklist breadth-first search over the declared
// container keys of Parameters and Details, depth-bounded and guarded by a
// visited set so cyclic structures terminate. planScopedKey, when
// non-empty, is additionally matched inside "plan" containers.
func searchValue(action ActionDescriptor, key, planScopedKey string) (interface{}, bool) {
	work := make([]searchNode, 0, 4)
	if action.Parameters != nil {
		work = append(work, searchNode{m: action.Parameters})
	}
	if action.Details != nil {
		work = append(work, searchNode{m: action.Details})
	}

	visited := make(map[uintptr]bool)

	for len(work) > 0 {
		node := work[0]
		work = work[1:]

		ptr := reflect.ValueOf(node.m).Pointer()
		if visited[ptr] {
			continue
		}
		visited[ptr] = true

		if v, ok := node.m[key]; ok && v != nil {
			return v, true
		}
		if planScopedKey != "" && node.viaPlan {
			if v, ok := node.m[planScopedKey]; ok && v != nil {
				return v, true
			}
		}

		if node.depth >= maxResolveDepth {
			continue
		}
		for _, ck := range containerKeys {
			child, ok := node.m[ck].(map[string]interface{})
			if !ok {
				continue
			}
			work = append(work, searchNode{
				m:       child,
				depth:   node.depth + 1,
				viaPlan: ck == "plan",
			})
		}
	}
	return nil, false
}

// coercePlanID accepts the numeric shapes JSON decoding and backend
// payloads actually produce for ids.
func coercePlanID(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
		return 0, false
	case json.Number:
		id, err := v.Int64()
		return id, err == nil
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id, err == nil
	default:
		return 0, false
	}
}
