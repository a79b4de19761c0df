// Package sync is the synchronization core of syncboard. It turns loosely
// typed "an operation just happened" descriptors from the orchestration
// backend into a small canonical set of typed events, and fans them out to
// subscribers with dedup/debounce so retried or bursty deliveries do not
// cause redundant dashboard refreshes.
package sync

import (
	"fmt"
	"time"
)

// EventType classifies sync events for routing and filtering.
type EventType string

const (
	EventPlanCreated       EventType = "plan_created"
	EventPlanDeleted       EventType = "plan_deleted"
	EventPlanUpdated       EventType = "plan_updated"
	EventTaskChanged       EventType = "task_changed"
	EventPlanJobsCompleted EventType = "plan_jobs_completed"
	EventSessionDeleted    EventType = "session_deleted"
	EventSessionArchived   EventType = "session_archived"
)

// String implements fmt.Stringer.
func (t EventType) String() string { return string(t) }

// Event is the canonical notification that plan/task state changed.
// Events are created at classification time, consumed once by dispatch,
// and never persisted.
type Event struct {
	Type EventType `json:"type"`

	// PlanID is nil for session-scoped events and for plan actions that
	// explicitly resolved to "no plan".
	PlanID    *int64 `json:"plan_id,omitempty"`
	PlanTitle string `json:"plan_title,omitempty"`

	JobID   string `json:"job_id,omitempty"`
	JobType string `json:"job_type,omitempty"`
	Status  string `json:"status,omitempty"`

	SessionID  string `json:"session_id,omitempty"`
	TrackingID string `json:"tracking_id,omitempty"`
	Source     string `json:"source,omitempty"`

	TriggeredAt time.Time `json:"triggered_at,omitempty"`

	// Raw carries the originating payload for debugging; the core never
	// inspects it after classification.
	Raw map[string]interface{} `json:"raw,omitempty"`
}

// DedupKey identifies "the same happening" across retried deliveries:
// (type, plan_id|"null", tracking_id|"").
func (e Event) DedupKey() string {
	plan := "null"
	if e.PlanID != nil {
		plan = fmt.Sprintf("%d", *e.PlanID)
	}
	return string(e.Type) + "|" + plan + "|" + e.TrackingID
}
