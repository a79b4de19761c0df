// Package app provides the application services that orchestrate the sync
// core: they collect raw actions and tool results from chat turns, run them
// through the classifier/normalizer, dispatch through the bus, and track
// background decomposition jobs.
package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/syncboard/syncboard/pkg/jobs"
	"github.com/syncboard/syncboard/pkg/logger"
	"github.com/syncboard/syncboard/pkg/sync"
	"github.com/syncboard/syncboard/pkg/toolresult"
)

// DecompositionSubmitter starts a decomposition job on the backend.
// Implemented by the backend HTTP client.
type DecompositionSubmitter interface {
	SubmitDecomposition(ctx context.Context, planID int64, taskID string) (*jobs.Job, error)
}

// SnapshotSink records job observations. Implemented by the persistence
// job store.
type SnapshotSink interface {
	ApplySnapshot(snap jobs.Snapshot, at time.Time) (*jobs.Job, error)
	Save(job *jobs.Job) error
}

// SyncService coordinates the sync core for one syncboard instance.
type SyncService struct {
	bus       *sync.Bus
	poller    *jobs.Poller
	submitter DecompositionSubmitter
	sink      SnapshotSink

	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewSyncService wires the sync service.
func NewSyncService(bus *sync.Bus, poller *jobs.Poller, submitter DecompositionSubmitter, sink SnapshotSink, pollInterval, pollTimeout time.Duration) *SyncService {
	return &SyncService{
		bus:          bus,
		poller:       poller,
		submitter:    submitter,
		sink:         sink,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}
}

// ProcessActions classifies one chat turn's action descriptors and
// dispatches the resulting events in source order. All events from the
// same turn share one tracking id derived from turnID — the turn's stable
// identity (the provider message id) — so a retried delivery of the same
// logical turn lands on the same dedup key and debounces instead of
// double-refreshing the dashboard. An empty turnID falls back to a fresh
// UUID, which keeps events flowing but loses retry suppression.
func (s *SyncService) ProcessActions(actions []sync.ActionDescriptor, fallback sync.FallbackContext, sessionID, turnID string) {
	events := sync.Classify(actions, fallback)
	if len(events) == 0 {
		return
	}

	trackingID := turnID
	if trackingID == "" {
		trackingID = uuid.NewString()
	}
	opts := sync.DispatchOptions{
		Source:      "chat",
		TrackingID:  trackingID,
		SessionID:   sessionID,
		TriggeredAt: time.Now().UTC(),
	}
	for _, ev := range events {
		s.bus.Dispatch(ev, opts)
	}
	logger.DebugCF("sync", "Processed action batch", map[string]interface{}{
		"actions": len(actions),
		"events":  len(events),
	})
}

// MergeToolResults normalizes raw tool outputs and merges them into the
// existing payload list without duplication.
func (s *SyncService) MergeToolResults(existing []toolresult.Payload, raws []interface{}) []toolresult.Payload {
	var additions []toolresult.Payload
	for _, raw := range raws {
		if p := toolresult.Normalize(raw); p != nil {
			additions = append(additions, *p)
		}
	}
	return toolresult.Merge(existing, additions)
}

// NotifySessionDeleted dispatches the session-scoped deletion event. These
// carry no plan id by design.
func (s *SyncService) NotifySessionDeleted(sessionID string) {
	s.bus.Dispatch(sync.Event{Type: sync.EventSessionDeleted, SessionID: sessionID}, sync.DispatchOptions{
		Source:      "session",
		TrackingID:  uuid.NewString(),
		TriggeredAt: time.Now().UTC(),
	})
}

// NotifySessionArchived dispatches the session-scoped archive event.
func (s *SyncService) NotifySessionArchived(sessionID string) {
	s.bus.Dispatch(sync.Event{Type: sync.EventSessionArchived, SessionID: sessionID}, sync.DispatchOptions{
		Source:      "session",
		TrackingID:  uuid.NewString(),
		TriggeredAt: time.Now().UTC(),
	})
}

// StartDecomposition submits a decomposition job for a task and begins
// tracking it in the background. It returns the backend-assigned job id
// immediately; progress flows through the job store and the sync bus.
func (s *SyncService) StartDecomposition(ctx context.Context, planID int64, taskID string) (string, error) {
	job, err := s.submitter.SubmitDecomposition(ctx, planID, taskID)
	if err != nil {
		return "", err
	}
	if err := s.sink.Save(job); err != nil {
		logger.WarnCF("sync", "Failed to record submitted job", map[string]interface{}{
			"job_id": job.JobID,
			"error":  err.Error(),
		})
	}

	go s.TrackDecomposition(context.WithoutCancel(ctx), job.JobID, &planID)
	return job.JobID, nil
}

// TrackDecomposition polls a decomposition job to a terminal state,
// recording every snapshot, and dispatches plan_jobs_completed when the
// job succeeds. Failures and timeouts are logged; the stored record keeps
// the last observed state either way.
func (s *SyncService) TrackDecomposition(ctx context.Context, jobID string, planID *int64) {
	final, err := s.poller.PollUntilTerminal(ctx, jobID, jobs.Options{
		Interval: s.pollInterval,
		Timeout:  s.pollTimeout,
		OnUpdate: func(snap jobs.Snapshot) {
			if _, err := s.sink.ApplySnapshot(snap, time.Now().UTC()); err != nil {
				logger.WarnCF("sync", "Failed to record job snapshot", map[string]interface{}{
					"job_id": snap.JobID,
					"error":  err.Error(),
				})
			}
		},
	})
	if err != nil {
		logger.ErrorCF("sync", "Decomposition did not succeed", map[string]interface{}{
			"job_id": jobID,
			"error":  err.Error(),
		})
		return
	}

	resolvedPlan := planID
	if final.PlanID != nil {
		resolvedPlan = final.PlanID
	}
	s.bus.Dispatch(sync.Event{
		Type:    sync.EventPlanJobsCompleted,
		PlanID:  resolvedPlan,
		JobID:   final.JobID,
		JobType: final.JobType,
		Status:  string(final.Status),
	}, sync.DispatchOptions{
		Source:      "jobs",
		TrackingID:  final.JobID,
		TriggeredAt: time.Now().UTC(),
	})
}
