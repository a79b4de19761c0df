// Package backend is the HTTP client for the orchestration backend — the
// external collaborator that owns plans, tasks, and decomposition jobs.
// syncboard consumes two operations from it: job status fetch and
// decomposition submission.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/syncboard/syncboard/pkg/config"
	"github.com/syncboard/syncboard/pkg/jobs"
	"github.com/syncboard/syncboard/pkg/logger"
)

// Client talks to the orchestration backend REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a backend client from configuration.
func NewClient(cfg config.BackendConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchJobStatus implements jobs.StatusFetcher.
func (c *Client) FetchJobStatus(ctx context.Context, jobID string) (*jobs.Snapshot, error) {
	var snap jobs.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+jobID, nil, &snap); err != nil {
		return nil, err
	}
	if snap.JobID == "" {
		snap.JobID = jobID
	}
	return &snap, nil
}

// SubmitDecomposition asks the backend to expand a task into subtasks and
// returns the created job record.
func (c *Client) SubmitDecomposition(ctx context.Context, planID int64, taskID string) (*jobs.Job, error) {
	body := map[string]interface{}{
		"plan_id": planID,
		"task_id": taskID,
	}

	var created struct {
		JobID   string      `json:"job_id"`
		JobType string      `json:"job_type"`
		Status  jobs.Status `json:"status"`
	}
	path := fmt.Sprintf("/api/plans/%d/tasks/%s/decompose", planID, taskID)
	if err := c.do(ctx, http.MethodPost, path, body, &created); err != nil {
		return nil, err
	}
	if created.JobID == "" {
		return nil, fmt.Errorf("backend returned no job_id for decomposition of task %s", taskID)
	}

	job := jobs.NewJob(created.JobID, created.JobType, &planID, taskID)
	if created.Status != "" {
		job.Status = created.Status
	}
	logger.InfoCF("backend", "Decomposition submitted", map[string]interface{}{
		"job_id":  job.JobID,
		"plan_id": planID,
		"task_id": taskID,
	})
	return job, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: backend returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response of %s %s: %w", method, path, err)
	}
	return nil
}
