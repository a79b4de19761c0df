// Hook API endpoint — accepts pushed sync events from the backend and local
// tooling, as an alternative to the chat-turn and poller event sources.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/syncboard/syncboard/pkg/logger"
	"github.com/syncboard/syncboard/pkg/sync"
)

// POST /api/hooks/:source — accept a pushed sync event.
//
// Request body carries the event fields:
//
//	{
//	  "type": "plan_updated",
//	  "plan_id": 42,
//	  "tracking_id": "deploy-7"
//	}
//
// The source name from the URL becomes the event source, so pushes from
// different tools debounce independently of chat-driven events only through
// the shared dedup key, never through the source.
func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	source := r.PathValue("source")
	if source == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "hook source name required"})
		return
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})
		return
	}

	typ, _ := payload["type"].(string)
	if typ == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event type required"})
		return
	}

	ev := sync.Event{
		Type: sync.EventType(typ),
		Raw:  payload,
	}
	if id, ok := hookPlanID(payload["plan_id"]); ok {
		ev.PlanID = &id
	}
	ev.JobID, _ = payload["job_id"].(string)
	ev.SessionID, _ = payload["session_id"].(string)
	trackingID, _ := payload["tracking_id"].(string)

	s.bus.Dispatch(ev, sync.DispatchOptions{
		Source:     "hook:" + source,
		TrackingID: trackingID,
	})

	logger.InfoCF("hooks", "Event received and dispatched", map[string]interface{}{
		"source": source,
		"type":   typ,
	})
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message": fmt.Sprintf("hook from %s accepted", source),
		"type":    typ,
	})
}

// hookPlanID coerces the JSON-decoded plan_id field. Decoded numbers arrive
// as float64; only whole values are plan ids.
func hookPlanID(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case string:
		var id int64
		if _, err := fmt.Sscanf(n, "%d", &id); err == nil {
			return id, true
		}
	}
	return 0, false
}
