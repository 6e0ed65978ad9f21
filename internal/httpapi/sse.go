package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/byggpilot/byggpilot/internal/jobs"
)

// jobStreamEntry is the flattened view of a generation job pushed to the
// UI: payload fields are lifted to the top level so the client does not
// need to unwrap them.
type jobStreamEntry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	SubjectID string    `json:"subject_id"`
	ProjectID string    `json:"project_id,omitempty"`
	Source    string    `json:"source"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type jobStreamFrame struct {
	Pending int              `json:"pending"`
	Running int              `json:"running"`
	Jobs    []jobStreamEntry `json:"jobs"`
}

func buildJobStreamFrame(snapshot []*jobs.GenerationJob) jobStreamFrame {
	frame := jobStreamFrame{Jobs: make([]jobStreamEntry, 0, len(snapshot))}
	for _, job := range snapshot {
		switch job.Status {
		case jobs.StatusPending:
			frame.Pending++
		case jobs.StatusRunning:
			frame.Running++
		}
		frame.Jobs = append(frame.Jobs, jobStreamEntry{
			ID:        job.ID,
			Kind:      job.Payload.Kind,
			SubjectID: job.Payload.SubjectID,
			ProjectID: job.Payload.ProjectID,
			Source:    job.Source,
			Status:    string(job.Status),
			Error:     job.Error,
			UpdatedAt: job.UpdatedAt,
		})
	}
	// newest first, matching the order the UI lists jobs in
	sort.Slice(frame.Jobs, func(i, j int) bool {
		if frame.Jobs[i].UpdatedAt.Equal(frame.Jobs[j].UpdatedAt) {
			return frame.Jobs[i].ID > frame.Jobs[j].ID
		}
		return frame.Jobs[i].UpdatedAt.After(frame.Jobs[j].UpdatedAt)
	})
	return frame
}

// handleJobStream pushes generation-job frames over server-sent events.
// A frame is only written when the queue state actually changed; between
// changes a comment line keeps intermediaries from closing the stream.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var lastPayload string
	send := func() bool {
		payload, err := json.Marshal(buildJobStreamFrame(s.queue.List()))
		if err != nil {
			return false
		}
		if string(payload) == lastPayload {
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return false
			}
			flusher.Flush()
			return true
		}
		lastPayload = string(payload)
		if _, err := fmt.Fprintf(w, "event: jobs\ndata: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send() {
		return
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}
