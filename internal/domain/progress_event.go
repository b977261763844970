package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ProgressEvent is the transient message published as a job advances.
// Extra carries open numeric fields such as processed/total counts.
type ProgressEvent struct {
	JobID    uuid.UUID      `json:"job_id"`
	State    JobStatus      `json:"state"`
	Progress int            `json:"progress"`
	Message  string         `json:"message,omitempty"`
	Extra    map[string]int `json:"-"`
}

// MarshalJSON flattens Extra into the top-level object, matching the
// wire shape consumed by stream clients.
func (e ProgressEvent) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"job_id":   e.JobID.String(),
		"state":    e.State,
		"progress": e.Progress,
		"message":  e.Message,
	}
	for k, v := range e.Extra {
		out[k] = v
	}
	return json.Marshal(out)
}
