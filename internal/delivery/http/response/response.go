package response

import (
	"time"

	"github.com/user/listing-scraper/internal/entity"
)

type SubmitSearchResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Tasks   []TaskSummary `json:"tasks"`
}

type TaskSummary struct {
	TaskID   string `json:"task_id"`
	Term     string `json:"term"`
	Locality string `json:"locality"`
}

// SearchStatusResponse is a DTO for session status, mirroring entity.SessionStatus
type SearchStatusResponse struct {
	TaskID          string              `json:"task_id"`
	Term            string              `json:"term"`
	Locality        string              `json:"locality"`
	CurrentStatus   string              `json:"current_status"` // "pending", "running", "completed", "failed"
	OutputFile      string              `json:"output_file,omitempty"`
	Stats           entity.SessionStats `json:"stats"`
	MirroredRecords int64               `json:"mirrored_records,omitempty"`
	FailureReason   string              `json:"failure_reason,omitempty"`
	StartedAt       *time.Time          `json:"started_at,omitempty"`
	FinishedAt      *time.Time          `json:"finished_at,omitempty"`
}

type HealthResponse struct {
	Status       string            `json:"status"`
	PendingTasks int64             `json:"pending_tasks"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

func FromStatus(s *entity.SessionStatus) SearchStatusResponse {
	return SearchStatusResponse{
		TaskID:          s.TaskID,
		Term:            s.Term,
		Locality:        s.Locality,
		CurrentStatus:   s.Status,
		OutputFile:      s.OutputFile,
		Stats:           s.Stats,
		MirroredRecords: s.MirroredRecords,
		FailureReason:   s.Error,
		StartedAt:       s.StartedAt,
		FinishedAt:      s.FinishedAt,
	}
}
