package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunRunning   RunStatus = "Running"
	RunCompleted RunStatus = "Completed"
	RunError     RunStatus = "Error"
)

// GenerationRun records one crawl-and-build pass.
type GenerationRun struct {
	ID              uuid.UUID      `json:"id"`
	Domain          string         `json:"domain"`
	Root            string         `json:"root"`
	Output          string         `json:"output"`
	LiveCheck       bool           `json:"liveCheck"`
	Status          RunStatus      `json:"status"`
	FileCount       int            `json:"fileCount"`
	LivenessSkipped int            `json:"livenessSkipped"`
	Skipped         map[string]int `json:"skipped,omitempty"`
	Error           string         `json:"error,omitempty"`
	StartedAt       time.Time      `json:"startedAt"`
	FinishedAt      *time.Time     `json:"finishedAt,omitempty"`
}

// NewGenerationRun creates a running record with a generated UUID.
func NewGenerationRun(domain, root, output string, liveCheck bool) *GenerationRun {
	return &GenerationRun{
		ID:        uuid.New(),
		Domain:    domain,
		Root:      root,
		Output:    output,
		LiveCheck: liveCheck,
		Status:    RunRunning,
		StartedAt: time.Now(),
	}
}

// Finish stamps the run as completed, or as failed when err is non-nil.
func (r *GenerationRun) Finish(err error) {
	now := time.Now()
	r.FinishedAt = &now
	if err != nil {
		r.Status = RunError
		r.Error = err.Error()
		return
	}
	r.Status = RunCompleted
}
