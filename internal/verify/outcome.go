package verify

import (
	"fmt"
	"time"
)

// Outcome is the result of one unit in one run.
type Outcome struct {
	Unit       string        `json:"verification_name"`
	Success    bool          `json:"success"`
	Report     string        `json:"report_content,omitempty"`
	ReportPath string        `json:"report_file_path,omitempty"`
	PromptPath string        `json:"prompt_file_path,omitempty"`
	Error      string        `json:"error_message,omitempty"`
	FailedAt   UnitState     `json:"failed_at,omitempty"`
	Provider   string        `json:"ai_provider"`
	Model      string        `json:"ai_model"`
	Tag        string        `json:"ai_tag,omitempty"`
	Cached     bool          `json:"cached,omitempty"`
	Streamed   bool          `json:"streamed,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// BatchResult aggregates a run.
type BatchResult struct {
	RunID      string     `json:"run_id"`
	Project    string     `json:"project"`
	Discipline Discipline `json:"discipline"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Total      int        `json:"total_verifications"`
	Succeeded  int        `json:"successful_verifications"`
	Failed     int        `json:"failed_verifications"`
	Outcomes   []Outcome  `json:"results"`
}

// Duration is the wall time of the batch.
func (r *BatchResult) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// OK reports whether every unit succeeded.
func (r *BatchResult) OK() bool { return r.Failed == 0 }

func aggregate(outcomes []Outcome) (succeeded, failed int) {
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// UnitError records the lifecycle step at which a unit failed.
type UnitError struct {
	Unit  string
	Stage UnitState
	Err   error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s failed during %s: %v", e.Unit, e.Stage, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }
