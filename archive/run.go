package archive

import (
	"time"

	"github.com/google/uuid"
)

// Run describes one import execution. Sinks store it next to the history.
type Run struct {
	ID         uuid.UUID `json:"id"`
	BaseURL    string    `json:"base_url"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Archives   int       `json:"archives"`
	Failed     int       `json:"failed"`
}

// NewRun starts a run record for baseURL.
func NewRun(baseURL string) Run {
	return Run{ID: uuid.New(), BaseURL: baseURL, StartedAt: time.Now().UTC()}
}

// Finish stamps the run with the driver's report.
func (r *Run) Finish(rep Report) {
	r.FinishedAt = time.Now().UTC()
	r.Archives = rep.Processed
	r.Failed = rep.Failed
}
