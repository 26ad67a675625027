package queue

import (
	"github.com/riverqueue/river"
)

const (
	DefaultQueue       = "chaptermaker"
	DefaultMaxAttempts = 3
	JobKind            = "chaptermaker_process"
)

// ProcessArgs asks a worker to run the pipeline for one job. It is stored in
// river_job.args as JSON.
type ProcessArgs struct {
	JobID string `json:"job_id"`
}

// Kind returns the job kind for River registration.
func (ProcessArgs) Kind() string {
	return JobKind
}

// InsertOpts returns the default insert options for this job type.
func (ProcessArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       DefaultQueue,
		MaxAttempts: DefaultMaxAttempts,
	}
}
