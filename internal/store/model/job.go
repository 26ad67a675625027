package model

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

// Job status constants
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// ActiveStatuses are the states a worker may still write to.
var ActiveStatuses = []JobStatus{JobStatusPending, JobStatusProcessing}

// JobOptions are the processing options given at submission. They are never changed
// after the job is created.
type JobOptions struct {
	Language          string `json:"language,omitempty"`
	GenerateSubtitles *bool  `json:"generate_subtitles,omitempty"`
	ChapterPrompt     string `json:"chapter_prompt,omitempty"`
	DetectQA          *bool  `json:"detect_qa,omitempty"`
}

func (o JobOptions) SubtitlesEnabled() bool {
	return o.GenerateSubtitles == nil || *o.GenerateSubtitles
}

func (o JobOptions) QADetectionEnabled() bool {
	return o.DetectQA == nil || *o.DetectQA
}

// JobStatistics is written once, in the completion write.
type JobStatistics struct {
	DurationSeconds     float64 `json:"duration_seconds"`
	ProcessingSeconds   float64 `json:"processing_seconds"`
	ChaptersCount       int     `json:"chapters_count"`
	SlidesExtracted     int     `json:"slides_extracted"`
	TranscriptionLength int     `json:"transcription_length"`
	SubtitleCues        int     `json:"subtitle_cues"`
	Language            string  `json:"language,omitempty"`
	QADetected          bool    `json:"qa_detected"`
	DegradedSlides      bool    `json:"degraded_slides,omitempty"`
}

type Job struct {
	ID               string                                `gorm:"primaryKey;column:id;type:VARCHAR(32);"`
	Status           JobStatus                             `gorm:"column:status;type:VARCHAR(16);not null;index"`
	Progress         int                                   `gorm:"column:progress;not null;default:0"`
	Message          string                                `gorm:"column:message;type:TEXT"`
	Error            *string                               `gorm:"column:error;type:TEXT"`
	VideoPath        string                                `gorm:"column:video_path;type:TEXT;not null"`
	PresentationPath string                                `gorm:"column:presentation_path;type:TEXT;not null"`
	Options          datatypes.JSONType[JobOptions]        `gorm:"column:options"`
	Results          datatypes.JSONType[map[string]string] `gorm:"column:results"`
	Statistics       datatypes.JSONType[*JobStatistics]    `gorm:"column:statistics"`
	CancelRequested  bool                                  `gorm:"column:cancel_requested;not null;default:false"`
	QueueJobID       *int64                                `gorm:"column:queue_job_id"`
	Attempts         int                                   `gorm:"column:attempts;not null;default:0"`
	CreatedAt        time.Time                             `gorm:"column:created_at;not null;index"`
	UpdatedAt        time.Time                             `gorm:"column:updated_at;not null"`
	CompletedAt      *time.Time                            `gorm:"column:completed_at"`
}

func (Job) TableName() string {
	return "jobs"
}

type JobList []Job

// JobSnapshot is the client-facing view of a job. Results and statistics only appear
// for completed jobs and the error only for failed ones, whatever the row holds.
type JobSnapshot struct {
	JobID            string            `json:"job_id"`
	Status           JobStatus         `json:"status"`
	Progress         int               `json:"progress"`
	Message          string            `json:"message"`
	VideoPath        string            `json:"video_path"`
	PresentationPath string            `json:"presentation_path"`
	Options          JobOptions        `json:"options"`
	Results          map[string]string `json:"results,omitempty"`
	Statistics       *JobStatistics    `json:"statistics,omitempty"`
	Error            string            `json:"error,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

func (j Job) Snapshot() JobSnapshot {
	s := JobSnapshot{
		JobID:            j.ID,
		Status:           j.Status,
		Progress:         j.Progress,
		Message:          j.Message,
		VideoPath:        j.VideoPath,
		PresentationPath: j.PresentationPath,
		Options:          j.Options.Data(),
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
		CompletedAt:      j.CompletedAt,
	}
	switch j.Status {
	case JobStatusCompleted:
		s.Results = j.Results.Data()
		s.Statistics = j.Statistics.Data()
	case JobStatusFailed:
		if j.Error != nil {
			s.Error = *j.Error
		}
	}
	return s
}
