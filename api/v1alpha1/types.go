// Package v1alpha1 holds the wire types of the chaptermaker HTTP API.
package v1alpha1

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// UploadTicket is returned by the upload endpoints. The client PUTs the file to
// UploadUrl and later submits FilePath.
type UploadTicket struct {
	UploadUrl   string `json:"upload_url"`
	FilePath    string `json:"file_path"`
	ContentType string `json:"content_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type ProcessOptions struct {
	Language          string `json:"language,omitempty" validate:"omitempty,language"`
	GenerateSubtitles *bool  `json:"generate_subtitles,omitempty"`
	ChapterPrompt     string `json:"chapter_prompt,omitempty" validate:"omitempty,max=4000"`
	DetectQA          *bool  `json:"detect_qa,omitempty"`
}

type ProcessRequest struct {
	VideoPath        string          `json:"video_path" validate:"required,upload_path"`
	PresentationPath string          `json:"presentation_path" validate:"required,upload_path,nefield=VideoPath"`
	Options          *ProcessOptions `json:"options,omitempty"`
}

type BatchRequest struct {
	Items []ProcessRequest `json:"items" validate:"required,min=1,dive"`
}

type JobStatistics struct {
	DurationSeconds     float64 `json:"duration_seconds"`
	ProcessingSeconds   float64 `json:"processing_time_seconds"`
	ChaptersCount       int     `json:"chapters_count"`
	SlidesExtracted     int     `json:"slides_extracted"`
	TranscriptionLength int     `json:"transcription_length"`
	SubtitleCues        int     `json:"subtitle_cues"`
	Language            string  `json:"language,omitempty"`
	QADetected          bool    `json:"qa_detected"`
	DegradedSlides      bool    `json:"degraded_slides,omitempty"`
}

// Job is a snapshot. Results and Statistics are only present for completed jobs and
// Error only for failed ones.
type Job struct {
	JobId            string            `json:"job_id"`
	Status           JobStatus         `json:"status"`
	Progress         int               `json:"progress"`
	Message          string            `json:"message"`
	VideoPath        string            `json:"video_path"`
	PresentationPath string            `json:"presentation_path"`
	Options          ProcessOptions    `json:"options"`
	Results          map[string]string `json:"results,omitempty"`
	Statistics       *JobStatistics    `json:"statistics,omitempty"`
	Error            *string           `json:"error,omitempty"`
	CancelRequested  bool              `json:"cancel_requested,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

type JobList struct {
	Jobs   []Job `json:"jobs"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

type JobListParams struct {
	Status string `json:"status" validate:"omitempty,job_status"`
	Limit  int    `json:"limit" validate:"gte=0,lte=100"`
	Offset int    `json:"offset" validate:"gte=0"`
}

type JobResults struct {
	JobId        string            `json:"job_id"`
	Status       JobStatus         `json:"status"`
	Statistics   *JobStatistics    `json:"statistics,omitempty"`
	OutputFiles  map[string]string `json:"output_files,omitempty"`
	DownloadUrls map[string]string `json:"download_urls,omitempty"`
}

type Health struct {
	Status string `json:"status"`
}

type Error struct {
	Message   string  `json:"message"`
	RequestId *string `json:"requestId,omitempty"`
}
