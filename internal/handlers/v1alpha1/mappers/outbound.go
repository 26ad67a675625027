package mappers

import (
	api "github.com/chaptermaker/chaptermaker/api/v1alpha1"
	"github.com/chaptermaker/chaptermaker/internal/service"
	"github.com/chaptermaker/chaptermaker/internal/store/model"
	"github.com/chaptermaker/chaptermaker/internal/upload"
)

func TicketToApi(t *upload.Ticket) api.UploadTicket {
	return api.UploadTicket{
		UploadUrl:   t.WriteURL,
		FilePath:    t.ResultingPath,
		ContentType: t.ContentType,
		ExpiresIn:   int(t.Expiry.Seconds()),
	}
}

// JobToApi goes through the model snapshot so fields that do not belong to the status
// never reach the client.
func JobToApi(job model.Job) api.Job {
	s := job.Snapshot()
	out := api.Job{
		JobId:            s.JobID,
		Status:           api.StringToJobStatus(string(s.Status)),
		Progress:         s.Progress,
		Message:          s.Message,
		VideoPath:        s.VideoPath,
		PresentationPath: s.PresentationPath,
		Options: api.ProcessOptions{
			Language:          s.Options.Language,
			GenerateSubtitles: s.Options.GenerateSubtitles,
			ChapterPrompt:     s.Options.ChapterPrompt,
			DetectQA:          s.Options.DetectQA,
		},
		Results:         s.Results,
		Statistics:      StatisticsToApi(s.Statistics),
		CancelRequested: job.CancelRequested && !job.Status.Terminal(),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		CompletedAt:     s.CompletedAt,
	}
	if s.Error != "" {
		out.Error = &s.Error
	}
	return out
}

func JobListToApi(jobs model.JobList) []api.Job {
	out := make([]api.Job, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, JobToApi(j))
	}
	return out
}

func StatisticsToApi(s *model.JobStatistics) *api.JobStatistics {
	if s == nil {
		return nil
	}
	return &api.JobStatistics{
		DurationSeconds:     s.DurationSeconds,
		ProcessingSeconds:   s.ProcessingSeconds,
		ChaptersCount:       s.ChaptersCount,
		SlidesExtracted:     s.SlidesExtracted,
		TranscriptionLength: s.TranscriptionLength,
		SubtitleCues:        s.SubtitleCues,
		Language:            s.Language,
		QADetected:          s.QADetected,
		DegradedSlides:      s.DegradedSlides,
	}
}

func ResultsToApi(r *service.JobResults) api.JobResults {
	return api.JobResults{
		JobId:        r.JobID,
		Status:       api.StringToJobStatus(string(r.Status)),
		Statistics:   StatisticsToApi(r.Statistics),
		OutputFiles:  r.OutputFiles,
		DownloadUrls: r.DownloadURLs,
	}
}
