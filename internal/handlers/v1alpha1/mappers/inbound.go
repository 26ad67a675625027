package mappers

import (
	api "github.com/chaptermaker/chaptermaker/api/v1alpha1"
	"github.com/chaptermaker/chaptermaker/internal/service"
	"github.com/chaptermaker/chaptermaker/internal/store/model"
)

func ProcessRequestToService(r api.ProcessRequest) service.ProcessRequest {
	req := service.ProcessRequest{
		VideoPath:        r.VideoPath,
		PresentationPath: r.PresentationPath,
	}
	if r.Options != nil {
		req.Options = model.JobOptions{
			Language:          r.Options.Language,
			GenerateSubtitles: r.Options.GenerateSubtitles,
			ChapterPrompt:     r.Options.ChapterPrompt,
			DetectQA:          r.Options.DetectQA,
		}
	}
	return req
}

func BatchRequestToService(r api.BatchRequest) []service.ProcessRequest {
	reqs := make([]service.ProcessRequest, 0, len(r.Items))
	for _, item := range r.Items {
		reqs = append(reqs, ProcessRequestToService(item))
	}
	return reqs
}

func ListParamsToService(p api.JobListParams) service.ListParams {
	return service.ListParams{Status: p.Status, Limit: p.Limit, Offset: p.Offset}
}
