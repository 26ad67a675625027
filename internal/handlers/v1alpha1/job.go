package v1alpha1

import (
	"fmt"
	"net/http"
	"strconv"

	api "github.com/chaptermaker/chaptermaker/api/v1alpha1"
	"github.com/chaptermaker/chaptermaker/internal/handlers/v1alpha1/mappers"
	"github.com/chaptermaker/chaptermaker/internal/service"
	"github.com/chaptermaker/chaptermaker/pkg/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// (POST /api/v1/videos/process)
func (h *ServiceHandler) ProcessVideo(w http.ResponseWriter, r *http.Request) {
	logger := log.NewDebugLogger("job_handler").WithContext(r.Context()).Operation("process_video").Build()

	var form api.ProcessRequest
	if err := render.DecodeJSON(r.Body, &form); err != nil {
		respondMessage(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := h.validator.Struct(form); err != nil {
		respondError(w, r, err, "validate request")
		return
	}

	job, err := h.jobSrv.Submit(r.Context(), mappers.ProcessRequestToService(form))
	if err != nil {
		logger.Error(err).Log()
		respondError(w, r, err, "start video processing")
		return
	}

	logger.Success().WithString("job_id", job.ID).Log()
	respond(w, r, http.StatusCreated, mappers.JobToApi(*job))
}

// (POST /api/v1/videos/batch)
func (h *ServiceHandler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	logger := log.NewDebugLogger("job_handler").WithContext(r.Context()).Operation("process_batch").Build()

	var form api.BatchRequest
	if err := render.DecodeJSON(r.Body, &form); err != nil {
		respondMessage(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := h.validator.Struct(form); err != nil {
		respondError(w, r, err, "validate request")
		return
	}

	jobs, err := h.jobSrv.SubmitBatch(r.Context(), mappers.BatchRequestToService(form))
	if err != nil {
		logger.Error(err).Log()
		respondError(w, r, err, "start batch processing")
		return
	}

	logger.Success().WithInt("jobs", len(jobs)).Log()
	respond(w, r, http.StatusCreated, mappers.JobListToApi(jobs))
}

// (GET /api/v1/jobs)
func (h *ServiceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	params := api.JobListParams{Status: r.URL.Query().Get("status")}
	for name, dst := range map[string]*int{"limit": &params.Limit, "offset": &params.Offset} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondMessage(w, r, http.StatusBadRequest, fmt.Sprintf("%s must be an integer", name))
			return
		}
		*dst = n
	}
	if err := h.validator.Struct(params); err != nil {
		respondError(w, r, err, "validate request")
		return
	}

	req := mappers.ListParamsToService(params)
	jobs, total, err := h.jobSrv.List(r.Context(), req)
	if err != nil {
		log.NewDebugLogger("job_handler").WithContext(r.Context()).Operation("list_jobs").Build().Error(err).Log()
		respondError(w, r, err, "list jobs")
		return
	}

	limit := params.Limit
	if limit == 0 {
		limit = service.DefaultListLimit
	}
	respond(w, r, http.StatusOK, api.JobList{
		Jobs:   mappers.JobListToApi(jobs),
		Total:  total,
		Limit:  limit,
		Offset: params.Offset,
	})
}

// (GET /api/v1/jobs/{job_id})
func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, jobIDParam)
	job, err := h.jobSrv.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err, "fetch job status")
		return
	}
	respond(w, r, http.StatusOK, mappers.JobToApi(*job))
}

// (DELETE /api/v1/jobs/{job_id})
func (h *ServiceHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, jobIDParam)
	logger := log.NewDebugLogger("job_handler").WithContext(r.Context()).Operation("cancel_job").WithString("job_id", id).Build()

	job, err := h.jobSrv.Cancel(r.Context(), id)
	if err != nil {
		logger.Error(err).Log()
		respondError(w, r, err, "cancel job")
		return
	}

	logger.Success().Log()
	respond(w, r, http.StatusOK, mappers.JobToApi(*job))
}

// (GET /api/v1/jobs/{job_id}/results)
func (h *ServiceHandler) GetJobResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, jobIDParam)
	res, err := h.jobSrv.Results(r.Context(), id)
	if err != nil {
		respondError(w, r, err, "fetch job results")
		return
	}
	respond(w, r, http.StatusOK, mappers.ResultsToApi(res))
}

// (GET /api/v1/jobs/{job_id}/download-all)
func (h *ServiceHandler) DownloadAll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, jobIDParam)
	logger := log.NewDebugLogger("job_handler").WithContext(r.Context()).Operation("download_all").WithString("job_id", id).Build()

	archive, err := h.jobSrv.Archive(r.Context(), id)
	if err != nil {
		logger.Error(err).Log()
		respondError(w, r, err, "build archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.Name))
	w.WriteHeader(http.StatusOK)
	if err := archive.WriteTo(r.Context(), w); err != nil {
		// Headers are gone; the client sees a truncated archive.
		logger.Error(err).Log()
		return
	}
	logger.Success().WithInt("entries", len(archive.Entries())).Log()
}
