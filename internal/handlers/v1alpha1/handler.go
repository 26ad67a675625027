package v1alpha1

import (
	"fmt"
	"net/http"

	api "github.com/chaptermaker/chaptermaker/api/v1alpha1"
	"github.com/chaptermaker/chaptermaker/internal/handlers/validator"
	"github.com/chaptermaker/chaptermaker/internal/service"
	"github.com/chaptermaker/chaptermaker/pkg/requestid"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

const (
	APIPrefix  = "/api/v1"
	jobIDParam = "job_id"
)

type ServiceHandler struct {
	jobSrv    *service.JobService
	uploadSrv *service.UploadService
	validator *validator.Validator
}

func NewServiceHandler(jobSrv *service.JobService, uploadSrv *service.UploadService) *ServiceHandler {
	v := validator.NewValidator()
	v.Register(validator.NewJobValidationRules()...)
	return &ServiceHandler{
		jobSrv:    jobSrv,
		uploadSrv: uploadSrv,
		validator: v,
	}
}

// RegisterRoutes mounts the API on router. /health is served both at the root and under
// the API prefix.
func (h *ServiceHandler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.Health)
	router.Route(APIPrefix, func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Post("/videos/upload", h.RequestVideoUpload)
		r.Post("/presentations/upload", h.RequestPresentationUpload)
		r.Post("/videos/process", h.ProcessVideo)
		r.Post("/videos/batch", h.ProcessBatch)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", h.ListJobs)
			r.Get("/{job_id}", h.GetJob)
			r.Delete("/{job_id}", h.CancelJob)
			r.Get("/{job_id}/results", h.GetJobResults)
			r.Get("/{job_id}/download-all", h.DownloadAll)
		})
	})
}

func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, api.Health{Status: "healthy"})
}

func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func respondMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	var id *string
	if rid := requestid.FromRequest(r); rid != "" {
		id = &rid
	}
	respond(w, r, status, api.Error{Message: msg, RequestId: id})
}

// respondError maps service errors to status codes. Unknown errors are not echoed back.
func respondError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch err.(type) {
	case *service.ErrResourceNotFound:
		respondMessage(w, r, http.StatusNotFound, err.Error())
	case *service.ErrInvalidInput, *service.ErrUnsupportedFileType, *validator.ErrInvalidForm:
		respondMessage(w, r, http.StatusBadRequest, err.Error())
	case *service.ErrJobAlreadyFinished, *service.ErrJobNotCompleted:
		respondMessage(w, r, http.StatusConflict, err.Error())
	default:
		respondMessage(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to %s", action))
	}
}
