package v1alpha1

import (
	"net/http"

	"github.com/chaptermaker/chaptermaker/internal/handlers/v1alpha1/mappers"
	"github.com/chaptermaker/chaptermaker/internal/upload"
	"github.com/chaptermaker/chaptermaker/pkg/log"
)

// (POST /api/v1/videos/upload)
func (h *ServiceHandler) RequestVideoUpload(w http.ResponseWriter, r *http.Request) {
	h.requestUpload(w, r, upload.KindMedia)
}

// (POST /api/v1/presentations/upload)
func (h *ServiceHandler) RequestPresentationUpload(w http.ResponseWriter, r *http.Request) {
	h.requestUpload(w, r, upload.KindPresentation)
}

func (h *ServiceHandler) requestUpload(w http.ResponseWriter, r *http.Request, kind upload.Kind) {
	filename := r.URL.Query().Get("filename")
	logger := log.NewDebugLogger("upload_handler").WithContext(r.Context()).Operation("request_upload").
		WithString("kind", string(kind)).
		WithString("filename", filename).
		Build()

	ticket, err := h.uploadSrv.RequestTicket(r.Context(), kind, filename, r.URL.Query().Get("content_type"))
	if err != nil {
		logger.Error(err).Log()
		respondError(w, r, err, "generate upload url")
		return
	}

	logger.Success().WithString("path", ticket.ResultingPath).Log()
	respond(w, r, http.StatusOK, mappers.TicketToApi(ticket))
}
