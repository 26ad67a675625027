package middleware

import (
	"net/http"

	"github.com/chaptermaker/chaptermaker/pkg/requestid"
	"github.com/go-chi/chi/v5/middleware"
)

// RequestID attaches a request id to the context and echoes it back to the client.
// The id comes from the X-Request-Id header, then chi's own middleware, then a fresh uuid.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestid.Header)
		if id == "" {
			id = middleware.GetReqID(r.Context())
		}
		if id == "" {
			id = requestid.Generate()
		}

		w.Header().Set(requestid.Header, id)
		next.ServeHTTP(w, r.WithContext(requestid.ToContext(r.Context(), id)))
	})
}
