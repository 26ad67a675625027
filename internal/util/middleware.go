package util

import (
	"net/http"
	"strings"
)

// GatewayPrefixRewrite strips prefix from the request path so the API can sit behind a
// gateway that forwards /<prefix>/api/v1/... unchanged. An empty prefix is a no-op.
func GatewayPrefixRewrite(prefix string) func(http.Handler) http.Handler {
	prefix = strings.TrimSuffix(prefix, "/")
	return func(next http.Handler) http.Handler {
		if prefix == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == prefix || strings.HasPrefix(r.URL.Path, prefix+"/") {
				r.URL.Path = strings.TrimPrefix(r.URL.Path, prefix)
				if r.URL.Path == "" {
					r.URL.Path = "/"
				}
				r.URL.RawPath = ""
			}

			next.ServeHTTP(w, r)
		})
	}
}
