package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"trustlog/core/errs"

	"github.com/go-chi/chi/v5"
)

func pathParams(r *http.Request) map[string]string {
	out := map[string]string{}
	rc := chi.RouteContext(r.Context())
	if rc != nil {
		for i, key := range rc.URLParams.Keys {
			if i < len(rc.URLParams.Values) {
				out[key] = rc.URLParams.Values[i]
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	// Fallback for direct handler tests without chi route context.
	segments := strings.Split(strings.Trim(strings.TrimSpace(r.URL.Path), "/"), "/")
	addParamAfter(segments, "logs", "id", out)
	addParamAfter(segments, "files", "storage_name", out)
	if _, ok := out["storage_name"]; !ok {
		addParamAfter(segments, "attachments", "id", out)
	}
	return out
}

func addParamAfter(segments []string, marker, key string, out map[string]string) {
	if _, exists := out[key]; exists {
		return
	}
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == marker && strings.TrimSpace(segments[i+1]) != "" {
			out[key] = segments[i+1]
			return
		}
	}
}

// idParam parses a positive integer path parameter. Malformed ids cannot name
// an existing row, so they read as not found.
func idParam(r *http.Request, key, what string) (int64, error) {
	id, err := strconv.ParseInt(pathParams(r)[key], 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.NotFound(what + " not found")
	}
	return id, nil
}
