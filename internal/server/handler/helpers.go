// Package handler implements the HTTP endpoints. Each handler declares the
// narrow service interface it needs; the app wires concrete services in.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/avalens/avalens/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// writeJSON writes v as a JSON response. A marshal failure degrades to a
// plain 500 so the client always gets a parseable error body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts reads limit/offset pagination from the query string. Invalid
// or missing values fall back to the defaults; limit is clamped to
// maxPageSize.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := defaultPageSize
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = n
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	offset := 0
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		offset = n
	}

	return domain.ListOpts{Limit: limit, Offset: offset}
}

// pathParam reads a named ServeMux pattern parameter.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
