package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
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

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain errors to HTTP status codes. Unexpected
// errors are logged and reported without detail.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	default:
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseSearchRequest builds a SearchRequest from query parameters. List
// parameters accept repeated keys and comma-separated values. Malformed
// numbers are reported as invalid requests.
func parseSearchRequest(r *http.Request) (domain.SearchRequest, error) {
	q := r.URL.Query()
	req := domain.SearchRequest{
		UserID:    strings.TrimSpace(r.Header.Get("X-User-ID")),
		Query:     strings.TrimSpace(firstOf(q.Get("q"), q.Get("query"))),
		Category:  strings.TrimSpace(q.Get("category")),
		MarketIDs: listParam(q["markets"]),
		Brands:    listParam(q["brands"]),
		Features:  listParam(q["features"]),
		Sort:      domain.SortOrder(q.Get("sort")),
	}

	var err error
	if req.MinPrice, err = floatParam(q.Get("min_price"), "min_price"); err != nil {
		return req, err
	}
	if req.MaxPrice, err = floatParam(q.Get("max_price"), "max_price"); err != nil {
		return req, err
	}
	if req.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		return req, err
	}
	if req.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return req, err
	}
	if v := q.Get("include_expired"); v != "" {
		if req.IncludeExpired, err = strconv.ParseBool(v); err != nil {
			return req, invalidf("include_expired: %q is not a boolean", v)
		}
	}
	return req, nil
}

func invalidf(format string, args ...any) error {
	return &domain.ValidationError{Fields: []string{fmt.Sprintf(format, args...)}}
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func listParam(raw []string) []string {
	var out []string
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func floatParam(v, name string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, invalidf("%s: %q is not a number", name, v)
	}
	return &f, nil
}

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalidf("%s: %q is not an integer", name, v)
	}
	return n, nil
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
