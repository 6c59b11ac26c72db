package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/api"
	"fintrack/internal/auth"
	"fintrack/internal/core"
	flog "fintrack/internal/log"
	"fintrack/internal/restapi"
	"fintrack/internal/store"
)

// maxBodyBytes bounds JSON and form bodies.
const maxBodyBytes = 64 << 10

var errBadJSON = errors.New("malformed JSON body")

// parseDateParam parses an optional YYYY-MM-DD query parameter. Empty means
// an open bound.
func parseDateParam(r *http.Request, name string) (core.Date, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, fmt.Errorf("%w: %s", store.ErrInvalidQuery, name)
	}
	return d, nil
}

// parseRange reads from/to and rejects inverted ranges.
func parseRange(r *http.Request) (from, to core.Date, err error) {
	if from, err = parseDateParam(r, "from"); err != nil {
		return
	}
	if to, err = parseDateParam(r, "to"); err != nil {
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from.Time) {
		err = fmt.Errorf("%w: from is after to", store.ErrInvalidQuery)
	}
	return
}

// parseTypeParam parses an optional type query parameter.
func parseTypeParam(r *http.Request) (core.TransactionType, error) {
	v := strings.TrimSpace(r.URL.Query().Get("type"))
	if v == "" {
		return "", nil
	}
	return core.ParseType(v)
}

func parseListQuery(r *http.Request) (store.ListQuery, error) {
	q := r.URL.Query()
	lq := store.ListQuery{
		SortField: store.SortField(q.Get("sort")),
		Order:     store.Order(q.Get("order")),
	}
	var err error
	if lq.Type, err = parseTypeParam(r); err != nil {
		return lq, err
	}
	if lq.From, lq.To, err = parseRange(r); err != nil {
		return lq, err
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return lq, fmt.Errorf("%w: limit must be a number", store.ErrInvalidQuery)
		}
		lq.Limit = n
	}
	if v := strings.TrimSpace(q.Get("offset")); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return lq, fmt.Errorf("%w: offset must be a number", store.ErrInvalidQuery)
		}
		lq.Offset = n
	}
	return lq.Normalize()
}

// formatEuros formats cents as a Euro currency string (e.g., "€12,34").
func formatEuros(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := strconv.FormatInt(cents/100, 10) + "," + fmt.Sprintf("%02d", cents%100)
	if neg {
		return "-€" + s
	}
	return "€" + s
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.Error{Error: msg})
}

// errorStatus maps domain and storage errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidQuery),
		errors.Is(err, errBadJSON),
		errors.Is(err, core.ErrInvalidGranularity),
		errors.Is(err, core.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrInvalidOwner),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrUnknownCategory),
		errors.Is(err, core.ErrDescriptionLong),
		errors.Is(err, core.ErrNotSettleable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, auth.ErrNoOwner):
		return http.StatusUnauthorized
	}
	if apiErr, ok := remoteRejection(err); ok {
		switch apiErr.Status {
		case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
			return apiErr.Status
		}
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// remoteRejection returns the remote API error when the remote refused the
// request itself. Credential failures stay internal.
func remoteRejection(err error) (*restapi.APIError, bool) {
	var apiErr *restapi.APIError
	if !errors.As(err, &apiErr) || apiErr.Status < 400 || apiErr.Status >= 500 {
		return nil, false
	}
	if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
		return nil, false
	}
	return apiErr, true
}

// respondError writes err as JSON. Internal errors are logged and hidden.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := errorStatus(err)
	if status >= 500 {
		fields := flog.NewFields().WithRequestID(requestIDFrom(r.Context()))
		fields["path"] = r.URL.Path
		s.structured.LogError(r.Context(), "Request failed", err, flog.ComponentHTTP, op, fields)
		writeError(w, status, "internal error")
		return
	}
	if apiErr, ok := remoteRejection(err); ok && apiErr.Message != "" {
		writeError(w, status, apiErr.Message)
		return
	}
	writeError(w, status, err.Error())
}

// decodeJSON decodes a bounded body. Amount errors keep their domain sentinel
// so they map to 422 rather than 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, core.ErrInvalidAmount) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return nil
}
