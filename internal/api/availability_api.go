package api

import (
	"fmt"
	"net/http"

	"workload/internal/availability"
	"workload/internal/metrics"
)

// ValidateRequest is the body of POST /api/availability/validate.
type ValidateRequest struct {
	Field     string `json:"field"`          // "from" or "to"
	Candidate string `json:"candidate"`      // YYYY-MM-DD, empty clears
	From      string `json:"from,omitempty"` // current from value
	To        string `json:"to,omitempty"`   // current to value
	Today     string `json:"today,omitempty"`
}

// ValidateResponse reports whether the edit is accepted.
type ValidateResponse struct {
	Valid bool   `json:"valid"`
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
}

// handleValidate checks one date edit.
// POST /api/availability/validate
func (s *HTTPServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability_validate")
	if !methodAllowed(w, r, http.MethodPost) {
		return
	}

	var req ValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	dates, err := parseDates(map[string]string{
		"candidate": req.Candidate,
		"from":      req.From,
		"to":        req.To,
		"today":     req.Today,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	today := dates["today"]
	if today.IsZero() {
		today = s.svc.Today()
	}

	var res availability.Result
	switch req.Field {
	case availability.FieldFrom.String():
		res = availability.ValidateFrom(dates["candidate"], dates["to"], today)
	case availability.FieldTo.String():
		res = availability.ValidateTo(dates["candidate"], dates["from"], today)
	default:
		writeError(w, http.StatusBadRequest, `field must be "from" or "to"`)
		return
	}

	if !res.Valid() {
		metrics.IncValidationFailure(res.Field.String(), res.Kind.String())
		writeJSON(w, http.StatusOK, ValidateResponse{Kind: res.Kind.String(), Error: res.Message()})
		return
	}
	writeJSON(w, http.StatusOK, ValidateResponse{Valid: true})
}

// handleBounds returns the picker limits.
// GET /api/availability/bounds?from=YYYY-MM-DD&today=YYYY-MM-DD
func (s *HTTPServer) handleBounds(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability_bounds")
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	dates, err := parseDates(map[string]string{"from": q.Get("from"), "today": q.Get("today")})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	today := dates["today"]
	if today.IsZero() {
		today = s.svc.Today()
	}

	writeJSON(w, http.StatusOK, availability.Bounds(dates["from"], today))
}

func parseDates(raw map[string]string) (map[string]availability.Date, error) {
	out := make(map[string]availability.Date, len(raw))
	for name, v := range raw {
		d, err := availability.ParseDate(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = d
	}
	return out, nil
}
