package api

import (
	"errors"
	"net/http"
	"strconv"

	"workload/internal/availability"
	"workload/internal/backend"
	"workload/internal/config"
	"workload/internal/forms"
	"workload/internal/metrics"
	"workload/internal/service"
)

// handleEmployee returns the backend record and refreshes the session copy.
// GET /api/employees/{id}
func (s *HTTPServer) handleEmployee(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("employee_get")
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}

	rec, err := s.svc.LoadEmployee(r.Context(), sessionID(r), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleProjects lists project names for the project picker.
// GET /api/projects
func (s *HTTPServer) handleProjects(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("projects")
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}

	names, err := s.svc.Projects(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": names})
}

// handleOptions lists the roles and clusters the profile form offers.
// GET /api/options
func (s *HTTPServer) handleOptions(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("options")
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.currentOptions())
}

// handleDetailsForm returns the details form for an employee with the
// date picker limits.
// GET /api/employees/{id}/details
func (s *HTTPServer) handleDetailsForm(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("employee_details_form")

	form, err := s.svc.LoadDetailsForm(r.Context(), sessionID(r), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailsState(form, s.svc.Today()))
}

// handleProfileForm returns the profile form for an employee.
// GET /api/employees/{id}/profile
func (s *HTTPServer) handleProfileForm(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("employee_profile_form")

	form, err := s.svc.LoadProfileForm(r.Context(), sessionID(r), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileState(form))
}

// DetailsEditRequest carries the current form and one edit to apply.
type DetailsEditRequest struct {
	Form   forms.DetailsForm `json:"form"`
	Action string            `json:"action"`
	Value  string            `json:"value"`
}

// ProfileEditRequest is DetailsEditRequest for the profile form.
type ProfileEditRequest struct {
	Form   forms.ProfileForm `json:"form"`
	Action string            `json:"action"`
	Value  string            `json:"value"`
}

// handleEditDetails applies one edit to a details form and returns the new
// state. A rejected date edit answers 200 with date_error set.
// POST /api/forms/details/edit
func (s *HTTPServer) handleEditDetails(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("details_edit")
	if !methodAllowed(w, r, http.MethodPost) {
		return
	}

	var req DetailsEditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	today := s.svc.Today()
	form := &req.Form
	if err := form.Apply(req.Action, req.Value, today); err != nil && !errors.Is(err, forms.ErrInvalidDate) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, detailsState(form, today))
}

// handleEditProfile applies one edit to a profile form.
// POST /api/forms/profile/edit
func (s *HTTPServer) handleEditProfile(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("profile_edit")
	if !methodAllowed(w, r, http.MethodPost) {
		return
	}

	var req ProfileEditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Form.Apply(req.Action, req.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profileState(&req.Form))
}

func detailsState(f *forms.DetailsForm, today availability.Date) map[string]any {
	return map[string]any{
		"form":       f,
		"date_error": f.DateError,
		"errors":     f.Errors(),
		"valid":      f.Valid(),
		"bounds":     f.Bounds(today),
	}
}

func profileState(f *forms.ProfileForm) map[string]any {
	return map[string]any{
		"form":   f,
		"errors": f.Errors(),
		"valid":  f.Valid(),
	}
}

// handleHistory lists recent save attempts for an employee.
// GET /api/employees/{id}/history?limit=
func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("employee_history")
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}
	if s.history == nil {
		writeErrorCode(w, http.StatusNotFound, "disabled", "Save history is not enabled.")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	attempts, err := s.history.RecentSaveAttempts(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("load save history failed")
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

// handleAuditExport builds and delivers the audit report immediately.
// Old entries are not pruned.
// POST /api/admin/audit/export
func (s *HTTPServer) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("audit_export")
	if !methodAllowed(w, r, http.MethodPost) {
		return
	}
	if s.reports == nil {
		writeErrorCode(w, http.StatusNotFound, "disabled", "Audit export is not enabled.")
		return
	}
	if err := s.reports.ExportNow(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("audit export failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Audit report exported."})
}

// handleSaveDetails validates and saves the availability details form.
// PATCH /api/employees/{id}/details
func (s *HTTPServer) handleSaveDetails(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("employee_details")

	form := forms.NewDetailsForm()
	if err := decodeJSON(r, form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := s.svc.SaveDetails(r.Context(), sessionID(r), r.PathValue("id"), form)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Details saved!", "data": rec})
}

// handleSaveProfile validates and saves the profile form.
// PATCH /api/employees/{id}/profile
func (s *HTTPServer) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("employee_profile")

	var form forms.ProfileForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if fields := s.checkOptions(&form); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Fix errors before saving.", "fields": fields})
		return
	}

	rec, err := s.svc.SaveProfile(r.Context(), sessionID(r), r.PathValue("id"), &form)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Profile updated successfully!", "data": rec})
}

// handleUpdatePassword forwards a password change.
// POST /api/auth/update-password
func (s *HTTPServer) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("update_password")
	if !methodAllowed(w, r, http.MethodPost) {
		return
	}

	var form forms.PasswordForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.svc.UpdatePassword(r.Context(), sessionID(r), bearerToken(r), &form); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password updated successfully!"})
}

func (s *HTTPServer) currentOptions() config.Options {
	if s.options == nil {
		return config.Options{}
	}
	return s.options.Get()
}

// checkOptions rejects roles and clusters that are not on the current lists.
// An empty list accepts anything.
func (s *HTTPServer) checkOptions(f *forms.ProfileForm) map[string]string {
	opts := s.currentOptions()
	fields := map[string]string{}
	if f.Role != "" && len(opts.Roles) > 0 && !config.Has(opts.Roles, f.Role) {
		fields["role"] = "Unknown role"
	}
	if len(opts.Clusters) > 0 {
		for _, c := range f.SelectedClusters {
			if !config.Has(opts.Clusters, c) {
				fields["clusters"] = "Unknown cluster " + c
				break
			}
		}
	}
	return fields
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var (
		formErr *service.FormError
		apiErr  *backend.APIError
	)
	switch {
	case errors.Is(err, service.ErrPasswordResetDisabled):
		writeErrorCode(w, http.StatusForbidden, "disabled", "Password reset is currently disabled.")
	case errors.Is(err, service.ErrSaveInProgress):
		writeErrorCode(w, http.StatusConflict, "in_progress", "A save is already in progress.")
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrMissingEmployeeID):
		body := map[string]any{"error": err.Error()}
		if errors.As(err, &formErr) && len(formErr.Fields) > 0 {
			body["fields"] = formErr.Fields
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.Is(err, backend.ErrNotFound):
		writeError(w, http.StatusNotFound, "employee not found")
	case errors.As(err, &formErr):
		s.log.Error().Err(err).Msg("backend request failed")
		writeError(w, http.StatusBadGateway, formErr.Message)
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status < 400 || status >= 500 {
			status = http.StatusBadGateway
		}
		writeError(w, status, apiErr.Message)
	default:
		s.log.Error().Err(err).Msg("backend request failed")
		writeError(w, http.StatusBadGateway, "An error occurred. Please try again.")
	}
}
