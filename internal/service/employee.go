package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"workload/internal/availability"
	"workload/internal/backend"
	"workload/internal/events"
	"workload/internal/forms"
	"workload/internal/metrics"
	"workload/internal/models"
	"workload/internal/session"

	"github.com/rs/zerolog"
)

const (
	FormDetails  = "details"
	FormProfile  = "profile"
	FormPassword = "password"
)

var (
	ErrMissingEmployeeID     = errors.New("missing employee id")
	ErrValidation            = errors.New("validation failed")
	ErrSaveInProgress        = errors.New("save already in progress")
	ErrPasswordResetDisabled = errors.New("password reset is disabled")
)

// FormError is a rejected submission. Message is what the user is shown.
type FormError struct {
	Err     error
	Message string
	Fields  map[string]string
}

func (e *FormError) Error() string { return e.Message }
func (e *FormError) Unwrap() error { return e.Err }

// Backend is the employee store the service writes through.
type Backend interface {
	GetEmployee(ctx context.Context, id string) (models.Record, error)
	ListProjects(ctx context.Context) ([]string, error)
	PatchEmployee(ctx context.Context, id string, payload any) (models.Record, error)
	UpdatePassword(ctx context.Context, req backend.PasswordUpdate, token string) error
}

// EventBus receives save outcomes.
type EventBus interface {
	PublishJSON(eventType string, payload interface{}) error
}

// EmployeeService validates edits and writes them to the backend.
type EmployeeService struct {
	backend  Backend
	sessions session.Store
	bus      EventBus
	loc      *time.Location
	logger   *zerolog.Logger

	passwordResetEnabled bool
	now                  func() time.Time

	inflight sync.Map
}

func NewEmployeeService(b Backend, sessions session.Store, bus EventBus, loc *time.Location, passwordResetEnabled bool, logger *zerolog.Logger) *EmployeeService {
	if loc == nil {
		loc = time.UTC
	}
	return &EmployeeService{
		backend:              b,
		sessions:             sessions,
		bus:                  bus,
		loc:                  loc,
		logger:               logger,
		passwordResetEnabled: passwordResetEnabled,
		now:                  time.Now,
	}
}

// Today is the calendar date date rules are checked against.
func (s *EmployeeService) Today() availability.Date {
	return availability.DateOf(s.now().In(s.loc))
}

// LoadEmployee fetches the record and refreshes the session copy.
func (s *EmployeeService) LoadEmployee(ctx context.Context, sid, id string) (models.Record, error) {
	rec, err := s.backend.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.remember(ctx, sid, rec), nil
}

// LoadDetailsForm returns the details form populated from the backend record.
func (s *EmployeeService) LoadDetailsForm(ctx context.Context, sid, id string) (*forms.DetailsForm, error) {
	e, err := s.loadTyped(ctx, sid, id)
	if err != nil {
		return nil, err
	}
	return forms.DetailsFromEmployee(e), nil
}

// LoadProfileForm returns the profile form populated from the backend record.
func (s *EmployeeService) LoadProfileForm(ctx context.Context, sid, id string) (*forms.ProfileForm, error) {
	e, err := s.loadTyped(ctx, sid, id)
	if err != nil {
		return nil, err
	}
	return forms.ProfileFromEmployee(e), nil
}

func (s *EmployeeService) loadTyped(ctx context.Context, sid, id string) (*models.Employee, error) {
	rec, err := s.LoadEmployee(ctx, sid, id)
	if err != nil {
		return nil, err
	}
	return rec.Employee()
}

func (s *EmployeeService) Projects(ctx context.Context) ([]string, error) {
	return s.backend.ListProjects(ctx)
}

// SaveDetails revalidates the form against today and sends it.
func (s *EmployeeService) SaveDetails(ctx context.Context, sid, employeeID string, f *forms.DetailsForm) (models.Record, error) {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return nil, &FormError{Err: ErrMissingEmployeeID, Message: "Missing employee_id — cannot save."}
	}

	stored := s.storedWindow(ctx, employeeID, f)
	if res := f.Recheck(stored, s.Today()); !res.Valid() {
		metrics.IncValidationFailure(res.Field.String(), res.Kind.String())
	}
	if !f.Valid() {
		fields := f.Errors()
		if f.DateError != "" {
			fields["date"] = f.DateError
		}
		return nil, &FormError{Err: ErrValidation, Message: "Please fix validation errors.", Fields: fields}
	}

	release, err := s.acquire(FormDetails, employeeID)
	if err != nil {
		return nil, err
	}
	defer release()

	payload := f.Payload(s.now())
	rec, err := s.backend.PatchEmployee(ctx, employeeID, payload)
	if err != nil {
		s.failed(events.DetailsSaveFailed, FormDetails, employeeID, err)
		return nil, err
	}

	s.succeeded(events.DetailsSaved, FormDetails, employeeID, payload)
	return s.remember(ctx, sid, rec), nil
}

// SaveProfile sends the profile form. originalID is the id the record is
// stored under; the form may carry a changed id.
func (s *EmployeeService) SaveProfile(ctx context.Context, sid, originalID string, f *forms.ProfileForm) (models.Record, error) {
	originalID = strings.TrimSpace(originalID)
	if originalID == "" {
		return nil, &FormError{Err: ErrMissingEmployeeID, Message: "Missing original employee ID."}
	}
	if !f.Valid() {
		return nil, &FormError{Err: ErrValidation, Message: "Fix errors before saving.", Fields: f.Errors()}
	}
	payload, err := f.Payload(s.now())
	if err != nil {
		return nil, &FormError{
			Err:     ErrValidation,
			Message: "Fix errors before saving.",
			Fields:  map[string]string{"employee_id": "Employee Id must be a number"},
		}
	}

	release, err := s.acquire(FormProfile, originalID)
	if err != nil {
		return nil, err
	}
	defer release()

	rec, err := s.backend.PatchEmployee(ctx, originalID, payload)
	if err != nil {
		s.failed(events.ProfileSaveFailed, FormProfile, originalID, err)
		return nil, err
	}

	s.succeeded(events.ProfileSaved, FormProfile, originalID, payload)
	return s.remember(ctx, sid, rec), nil
}

// UpdatePassword forwards a password change for the session's employee and
// ends the session on success.
func (s *EmployeeService) UpdatePassword(ctx context.Context, sid, token string, f *forms.PasswordForm) error {
	if !s.passwordResetEnabled {
		return ErrPasswordResetDisabled
	}
	if msg := f.Check(); msg != "" {
		return &FormError{Err: ErrValidation, Message: msg}
	}

	var employeeID string
	if sid != "" {
		rec, err := s.sessions.Get(ctx, sid)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if v, ok := rec["employee_id"]; ok && v != nil {
			employeeID = strings.TrimSpace(fmt.Sprint(v))
		}
	}

	release, err := s.acquire(FormPassword, employeeID+"|"+sid)
	if err != nil {
		return err
	}
	defer release()

	err = s.backend.UpdatePassword(ctx, backend.PasswordUpdate{
		EmployeeID:      employeeID,
		CurrentPassword: f.CurrentPassword,
		NewPassword:     f.NewPassword,
	}, token)
	if err != nil {
		metrics.IncSave(FormPassword, "failed")
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			return err
		}
		s.logger.Error().Err(err).Str("employee_id", employeeID).Msg("password update failed")
		return &FormError{Err: err, Message: "Failed to update password."}
	}

	f.Clear()
	metrics.IncSave(FormPassword, "saved")
	s.publish(events.PasswordUpdated, events.SaveOutcome{EmployeeID: employeeID, Form: FormPassword})
	if sid != "" {
		if err := s.sessions.Clear(ctx, sid); err != nil {
			s.logger.Warn().Err(err).Msg("failed to clear session after password change")
		}
	}
	return nil
}

// storedWindow returns the window currently saved for the employee, so that
// bounds the user did not touch are not rejected for having started. Only a
// partially available form with a date set needs it; a failed lookup yields
// an empty window and every bound is checked in full.
func (s *EmployeeService) storedWindow(ctx context.Context, employeeID string, f *forms.DetailsForm) availability.Window {
	w := f.Window()
	if f.Availability != models.StatusPartiallyAvailable || (w.From.IsZero() && w.To.IsZero()) {
		return availability.Window{}
	}
	rec, err := s.backend.GetEmployee(ctx, employeeID)
	if err != nil {
		s.logger.Warn().Err(err).Str("employee_id", employeeID).Msg("stored window unavailable, checking dates in full")
		return availability.Window{}
	}
	e, err := rec.Employee()
	if err != nil {
		s.logger.Warn().Err(err).Str("employee_id", employeeID).Msg("stored record not decodable")
		return availability.Window{}
	}
	return availability.Window{From: e.FromDate, To: e.ToDate}
}

func (s *EmployeeService) acquire(form, id string) (func(), error) {
	key := form + ":" + id
	if _, busy := s.inflight.LoadOrStore(key, struct{}{}); busy {
		return nil, ErrSaveInProgress
	}
	return func() { s.inflight.Delete(key) }, nil
}

// remember merges rec into the session. The merged record is returned;
// without a session the backend record is returned as is.
func (s *EmployeeService) remember(ctx context.Context, sid string, rec models.Record) models.Record {
	if sid == "" {
		return rec
	}
	merged, err := s.sessions.Merge(ctx, sid, rec)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to update session record")
		return rec
	}
	return merged
}

func (s *EmployeeService) succeeded(eventType, form, employeeID string, body any) {
	metrics.IncSave(form, "saved")
	s.logger.Info().Str("form", form).Str("employee_id", employeeID).Msg("employee saved")
	s.publish(eventType, events.SaveOutcome{EmployeeID: employeeID, Form: form, Body: body})
}

func (s *EmployeeService) failed(eventType, form, employeeID string, err error) {
	metrics.IncSave(form, "failed")
	s.logger.Warn().Err(err).Str("form", form).Str("employee_id", employeeID).Msg("employee save failed")
	s.publish(eventType, events.SaveOutcome{EmployeeID: employeeID, Form: form, Error: err.Error()})
}

func (s *EmployeeService) publish(eventType string, out events.SaveOutcome) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, out); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("event subscriber failed")
	}
}
