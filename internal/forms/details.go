// Package forms holds the editable state of the employee screens and the
// rules that decide whether a form may be saved.
package forms

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"workload/internal/availability"
	"workload/internal/models"
)

// DetailsForm is the professional-status form of an employee.
type DetailsForm struct {
	CurrentProject   string            `json:"current_project"`
	Availability     string            `json:"availability"`
	HoursAvailable   models.Text       `json:"hours_available"`
	FromDate         availability.Date `json:"from_date"`
	ToDate           availability.Date `json:"to_date"`
	WorkingDays      []string          `json:"working_days"`
	Skills           []string          `json:"current_skills"`
	PreviousProjects []string          `json:"previous_projects"`

	// DateError is the message of the last rejected date edit.
	DateError string `json:"-"`
}

// NewDetailsForm returns an empty form with default status and working days.
func NewDetailsForm() *DetailsForm {
	return &DetailsForm{
		Availability: models.StatusOccupied,
		WorkingDays:  append([]string(nil), models.DefaultWorkingDays...),
		Skills:       []string{},
	}
}

// DetailsFromEmployee populates a form from a backend record.
func DetailsFromEmployee(e *models.Employee) *DetailsForm {
	f := NewDetailsForm()
	f.CurrentProject = e.CurrentProject
	if e.Availability != "" {
		f.Availability = e.Availability
	}
	f.HoursAvailable = e.HoursAvailable
	f.FromDate = e.FromDate
	f.ToDate = e.ToDate
	f.Skills = e.Skills()
	f.PreviousProjects = e.PreviousProjectList()
	if len(e.WorkingDays) > 0 {
		f.WorkingDays = append([]string(nil), e.WorkingDays...)
	}
	return f
}

// SetCurrentProject sets the project; picking a project moves an
// Available employee to Occupied.
func (f *DetailsForm) SetCurrentProject(name string) {
	f.CurrentProject = name
	if name != "" && f.Availability == models.StatusAvailable {
		f.Availability = models.StatusOccupied
	}
}

// SetFromDate applies a from-date edit. A rejected edit leaves the field
// unchanged and records the reason in DateError. A malformed value is
// rejected with ErrInvalidDate.
func (f *DetailsForm) SetFromDate(iso string, today availability.Date) (availability.Result, error) {
	return f.setDate(iso, today, availability.FieldFrom)
}

// SetToDate applies a to-date edit. See SetFromDate.
func (f *DetailsForm) SetToDate(iso string, today availability.Date) (availability.Result, error) {
	return f.setDate(iso, today, availability.FieldTo)
}

func (f *DetailsForm) setDate(iso string, today availability.Date, field availability.Field) (availability.Result, error) {
	f.DateError = ""
	candidate, err := availability.ParseDate(iso)
	if err != nil {
		f.DateError = "From date must be in YYYY-MM-DD format."
		if field == availability.FieldTo {
			f.DateError = "To date must be in YYYY-MM-DD format."
		}
		return availability.Result{Field: field}, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}

	var res availability.Result
	if field == availability.FieldFrom {
		res = availability.ValidateFrom(candidate, f.ToDate, today)
	} else {
		res = availability.ValidateTo(candidate, f.FromDate, today)
	}
	if !res.Valid() {
		f.DateError = res.Message()
		return res, nil
	}

	if field == availability.FieldFrom {
		f.FromDate = candidate
	} else {
		f.ToDate = candidate
	}
	return res, nil
}

// Window returns the current availability window.
func (f *DetailsForm) Window() availability.Window {
	return availability.Window{From: f.FromDate, To: f.ToDate}
}

// Bounds returns the date picker limits for the current state.
func (f *DetailsForm) Bounds(today availability.Date) availability.PickerBounds {
	return availability.Bounds(f.FromDate, today)
}

func (f *DetailsForm) AddSkill(s string) {
	f.Skills = addUnique(f.Skills, s)
}

func (f *DetailsForm) RemoveSkill(s string) {
	f.Skills = remove(f.Skills, s)
}

func (f *DetailsForm) AddPreviousProject(p string) {
	f.PreviousProjects = addUnique(f.PreviousProjects, p)
}

func (f *DetailsForm) RemovePreviousProject(p string) {
	f.PreviousProjects = remove(f.PreviousProjects, p)
}

// ToggleWorkingDay adds or removes a day abbreviation.
func (f *DetailsForm) ToggleWorkingDay(day string) {
	for _, d := range f.WorkingDays {
		if d == day {
			f.WorkingDays = remove(f.WorkingDays, day)
			return
		}
	}
	f.WorkingDays = append(f.WorkingDays, day)
}

func (f *DetailsForm) partial() bool {
	return f.Availability == models.StatusPartiallyAvailable
}

// Errors returns per-field messages; empty when the field is fine.
func (f *DetailsForm) Errors() map[string]string {
	errs := map[string]string{}
	if !f.partial() {
		return errs
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(f.HoursAvailable.String()), 64); err != nil {
		errs["hours"] = "Specify hours"
	}
	if f.FromDate.IsZero() {
		errs["fromDate"] = "From date required"
	}
	if f.ToDate.IsZero() {
		errs["toDate"] = "To date required"
	}
	return errs
}

// Valid reports whether the form can be saved.
func (f *DetailsForm) Valid() bool {
	return len(f.Errors()) == 0 && f.DateError == ""
}

// Recheck revalidates a form that arrived in one piece rather than through
// SetFromDate/SetToDate. Only a partially available window is checked, and
// bounds equal to the stored window are not held to the past-date rule.
func (f *DetailsForm) Recheck(stored availability.Window, today availability.Date) availability.Result {
	f.DateError = ""
	if !f.partial() {
		return availability.Result{}
	}
	res := f.Window().ValidateChanges(stored, today)
	if !res.Valid() {
		f.DateError = res.Message()
	}
	return res
}

// DetailsPayload is the PATCH body for a details save.
type DetailsPayload struct {
	CurrentProject string             `json:"current_project"`
	Availability   string             `json:"availability"`
	HoursAvailable *float64           `json:"hours_available"`
	FromDate       *availability.Date `json:"from_date"`
	ToDate         *availability.Date `json:"to_date"`
	CurrentSkills  []string           `json:"current_skills"`
	WorkingDays    []string           `json:"working_days"`
	UpdatedAt      string             `json:"updated_at"`
}

// Payload builds the PATCH body. Hours and dates are only sent for a
// partially available employee.
func (f *DetailsForm) Payload(now time.Time) DetailsPayload {
	p := DetailsPayload{
		CurrentProject: f.CurrentProject,
		Availability:   f.Availability,
		CurrentSkills:  nonNil(f.Skills),
		WorkingDays:    nonNil(f.WorkingDays),
		UpdatedAt:      now.UTC().Format(time.RFC3339),
	}
	if f.partial() {
		if h, err := strconv.ParseFloat(strings.TrimSpace(f.HoursAvailable.String()), 64); err == nil {
			p.HoursAvailable = &h
		}
		if !f.FromDate.IsZero() {
			from := f.FromDate
			p.FromDate = &from
		}
		if !f.ToDate.IsZero() {
			to := f.ToDate
			p.ToDate = &to
		}
	}
	return p
}

func addUnique(list []string, s string) []string {
	if s == "" {
		return list
	}
	for _, item := range list {
		if item == s {
			return list
		}
	}
	return append(list, s)
}

func remove(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != s {
			out = append(out, item)
		}
	}
	return out
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
