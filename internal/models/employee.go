package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"workload/internal/availability"
)

// Availability statuses as stored by the employee backend.
const (
	StatusAvailable          = "Available"
	StatusOccupied           = "Occupied"
	StatusPartiallyAvailable = "Partially Available"
)

// ValidStatus reports whether s is one of the known statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusAvailable, StatusOccupied, StatusPartiallyAvailable:
		return true
	}
	return false
}

// DefaultWorkingDays is the working-days selection for a new record.
var DefaultWorkingDays = []string{"Mon", "Tue", "Wed", "Thu", "Fri"}

// HourOptions are the selectable per-day hours for partial availability.
var HourOptions = []int{2, 4, 6, 8}

// DefaultRoles and DefaultClusters seed the profile form choices when no
// options file is configured.
var (
	DefaultRoles = []string{
		"Software Developer",
		"Engagement Manager",
		"Tech Lead",
		"Data Analyst",
		"Consulting - PLM",
		"Consulting - Manufacturing",
		"Consulting - Aerospace",
		"Head of Bluebird",
		"Aerospace role",
		"Presentation role",
		RoleOther,
	}
	DefaultClusters = []string{"MEBM", "M&T", "S&PS Insitu", "S&PS Exsitu"}
)

// RoleOther means the free-text role field is used instead.
const RoleOther = "Other"

// Text decodes a JSON string, number or null into a string.
// The backend is not consistent about ids and hours.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*t = Text(n.String())
	return nil
}

func (t Text) String() string { return string(t) }

// Employee is the backend employee record.
type Employee struct {
	EmployeeID       Text              `json:"employee_id"`
	Name             string            `json:"name"`
	Email            string            `json:"email"`
	Role             string            `json:"role"`
	Clusters         []string          `json:"clusters"`
	CurrentProject   string            `json:"current_project"`
	Availability     string            `json:"availability"`
	HoursAvailable   Text              `json:"hours_available"`
	FromDate         availability.Date `json:"from_date"`
	ToDate           availability.Date `json:"to_date"`
	CurrentSkills    any               `json:"current_skills"`
	Interests        any               `json:"interests"`
	PreviousProjects any               `json:"previous_projects"`
	WorkingDays      []string          `json:"working_days"`
	UpdatedAt        string            `json:"updated_at,omitempty"`
}

// Skills merges current skills and interests, which the backend still
// stores separately.
func (e *Employee) Skills() []string {
	return MergeUnique(ParseListField(e.CurrentSkills), ParseListField(e.Interests))
}

// PreviousProjectList returns previous projects as a clean list.
func (e *Employee) PreviousProjectList() []string {
	return ParseListField(e.PreviousProjects)
}

// Record is a raw backend record, kept as a map so unknown fields survive
// session merges.
type Record map[string]any

// Employee decodes the record into an Employee.
func (r Record) Employee() (*Employee, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var e Employee
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode employee: %w", err)
	}
	return &e, nil
}

// Merge copies src over r, key by key.
func (r Record) Merge(src Record) Record {
	out := make(Record, len(r)+len(src))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

// ParseEmployeeID converts a form id to the numeric id the backend expects.
func ParseEmployeeID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("employee id must be numeric")
	}
	return id, nil
}
