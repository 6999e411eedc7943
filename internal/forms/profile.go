package forms

import (
	"regexp"
	"strings"
	"time"

	"workload/internal/models"
)

// Cluster selection modes.
const (
	ClusterModeSingle   = "Single"
	ClusterModeMultiple = "Multiple"
)

// MaxClusters is the cap on clusters in multiple mode.
const MaxClusters = 2

var emailPattern = regexp.MustCompile(`(?i)^[a-z0-9.]+@workload\.com$`)

// ProfileForm is the identity part of an employee record.
type ProfileForm struct {
	EmployeeID       models.Text `json:"employee_id"`
	Name             string      `json:"name"`
	Email            string      `json:"email"`
	Role             string      `json:"role"`
	OtherRole        string      `json:"other_role,omitempty"`
	ClusterMode      string      `json:"cluster_mode"`
	SelectedClusters []string    `json:"clusters"`
}

// ProfileFromEmployee populates a form from a backend record.
func ProfileFromEmployee(e *models.Employee) *ProfileForm {
	f := &ProfileForm{
		EmployeeID:       e.EmployeeID,
		Name:             e.Name,
		Email:            e.Email,
		Role:             e.Role,
		SelectedClusters: append([]string{}, e.Clusters...),
		ClusterMode:      ClusterModeSingle,
	}
	if len(e.Clusters) > 1 {
		f.ClusterMode = ClusterModeMultiple
	}
	return f
}

// SetClusterMode switches mode; going back to single keeps the first cluster.
func (f *ProfileForm) SetClusterMode(mode string) {
	f.ClusterMode = mode
	if mode == ClusterModeSingle && len(f.SelectedClusters) > 1 {
		f.SelectedClusters = f.SelectedClusters[:1]
	}
}

// ToggleCluster selects val. Single mode replaces the selection; multiple
// mode toggles it, up to MaxClusters.
func (f *ProfileForm) ToggleCluster(val string) {
	if f.ClusterMode != ClusterModeMultiple {
		f.SelectedClusters = []string{val}
		return
	}
	for _, c := range f.SelectedClusters {
		if c == val {
			f.SelectedClusters = remove(f.SelectedClusters, val)
			return
		}
	}
	if len(f.SelectedClusters) < MaxClusters {
		f.SelectedClusters = append(f.SelectedClusters, val)
	}
}

// ValidEmail reports whether v is a company address.
func ValidEmail(v string) bool {
	return emailPattern.MatchString(v)
}

// Errors returns per-field messages.
func (f *ProfileForm) Errors() map[string]string {
	errs := map[string]string{}
	if strings.TrimSpace(f.Name) == "" {
		errs["name"] = "Name is required"
	}
	if strings.TrimSpace(f.EmployeeID.String()) == "" {
		errs["employee_id"] = "Employee Id required"
	}
	if !ValidEmail(f.Email) {
		errs["email"] = "Email must end with @workload.com"
	}
	if f.Role == "" {
		errs["role"] = "Role required"
	}
	switch {
	case len(f.SelectedClusters) == 0:
		errs["clusters"] = "Select at least one cluster"
	case f.ClusterMode == ClusterModeMultiple && len(f.SelectedClusters) < MaxClusters:
		errs["clusters"] = "Select two clusters"
	}
	return errs
}

func (f *ProfileForm) Valid() bool {
	return len(f.Errors()) == 0
}

// ProfilePayload is the PATCH body for a profile save.
type ProfilePayload struct {
	Name       string   `json:"name"`
	EmployeeID int64    `json:"employee_id"`
	Email      string   `json:"email"`
	Role       string   `json:"role"`
	Clusters   []string `json:"clusters"`
	UpdatedAt  string   `json:"updated_at"`
}

// Payload builds the PATCH body. The form must be valid and the employee
// id numeric.
func (f *ProfileForm) Payload(now time.Time) (ProfilePayload, error) {
	id, err := models.ParseEmployeeID(f.EmployeeID.String())
	if err != nil {
		return ProfilePayload{}, err
	}
	role := f.Role
	if role == models.RoleOther {
		role = strings.TrimSpace(f.OtherRole)
	}
	clusters := f.SelectedClusters
	if len(clusters) > MaxClusters {
		clusters = clusters[:MaxClusters]
	}
	return ProfilePayload{
		Name:       strings.TrimSpace(f.Name),
		EmployeeID: id,
		Email:      strings.TrimSpace(f.Email),
		Role:       role,
		Clusters:   append([]string{}, clusters...),
		UpdatedAt:  now.UTC().Format(time.RFC3339),
	}, nil
}
