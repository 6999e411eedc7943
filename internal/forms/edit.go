package forms

import (
	"errors"
	"fmt"

	"workload/internal/availability"
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrUnknownAction = errors.New("unknown action")
)

// Details form edits, one per control on the details screen.
const (
	ActionSetFromDate           = "set_from_date"
	ActionSetToDate             = "set_to_date"
	ActionSetCurrentProject     = "set_current_project"
	ActionAddSkill              = "add_skill"
	ActionRemoveSkill           = "remove_skill"
	ActionAddPreviousProject    = "add_previous_project"
	ActionRemovePreviousProject = "remove_previous_project"
	ActionToggleWorkingDay      = "toggle_working_day"
)

// Profile form edits.
const (
	ActionSetClusterMode = "set_cluster_mode"
	ActionToggleCluster  = "toggle_cluster"
)

// Apply performs one edit on the details form. A rejected date edit is not
// an error: the field keeps its value and DateError says why.
func (f *DetailsForm) Apply(action, value string, today availability.Date) error {
	switch action {
	case ActionSetFromDate:
		_, err := f.SetFromDate(value, today)
		return err
	case ActionSetToDate:
		_, err := f.SetToDate(value, today)
		return err
	case ActionSetCurrentProject:
		f.SetCurrentProject(value)
	case ActionAddSkill:
		f.AddSkill(value)
	case ActionRemoveSkill:
		f.RemoveSkill(value)
	case ActionAddPreviousProject:
		f.AddPreviousProject(value)
	case ActionRemovePreviousProject:
		f.RemovePreviousProject(value)
	case ActionToggleWorkingDay:
		f.ToggleWorkingDay(value)
	default:
		return fmt.Errorf("%w %q", ErrUnknownAction, action)
	}
	return nil
}

// Apply performs one edit on the profile form.
func (f *ProfileForm) Apply(action, value string) error {
	switch action {
	case ActionSetClusterMode:
		if value != ClusterModeSingle && value != ClusterModeMultiple {
			return fmt.Errorf("cluster mode must be %q or %q", ClusterModeSingle, ClusterModeMultiple)
		}
		f.SetClusterMode(value)
	case ActionToggleCluster:
		f.ToggleCluster(value)
	default:
		return fmt.Errorf("%w %q", ErrUnknownAction, action)
	}
	return nil
}
