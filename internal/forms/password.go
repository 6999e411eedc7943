package forms

// MinPasswordLength is the shortest accepted new password.
const MinPasswordLength = 6

// PasswordForm is the password reset form.
type PasswordForm struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Check returns the first problem with the form, or "" if it can be sent.
func (f *PasswordForm) Check() string {
	switch {
	case f.CurrentPassword == "" || f.NewPassword == "" || f.ConfirmPassword == "":
		return "Please fill in all fields."
	case f.NewPassword != f.ConfirmPassword:
		return "New passwords do not match."
	case f.CurrentPassword == f.NewPassword:
		return "New Password cannot be the same as Current Password."
	case len(f.NewPassword) < MinPasswordLength:
		return "Password must be at least 6 characters long."
	}
	return ""
}

// Clear wipes all fields, as done after a successful update.
func (f *PasswordForm) Clear() {
	*f = PasswordForm{}
}
