package dto

import "github.com/hugh/schoolhub/internal/auth"

// AdminSignupRequest is the public signup body: the account and the school
// its admin will run, flattened into one object.
type AdminSignupRequest struct {
	auth.AccountInput
	auth.AdminRegistration
}

type TeacherSignupRequest struct {
	auth.AccountInput
	auth.TeacherRegistration
}

type StudentSignupRequest struct {
	auth.AccountInput
	auth.StudentRegistration
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type UpdatePasswordRequest struct {
	PasswordCurrent string `json:"password_current"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}
