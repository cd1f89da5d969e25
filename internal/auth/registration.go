package auth

import (
	"errors"

	"github.com/google/uuid"
	"github.com/hugh/schoolhub/internal/database/models"
)

// AccountInput is the part of a signup shared by every role.
type AccountInput struct {
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,password"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name" validate:"required,max=100"`
	LastName        string `json:"last_name" validate:"required,max=100"`
	PhoneNumber     string `json:"phone_number" validate:"omitempty,phone"`
	Address         string `json:"address" validate:"omitempty,max=255"`
	DOB             string `json:"dob" validate:"required,datetime=2006-01-02"`
}

// Registration is the role-specific part of a signup. The implementations
// below are the complete set; createProfile switches over them.
type Registration interface {
	Role() models.Role
	isRegistration()
}

// AdminRegistration creates an admin together with the school they run.
type AdminRegistration struct {
	SchoolName        string `json:"school_name" validate:"required,max=200"`
	SchoolAddress     string `json:"school_address" validate:"omitempty,max=255"`
	SchoolPhoneNumber string `json:"school_phone_number" validate:"omitempty,phone"`
}

// TeacherRegistration attaches a teacher to an existing school admin.
type TeacherRegistration struct {
	SchoolAdminID uuid.UUID `json:"school_admin_id"`
}

// StudentRegistration attaches a student account to a school admin and,
// optionally, a class.
type StudentRegistration struct {
	SchoolAdminID        *uuid.UUID `json:"school_admin_id,omitempty"`
	ClassID              *uuid.UUID `json:"class_id,omitempty"`
	GuardianName         string     `json:"guardian_name" validate:"omitempty,max=100"`
	GuardianEmail        string     `json:"guardian_email" validate:"omitempty,email"`
	GuardianRelationship string     `json:"guardian_relationship" validate:"omitempty,max=50"`
	GuardianContact      string     `json:"guardian_contact" validate:"omitempty,phone"`
}

func (AdminRegistration) Role() models.Role   { return models.RoleAdmin }
func (TeacherRegistration) Role() models.Role { return models.RoleTeacher }
func (StudentRegistration) Role() models.Role { return models.RoleStudent }

func (AdminRegistration) isRegistration()   {}
func (TeacherRegistration) isRegistration() {}
func (StudentRegistration) isRegistration() {}

var errNoRegistration = errors.New("pending account carries no registration")

// PendingAccount is everything needed to create an account once the email
// address is proven. It only ever travels sealed inside an ephemeral token.
type PendingAccount struct {
	Email        string      `json:"email"`
	PasswordHash string      `json:"password_hash"`
	Info         PendingInfo `json:"info"`
	NonceHash    string      `json:"nonce_hash"`

	Admin   *AdminRegistration   `json:"admin,omitempty"`
	Teacher *TeacherRegistration `json:"teacher,omitempty"`
	Student *StudentRegistration `json:"student,omitempty"`
}

type PendingInfo struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Address     string `json:"address,omitempty"`
	DOB         string `json:"dob"`
}

func (p *PendingAccount) setRegistration(reg Registration) {
	switch r := reg.(type) {
	case AdminRegistration:
		p.Admin = &r
	case *AdminRegistration:
		p.Admin = r
	case TeacherRegistration:
		p.Teacher = &r
	case *TeacherRegistration:
		p.Teacher = r
	case StudentRegistration:
		p.Student = &r
	case *StudentRegistration:
		p.Student = r
	}
}

// Registration returns the single variant the account was created with.
func (p *PendingAccount) Registration() (Registration, error) {
	var found []Registration
	if p.Admin != nil {
		found = append(found, *p.Admin)
	}
	if p.Teacher != nil {
		found = append(found, *p.Teacher)
	}
	if p.Student != nil {
		found = append(found, *p.Student)
	}
	if len(found) != 1 {
		return nil, errNoRegistration
	}
	return found[0], nil
}
