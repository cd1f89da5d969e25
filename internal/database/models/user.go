package models

import (
	"time"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

type User struct {
	Base
	Email             string     `gorm:"uniqueIndex;not null" json:"email" validate:"required,email"`
	PasswordHash      string     `gorm:"not null" json:"-"`
	Role              Role       `gorm:"type:varchar(16);default:'student';not null" json:"role" validate:"required,oneof=admin teacher student"`
	EmailVerified     bool       `gorm:"default:false" json:"email_verified"`
	PasswordChangedAt *time.Time `json:"password_changed_at,omitempty"`
	Active            bool       `gorm:"default:true;index" json:"-"`

	// Password reset; only the SHA-256 of the emailed nonce is stored
	PasswordResetToken   string     `gorm:"index" json:"-"`
	PasswordResetExpires *time.Time `json:"-"`

	// Relationships
	Admin   *Admin   `gorm:"foreignKey:UserID" json:"admin,omitempty"`
	Teacher *Teacher `gorm:"foreignKey:UserID" json:"teacher,omitempty"`
	Student *Student `gorm:"foreignKey:UserID" json:"student,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// ChangedPasswordAfter reports whether the password changed after a token
// issued at issuedAt. Both sides are kept at millisecond precision.
func (u *User) ChangedPasswordAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Truncate(time.Millisecond).After(issuedAt)
}

// ProfileInfo returns the Info of whichever role profile is loaded.
func (u *User) ProfileInfo() *Info {
	switch {
	case u.Admin != nil:
		return u.Admin.Info
	case u.Teacher != nil:
		return u.Teacher.Info
	case u.Student != nil:
		return u.Student.Info
	}
	return nil
}
