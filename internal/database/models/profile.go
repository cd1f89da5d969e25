package models

import "github.com/google/uuid"

// Info holds the personal details shared by every profile.
type Info struct {
	Base
	FirstName   string `gorm:"not null" json:"first_name" validate:"required,max=100"`
	LastName    string `gorm:"not null" json:"last_name" validate:"required,max=100"`
	Photo       string `gorm:"default:'default.jpg'" json:"photo"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,max=32"`
	Address     string `json:"address" validate:"omitempty,max=255"`
	DOB         Date   `gorm:"column:dob" json:"dob"`
	Active      *bool  `gorm:"default:true" json:"active"`
}

func (Info) TableName() string {
	return "info"
}

func (i *Info) FullName() string {
	return i.FirstName + " " + i.LastName
}

type Admin struct {
	Base
	UserID uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"user_id" validate:"required"`
	InfoID *uuid.UUID `gorm:"type:uuid" json:"info_id,omitempty"`
	Active *bool      `gorm:"default:true" json:"active"`

	User         *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Info         *Info         `gorm:"foreignKey:InfoID" json:"info,omitempty"`
	SchoolAdmins []SchoolAdmin `gorm:"foreignKey:AdminID" json:"school_admins,omitempty"`
}

type Teacher struct {
	Base
	UserID        uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"user_id" validate:"required"`
	SchoolAdminID uuid.UUID  `gorm:"type:uuid;index;not null" json:"school_admin_id" validate:"required"`
	InfoID        *uuid.UUID `gorm:"type:uuid" json:"info_id,omitempty"`
	Active        *bool      `gorm:"default:true" json:"active"`

	User        *User        `gorm:"foreignKey:UserID" json:"user,omitempty"`
	SchoolAdmin *SchoolAdmin `gorm:"foreignKey:SchoolAdminID" json:"school_admin,omitempty"`
	Info        *Info        `gorm:"foreignKey:InfoID" json:"info,omitempty"`
}

// Student may exist without an account when added directly by staff.
type Student struct {
	Base
	UserID               *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"user_id,omitempty"`
	SchoolAdminID        *uuid.UUID `gorm:"type:uuid;index" json:"school_admin_id,omitempty"`
	ClassID              *uuid.UUID `gorm:"type:uuid;index" json:"class_id,omitempty"`
	InfoID               *uuid.UUID `gorm:"type:uuid" json:"info_id,omitempty"`
	GuardianName         string     `json:"guardian_name" validate:"omitempty,max=100"`
	GuardianEmail        string     `json:"guardian_email" validate:"omitempty,email"`
	GuardianRelationship string     `json:"guardian_relationship" validate:"omitempty,max=50"`
	GuardianContact      string     `json:"guardian_contact" validate:"omitempty,max=32"`
	Active               *bool      `gorm:"default:true" json:"active"`

	User        *User        `gorm:"foreignKey:UserID" json:"user,omitempty"`
	SchoolAdmin *SchoolAdmin `gorm:"foreignKey:SchoolAdminID" json:"school_admin,omitempty"`
	Class       *Class       `gorm:"foreignKey:ClassID" json:"class,omitempty"`
	Info        *Info        `gorm:"foreignKey:InfoID" json:"info,omitempty"`
	Attendance  []Attendance `gorm:"foreignKey:StudentID" json:"attendance,omitempty"`
}
