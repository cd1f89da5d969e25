package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Class is a teaching group. Like every Active flag outside User, its flag is
// a pointer: nil takes the column default, so a client can create it inactive.
type Class struct {
	Base
	ClassName     string     `gorm:"not null" json:"class_name" validate:"required,max=100"`
	Grade         string     `json:"grade" validate:"omitempty,max=20"`
	SchoolAdminID *uuid.UUID `gorm:"type:uuid;index" json:"school_admin_id,omitempty"`
	Active        *bool      `gorm:"default:true" json:"active"`

	SchoolAdmin *SchoolAdmin `gorm:"foreignKey:SchoolAdminID" json:"school_admin,omitempty"`
	Students    []Student    `gorm:"foreignKey:ClassID" json:"students,omitempty"`
}

type Subject struct {
	Base
	Name          string     `gorm:"not null" json:"name" validate:"required,max=100"`
	Description   string     `json:"description" validate:"omitempty,max=1000"`
	SchoolAdminID *uuid.UUID `gorm:"type:uuid;index" json:"school_admin_id,omitempty"`
	Active        *bool      `gorm:"default:true" json:"active"`
}

// Period is a named slot in the school day, e.g. "First period" 08:00-08:45.
type Period struct {
	Base
	PeriodName    string         `gorm:"not null" json:"period_name" validate:"required,max=100"`
	StartTime     datatypes.Time `json:"start_time"`
	EndTime       datatypes.Time `json:"end_time"`
	SchoolAdminID *uuid.UUID     `gorm:"type:uuid;index" json:"school_admin_id,omitempty"`
	Active        *bool          `gorm:"default:true" json:"active"`
}

type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

type Day struct {
	Base
	Day    Weekday `gorm:"type:varchar(16);uniqueIndex;not null" json:"day" validate:"required,oneof=monday tuesday wednesday thursday friday saturday sunday"`
	Active *bool   `gorm:"default:true" json:"active"`
}

// Session is one timetable slot: a teacher teaching a subject to a class.
type Session struct {
	Base
	SchoolAdminID *uuid.UUID `gorm:"type:uuid;index" json:"school_admin_id,omitempty"`
	TeacherID     uuid.UUID  `gorm:"type:uuid;index;not null" json:"teacher_id" validate:"required"`
	ClassID       uuid.UUID  `gorm:"type:uuid;index;not null" json:"class_id" validate:"required"`
	SubjectID     uuid.UUID  `gorm:"type:uuid;index;not null" json:"subject_id" validate:"required"`
	PeriodID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"period_id" validate:"required"`
	DayID         uuid.UUID  `gorm:"type:uuid;index;not null" json:"day_id" validate:"required"`
	Active        *bool      `gorm:"default:true" json:"active"`

	Teacher *Teacher `gorm:"foreignKey:TeacherID" json:"teacher,omitempty"`
	Class   *Class   `gorm:"foreignKey:ClassID" json:"class,omitempty"`
	Subject *Subject `gorm:"foreignKey:SubjectID" json:"subject,omitempty"`
	Period  *Period  `gorm:"foreignKey:PeriodID" json:"period,omitempty"`
	Day     *Day     `gorm:"foreignKey:DayID" json:"day,omitempty"`
}
