package models

import "github.com/google/uuid"

type AttendanceStatus string

const (
	StatusLate                 AttendanceStatus = "late"
	StatusPresent              AttendanceStatus = "present"
	StatusAbsent               AttendanceStatus = "absent"
	StatusAbsentWithPermission AttendanceStatus = "absent_with_permission"
)

var AttendanceStatuses = []AttendanceStatus{StatusLate, StatusPresent, StatusAbsent, StatusAbsentWithPermission}

type Status struct {
	Base
	Status AttendanceStatus `gorm:"type:varchar(32);uniqueIndex;not null" json:"status" validate:"required,oneof=late present absent absent_with_permission"`
	Active *bool            `gorm:"default:true" json:"active"`
}

func (Status) TableName() string {
	return "statuses"
}

type Attendance struct {
	Base
	Date      Date      `gorm:"not null;index" json:"date"`
	StudentID uuid.UUID `gorm:"type:uuid;index;not null" json:"student_id" validate:"required"`
	SessionID uuid.UUID `gorm:"type:uuid;index;not null" json:"session_id" validate:"required"`
	StatusID  uuid.UUID `gorm:"type:uuid;index;not null" json:"status_id" validate:"required"`
	Active    *bool     `gorm:"default:true" json:"active"`

	Student *Student `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	Session *Session `gorm:"foreignKey:SessionID" json:"session,omitempty"`
	Status  *Status  `gorm:"foreignKey:StatusID" json:"status,omitempty"`
}

func (Attendance) TableName() string {
	return "attendance"
}

// All lists every model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Info{},
		&Admin{},
		&School{},
		&SchoolAdmin{},
		&Teacher{},
		&Class{},
		&Student{},
		&Subject{},
		&Period{},
		&Day{},
		&Session{},
		&Status{},
		&Attendance{},
	}
}
