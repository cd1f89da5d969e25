package models

import (
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type School struct {
	Base
	SchoolName        string `gorm:"not null" json:"school_name" validate:"required,max=200"`
	SchoolPhoneNumber string `json:"school_phone_number" validate:"omitempty,max=32"`
	SchoolAddress     string `json:"school_address" validate:"omitempty,max=255"`
	Slug              string `gorm:"uniqueIndex;not null" json:"slug"`
	Active            *bool  `gorm:"default:true" json:"active"`

	SchoolAdmins []SchoolAdmin `gorm:"foreignKey:SchoolID" json:"school_admins,omitempty"`
}

// BeforeCreate assigns the id and derives the slug from the name. A short id
// suffix keeps schools with the same name apart.
func (s *School) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Slug = slug.Make(s.SchoolName) + "-" + s.ID.String()[:8]
	return nil
}

// SchoolAdmin links an admin to a school they run.
type SchoolAdmin struct {
	Base
	AdminID  uuid.UUID `gorm:"type:uuid;index;not null" json:"admin_id" validate:"required"`
	SchoolID uuid.UUID `gorm:"type:uuid;index;not null" json:"school_id" validate:"required"`
	Role     string    `gorm:"default:'Principal'" json:"role" validate:"omitempty,max=50"`
	Active   *bool     `gorm:"default:true" json:"active"`

	Admin    *Admin    `gorm:"foreignKey:AdminID" json:"admin,omitempty"`
	School   *School   `gorm:"foreignKey:SchoolID" json:"school,omitempty"`
	Teachers []Teacher `gorm:"foreignKey:SchoolAdminID" json:"teachers,omitempty"`
	Students []Student `gorm:"foreignKey:SchoolAdminID" json:"students,omitempty"`
}
