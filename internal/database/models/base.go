package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with UUID primary key and timestamps
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// PrimaryKey returns the record id.
func (b *Base) PrimaryKey() uuid.UUID {
	return b.ID
}

// ResetBase clears server-assigned fields so client payloads cannot set them.
func (b *Base) ResetBase() {
	*b = Base{}
}

// Entity is implemented by every model embedding Base.
type Entity interface {
	PrimaryKey() uuid.UUID
	ResetBase()
}
