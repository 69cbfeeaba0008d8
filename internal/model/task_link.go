package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaskLinkStatus string

const (
	TaskLinkStatusPending    TaskLinkStatus = "PENDING"
	TaskLinkStatusInProgress TaskLinkStatus = "IN_PROGRESS"
	TaskLinkStatusCompleted  TaskLinkStatus = "COMPLETED"
	TaskLinkStatusSkipped    TaskLinkStatus = "SKIPPED"
)

// TripTaskLink binds a trip to an externally-defined task. GPS verification
// advances PENDING to IN_PROGRESS; completion and skipping belong to the
// external task module.
type TripTaskLink struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	TripID     uuid.UUID  `gorm:"type:uuid;not null" json:"trip_id"`
	TaskID     uuid.UUID  `gorm:"type:uuid;not null" json:"task_id"`
	LocationID *uuid.UUID `gorm:"type:uuid" json:"location_id"`

	Status TaskLinkStatus `gorm:"type:task_link_status;not null;default:'PENDING'" json:"status"`

	VerifiedByGps bool       `gorm:"not null;default:false" json:"verified_by_gps"`
	GpsVerifiedAt *time.Time `json:"gps_verified_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Location *ServiceLocation `gorm:"foreignKey:LocationID" json:"location,omitempty"`
}

func (TripTaskLink) TableName() string {
	return "trip_task_links"
}

func (l *TripTaskLink) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
