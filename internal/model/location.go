package model

import (
	"time"

	"github.com/google/uuid"
)

// ServiceLocation is a known serviced point (client site, depot, waypoint)
// that stops are matched against.
type ServiceLocation struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null" json:"organization_id"`
	Name           string    `gorm:"type:varchar(255)" json:"name"`
	Address        string    `gorm:"type:text" json:"address"`
	Lat            float64   `gorm:"not null" json:"lat"`
	Lng            float64   `gorm:"not null" json:"lng"`
	IsActive       bool      `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ServiceLocation) TableName() string {
	return "service_locations"
}
