package models

import "time"

// TripActivation records an activation handshake that is waiting on the
// current active trip's creator. One pending handshake per channel; the row
// survives restarts so the approve/deny interaction can always be validated
// against it.
type TripActivation struct {
	ChannelID   string    `gorm:"column:channel_id;primaryKey"`
	Name        string    `gorm:"column:name;not null"`
	RequestedBy string    `gorm:"column:requested_by;not null"`
	CurrentTrip string    `gorm:"column:current_trip;not null"`
	OwnerID     string    `gorm:"column:owner_id;not null"`
	RequestedAt time.Time `gorm:"column:requested_at;autoCreateTime"`
}

func (TripActivation) TableName() string { return "trip_activations" }
