package models

import "time"

// Trip is a named carpool event owned by one channel. Names are globally
// unique; at most one trip per channel is active, enforced by a partial
// unique index in the migrations.
type Trip struct {
	Name      string    `gorm:"column:name;primaryKey"`
	ChannelID string    `gorm:"column:channel_id;not null;index"`
	CreatedBy string    `gorm:"column:created_by;not null"`
	Active    bool      `gorm:"column:active;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Trip) TableName() string { return "trips" }
