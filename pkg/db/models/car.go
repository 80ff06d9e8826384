package models

import "time"

// Car is a capacity-limited group within a trip. IDs are small integers
// unique within (trip, channel) and are reused after deletion rather than
// drawn from a sequence; see cars.AllocateID. A creator may own at most one
// car per (trip, channel), enforced by uq_cars_creator_per_trip.
type Car struct {
	ID        int       `gorm:"column:id;primaryKey;autoIncrement:false"`
	Trip      string    `gorm:"column:trip;primaryKey;uniqueIndex:uq_cars_creator_per_trip"`
	ChannelID string    `gorm:"column:channel_id;primaryKey;uniqueIndex:uq_cars_creator_per_trip"`
	Name      string    `gorm:"column:name;not null"`
	Seats     int       `gorm:"column:seats;not null"`
	CreatedBy string    `gorm:"column:created_by;not null;uniqueIndex:uq_cars_creator_per_trip"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Car) TableName() string { return "cars" }
