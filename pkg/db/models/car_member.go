package models

import "time"

// CarMember relates a user to the car whose seat they occupy. Trip and
// channel are carried on the row so the one-car-per-user-per-trip rule is a
// plain unique index instead of an application-only invariant.
type CarMember struct {
	CarID     int       `gorm:"column:car_id;primaryKey;autoIncrement:false"`
	Trip      string    `gorm:"column:trip;primaryKey;uniqueIndex:uq_car_members_one_per_trip"`
	ChannelID string    `gorm:"column:channel_id;primaryKey;uniqueIndex:uq_car_members_one_per_trip"`
	UserID    string    `gorm:"column:user_id;primaryKey;uniqueIndex:uq_car_members_one_per_trip"`
	JoinedAt  time.Time `gorm:"column:joined_at;autoCreateTime"`
}

func (CarMember) TableName() string { return "car_members" }
