package models

import "time"

// JoinRequest is a user's pending, unapproved intent to occupy a seat.
// At most one pending request per user per (trip, channel), mirroring the
// membership index.
type JoinRequest struct {
	CarID       int       `gorm:"column:car_id;primaryKey;autoIncrement:false"`
	Trip        string    `gorm:"column:trip;primaryKey;uniqueIndex:uq_join_requests_one_per_trip"`
	ChannelID   string    `gorm:"column:channel_id;primaryKey;uniqueIndex:uq_join_requests_one_per_trip"`
	UserID      string    `gorm:"column:user_id;primaryKey;uniqueIndex:uq_join_requests_one_per_trip"`
	RequestedAt time.Time `gorm:"column:requested_at;autoCreateTime"`
}

func (JoinRequest) TableName() string { return "join_requests" }
