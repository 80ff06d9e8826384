package models

// TripSetting stores per-trip overrides. Announcements default to the
// trip's own channel unless an announce channel is configured here.
type TripSetting struct {
	Trip              string `gorm:"column:trip;primaryKey"`
	ChannelID         string `gorm:"column:channel_id;primaryKey"`
	AnnounceChannelID string `gorm:"column:announce_channel_id;not null"`
}

func (TripSetting) TableName() string { return "trip_settings" }
