package trips

import (
	"context"

	"gorm.io/gorm"

	"github.com/haleycrew/carpool-backend/pkg/db/models"
)

// CascadeCounts reports what a trip deletion removed alongside the trip.
type CascadeCounts struct {
	Cars     int64 `json:"cars"`
	Members  int64 `json:"members"`
	Requests int64 `json:"requests"`
}

// Repository exposes trip lifecycle persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindTrip(ctx context.Context, name string) (*models.Trip, error)
	FindTripInChannel(ctx context.Context, name, channelID string) (*models.Trip, error)
	ActiveTrip(ctx context.Context, channelID string) (*models.Trip, error)
	CreateTrip(ctx context.Context, trip *models.Trip) error
	SetTripActive(ctx context.Context, name string, active bool) error
	DeleteTripCascade(ctx context.Context, name, channelID string) (CascadeCounts, error)

	UpsertSetting(ctx context.Context, setting *models.TripSetting) error

	FindActivation(ctx context.Context, channelID string) (*models.TripActivation, error)
	CreateActivation(ctx context.Context, activation *models.TripActivation) error
	DeleteActivation(ctx context.Context, channelID string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) FindTrip(ctx context.Context, name string) (*models.Trip, error) {
	var trip models.Trip
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&trip).Error
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

func (r *repository) FindTripInChannel(ctx context.Context, name, channelID string) (*models.Trip, error) {
	var trip models.Trip
	err := r.db.WithContext(ctx).
		Where("name = ? AND channel_id = ?", name, channelID).
		First(&trip).Error
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

func (r *repository) ActiveTrip(ctx context.Context, channelID string) (*models.Trip, error) {
	var trip models.Trip
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND active = ?", channelID, true).
		First(&trip).Error
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

func (r *repository) CreateTrip(ctx context.Context, trip *models.Trip) error {
	return r.db.WithContext(ctx).Create(trip).Error
}

func (r *repository) SetTripActive(ctx context.Context, name string, active bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Trip{}).
		Where("name = ?", name).
		Update("active", active).Error
}

// DeleteTripCascade removes the trip with its cars, memberships, requests,
// and settings, counting the rows as they go. Children first, so the store
// never holds an orphan even without FK cascades.
func (r *repository) DeleteTripCascade(ctx context.Context, name, channelID string) (CascadeCounts, error) {
	var counts CascadeCounts
	db := r.db.WithContext(ctx)

	res := db.Where("trip = ? AND channel_id = ?", name, channelID).Delete(&models.JoinRequest{})
	if res.Error != nil {
		return counts, res.Error
	}
	counts.Requests = res.RowsAffected

	res = db.Where("trip = ? AND channel_id = ?", name, channelID).Delete(&models.CarMember{})
	if res.Error != nil {
		return counts, res.Error
	}
	counts.Members = res.RowsAffected

	res = db.Where("trip = ? AND channel_id = ?", name, channelID).Delete(&models.Car{})
	if res.Error != nil {
		return counts, res.Error
	}
	counts.Cars = res.RowsAffected

	if err := db.Where("trip = ? AND channel_id = ?", name, channelID).Delete(&models.TripSetting{}).Error; err != nil {
		return counts, err
	}
	if err := db.Where("name = ? AND channel_id = ?", name, channelID).Delete(&models.Trip{}).Error; err != nil {
		return counts, err
	}
	return counts, nil
}

func (r *repository) UpsertSetting(ctx context.Context, setting *models.TripSetting) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&models.TripSetting{}).
		Where("trip = ? AND channel_id = ?", setting.Trip, setting.ChannelID).
		Update("announce_channel_id", setting.AnnounceChannelID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return db.Create(setting).Error
}

func (r *repository) FindActivation(ctx context.Context, channelID string) (*models.TripActivation, error) {
	var activation models.TripActivation
	err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		First(&activation).Error
	if err != nil {
		return nil, err
	}
	return &activation, nil
}

func (r *repository) CreateActivation(ctx context.Context, activation *models.TripActivation) error {
	return r.db.WithContext(ctx).Create(activation).Error
}

func (r *repository) DeleteActivation(ctx context.Context, channelID string) error {
	return r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Delete(&models.TripActivation{}).Error
}
