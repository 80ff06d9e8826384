package cars

import (
	"context"

	"gorm.io/gorm"

	"github.com/haleycrew/carpool-backend/pkg/db/models"
)

// Repository exposes car persistence operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	ActiveTrip(ctx context.Context, channelID string) (*models.Trip, error)
	AnnounceChannel(ctx context.Context, trip, channelID string) (string, error)

	FindCarByCreator(ctx context.Context, trip, channelID, userID string) (*models.Car, error)
	ListCars(ctx context.Context, trip, channelID string) ([]models.Car, error)
	CarIDs(ctx context.Context, trip, channelID string) ([]int, error)
	CreateCar(ctx context.Context, car *models.Car) error
	UpdateCarSeats(ctx context.Context, trip, channelID string, carID, seats int) error
	DeleteCar(ctx context.Context, trip, channelID string, carID int) error

	ListMembers(ctx context.Context, trip, channelID string, carID int) ([]models.CarMember, error)
	CountMembers(ctx context.Context, trip, channelID string, carID int) (int64, error)
	MemberCounts(ctx context.Context, trip, channelID string) (map[int]int, error)
	CreateMember(ctx context.Context, member *models.CarMember) error
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

// AnnounceChannel resolves where announcements for the trip should go: the
// configured announce channel when one is set, the trip's own channel
// otherwise.
func (r *repository) AnnounceChannel(ctx context.Context, trip, channelID string) (string, error) {
	var setting models.TripSetting
	err := r.db.WithContext(ctx).
		Where("trip = ? AND channel_id = ?", trip, channelID).
		First(&setting).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return channelID, nil
		}
		return "", err
	}
	if setting.AnnounceChannelID == "" {
		return channelID, nil
	}
	return setting.AnnounceChannelID, nil
}

func (r *repository) FindCarByCreator(ctx context.Context, trip, channelID, userID string) (*models.Car, error) {
	var car models.Car
	err := r.db.WithContext(ctx).
		Where("trip = ? AND channel_id = ? AND created_by = ?", trip, channelID, userID).
		First(&car).Error
	if err != nil {
		return nil, err
	}
	return &car, nil
}

func (r *repository) ListCars(ctx context.Context, trip, channelID string) ([]models.Car, error) {
	var cars []models.Car
	err := r.db.WithContext(ctx).
		Where("trip = ? AND channel_id = ?", trip, channelID).
		Order("id").
		Find(&cars).Error
	if err != nil {
		return nil, err
	}
	return cars, nil
}

func (r *repository) CarIDs(ctx context.Context, trip, channelID string) ([]int, error) {
	var ids []int
	err := r.db.WithContext(ctx).
		Model(&models.Car{}).
		Where("trip = ? AND channel_id = ?", trip, channelID).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) CreateCar(ctx context.Context, car *models.Car) error {
	return r.db.WithContext(ctx).Create(car).Error
}

func (r *repository) UpdateCarSeats(ctx context.Context, trip, channelID string, carID, seats int) error {
	return r.db.WithContext(ctx).
		Model(&models.Car{}).
		Where("id = ? AND trip = ? AND channel_id = ?", carID, trip, channelID).
		Update("seats", seats).Error
}

// DeleteCar removes the car and its dependent rows. Children go first so the
// delete behaves the same on stores without FK cascades.
func (r *repository) DeleteCar(ctx context.Context, trip, channelID string, carID int) error {
	db := r.db.WithContext(ctx)
	if err := db.
		Where("car_id = ? AND trip = ? AND channel_id = ?", carID, trip, channelID).
		Delete(&models.JoinRequest{}).Error; err != nil {
		return err
	}
	if err := db.
		Where("car_id = ? AND trip = ? AND channel_id = ?", carID, trip, channelID).
		Delete(&models.CarMember{}).Error; err != nil {
		return err
	}
	return db.
		Where("id = ? AND trip = ? AND channel_id = ?", carID, trip, channelID).
		Delete(&models.Car{}).Error
}

func (r *repository) ListMembers(ctx context.Context, trip, channelID string, carID int) ([]models.CarMember, error) {
	var members []models.CarMember
	err := r.db.WithContext(ctx).
		Where("car_id = ? AND trip = ? AND channel_id = ?", carID, trip, channelID).
		Order("joined_at").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *repository) CountMembers(ctx context.Context, trip, channelID string, carID int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CarMember{}).
		Where("car_id = ? AND trip = ? AND channel_id = ?", carID, trip, channelID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) MemberCounts(ctx context.Context, trip, channelID string) (map[int]int, error) {
	type row struct {
		CarID int
		N     int
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.CarMember{}).
		Select("car_id, COUNT(*) AS n").
		Where("trip = ? AND channel_id = ?", trip, channelID).
		Group("car_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[int]int, len(rows))
	for _, r := range rows {
		counts[r.CarID] = r.N
	}
	return counts, nil
}

func (r *repository) CreateMember(ctx context.Context, member *models.CarMember) error {
	return r.db.WithContext(ctx).Create(member).Error
}
