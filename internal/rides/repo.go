package rides

import (
	"context"

	"gorm.io/gorm"

	"github.com/haleycrew/carpool-backend/pkg/db/models"
)

// Repository exposes the persistence surface of the membership engine.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	ActiveTrip(ctx context.Context, channelID string) (*models.Trip, error)
	AnnounceChannel(ctx context.Context, trip, channelID string) (string, error)

	FindCar(ctx context.Context, trip, channelID string, carID int) (*models.Car, error)
	FindCarByCreator(ctx context.Context, trip, channelID, userID string) (*models.Car, error)
	ListCars(ctx context.Context, trip, channelID string) ([]models.Car, error)
	ListUserCars(ctx context.Context, channelID, userID string) ([]models.Car, error)
	DeleteCar(ctx context.Context, trip, channelID string, carID int) error

	FindMembership(ctx context.Context, trip, channelID, userID string) (*models.CarMember, error)
	CountMembers(ctx context.Context, trip, channelID string, carID int) (int64, error)
	MemberCounts(ctx context.Context, trip, channelID string) (map[int]int, error)
	ListMembers(ctx context.Context, trip, channelID string, carID int) ([]models.CarMember, error)
	AssignedUserIDs(ctx context.Context, trip, channelID string) ([]string, error)
	CreateMember(ctx context.Context, member *models.CarMember) error
	DeleteMember(ctx context.Context, trip, channelID string, carID int, userID string) error

	FindRequest(ctx context.Context, trip, channelID, userID string) (*models.JoinRequest, error)
	CreateRequest(ctx context.Context, request *models.JoinRequest) error
	DeleteRequest(ctx context.Context, trip, channelID, userID string) error
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

func (r *repository) FindCar(ctx context.Context, trip, channelID string, carID int) (*models.Car, error) {
	var car models.Car
	err := r.db.WithContext(ctx).
		Where("id = ? AND trip = ? AND channel_id = ?", carID, trip, channelID).
		First(&car).Error
	if err != nil {
		return nil, err
	}
	return &car, nil
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

// ListUserCars returns every car in the channel the user occupies a seat in,
// across all of the channel's trips. Used when a user leaves the channel.
func (r *repository) ListUserCars(ctx context.Context, channelID, userID string) ([]models.Car, error) {
	var cars []models.Car
	err := r.db.WithContext(ctx).
		Model(&models.Car{}).
		Joins("JOIN car_members cm ON cm.car_id = cars.id AND cm.trip = cars.trip AND cm.channel_id = cars.channel_id").
		Where("cm.user_id = ? AND cars.channel_id = ?", userID, channelID).
		Find(&cars).Error
	if err != nil {
		return nil, err
	}
	return cars, nil
}

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

func (r *repository) FindMembership(ctx context.Context, trip, channelID, userID string) (*models.CarMember, error) {
	var member models.CarMember
	err := r.db.WithContext(ctx).
		Where("trip = ? AND channel_id = ? AND user_id = ?", trip, channelID, userID).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
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

func (r *repository) AssignedUserIDs(ctx context.Context, trip, channelID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.CarMember{}).
		Where("trip = ? AND channel_id = ?", trip, channelID).
		Distinct().
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) CreateMember(ctx context.Context, member *models.CarMember) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *repository) DeleteMember(ctx context.Context, trip, channelID string, carID int, userID string) error {
	return r.db.WithContext(ctx).
		Where("car_id = ? AND trip = ? AND channel_id = ? AND user_id = ?", carID, trip, channelID, userID).
		Delete(&models.CarMember{}).Error
}

func (r *repository) FindRequest(ctx context.Context, trip, channelID, userID string) (*models.JoinRequest, error) {
	var request models.JoinRequest
	err := r.db.WithContext(ctx).
		Where("trip = ? AND channel_id = ? AND user_id = ?", trip, channelID, userID).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) CreateRequest(ctx context.Context, request *models.JoinRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) DeleteRequest(ctx context.Context, trip, channelID, userID string) error {
	return r.db.WithContext(ctx).
		Where("trip = ? AND channel_id = ? AND user_id = ?", trip, channelID, userID).
		Delete(&models.JoinRequest{}).Error
}
