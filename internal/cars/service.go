package cars

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/haleycrew/carpool-backend/internal/notify"
	pkgdb "github.com/haleycrew/carpool-backend/pkg/db"
	"github.com/haleycrew/carpool-backend/pkg/db/models"
	pkgerrors "github.com/haleycrew/carpool-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type dispatcher interface {
	Dispatch(ctx context.Context, messages []notify.Message)
}

// Service defines car-level operations on the active trip of a channel.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*CarView, error)
	List(ctx context.Context, channelID string) (*ListResult, error)
	Status(ctx context.Context, channelID string) (*StatusResult, error)
	UpdateSeats(ctx context.Context, input UpdateSeatsInput) (*CarView, error)
	Delete(ctx context.Context, input DeleteInput) error
}

type service struct {
	repo     Repository
	tx       txRunner
	notifier dispatcher
}

// CreateInput carries the data for a new car. DisplayName is the creator's
// human-readable name, already resolved by the caller; it seeds the default
// car name when Name is empty.
type CreateInput struct {
	ChannelID   string
	UserID      string
	DisplayName string
	Name        string
	Seats       int
}

// UpdateSeatsInput resizes the caller's own car.
type UpdateSeatsInput struct {
	ChannelID string
	UserID    string
	Seats     int
}

// DeleteInput removes the caller's own car.
type DeleteInput struct {
	ChannelID string
	UserID    string
}

// CarView is the caller-facing shape of a car.
type CarView struct {
	ID     int    `json:"id"`
	Trip   string `json:"trip"`
	Name   string `json:"name"`
	Seats  int    `json:"seats"`
	Joined int    `json:"joined"`
}

// ListResult enumerates the active trip's cars with occupancy.
type ListResult struct {
	Trip string    `json:"trip"`
	Cars []CarView `json:"cars"`
}

// StatusEntry is one car with its member roster.
type StatusEntry struct {
	CarView
	CreatedBy string   `json:"created_by"`
	Members   []string `json:"members"`
}

// StatusResult is the full roster view of the active trip.
type StatusResult struct {
	Trip string        `json:"trip"`
	Cars []StatusEntry `json:"cars"`
}

// NewService wires car dependencies.
func NewService(repo Repository, tx txRunner, notifier dispatcher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cars repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	return &service{repo: repo, tx: tx, notifier: notifier}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*CarView, error) {
	if input.ChannelID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}
	if input.UserID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.Seats < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seats must be at least 1")
	}

	var view CarView
	var messages []notify.Message
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		trip, err := repo.ActiveTrip(ctx, input.ChannelID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no active trip in this channel")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load active trip")
		}

		if _, err := repo.FindCarByCreator(ctx, trip.Name, input.ChannelID, input.UserID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "you already have a car on this trip")
		} else if err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "check existing car")
		}

		ids, err := repo.CarIDs(ctx, trip.Name, input.ChannelID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list car ids")
		}

		name := strings.TrimSpace(input.Name)
		if name == "" {
			name = defaultCarName(input.DisplayName, input.UserID)
		}

		car := &models.Car{
			ID:        AllocateID(ids),
			Trip:      trip.Name,
			ChannelID: input.ChannelID,
			Name:      name,
			Seats:     input.Seats,
			CreatedBy: input.UserID,
		}
		if err := repo.CreateCar(ctx, car); err != nil {
			if pkgdb.IsUniqueViolation(err, "uq_cars_creator_per_trip") {
				return pkgerrors.New(pkgerrors.CodeConflict, "you already have a car on this trip")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "create car")
		}

		// The creator occupies the first seat of their own car.
		member := &models.CarMember{
			CarID:     car.ID,
			Trip:      trip.Name,
			ChannelID: input.ChannelID,
			UserID:    input.UserID,
		}
		if err := repo.CreateMember(ctx, member); err != nil {
			if pkgdb.IsUniqueViolation(err, "uq_car_members_one_per_trip") {
				return pkgerrors.New(pkgerrors.CodeConflict, "you are already in a car on this trip")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "add creator membership")
		}

		view = CarView{ID: car.ID, Trip: car.Trip, Name: car.Name, Seats: car.Seats, Joined: 1}

		announce, err := repo.AnnounceChannel(ctx, trip.Name, input.ChannelID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "resolve announce channel")
		}
		messages = append(messages, notify.Channel(announce, fmt.Sprintf(
			"<@%s> started car %d (%q, %d seats) for trip %q. Ask to join with the car number.",
			input.UserID, car.ID, car.Name, car.Seats, trip.Name)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(ctx, messages)
	return &view, nil
}

func (s *service) List(ctx context.Context, channelID string) (*ListResult, error) {
	if channelID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}

	trip, err := s.repo.ActiveTrip(ctx, channelID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active trip in this channel")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load active trip")
	}

	rows, err := s.repo.ListCars(ctx, trip.Name, channelID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list cars")
	}
	counts, err := s.repo.MemberCounts(ctx, trip.Name, channelID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "count members")
	}

	result := &ListResult{Trip: trip.Name, Cars: make([]CarView, 0, len(rows))}
	for _, car := range rows {
		result.Cars = append(result.Cars, CarView{
			ID:     car.ID,
			Trip:   car.Trip,
			Name:   car.Name,
			Seats:  car.Seats,
			Joined: counts[car.ID],
		})
	}
	return result, nil
}

func (s *service) Status(ctx context.Context, channelID string) (*StatusResult, error) {
	if channelID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}

	trip, err := s.repo.ActiveTrip(ctx, channelID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active trip in this channel")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load active trip")
	}

	rows, err := s.repo.ListCars(ctx, trip.Name, channelID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list cars")
	}

	result := &StatusResult{Trip: trip.Name, Cars: make([]StatusEntry, 0, len(rows))}
	for _, car := range rows {
		members, err := s.repo.ListMembers(ctx, trip.Name, channelID, car.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list members")
		}
		userIDs := make([]string, 0, len(members))
		for _, m := range members {
			userIDs = append(userIDs, m.UserID)
		}
		result.Cars = append(result.Cars, StatusEntry{
			CarView: CarView{
				ID:     car.ID,
				Trip:   car.Trip,
				Name:   car.Name,
				Seats:  car.Seats,
				Joined: len(userIDs),
			},
			CreatedBy: car.CreatedBy,
			Members:   userIDs,
		})
	}
	return result, nil
}

func (s *service) UpdateSeats(ctx context.Context, input UpdateSeatsInput) (*CarView, error) {
	if input.ChannelID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}
	if input.UserID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.Seats < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seats must be at least 1")
	}

	var view CarView
	var messages []notify.Message
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		trip, err := repo.ActiveTrip(ctx, input.ChannelID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no active trip in this channel")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load active trip")
		}

		car, err := repo.FindCarByCreator(ctx, trip.Name, input.ChannelID, input.UserID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "you do not have a car on this trip")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load car")
		}

		joined, err := repo.CountMembers(ctx, trip.Name, input.ChannelID, car.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "count members")
		}
		if int64(input.Seats) < joined {
			return pkgerrors.New(pkgerrors.CodeCapacity,
				fmt.Sprintf("car %d already has %d members, cannot reduce to %d seats", car.ID, joined, input.Seats)).
				WithDetails(map[string]any{"car_id": car.ID, "members": joined, "seats": input.Seats})
		}

		if err := repo.UpdateCarSeats(ctx, trip.Name, input.ChannelID, car.ID, input.Seats); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "update seats")
		}

		view = CarView{ID: car.ID, Trip: car.Trip, Name: car.Name, Seats: input.Seats, Joined: int(joined)}

		announce, err := repo.AnnounceChannel(ctx, trip.Name, input.ChannelID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "resolve announce channel")
		}
		messages = append(messages, notify.Channel(announce, fmt.Sprintf(
			"Car %d (%q) now has %d seats.", car.ID, car.Name, input.Seats)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(ctx, messages)
	return &view, nil
}

func (s *service) Delete(ctx context.Context, input DeleteInput) error {
	if input.ChannelID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}
	if input.UserID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	var messages []notify.Message
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		trip, err := repo.ActiveTrip(ctx, input.ChannelID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no active trip in this channel")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load active trip")
		}

		car, err := repo.FindCarByCreator(ctx, trip.Name, input.ChannelID, input.UserID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "you do not have a car on this trip")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load car")
		}

		members, err := repo.ListMembers(ctx, trip.Name, input.ChannelID, car.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list members")
		}

		if err := repo.DeleteCar(ctx, trip.Name, input.ChannelID, car.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete car")
		}

		for _, m := range members {
			if m.UserID == input.UserID {
				continue
			}
			messages = append(messages, notify.DM(m.UserID, fmt.Sprintf(
				"Car %d (%q) on trip %q was deleted by its owner. You will need another ride.",
				car.ID, car.Name, trip.Name)))
		}

		announce, err := repo.AnnounceChannel(ctx, trip.Name, input.ChannelID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "resolve announce channel")
		}
		messages = append(messages, notify.Channel(announce, fmt.Sprintf(
			"Car %d (%q) on trip %q was deleted.", car.ID, car.Name, trip.Name)))
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.Dispatch(ctx, messages)
	return nil
}

func defaultCarName(displayName, userID string) string {
	owner := strings.TrimSpace(displayName)
	if owner == "" {
		owner = userID
	}
	return owner + "'s car"
}
