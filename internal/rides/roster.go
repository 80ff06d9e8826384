package rides

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

// LeaveInput removes the caller from their seat on the active trip.
type LeaveInput struct {
	ChannelID string
	UserID    string
}

// LeaveResult reports whether leaving dissolved the car.
type LeaveResult struct {
	Car        *CarRef `json:"car"`
	CarDeleted bool    `json:"car_deleted"`
}

func (s *service) Leave(ctx context.Context, input LeaveInput) (*LeaveResult, error) {
	if input.ChannelID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}
	if input.UserID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	var result LeaveResult
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

		membership, err := repo.FindMembership(ctx, trip.Name, input.ChannelID, input.UserID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound,
					fmt.Sprintf("you are not in any car on trip %q", trip.Name))
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load membership")
		}

		car, err := repo.FindCar(ctx, trip.Name, input.ChannelID, membership.CarID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load car")
		}

		announce, err := repo.AnnounceChannel(ctx, trip.Name, input.ChannelID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "resolve announce channel")
		}

		result.Car = carRef(car)

		if car.CreatedBy == input.UserID {
			// The owner's departure dissolves the whole car; everyone else
			// loses their seat and is told directly.
			members, err := repo.ListMembers(ctx, trip.Name, input.ChannelID, car.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list members")
			}
			if err := repo.DeleteCar(ctx, trip.Name, input.ChannelID, car.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete car")
			}
			result.CarDeleted = true

			for _, m := range members {
				if m.UserID == input.UserID {
					continue
				}
				messages = append(messages, notify.DM(m.UserID, fmt.Sprintf(
					"Car %d (%q) on trip %q was dissolved because its owner left. You will need another ride.",
					car.ID, car.Name, trip.Name)))
			}
			messages = append(messages, notify.Channel(announce, fmt.Sprintf(
				"<@%s> left and deleted car %d (%q) on trip %q.",
				input.UserID, car.ID, car.Name, trip.Name)))
			return nil
		}

		if err := repo.DeleteMember(ctx, trip.Name, input.ChannelID, car.ID, input.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete membership")
		}
		messages = append(messages, notify.Channel(announce, fmt.Sprintf(
			"<@%s> left car %d on trip %q.", input.UserID, car.ID, trip.Name)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(ctx, messages)
	return &result, nil
}

// BootInput removes a member from the caller's own car.
type BootInput struct {
	ChannelID string
	UserID    string
	TargetID  string
}

func (s *service) Boot(ctx context.Context, input BootInput) error {
	if input.ChannelID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}
	if input.UserID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.TargetID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "target user required")
	}
	if input.TargetID == input.UserID {
		return pkgerrors.New(pkgerrors.CodeValidation, "you cannot boot yourself; leave the car instead")
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
				return pkgerrors.New(pkgerrors.CodeNotFound,
					fmt.Sprintf("you do not have a car on trip %q", trip.Name))
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load car")
		}

		membership, err := repo.FindMembership(ctx, trip.Name, input.ChannelID, input.TargetID)
		if err != nil || membership.CarID != car.ID {
			if err != nil && err != gorm.ErrRecordNotFound {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load target membership")
			}
			return pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("<@%s> is not in your car", input.TargetID))
		}

		if err := repo.DeleteMember(ctx, trip.Name, input.ChannelID, car.ID, input.TargetID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete membership")
		}

		announce, err := repo.AnnounceChannel(ctx, trip.Name, input.ChannelID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "resolve announce channel")
		}
		messages = append(messages,
			notify.DM(input.TargetID, fmt.Sprintf(
				"You were removed from %q on trip %q.", car.Name, trip.Name)),
			notify.Channel(announce, fmt.Sprintf(
				"<@%s> removed <@%s> from %q on trip %q.",
				input.UserID, input.TargetID, car.Name, trip.Name)),
		)
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.Dispatch(ctx, messages)
	return nil
}

// AddInput seats targets directly in the caller's car, no request handshake.
type AddInput struct {
	ChannelID string
	UserID    string
	Targets   []string
}

// AddConflict explains why one target could not be added.
type AddConflict struct {
	UserID  string  `json:"user_id"`
	Reason  string  `json:"reason"`
	InCar   *CarRef `json:"in_car,omitempty"`
	ThisCar bool    `json:"this_car"`
}

// AddResult reports who was seated and who was skipped.
type AddResult struct {
	Car       *CarRef       `json:"car"`
	Added     []string      `json:"added"`
	Conflicts []AddConflict `json:"conflicts,omitempty"`
}

func (s *service) AddMembers(ctx context.Context, input AddInput) (*AddResult, error) {
	if input.ChannelID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}
	if input.UserID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	targets := dedupeTargets(input.Targets, input.UserID)
	if len(targets) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no users to add")
	}

	var result AddResult
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
				return pkgerrors.New(pkgerrors.CodeNotFound,
					fmt.Sprintf("you do not have a car on trip %q", trip.Name))
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load car")
		}
		result.Car = carRef(car)

		// Conflicting targets are reported, not fatal. Only the remainder
		// counts against the free seats.
		var toAdd []string
		for _, target := range targets {
			membership, err := repo.FindMembership(ctx, trip.Name, input.ChannelID, target)
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					toAdd = append(toAdd, target)
					continue
				}
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "check target membership")
			}
			if membership.CarID == car.ID {
				result.Conflicts = append(result.Conflicts, AddConflict{
					UserID: target, Reason: "already in your car", ThisCar: true, InCar: result.Car,
				})
				continue
			}
			other, err := repo.FindCar(ctx, trip.Name, input.ChannelID, membership.CarID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load conflicting car")
			}
			result.Conflicts = append(result.Conflicts, AddConflict{
				UserID: target,
				Reason: fmt.Sprintf("already in %q (owned by <@%s>)", other.Name, other.CreatedBy),
				InCar:  carRef(other),
			})
		}

		seated, err := repo.CountMembers(ctx, trip.Name, input.ChannelID, car.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "count members")
		}
		free := car.Seats - int(seated)
		if len(toAdd) > free {
			return pkgerrors.New(pkgerrors.CodeCapacity,
				fmt.Sprintf("car %q has %d free seats but %d users would be added", car.Name, free, len(toAdd))).
				WithDetails(map[string]any{"car_id": car.ID, "free": free, "adding": len(toAdd)})
		}

		for _, target := range toAdd {
			member := &models.CarMember{
				CarID:     car.ID,
				Trip:      trip.Name,
				ChannelID: input.ChannelID,
				UserID:    target,
			}
			if err := repo.CreateMember(ctx, member); err != nil {
				if pkgdb.IsUniqueViolation(err, "uq_car_members_one_per_trip") {
					result.Conflicts = append(result.Conflicts, AddConflict{
						UserID: target, Reason: "already seated on this trip",
					})
					continue
				}
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "create membership")
			}
			result.Added = append(result.Added, target)
		}

		if len(result.Added) == 0 {
			return nil
		}

		announce, err := repo.AnnounceChannel(ctx, trip.Name, input.ChannelID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "resolve announce channel")
		}
		for _, target := range result.Added {
			messages = append(messages, notify.DM(target, fmt.Sprintf(
				"You were added to %q on trip %q by <@%s>.", car.Name, trip.Name, input.UserID)))
		}
		messages = append(messages, notify.Channel(announce, fmt.Sprintf(
			"<@%s> added %s to %q on trip %q.",
			input.UserID, mentionList(result.Added), car.Name, trip.Name)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(ctx, messages)
	return &result, nil
}

// OpenCar is a car with free seats, offered to riders without one.
type OpenCar struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	OwnerID   string `json:"owner_id"`
	FreeSeats int    `json:"free_seats"`
}

// NeedRideResult pairs the channel members without a seat with the cars that
// could still take them.
type NeedRideResult struct {
	Trip       string    `json:"trip"`
	Unassigned []string  `json:"unassigned"`
	OpenCars   []OpenCar `json:"open_cars"`
}

func (s *service) NeedRide(ctx context.Context, channelID string) (*NeedRideResult, error) {
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

	channelMembers, err := s.roster.ChannelMembers(ctx, channelID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list channel members")
	}

	assigned, err := s.repo.AssignedUserIDs(ctx, trip.Name, channelID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list assigned users")
	}
	seated := make(map[string]bool, len(assigned))
	for _, id := range assigned {
		seated[id] = true
	}

	result := &NeedRideResult{Trip: trip.Name}
	for _, id := range channelMembers {
		if !seated[id] {
			result.Unassigned = append(result.Unassigned, id)
		}
	}

	cars, err := s.repo.ListCars(ctx, trip.Name, channelID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list cars")
	}
	counts, err := s.repo.MemberCounts(ctx, trip.Name, channelID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "count members")
	}
	for _, car := range cars {
		free := car.Seats - counts[car.ID]
		if free > 0 {
			result.OpenCars = append(result.OpenCars, OpenCar{
				ID: car.ID, Name: car.Name, OwnerID: car.CreatedBy, FreeSeats: free,
			})
		}
	}
	return result, nil
}

// MemberLeftInput reacts to a user leaving the channel entirely.
type MemberLeftInput struct {
	ChannelID string
	UserID    string
}

// HandleMemberLeft drops the departed user from every car they occupied in
// the channel. A car they owned is dissolved. The user is told per car; no
// channel announcement, they are gone.
func (s *service) HandleMemberLeft(ctx context.Context, input MemberLeftInput) error {
	if input.ChannelID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}
	if input.UserID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	var messages []notify.Message
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		userCars, err := repo.ListUserCars(ctx, input.ChannelID, input.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list user cars")
		}

		for _, car := range userCars {
			if car.CreatedBy == input.UserID {
				members, err := repo.ListMembers(ctx, car.Trip, input.ChannelID, car.ID)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list members")
				}
				if err := repo.DeleteCar(ctx, car.Trip, input.ChannelID, car.ID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete car")
				}
				for _, m := range members {
					if m.UserID == input.UserID {
						continue
					}
					messages = append(messages, notify.DM(m.UserID, fmt.Sprintf(
						"Car %d (%q) on trip %q was dissolved because its owner left the channel.",
						car.ID, car.Name, car.Trip)))
				}
				messages = append(messages, notify.DM(input.UserID, fmt.Sprintf(
					"Your car %q on trip %q was deleted because you left the channel.",
					car.Name, car.Trip)))
				continue
			}

			if err := repo.DeleteMember(ctx, car.Trip, input.ChannelID, car.ID, input.UserID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete membership")
			}
			messages = append(messages, notify.DM(input.UserID, fmt.Sprintf(
				"You were removed from %q on trip %q because you left the channel.",
				car.Name, car.Trip)))
		}

		// Pending requests from the departed user are meaningless now.
		trip, err := repo.ActiveTrip(ctx, input.ChannelID)
		if err == nil {
			if err := repo.DeleteRequest(ctx, trip.Name, input.ChannelID, input.UserID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete pending request")
			}
		} else if err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load active trip")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.Dispatch(ctx, messages)
	return nil
}

func dedupeTargets(targets []string, self string) []string {
	seen := make(map[string]bool, len(targets))
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		t = strings.TrimSpace(t)
		if t == "" || t == self || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func mentionList(userIDs []string) string {
	mentions := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		mentions = append(mentions, "<@"+id+">")
	}
	return strings.Join(mentions, ", ")
}
