// Package rides implements seat membership for the active trip of a channel:
// join requests, owner approvals, car switches, and roster changes. Every
// mutation runs in one transaction with its checks re-validated inside it,
// and notifications are handed to the dispatcher only after commit.
package rides

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/haleycrew/carpool-backend/internal/notify"
	"github.com/haleycrew/carpool-backend/pkg/chat"
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

type presence interface {
	ChannelMembers(ctx context.Context, channelID string) ([]string, error)
}

// Service is the membership engine.
type Service interface {
	RequestJoin(ctx context.Context, input JoinInput) (*JoinResult, error)
	ConfirmSwitch(ctx context.Context, input SwitchInput) (*JoinResult, error)
	ApproveRequest(ctx context.Context, input DecisionInput) (*ApproveResult, error)
	DenyRequest(ctx context.Context, input DecisionInput) error
	CancelRequest(ctx context.Context, input CancelInput) (*CarRef, error)
	Leave(ctx context.Context, input LeaveInput) (*LeaveResult, error)
	Boot(ctx context.Context, input BootInput) error
	AddMembers(ctx context.Context, input AddInput) (*AddResult, error)
	NeedRide(ctx context.Context, channelID string) (*NeedRideResult, error)
	HandleMemberLeft(ctx context.Context, input MemberLeftInput) error
}

type service struct {
	repo     Repository
	tx       txRunner
	notifier dispatcher
	roster   presence
}

// NewService wires the membership engine dependencies.
func NewService(repo Repository, tx txRunner, notifier dispatcher, roster presence) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("rides repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	if roster == nil {
		return nil, fmt.Errorf("presence lookup required")
	}
	return &service{repo: repo, tx: tx, notifier: notifier, roster: roster}, nil
}

// CarRef identifies a car in results and notification text.
type CarRef struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
	Trip    string `json:"trip"`
}

func carRef(car *models.Car) *CarRef {
	return &CarRef{ID: car.ID, Name: car.Name, OwnerID: car.CreatedBy, Trip: car.Trip}
}

// JoinInput asks to join the car owned by TargetOwnerID.
type JoinInput struct {
	ChannelID     string
	UserID        string
	TargetOwnerID string
}

// JoinStatus distinguishes a created request from a pending switch prompt.
type JoinStatus string

const (
	// JoinStatusRequested means a join request was recorded and the owner
	// was asked to approve it.
	JoinStatusRequested JoinStatus = "requested"
	// JoinStatusSwitchPrompt means the requester already occupies a seat;
	// nothing was recorded and they were asked to confirm the switch first.
	JoinStatusSwitchPrompt JoinStatus = "switch_prompt"
)

// JoinResult reports what RequestJoin or ConfirmSwitch did.
type JoinResult struct {
	Status     JoinStatus `json:"status"`
	Car        *CarRef    `json:"car"`
	CurrentCar *CarRef    `json:"current_car,omitempty"`
}

func (s *service) RequestJoin(ctx context.Context, input JoinInput) (*JoinResult, error) {
	if input.ChannelID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}
	if input.UserID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.TargetOwnerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "car owner required")
	}
	if input.TargetOwnerID == input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "you cannot request to join your own car")
	}

	var result JoinResult
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

		// Car owners keep their own car; they cannot also ride in another.
		if own, err := repo.FindCarByCreator(ctx, trip.Name, input.ChannelID, input.UserID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("you already have your own car (%q) on this trip", own.Name))
		} else if err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "check own car")
		}

		if pending, err := repo.FindRequest(ctx, trip.Name, input.ChannelID, input.UserID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("you already have a pending request for car %d", pending.CarID))
		} else if err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "check pending request")
		}

		targetCar, err := repo.FindCarByCreator(ctx, trip.Name, input.ChannelID, input.TargetOwnerID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound,
					fmt.Sprintf("<@%s> does not have a car on trip %q", input.TargetOwnerID, trip.Name))
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load target car")
		}

		membership, err := repo.FindMembership(ctx, trip.Name, input.ChannelID, input.UserID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "check membership")
		}

		if membership != nil {
			// Already seated: ask the requester to confirm the switch. No
			// request row is written until they do.
			currentCar, err := repo.FindCar(ctx, trip.Name, input.ChannelID, membership.CarID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load current car")
			}
			result = JoinResult{
				Status:     JoinStatusSwitchPrompt,
				Car:        carRef(targetCar),
				CurrentCar: carRef(currentCar),
			}
			messages = append(messages, notify.DM(input.UserID, fmt.Sprintf(
				"You are currently in %q (owned by <@%s>). Switch to %q (owned by <@%s>) on trip %q?",
				currentCar.Name, currentCar.CreatedBy, targetCar.Name, targetCar.CreatedBy, trip.Name),
				chat.Action{ID: "confirm_switch", Label: "Yes, switch cars", Value: switchValue(targetCar.ID, input.UserID)},
				chat.Action{ID: "cancel_switch", Label: "Cancel", Value: switchValue(targetCar.ID, input.UserID)},
			))
			return nil
		}

		request := &models.JoinRequest{
			CarID:     targetCar.ID,
			Trip:      trip.Name,
			ChannelID: input.ChannelID,
			UserID:    input.UserID,
		}
		if err := repo.CreateRequest(ctx, request); err != nil {
			if pkgdb.IsUniqueViolation(err, "uq_join_requests_one_per_trip") {
				return pkgerrors.New(pkgerrors.CodeConflict,
					fmt.Sprintf("you already requested to join car %d", targetCar.ID))
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "create join request")
		}

		result = JoinResult{Status: JoinStatusRequested, Car: carRef(targetCar)}
		messages = append(messages, ownerApprovalDM(targetCar, input.UserID, false))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(ctx, messages)
	return &result, nil
}

// SwitchInput is the affirmative answer to a switch prompt.
type SwitchInput struct {
	ChannelID string
	UserID    string
	CarID     int
}

// ConfirmSwitch records the join request deferred by the switch prompt. The
// old membership stays until the new owner approves.
func (s *service) ConfirmSwitch(ctx context.Context, input SwitchInput) (*JoinResult, error) {
	if input.ChannelID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}
	if input.UserID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.CarID < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "car id required")
	}

	var result JoinResult
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

		targetCar, err := repo.FindCar(ctx, trip.Name, input.ChannelID, input.CarID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound,
					fmt.Sprintf("car %d no longer exists", input.CarID))
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load target car")
		}

		request := &models.JoinRequest{
			CarID:     targetCar.ID,
			Trip:      trip.Name,
			ChannelID: input.ChannelID,
			UserID:    input.UserID,
		}
		if err := repo.CreateRequest(ctx, request); err != nil {
			if pkgdb.IsUniqueViolation(err, "uq_join_requests_one_per_trip") {
				return pkgerrors.New(pkgerrors.CodeConflict, "you already have a pending request for this car")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "create join request")
		}

		result = JoinResult{Status: JoinStatusRequested, Car: carRef(targetCar)}
		messages = append(messages, ownerApprovalDM(targetCar, input.UserID, true))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(ctx, messages)
	return &result, nil
}

// DecisionInput is an owner acting on a pending request.
type DecisionInput struct {
	ChannelID  string
	ApproverID string
	CarID      int
	UserID     string // whose request is being decided
}

// ApproveStatus reports how an approval resolved.
type ApproveStatus string

const (
	// ApproveStatusJoined means the request became a membership.
	ApproveStatusJoined ApproveStatus = "joined"
	// ApproveStatusAlreadyMember means the request was stale: the user was
	// in the car already. The request is removed and the call succeeds.
	ApproveStatusAlreadyMember ApproveStatus = "already_member"
)

// ApproveResult reports the outcome of an approval, including the car the
// user left when the approval completed a switch.
type ApproveResult struct {
	Status  ApproveStatus `json:"status"`
	Car     *CarRef       `json:"car"`
	OldCar  *CarRef       `json:"old_car,omitempty"`
	UserID  string        `json:"user_id"`
	Members int           `json:"members"`
}

func (s *service) ApproveRequest(ctx context.Context, input DecisionInput) (*ApproveResult, error) {
	if err := validateDecision(input); err != nil {
		return nil, err
	}

	var result ApproveResult
	var messages []notify.Message
	// A full car still commits: the stale request is deleted and the denial
	// DM sent, while the caller gets the capacity error after the commit.
	var capacityErr error
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		trip, err := repo.ActiveTrip(ctx, input.ChannelID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no active trip in this channel")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load active trip")
		}

		car, err := repo.FindCar(ctx, trip.Name, input.ChannelID, input.CarID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound,
					fmt.Sprintf("car %d no longer exists", input.CarID))
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load car")
		}
		if car.CreatedBy != input.ApproverID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the car owner can approve requests")
		}

		_, err = repo.FindRequest(ctx, trip.Name, input.ChannelID, input.UserID)
		requestExists := err == nil
		if err != nil && err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load join request")
		}

		membership, err := repo.FindMembership(ctx, trip.Name, input.ChannelID, input.UserID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "check membership")
		}

		// Stale request: the user already sits in this car. Clean up and
		// report success so a double-click cannot fail.
		if membership != nil && membership.CarID == car.ID {
			if requestExists {
				if err := repo.DeleteRequest(ctx, trip.Name, input.ChannelID, input.UserID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete stale request")
				}
			}
			result = ApproveResult{Status: ApproveStatusAlreadyMember, Car: carRef(car), UserID: input.UserID}
			return nil
		}

		if !requestExists {
			return pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("<@%s> no longer has a pending request for car %d", input.UserID, car.ID))
		}

		// Capacity is decided here, at approval time, not when the request
		// was filed. A full car denies the request and removes it.
		seated, err := repo.CountMembers(ctx, trip.Name, input.ChannelID, car.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "count members")
		}
		if seated >= int64(car.Seats) {
			if err := repo.DeleteRequest(ctx, trip.Name, input.ChannelID, input.UserID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete request for full car")
			}
			messages = append(messages, notify.DM(input.UserID, fmt.Sprintf(
				"Your request for %q was denied because the car is now full (%d/%d seats).",
				car.Name, seated, car.Seats)))
			capacityErr = pkgerrors.New(pkgerrors.CodeCapacity,
				fmt.Sprintf("car %d is full (%d/%d seats)", car.ID, seated, car.Seats)).
				WithDetails(map[string]any{"car_id": car.ID, "members": seated, "seats": car.Seats})
			return nil
		}

		var oldCar *models.Car
		if membership != nil {
			// Approval completes the switch: the old seat is released in
			// the same transaction that grants the new one.
			oldCar, err = repo.FindCar(ctx, trip.Name, input.ChannelID, membership.CarID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load old car")
			}
			if err := repo.DeleteMember(ctx, trip.Name, input.ChannelID, membership.CarID, input.UserID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "remove old membership")
			}
		}

		if err := repo.DeleteRequest(ctx, trip.Name, input.ChannelID, input.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete request")
		}
		member := &models.CarMember{
			CarID:     car.ID,
			Trip:      trip.Name,
			ChannelID: input.ChannelID,
			UserID:    input.UserID,
		}
		if err := repo.CreateMember(ctx, member); err != nil {
			if pkgdb.IsUniqueViolation(err, "uq_car_members_one_per_trip") {
				return pkgerrors.New(pkgerrors.CodeConflict, "user is already seated on this trip")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "create membership")
		}

		announce, err := repo.AnnounceChannel(ctx, trip.Name, input.ChannelID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "resolve announce channel")
		}

		result = ApproveResult{
			Status:  ApproveStatusJoined,
			Car:     carRef(car),
			UserID:  input.UserID,
			Members: int(seated) + 1,
		}
		if oldCar != nil {
			result.OldCar = carRef(oldCar)
			messages = append(messages,
				notify.DM(oldCar.CreatedBy, fmt.Sprintf(
					"<@%s> left your car %q to join another car on trip %q.",
					input.UserID, oldCar.Name, trip.Name)),
				notify.DM(input.UserID, fmt.Sprintf(
					"You switched from %q to %q on trip %q.", oldCar.Name, car.Name, trip.Name)),
				notify.Channel(announce, fmt.Sprintf(
					"<@%s> switched to car %d (%q) on trip %q.", input.UserID, car.ID, car.Name, trip.Name)),
			)
		} else {
			messages = append(messages,
				notify.DM(input.UserID, fmt.Sprintf(
					"You were approved for %q on trip %q.", car.Name, trip.Name)),
				notify.Channel(announce, fmt.Sprintf(
					"<@%s> joined car %d (%q) on trip %q.", input.UserID, car.ID, car.Name, trip.Name)),
			)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	// The full-car denial DM goes out even though the call fails.
	s.notifier.Dispatch(ctx, messages)
	if capacityErr != nil {
		return nil, capacityErr
	}
	return &result, nil
}

func (s *service) DenyRequest(ctx context.Context, input DecisionInput) error {
	if err := validateDecision(input); err != nil {
		return err
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

		car, err := repo.FindCar(ctx, trip.Name, input.ChannelID, input.CarID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound,
					fmt.Sprintf("car %d no longer exists", input.CarID))
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load car")
		}
		if car.CreatedBy != input.ApproverID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the car owner can deny requests")
		}

		if _, err := repo.FindRequest(ctx, trip.Name, input.ChannelID, input.UserID); err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound,
					fmt.Sprintf("<@%s> no longer has a pending request for car %d", input.UserID, car.ID))
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load join request")
		}
		if err := repo.DeleteRequest(ctx, trip.Name, input.ChannelID, input.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete request")
		}

		messages = append(messages, notify.DM(input.UserID, fmt.Sprintf(
			"Your request for car %d (%q) was denied.", car.ID, car.Name)))
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.Dispatch(ctx, messages)
	return nil
}

// CancelInput withdraws the caller's own pending request.
type CancelInput struct {
	ChannelID string
	UserID    string
}

func (s *service) CancelRequest(ctx context.Context, input CancelInput) (*CarRef, error) {
	if input.ChannelID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}
	if input.UserID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	var cancelled *CarRef
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		trip, err := repo.ActiveTrip(ctx, input.ChannelID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no active trip in this channel")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load active trip")
		}

		request, err := repo.FindRequest(ctx, trip.Name, input.ChannelID, input.UserID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "you have no pending join request to cancel")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load join request")
		}

		car, err := repo.FindCar(ctx, trip.Name, input.ChannelID, request.CarID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load car")
		}

		if err := repo.DeleteRequest(ctx, trip.Name, input.ChannelID, input.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete request")
		}

		if car != nil {
			cancelled = carRef(car)
		} else {
			cancelled = &CarRef{ID: request.CarID, Trip: trip.Name}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func validateDecision(input DecisionInput) error {
	if input.ChannelID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}
	if input.ApproverID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "approver id required")
	}
	if input.UserID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.CarID < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "car id required")
	}
	return nil
}

func ownerApprovalDM(car *models.Car, userID string, switching bool) notify.Message {
	text := fmt.Sprintf("<@%s> wants to join your car %d (%q) on trip %q.",
		userID, car.ID, car.Name, car.Trip)
	if switching {
		text += " This user is switching from another car."
	}
	return notify.DM(car.CreatedBy, text,
		chat.Action{ID: "approve_request", Label: "Approve", Value: requestValue(car.ID, userID)},
		chat.Action{ID: "deny_request", Label: "Deny", Value: requestValue(car.ID, userID)},
	)
}

// requestValue and switchValue are the opaque payloads round-tripped through
// interaction buttons.
func requestValue(carID int, userID string) string {
	return fmt.Sprintf("%d:%s", carID, userID)
}

func switchValue(carID int, userID string) string {
	return fmt.Sprintf("%d:%s", carID, userID)
}
