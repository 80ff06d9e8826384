// Package trips manages the trip lifecycle: globally-unique named trips,
// one active trip per channel, and the approval handshake that lets a new
// trip displace another user's active one.
package trips

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/haleycrew/carpool-backend/internal/notify"
	"github.com/haleycrew/carpool-backend/pkg/chat"
	"github.com/haleycrew/carpool-backend/pkg/db/models"
	pkgerrors "github.com/haleycrew/carpool-backend/pkg/errors"
)

// CreateStatus marks how CreateOrActivate resolved.
type CreateStatus string

const (
	// CreateStatusActivated means the trip was created and is now active.
	CreateStatusActivated CreateStatus = "activated"
	// CreateStatusApprovalPending means the channel's active trip belongs to
	// someone else and its creator has been asked to approve the switch.
	CreateStatusApprovalPending CreateStatus = "approval_pending"
)

// CreateInput names the trip a user wants active in a channel.
type CreateInput struct {
	ChannelID string
	UserID    string
	Name      string
}

// CreateResult reports the outcome of CreateOrActivate.
type CreateResult struct {
	Status         CreateStatus `json:"status"`
	Trip           string       `json:"trip"`
	ReplacedTrip   string       `json:"replaced_trip,omitempty"`
	ReclaimedStale bool         `json:"reclaimed_stale,omitempty"`
	OwnerID        string       `json:"owner_id,omitempty"`
}

// DecisionInput identifies the channel whose pending activation the current
// trip's creator is approving or denying.
type DecisionInput struct {
	ChannelID string
	UserID    string
}

// ApproveResult reports the completed switch.
type ApproveResult struct {
	Trip         string `json:"trip"`
	ReplacedTrip string `json:"replaced_trip"`
	RequestedBy  string `json:"requested_by"`
}

// DenyResult reports the cancelled switch.
type DenyResult struct {
	Trip        string `json:"trip"`
	RequestedBy string `json:"requested_by"`
}

// DeleteInput identifies the trip to remove.
type DeleteInput struct {
	ChannelID string
	UserID    string
	Name      string
}

// DeleteResult reports what the cascade removed.
type DeleteResult struct {
	Trip    string        `json:"trip"`
	Removed CascadeCounts `json:"removed"`
}

// AnnounceInput configures where a trip's announcements go.
type AnnounceInput struct {
	ChannelID         string
	UserID            string
	Name              string
	AnnounceChannelID string
}

// Service is the trip lifecycle manager.
type Service interface {
	CreateOrActivate(ctx context.Context, in CreateInput) (*CreateResult, error)
	ApproveActivation(ctx context.Context, in DecisionInput) (*ApproveResult, error)
	DenyActivation(ctx context.Context, in DecisionInput) (*DenyResult, error)
	Delete(ctx context.Context, in DeleteInput) (*DeleteResult, error)
	SetAnnounceChannel(ctx context.Context, in AnnounceInput) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type dispatcher interface {
	Dispatch(ctx context.Context, messages []notify.Message)
}

type presence interface {
	ChannelMembers(ctx context.Context, channelID string) ([]string, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	notifier dispatcher
	roster   presence
}

// NewService wires the trip lifecycle manager.
func NewService(repo Repository, tx txRunner, notifier dispatcher, roster presence) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	if roster == nil {
		return nil, fmt.Errorf("channel roster required")
	}
	return &service{repo: repo, tx: tx, notifier: notifier, roster: roster}, nil
}

func (s *service) CreateOrActivate(ctx context.Context, in CreateInput) (*CreateResult, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trip name is required")
	}

	var (
		result   CreateResult
		messages []notify.Message
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindTrip(ctx, name)
		if err != nil && err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "look up trip name")
		}
		if existing != nil {
			present, err := s.isPresent(ctx, existing.ChannelID, existing.CreatedBy)
			if err != nil {
				return err
			}
			if present {
				return pkgerrors.New(pkgerrors.CodeConflict,
					fmt.Sprintf("trip %q already exists", name))
			}
			// Creator gone from the trip's channel: reclaim the name.
			if _, err := repo.DeleteTripCascade(ctx, existing.Name, existing.ChannelID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "reclaim stale trip")
			}
			result.ReclaimedStale = true
		}

		if _, err := repo.FindActivation(ctx, in.ChannelID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict,
				"another trip activation is already awaiting approval in this channel")
		} else if err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "look up pending activation")
		}

		current, err := repo.ActiveTrip(ctx, in.ChannelID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "look up active trip")
		}

		if current != nil && current.CreatedBy != in.UserID {
			present, err := s.isPresent(ctx, in.ChannelID, current.CreatedBy)
			if err != nil {
				return err
			}
			if present {
				activation := &models.TripActivation{
					ChannelID:   in.ChannelID,
					Name:        name,
					RequestedBy: in.UserID,
					CurrentTrip: current.Name,
					OwnerID:     current.CreatedBy,
				}
				if err := repo.CreateActivation(ctx, activation); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "record pending activation")
				}
				result.Status = CreateStatusApprovalPending
				result.Trip = name
				result.OwnerID = current.CreatedBy
				messages = append(messages, notify.DM(current.CreatedBy,
					fmt.Sprintf("<@%s> wants to replace your active trip %q with %q. Approve?",
						in.UserID, current.Name, name),
					chat.Action{ID: "approve_trip", Label: "Approve", Value: in.ChannelID},
					chat.Action{ID: "deny_trip", Label: "Deny", Value: in.ChannelID},
				))
				return nil
			}
		}

		if current != nil {
			if err := repo.SetTripActive(ctx, current.Name, false); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "deactivate current trip")
			}
			result.ReplacedTrip = current.Name
		}
		trip := &models.Trip{
			Name:      name,
			ChannelID: in.ChannelID,
			CreatedBy: in.UserID,
			Active:    true,
		}
		if err := repo.CreateTrip(ctx, trip); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "create trip")
		}
		result.Status = CreateStatusActivated
		result.Trip = name
		messages = append(messages, notify.Channel(in.ChannelID,
			fmt.Sprintf("Trip %q is now active. Use /newcar to offer seats.", name)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Dispatch(ctx, messages)
	return &result, nil
}

func (s *service) ApproveActivation(ctx context.Context, in DecisionInput) (*ApproveResult, error) {
	var (
		result   ApproveResult
		messages []notify.Message
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		activation, err := repo.FindActivation(ctx, in.ChannelID)
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no trip activation is awaiting approval")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "look up pending activation")
		}
		if activation.OwnerID != in.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden,
				"only the current trip's creator can approve the switch")
		}

		if err := repo.SetTripActive(ctx, activation.CurrentTrip, false); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "deactivate current trip")
		}
		trip := &models.Trip{
			Name:      activation.Name,
			ChannelID: in.ChannelID,
			CreatedBy: activation.RequestedBy,
			Active:    true,
		}
		if err := repo.CreateTrip(ctx, trip); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "create trip")
		}
		if err := repo.DeleteActivation(ctx, in.ChannelID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "clear pending activation")
		}

		result = ApproveResult{
			Trip:         activation.Name,
			ReplacedTrip: activation.CurrentTrip,
			RequestedBy:  activation.RequestedBy,
		}
		messages = append(messages,
			notify.DM(activation.RequestedBy,
				fmt.Sprintf("<@%s> approved your trip %q. It is now active.", in.UserID, activation.Name)),
			notify.Channel(in.ChannelID,
				fmt.Sprintf("Trip %q is now active, replacing %q.", activation.Name, activation.CurrentTrip)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Dispatch(ctx, messages)
	return &result, nil
}

func (s *service) DenyActivation(ctx context.Context, in DecisionInput) (*DenyResult, error) {
	var (
		result   DenyResult
		messages []notify.Message
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		activation, err := repo.FindActivation(ctx, in.ChannelID)
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no trip activation is awaiting approval")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "look up pending activation")
		}
		if activation.OwnerID != in.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden,
				"only the current trip's creator can deny the switch")
		}
		if err := repo.DeleteActivation(ctx, in.ChannelID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "clear pending activation")
		}

		result = DenyResult{Trip: activation.Name, RequestedBy: activation.RequestedBy}
		messages = append(messages, notify.DM(activation.RequestedBy,
			fmt.Sprintf("<@%s> kept trip %q active; %q was not created.",
				in.UserID, activation.CurrentTrip, activation.Name)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Dispatch(ctx, messages)
	return &result, nil
}

func (s *service) Delete(ctx context.Context, in DeleteInput) (*DeleteResult, error) {
	var (
		result   DeleteResult
		messages []notify.Message
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		trip, err := repo.FindTripInChannel(ctx, in.Name, in.ChannelID)
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("trip %q does not exist in this channel", in.Name))
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "look up trip")
		}
		if trip.CreatedBy != in.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the trip's creator can delete it")
		}

		counts, err := repo.DeleteTripCascade(ctx, trip.Name, in.ChannelID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete trip")
		}
		result = DeleteResult{Trip: trip.Name, Removed: counts}
		messages = append(messages, notify.Channel(in.ChannelID,
			fmt.Sprintf("Trip %q was deleted by <@%s>.", trip.Name, in.UserID)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Dispatch(ctx, messages)
	return &result, nil
}

func (s *service) SetAnnounceChannel(ctx context.Context, in AnnounceInput) error {
	if strings.TrimSpace(in.AnnounceChannelID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "announce channel is required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		trip, err := repo.FindTripInChannel(ctx, in.Name, in.ChannelID)
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("trip %q does not exist in this channel", in.Name))
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "look up trip")
		}
		if trip.CreatedBy != in.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden,
				"only the trip's creator can change its announce channel")
		}
		err = repo.UpsertSetting(ctx, &models.TripSetting{
			Trip:              trip.Name,
			ChannelID:         in.ChannelID,
			AnnounceChannelID: in.AnnounceChannelID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "save announce channel")
		}
		return nil
	})
}

// isPresent reports whether the user is still in the channel. An empty
// roster means the chat backend cannot enumerate members, so everyone is
// assumed present.
func (s *service) isPresent(ctx context.Context, channelID, userID string) (bool, error) {
	members, err := s.roster.ChannelMembers(ctx, channelID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list channel members")
	}
	if len(members) == 0 {
		return true, nil
	}
	for _, m := range members {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}
