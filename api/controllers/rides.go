package controllers

import (
	"net/http"

	"github.com/haleycrew/carpool-backend/api/responses"
	"github.com/haleycrew/carpool-backend/api/validators"
	"github.com/haleycrew/carpool-backend/internal/rides"
	pkgerrors "github.com/haleycrew/carpool-backend/pkg/errors"
	"github.com/haleycrew/carpool-backend/pkg/logger"
)

type rideJoinRequest struct {
	ChannelID     string `json:"channel_id" validate:"required"`
	UserID        string `json:"user_id" validate:"required"`
	TargetOwnerID string `json:"target_owner_id" validate:"required"`
}

// RideRequestJoin handles /join <owner>: records a join request for the
// owner's car, or prompts a switch when the caller is already seated.
func RideRequestJoin(svc rides.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rides service unavailable"))
			return
		}

		var req rideJoinRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithChannelID(logg.WithUserID(ctx, req.UserID), req.ChannelID)
		}

		result, err := svc.RequestJoin(ctx, rides.JoinInput{
			ChannelID:     req.ChannelID,
			UserID:        req.UserID,
			TargetOwnerID: req.TargetOwnerID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type rideUserRequest struct {
	ChannelID string `json:"channel_id" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
}

// RideCancelRequest handles /cancelrequest.
func RideCancelRequest(svc rides.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rides service unavailable"))
			return
		}

		var req rideUserRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		car, err := svc.CancelRequest(r.Context(), rides.CancelInput{
			ChannelID: req.ChannelID,
			UserID:    req.UserID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"cancelled": true, "car": car})
	}
}

// RideLeave handles /out: a member gives up their seat; an owner dissolves
// the car.
func RideLeave(svc rides.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rides service unavailable"))
			return
		}

		var req rideUserRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Leave(r.Context(), rides.LeaveInput{
			ChannelID: req.ChannelID,
			UserID:    req.UserID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type rideBootRequest struct {
	ChannelID string `json:"channel_id" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
	TargetID  string `json:"target_id" validate:"required"`
}

// RideBoot handles /boot <member>: owner removes a rider from their car.
func RideBoot(svc rides.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rides service unavailable"))
			return
		}

		var req rideBootRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err := svc.Boot(r.Context(), rides.BootInput{
			ChannelID: req.ChannelID,
			UserID:    req.UserID,
			TargetID:  req.TargetID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"booted": true})
	}
}

type rideAddRequest struct {
	ChannelID string   `json:"channel_id" validate:"required"`
	UserID    string   `json:"user_id" validate:"required"`
	Targets   []string `json:"targets" validate:"required,min=1"`
}

// RideAddMembers handles /add <members...>: owner seats riders directly.
func RideAddMembers(svc rides.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rides service unavailable"))
			return
		}

		var req rideAddRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AddMembers(r.Context(), rides.AddInput{
			ChannelID: req.ChannelID,
			UserID:    req.UserID,
			Targets:   req.Targets,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// RideNeedRide handles /needride: channel members without a seat plus the
// cars that could still take them.
func RideNeedRide(svc rides.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rides service unavailable"))
			return
		}

		var req channelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.NeedRide(r.Context(), req.ChannelID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// MemberLeft handles the channel's member-left event: the departed user is
// removed from every car they occupied.
func MemberLeft(svc rides.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rides service unavailable"))
			return
		}

		var req rideUserRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err := svc.HandleMemberLeft(r.Context(), rides.MemberLeftInput{
			ChannelID: req.ChannelID,
			UserID:    req.UserID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"processed": true})
	}
}
