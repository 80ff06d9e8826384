package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/haleycrew/carpool-backend/api/responses"
	"github.com/haleycrew/carpool-backend/api/validators"
	"github.com/haleycrew/carpool-backend/internal/rides"
	"github.com/haleycrew/carpool-backend/internal/trips"
	pkgerrors "github.com/haleycrew/carpool-backend/pkg/errors"
	"github.com/haleycrew/carpool-backend/pkg/logger"
)

// interactionRequest is the button-click callback relayed by the chat
// platform. Value is the opaque payload attached when the button was sent.
type interactionRequest struct {
	InteractionID string `json:"interaction_id" validate:"required"`
	ActionID      string `json:"action_id" validate:"required"`
	Value         string `json:"value"`
	ChannelID     string `json:"channel_id" validate:"required"`
	UserID        string `json:"user_id" validate:"required"`
}

// Interactions routes a button click to the service call it stands for.
func Interactions(ridesSvc rides.Service, tripsSvc trips.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ridesSvc == nil || tripsSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "interaction services unavailable"))
			return
		}

		var req interactionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"interaction_id": req.InteractionID,
				"action_id":      req.ActionID,
			})
			ctx = logg.WithChannelID(logg.WithUserID(ctx, req.UserID), req.ChannelID)
		}

		switch req.ActionID {
		case "approve_request":
			carID, userID, err := parseCarUserValue(req.Value)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			result, err := ridesSvc.ApproveRequest(ctx, rides.DecisionInput{
				ChannelID:  req.ChannelID,
				ApproverID: req.UserID,
				CarID:      carID,
				UserID:     userID,
			})
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, result)

		case "deny_request":
			carID, userID, err := parseCarUserValue(req.Value)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			err = ridesSvc.DenyRequest(ctx, rides.DecisionInput{
				ChannelID:  req.ChannelID,
				ApproverID: req.UserID,
				CarID:      carID,
				UserID:     userID,
			})
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, map[string]bool{"denied": true})

		case "confirm_switch":
			carID, _, err := parseCarUserValue(req.Value)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			result, err := ridesSvc.ConfirmSwitch(ctx, rides.SwitchInput{
				ChannelID: req.ChannelID,
				UserID:    req.UserID,
				CarID:     carID,
			})
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, result)

		case "cancel_switch":
			// The prompt recorded nothing, so declining is just an ack.
			responses.WriteSuccess(w, map[string]bool{"cancelled": true})

		case "approve_trip":
			result, err := tripsSvc.ApproveActivation(ctx, trips.DecisionInput{
				ChannelID: channelValue(req),
				UserID:    req.UserID,
			})
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, result)

		case "deny_trip":
			result, err := tripsSvc.DenyActivation(ctx, trips.DecisionInput{
				ChannelID: channelValue(req),
				UserID:    req.UserID,
			})
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, result)

		default:
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "unknown action id"))
		}
	}
}

// parseCarUserValue splits the "carID:userID" payload attached to join
// request buttons.
func parseCarUserValue(value string) (int, string, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return 0, "", pkgerrors.New(pkgerrors.CodeValidation, "malformed interaction value")
	}
	carID, err := strconv.Atoi(parts[0])
	if err != nil || carID <= 0 {
		return 0, "", pkgerrors.New(pkgerrors.CodeValidation, "malformed interaction value")
	}
	return carID, parts[1], nil
}

// channelValue prefers the channel recorded in the button payload: trip
// approval buttons live in a DM, whose channel id is not the trip's.
func channelValue(req interactionRequest) string {
	if v := strings.TrimSpace(req.Value); v != "" {
		return v
	}
	return req.ChannelID
}
