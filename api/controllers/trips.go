package controllers

import (
	"net/http"

	"github.com/haleycrew/carpool-backend/api/responses"
	"github.com/haleycrew/carpool-backend/api/validators"
	"github.com/haleycrew/carpool-backend/internal/trips"
	pkgerrors "github.com/haleycrew/carpool-backend/pkg/errors"
	"github.com/haleycrew/carpool-backend/pkg/logger"
)

type tripCreateRequest struct {
	ChannelID string `json:"channel_id" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
}

// TripCreate handles /createtrip: activate a new trip in the channel,
// possibly pending the current trip owner's approval.
func TripCreate(svc trips.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "trips service unavailable"))
			return
		}

		var req tripCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithChannelID(logg.WithUserID(ctx, req.UserID), req.ChannelID)
		}

		result, err := svc.CreateOrActivate(ctx, trips.CreateInput{
			ChannelID: req.ChannelID,
			UserID:    req.UserID,
			Name:      req.Name,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type tripDeleteRequest struct {
	ChannelID string `json:"channel_id" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
}

// TripDelete handles /deletetrip (creator only).
func TripDelete(svc trips.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "trips service unavailable"))
			return
		}

		var req tripDeleteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Delete(r.Context(), trips.DeleteInput{
			ChannelID: req.ChannelID,
			UserID:    req.UserID,
			Name:      req.Name,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type tripAnnounceRequest struct {
	ChannelID         string `json:"channel_id" validate:"required"`
	UserID            string `json:"user_id" validate:"required"`
	Name              string `json:"name" validate:"required"`
	AnnounceChannelID string `json:"announce_channel_id" validate:"required"`
}

// TripSetAnnounceChannel handles /settripchannel (creator only).
func TripSetAnnounceChannel(svc trips.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "trips service unavailable"))
			return
		}

		var req tripAnnounceRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err := svc.SetAnnounceChannel(r.Context(), trips.AnnounceInput{
			ChannelID:         req.ChannelID,
			UserID:            req.UserID,
			Name:              req.Name,
			AnnounceChannelID: req.AnnounceChannelID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{
			"trip":                req.Name,
			"announce_channel_id": req.AnnounceChannelID,
		})
	}
}
