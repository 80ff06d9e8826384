package controllers

import (
	"net/http"

	"github.com/haleycrew/carpool-backend/api/responses"
	"github.com/haleycrew/carpool-backend/api/validators"
	"github.com/haleycrew/carpool-backend/internal/cars"
	pkgerrors "github.com/haleycrew/carpool-backend/pkg/errors"
	"github.com/haleycrew/carpool-backend/pkg/logger"
)

type carCreateRequest struct {
	ChannelID   string `json:"channel_id" validate:"required"`
	UserID      string `json:"user_id" validate:"required"`
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
	Seats       int    `json:"seats" validate:"required,min=1"`
}

// CarCreate handles /newcar on the channel's active trip.
func CarCreate(svc cars.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cars service unavailable"))
			return
		}

		var req carCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), cars.CreateInput{
			ChannelID:   req.ChannelID,
			UserID:      req.UserID,
			DisplayName: req.DisplayName,
			Name:        req.Name,
			Seats:       req.Seats,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type channelRequest struct {
	ChannelID string `json:"channel_id" validate:"required"`
}

// CarList handles /listcars: id, name, and occupancy per car.
func CarList(svc cars.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cars service unavailable"))
			return
		}

		var req channelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), req.ChannelID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CarStatus handles /status: every car with its full roster.
func CarStatus(svc cars.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cars service unavailable"))
			return
		}

		var req channelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Status(r.Context(), req.ChannelID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type carUpdateSeatsRequest struct {
	ChannelID string `json:"channel_id" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
	Seats     int    `json:"seats" validate:"required,min=1"`
}

// CarUpdateSeats handles /update seats on the caller's own car.
func CarUpdateSeats(svc cars.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cars service unavailable"))
			return
		}

		var req carUpdateSeatsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.UpdateSeats(r.Context(), cars.UpdateSeatsInput{
			ChannelID: req.ChannelID,
			UserID:    req.UserID,
			Seats:     req.Seats,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type carDeleteRequest struct {
	ChannelID string `json:"channel_id" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
}

// CarDelete handles /delete on the caller's own car.
func CarDelete(svc cars.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cars service unavailable"))
			return
		}

		var req carDeleteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err := svc.Delete(r.Context(), cars.DeleteInput{
			ChannelID: req.ChannelID,
			UserID:    req.UserID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}
