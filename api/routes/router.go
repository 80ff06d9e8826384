package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haleycrew/carpool-backend/api/controllers"
	"github.com/haleycrew/carpool-backend/api/middleware"
	"github.com/haleycrew/carpool-backend/internal/cars"
	"github.com/haleycrew/carpool-backend/internal/rides"
	"github.com/haleycrew/carpool-backend/internal/trips"
	"github.com/haleycrew/carpool-backend/pkg/config"
	pkgdb "github.com/haleycrew/carpool-backend/pkg/db"
	"github.com/haleycrew/carpool-backend/pkg/logger"
	pkgredis "github.com/haleycrew/carpool-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP pkgdb.Pinger,
	redisClient *pkgredis.Client,
	tripsService trips.Service,
	carsService cars.Service,
	ridesService rides.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	// Keep a nil client out of the interface-valued params.
	var (
		redisP      pkgredis.Pinger
		dedupeStore pkgredis.DedupeStore
	)
	if redisClient != nil {
		redisP = redisClient
		dedupeStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/v1/commands", func(r chi.Router) {
		r.Route("/trips", func(r chi.Router) {
			r.Post("/create", controllers.TripCreate(tripsService, logg))
			r.Post("/delete", controllers.TripDelete(tripsService, logg))
			r.Post("/announce-channel", controllers.TripSetAnnounceChannel(tripsService, logg))
		})

		r.Route("/cars", func(r chi.Router) {
			r.Post("/create", controllers.CarCreate(carsService, logg))
			r.Post("/list", controllers.CarList(carsService, logg))
			r.Post("/status", controllers.CarStatus(carsService, logg))
			r.Post("/update-seats", controllers.CarUpdateSeats(carsService, logg))
			r.Post("/delete", controllers.CarDelete(carsService, logg))
		})

		r.Route("/rides", func(r chi.Router) {
			r.Post("/join", controllers.RideRequestJoin(ridesService, logg))
			r.Post("/cancel-request", controllers.RideCancelRequest(ridesService, logg))
			r.Post("/leave", controllers.RideLeave(ridesService, logg))
			r.Post("/boot", controllers.RideBoot(ridesService, logg))
			r.Post("/add-members", controllers.RideAddMembers(ridesService, logg))
			r.Post("/need-ride", controllers.RideNeedRide(ridesService, logg))
		})
	})

	r.Route("/api/v1/events", func(r chi.Router) {
		r.Post("/member-left", controllers.MemberLeft(ridesService, logg))
	})

	r.With(middleware.InteractionDedupe(dedupeStore, cfg.Interactions.DedupeTTL, logg)).
		Post("/api/v1/interactions", controllers.Interactions(ridesService, tripsService, logg))

	return r
}
