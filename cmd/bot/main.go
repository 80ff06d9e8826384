package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/haleycrew/carpool-backend/api/routes"
	"github.com/haleycrew/carpool-backend/internal/cars"
	"github.com/haleycrew/carpool-backend/internal/notify"
	"github.com/haleycrew/carpool-backend/internal/rides"
	"github.com/haleycrew/carpool-backend/internal/trips"
	"github.com/haleycrew/carpool-backend/pkg/chat"
	"github.com/haleycrew/carpool-backend/pkg/config"
	"github.com/haleycrew/carpool-backend/pkg/db"
	"github.com/haleycrew/carpool-backend/pkg/logger"
	"github.com/haleycrew/carpool-backend/pkg/migrate"
	"github.com/haleycrew/carpool-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "bot"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "bot",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var chatClient chat.Client
	if cfg.Chat.Enabled() {
		chatClient, err = chat.NewClient(context.Background(), cfg.Chat, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create chat client", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "chat credentials missing, notifications are log-only")
		chatClient = chat.NewNoop(logg)
	}

	dispatcher, err := notify.NewDispatcher(chatClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	tripsService, err := trips.NewService(trips.NewRepository(dbClient.DB()), dbClient, dispatcher, chatClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create trips service", err)
		os.Exit(1)
	}
	carsService, err := cars.NewService(cars.NewRepository(dbClient.DB()), dbClient, dispatcher)
	if err != nil {
		logg.Error(context.Background(), "failed to create cars service", err)
		os.Exit(1)
	}
	ridesService, err := rides.NewService(rides.NewRepository(dbClient.DB()), dbClient, dispatcher, chatClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create rides service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting bot server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, tripsService, carsService, ridesService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "bot server stopped unexpectedly", err)
		os.Exit(1)
	}
}
