package trips

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/haleycrew/carpool-backend/pkg/db/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := conn.AutoMigrate(
		&models.Trip{},
		&models.Car{},
		&models.CarMember{},
		&models.JoinRequest{},
		&models.TripSetting{},
		&models.TripActivation{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if err := conn.Exec(
		"CREATE UNIQUE INDEX uq_trips_active_per_channel ON trips(channel_id) WHERE active",
	).Error; err != nil {
		t.Fatalf("create partial index: %v", err)
	}
	return conn
}

func TestStoreDeleteTripCascade(t *testing.T) {
	conn := newTestDB(t)
	fixtures := []any{
		&models.Trip{Name: "beach", ChannelID: "C1", CreatedBy: "UA", Active: true},
		&models.Trip{Name: "lake", ChannelID: "C2", CreatedBy: "UB", Active: true},
		&models.Car{ID: 1, Trip: "beach", ChannelID: "C1", Name: "Alice's car", Seats: 4, CreatedBy: "UA"},
		&models.Car{ID: 1, Trip: "lake", ChannelID: "C2", Name: "Bob's car", Seats: 2, CreatedBy: "UB"},
		&models.CarMember{CarID: 1, Trip: "beach", ChannelID: "C1", UserID: "UA"},
		&models.CarMember{CarID: 1, Trip: "beach", ChannelID: "C1", UserID: "UC"},
		&models.CarMember{CarID: 1, Trip: "lake", ChannelID: "C2", UserID: "UB"},
		&models.JoinRequest{CarID: 1, Trip: "beach", ChannelID: "C1", UserID: "UD"},
		&models.TripSetting{Trip: "beach", ChannelID: "C1", AnnounceChannelID: "C-announce"},
	}
	for _, fixture := range fixtures {
		if err := conn.Create(fixture).Error; err != nil {
			t.Fatalf("seed %T: %v", fixture, err)
		}
	}

	repo := NewRepository(conn)
	counts, err := repo.DeleteTripCascade(context.Background(), "beach", "C1")
	if err != nil {
		t.Fatalf("DeleteTripCascade returned error: %v", err)
	}
	want := CascadeCounts{Cars: 1, Members: 2, Requests: 1}
	if counts != want {
		t.Fatalf("counts = %+v, want %+v", counts, want)
	}

	for _, check := range []struct {
		name  string
		model any
		want  int64
	}{
		{"trips", &models.Trip{}, 1},
		{"cars", &models.Car{}, 1},
		{"members", &models.CarMember{}, 1},
		{"requests", &models.JoinRequest{}, 0},
		{"settings", &models.TripSetting{}, 0},
	} {
		var n int64
		if err := conn.Model(check.model).Count(&n).Error; err != nil {
			t.Fatalf("count %s: %v", check.name, err)
		}
		if n != check.want {
			t.Fatalf("%s remaining = %d, want %d", check.name, n, check.want)
		}
	}

	// The other channel's trip is untouched.
	if _, err := repo.FindTripInChannel(context.Background(), "lake", "C2"); err != nil {
		t.Fatalf("lake trip lost: %v", err)
	}
}

func TestStoreSecondActiveTripPerChannelRejected(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)

	if err := repo.CreateTrip(context.Background(), &models.Trip{
		Name: "beach", ChannelID: "C1", CreatedBy: "UA", Active: true,
	}); err != nil {
		t.Fatalf("first trip: %v", err)
	}
	err := repo.CreateTrip(context.Background(), &models.Trip{
		Name: "lake", ChannelID: "C1", CreatedBy: "UB", Active: true,
	})
	if err == nil {
		t.Fatal("second active trip in channel was accepted")
	}

	// Deactivating the first makes room.
	if err := repo.SetTripActive(context.Background(), "beach", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := repo.CreateTrip(context.Background(), &models.Trip{
		Name: "lake", ChannelID: "C1", CreatedBy: "UB", Active: true,
	}); err != nil {
		t.Fatalf("trip after deactivation: %v", err)
	}
	trip, err := repo.ActiveTrip(context.Background(), "C1")
	if err != nil || trip.Name != "lake" {
		t.Fatalf("active = %+v, err = %v", trip, err)
	}
}

func TestStoreUpsertSetting(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)

	for _, target := range []string{"C-announce", "C-updates"} {
		err := repo.UpsertSetting(context.Background(), &models.TripSetting{
			Trip: "beach", ChannelID: "C1", AnnounceChannelID: target,
		})
		if err != nil {
			t.Fatalf("upsert %q: %v", target, err)
		}
	}

	var settings []models.TripSetting
	if err := conn.Find(&settings).Error; err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if len(settings) != 1 || settings[0].AnnounceChannelID != "C-updates" {
		t.Fatalf("settings = %+v", settings)
	}
}

func TestStoreActivationRoundTrip(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)

	err := repo.CreateActivation(context.Background(), &models.TripActivation{
		ChannelID: "C1", Name: "lake", RequestedBy: "UA",
		CurrentTrip: "beach", OwnerID: "UB",
	})
	if err != nil {
		t.Fatalf("create activation: %v", err)
	}

	// One pending handshake per channel.
	err = repo.CreateActivation(context.Background(), &models.TripActivation{
		ChannelID: "C1", Name: "river", RequestedBy: "UC",
		CurrentTrip: "beach", OwnerID: "UB",
	})
	if err == nil {
		t.Fatal("second activation in channel was accepted")
	}

	activation, err := repo.FindActivation(context.Background(), "C1")
	if err != nil {
		t.Fatalf("find activation: %v", err)
	}
	if activation.Name != "lake" || activation.OwnerID != "UB" {
		t.Fatalf("activation = %+v", activation)
	}

	if err := repo.DeleteActivation(context.Background(), "C1"); err != nil {
		t.Fatalf("delete activation: %v", err)
	}
	if _, err := repo.FindActivation(context.Background(), "C1"); err != gorm.ErrRecordNotFound {
		t.Fatalf("err = %v, want record not found", err)
	}
}
