package migrate

import (
	"fmt"

	"github.com/haleycrew/carpool-backend/pkg/db"
	"github.com/haleycrew/carpool-backend/pkg/db/models"
)

// AutoMigrateModels creates the schema straight from the model definitions.
// Used for SQLite deployments and in-memory tests; Postgres goes through the
// goose migrations, which additionally carry the partial active-trip index
// and the FK cascades.
func AutoMigrateModels(client *db.Client) error {
	if client == nil {
		return fmt.Errorf("db client is required")
	}
	return client.DB().AutoMigrate(
		&models.Trip{},
		&models.Car{},
		&models.CarMember{},
		&models.JoinRequest{},
		&models.TripSetting{},
		&models.TripActivation{},
	)
}
