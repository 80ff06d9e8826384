package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haleycrew/carpool-backend/api/responses"
	pkgerrors "github.com/haleycrew/carpool-backend/pkg/errors"
	"github.com/haleycrew/carpool-backend/pkg/logger"
	pkgredis "github.com/haleycrew/carpool-backend/pkg/redis"
)

// InteractionDedupe drops redelivered interaction callbacks. Chat platforms
// retry a callback until they see a 2xx, so a slow approval could otherwise
// be processed twice. The first delivery claims the interaction id in redis;
// replays get an empty success without reaching the handler.
func InteractionDedupe(store pkgredis.DedupeStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var probe struct {
				InteractionID string `json:"interaction_id"`
			}
			if err := json.Unmarshal(body, &probe); err != nil || strings.TrimSpace(probe.InteractionID) == "" {
				// Handlers validate the payload themselves.
				next.ServeHTTP(w, r)
				return
			}

			key := store.InteractionKey(r.URL.Path, probe.InteractionID)
			claimed, err := store.SetNX(r.Context(), key, "1", ttl)
			if err != nil {
				// Redis being down must not block interactions.
				if logg != nil {
					logg.Error(r.Context(), "interaction.dedupe_unavailable", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !claimed {
				if logg != nil {
					ctx := logg.WithField(r.Context(), "interaction_id", probe.InteractionID)
					logg.Info(ctx, "interaction.replay_dropped")
				}
				responses.WriteSuccess(w, map[string]bool{"deduped": true})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
