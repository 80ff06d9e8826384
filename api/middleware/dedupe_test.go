package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/haleycrew/carpool-backend/pkg/logger"
)

type fakeDedupeStore struct {
	keys map[string]bool
	err  error
}

func (f *fakeDedupeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.keys == nil {
		f.keys = map[string]bool{}
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeDedupeStore) InteractionKey(scope, id string) string {
	return "carpool:interaction:" + scope + ":" + id
}

func dedupeHandler(store *fakeDedupeStore, hits *int) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 {
			panic("handler lost the request body")
		}
		w.WriteHeader(http.StatusOK)
	})
	return InteractionDedupe(store, time.Minute, logg)(next)
}

func TestInteractionDedupeFirstDeliveryPasses(t *testing.T) {
	store := &fakeDedupeStore{}
	hits := 0
	handler := dedupeHandler(store, &hits)

	body := `{"interaction_id":"I1","action_id":"approve_request"}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/interactions", strings.NewReader(body)))

	if resp.Code != http.StatusOK || hits != 1 {
		t.Fatalf("status = %d, hits = %d", resp.Code, hits)
	}
}

func TestInteractionDedupeDropsReplay(t *testing.T) {
	store := &fakeDedupeStore{}
	hits := 0
	handler := dedupeHandler(store, &hits)

	body := `{"interaction_id":"I1","action_id":"approve_request"}`
	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/interactions", strings.NewReader(body)))
		if resp.Code != http.StatusOK {
			t.Fatalf("delivery %d: status = %d", i, resp.Code)
		}
	}
	if hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}
}

func TestInteractionDedupeDistinctIDs(t *testing.T) {
	store := &fakeDedupeStore{}
	hits := 0
	handler := dedupeHandler(store, &hits)

	for _, id := range []string{"I1", "I2"} {
		body := `{"interaction_id":"` + id + `"}`
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/interactions", strings.NewReader(body)))
		if resp.Code != http.StatusOK {
			t.Fatalf("id %s: status = %d", id, resp.Code)
		}
	}
	if hits != 2 {
		t.Fatalf("hits = %d, want 2", hits)
	}
}

func TestInteractionDedupeRedisDownFailsOpen(t *testing.T) {
	store := &fakeDedupeStore{err: context.DeadlineExceeded}
	hits := 0
	handler := dedupeHandler(store, &hits)

	body := `{"interaction_id":"I1"}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/interactions", strings.NewReader(body)))

	if resp.Code != http.StatusOK || hits != 1 {
		t.Fatalf("status = %d, hits = %d", resp.Code, hits)
	}
}

func TestInteractionDedupeMissingIDPassesThrough(t *testing.T) {
	store := &fakeDedupeStore{}
	hits := 0
	handler := dedupeHandler(store, &hits)

	body := `{"action_id":"approve_request"}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/interactions", strings.NewReader(body)))

	if resp.Code != http.StatusOK || hits != 1 {
		t.Fatalf("status = %d, hits = %d", resp.Code, hits)
	}
	if len(store.keys) != 0 {
		t.Fatalf("keys = %v, want none", store.keys)
	}
}
