package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haleycrew/carpool-backend/pkg/config"
	pkgerrors "github.com/haleycrew/carpool-backend/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), config.ChatConfig{
		BaseURL:  srv.URL,
		BotToken: "xbot-test",
		Timeout:  2 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestNewClientRequiresConfig(t *testing.T) {
	if _, err := NewClient(context.Background(), config.ChatConfig{BotToken: "x"}, nil); err == nil {
		t.Fatal("expected error for missing base url")
	}
	if _, err := NewClient(context.Background(), config.ChatConfig{BaseURL: "http://chat.local"}, nil); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestPostDMSendsAuthorizedRequest(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody postMessageRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(apiResponse{OK: true})
	})

	err := client.PostDM(context.Background(), "U123", "your request was approved", []Action{
		{ID: "approve", Label: "Approve", Value: "req:1"},
	})
	if err != nil {
		t.Fatalf("PostDM returned error: %v", err)
	}
	if gotPath != "/chat.postDirect" {
		t.Fatalf("expected /chat.postDirect, got %s", gotPath)
	}
	if gotAuth != "Bearer xbot-test" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotBody.Channel != "U123" || len(gotBody.Actions) != 1 {
		t.Fatalf("unexpected payload %+v", gotBody)
	}
}

func TestChannelMembersReturnsRoster(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiResponse{OK: true, Members: []string{"U1", "U2"}})
	})

	members, err := client.ChannelMembers(context.Background(), "C42")
	if err != nil {
		t.Fatalf("ChannelMembers returned error: %v", err)
	}
	if len(members) != 2 || members[0] != "U1" {
		t.Fatalf("unexpected roster %v", members)
	}
}

func TestPlatformRejectionIsDependencyError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiResponse{OK: false, Error: "channel_not_found"})
	})

	err := client.PostChannel(context.Background(), "C404", "hello")
	if err == nil {
		t.Fatal("expected error for rejected request")
	}
	if got := pkgerrors.As(err).Code(); got != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency code, got %s", got)
	}
}
