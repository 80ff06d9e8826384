package notify

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/haleycrew/carpool-backend/pkg/chat"
	"github.com/haleycrew/carpool-backend/pkg/logger"
)

type fakeChat struct {
	mu       sync.Mutex
	dms      []Message
	posts    []Message
	dmErr    func(userID string) error
	postErr  func(channelID string) error
	done     chan struct{}
	expected int
}

func (f *fakeChat) record(list *[]Message, msg Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*list = append(*list, msg)
	if f.done != nil && len(f.dms)+len(f.posts) == f.expected {
		close(f.done)
	}
}

func (f *fakeChat) PostDM(ctx context.Context, userID, text string, actions []chat.Action) error {
	f.record(&f.dms, DM(userID, text, actions...))
	if f.dmErr != nil {
		return f.dmErr(userID)
	}
	return nil
}

func (f *fakeChat) PostChannel(ctx context.Context, channelID, text string) error {
	f.record(&f.posts, Channel(channelID, text))
	if f.postErr != nil {
		return f.postErr(channelID)
	}
	return nil
}

func (f *fakeChat) ChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	return nil, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard})
}

func TestSendDeliversEveryMessage(t *testing.T) {
	client := &fakeChat{}
	d, err := NewDispatcher(client, testLogger())
	if err != nil {
		t.Fatalf("NewDispatcher returned error: %v", err)
	}

	err = d.send(context.Background(), []Message{
		DM("U1", "you are in"),
		Channel("C1", "trip is live"),
		DM("U2", "car is full"),
	})
	if err != nil {
		t.Fatalf("send returned error: %v", err)
	}
	if len(client.dms) != 2 || len(client.posts) != 1 {
		t.Fatalf("expected 2 dms and 1 post, got %d and %d", len(client.dms), len(client.posts))
	}
	if client.dms[0].Target != "U1" || client.posts[0].Target != "C1" {
		t.Fatalf("unexpected targets %+v %+v", client.dms, client.posts)
	}
}

func TestSendContinuesPastFailures(t *testing.T) {
	client := &fakeChat{
		dmErr: func(userID string) error {
			if userID == "U1" {
				return errors.New("user left workspace")
			}
			return nil
		},
	}
	d, err := NewDispatcher(client, testLogger())
	if err != nil {
		t.Fatalf("NewDispatcher returned error: %v", err)
	}

	err = d.send(context.Background(), []Message{
		DM("U1", "first"),
		DM("U2", "second"),
	})
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if got := len(multierr.Errors(err)); got != 1 {
		t.Fatalf("expected 1 aggregated failure, got %d", got)
	}
	if len(client.dms) != 2 {
		t.Fatalf("expected both deliveries attempted, got %d", len(client.dms))
	}
}

func TestDispatchRunsDetachedFromCaller(t *testing.T) {
	client := &fakeChat{done: make(chan struct{}), expected: 1}
	d, err := NewDispatcher(client, testLogger())
	if err != nil {
		t.Fatalf("NewDispatcher returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // caller's request already finished

	d.Dispatch(ctx, []Message{DM("U1", "still delivered")})
	<-client.done

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.dms) != 1 {
		t.Fatalf("expected delivery despite cancelled caller context, got %d", len(client.dms))
	}
}

func TestDispatchNoMessagesIsNoop(t *testing.T) {
	d, err := NewDispatcher(&fakeChat{}, testLogger())
	if err != nil {
		t.Fatalf("NewDispatcher returned error: %v", err)
	}
	d.Dispatch(context.Background(), nil)
}
