package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/haleycrew/carpool-backend/pkg/chat"
	pkgerrors "github.com/haleycrew/carpool-backend/pkg/errors"
	"github.com/haleycrew/carpool-backend/pkg/logger"
)

const dispatchTimeout = 30 * time.Second

// Dispatcher delivers committed messages to the chat platform. Delivery is
// best effort: failures are logged and aggregated, never returned to the
// request path that produced the messages.
type Dispatcher struct {
	client chat.Client
	logg   *logger.Logger
}

// NewDispatcher wires delivery dependencies.
func NewDispatcher(client chat.Client, logg *logger.Logger) (*Dispatcher, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "chat client required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Dispatcher{client: client, logg: logg}, nil
}

// Dispatch sends messages in the background once the producing transaction
// has committed. The context carries only logging fields; delivery runs on a
// detached context so an HTTP request finishing cannot cancel it mid-batch.
func (d *Dispatcher) Dispatch(ctx context.Context, messages []Message) {
	if len(messages) == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		sendCtx, cancel := context.WithTimeout(detached, dispatchTimeout)
		defer cancel()

		if err := d.send(sendCtx, messages); err != nil {
			d.logg.Error(sendCtx, "notification dispatch incomplete", err)
		}
	}()
}

// send delivers every message and aggregates per-message failures so one
// unreachable user does not stop the rest of the batch.
func (d *Dispatcher) send(ctx context.Context, messages []Message) error {
	var errs error
	for _, msg := range messages {
		var err error
		switch msg.Kind {
		case KindDM:
			err = d.client.PostDM(ctx, msg.Target, msg.Text, msg.Actions)
		case KindChannel:
			err = d.client.PostChannel(ctx, msg.Target, msg.Text)
		default:
			err = pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unknown message kind %q", msg.Kind))
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("deliver %s to %s: %w", msg.Kind, msg.Target, err))
		}
	}
	return errs
}
