package chat

import (
	"context"

	"github.com/haleycrew/carpool-backend/pkg/logger"
)

// noopClient logs every message instead of delivering it. Used when no chat
// credentials are configured, so local runs and tests never hit the network.
type noopClient struct {
	logg *logger.Logger
}

// NewNoop returns a client that records messages to the log only.
func NewNoop(logg *logger.Logger) Client {
	return &noopClient{logg: logg}
}

func (c *noopClient) PostDM(ctx context.Context, userID, text string, actions []Action) error {
	if c.logg != nil {
		c.logg.Info(c.logg.WithUserID(ctx, userID), "chat disabled, dropping dm: "+text)
	}
	return nil
}

func (c *noopClient) PostChannel(ctx context.Context, channelID, text string) error {
	if c.logg != nil {
		c.logg.Info(c.logg.WithChannelID(ctx, channelID), "chat disabled, dropping channel post: "+text)
	}
	return nil
}

// ChannelMembers reports no presence information. Callers treat an empty
// roster as "everyone still present" when chat is disabled, so staleness
// checks never fire in local runs.
func (c *noopClient) ChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	return nil, nil
}
