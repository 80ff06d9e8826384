// Package chat wraps the chat platform's web API. The engine only ever sees
// this interface: direct messages, channel posts, and channel-membership
// lookups. Message formatting and delivery failures stay on this side of the
// boundary.
package chat

import "context"

// Action is a button attached to a message; Value round-trips through the
// interactions endpoint untouched.
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Client is the collaborator surface consumed by the notification dispatcher
// and the presence checks.
type Client interface {
	// PostDM sends a direct message to a single user.
	PostDM(ctx context.Context, userID, text string, actions []Action) error
	// PostChannel posts a message into a channel.
	PostChannel(ctx context.Context, channelID, text string) error
	// ChannelMembers returns the human members currently present in the
	// channel. An empty slice with a nil error means the channel is
	// reachable but empty; an error means the channel cannot be inspected.
	ChannelMembers(ctx context.Context, channelID string) ([]string, error)
}
