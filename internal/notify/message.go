// Package notify carries outbound messages from the engine to the chat
// platform. Services build messages inside their transactions; the dispatcher
// delivers them only after the transaction commits, so a failed delivery can
// never roll back a state change and a rolled-back change never notifies.
package notify

import "github.com/haleycrew/carpool-backend/pkg/chat"

// Kind selects the delivery surface for a message.
type Kind string

const (
	// KindDM delivers to a single user's direct-message channel.
	KindDM Kind = "dm"
	// KindChannel posts into a shared channel.
	KindChannel Kind = "channel"
)

// Message is one pending delivery. Target is a user ID for KindDM and a
// channel ID for KindChannel.
type Message struct {
	Kind    Kind
	Target  string
	Text    string
	Actions []chat.Action
}

// DM builds a direct message.
func DM(userID, text string, actions ...chat.Action) Message {
	return Message{Kind: KindDM, Target: userID, Text: text, Actions: actions}
}

// Channel builds a channel post.
func Channel(channelID, text string) Message {
	return Message{Kind: KindChannel, Target: channelID, Text: text}
}
