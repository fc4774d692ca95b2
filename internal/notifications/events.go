package notifications

import "encoding/json"

// Feed event types.
const (
	EventPostCreated      = "post_created"
	EventPostUpdated      = "post_updated"
	EventPostDeleted      = "post_deleted"
	EventPostLikesUpdated = "post_likes_updated"
	EventPostSaved        = "post_saved"
)

const droppedNotice = `{"type":"messages_dropped","payload":{"reason":"buffer_full"}}`

// Event is the envelope written to feed sockets.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (e Event) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
