// Package canonical defines the provider-agnostic message representation
// all inbound content is reduced to before reaching business logic, and the
// canonical send request/result shapes shared by every provider module.
package canonical

// MessageKind is the discriminator tag for an inbound message's shape.
type MessageKind string

const (
	KindText      MessageKind = "text"
	KindAudio     MessageKind = "audio"
	KindImage     MessageKind = "image"
	KindListReply MessageKind = "listReply"
)

// InboundMessage is the standardized form of one inbound webhook message.
// It is constructed once by exactly one provider decoder and is immutable
// afterwards. Content is always non-empty: audio and image messages are
// resolved to text before the message counts as standardized.
type InboundMessage struct {
	MessageID        string      `json:"messageId"`
	Sender           string      `json:"sender"`
	Receiver         string      `json:"receiver"`
	Timestamp        string      `json:"timestamp"`
	Kind             MessageKind `json:"messageKind"`
	Content          string      `json:"content"`
	ReplyToMessageID string      `json:"replyToMessageId,omitempty"`
	MediaURL         string      `json:"mediaUrl,omitempty"`
}
