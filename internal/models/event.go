package models

import "encoding/json"

// EventKind discriminates the delivery events pushed over live channels.
type EventKind string

const (
	EventMessageCreated      EventKind = "message_created"
	EventReadReceipt         EventKind = "read_receipt"
	EventConversationCreated EventKind = "conversation_created"
	EventTherapistUpdate     EventKind = "therapist_update"
	EventStatsUpdate         EventKind = "stats_update"
)

// DeliveryEvent is the server-to-client frame: a kind tag plus one
// kind-specific payload.
type DeliveryEvent struct {
	Type EventKind    `json:"type"`
	Data EventPayload `json:"data"`
}

// EventPayload is implemented by exactly one payload type per event kind.
type EventPayload interface {
	isEventPayload()
}

// MessageCreatedPayload carries the new message.
type MessageCreatedPayload struct {
	ConversationID string  `json:"conversation_id"`
	Message        Message `json:"message"`
}

// ReadReceiptPayload tells other participants how far an identity has read.
type ReadReceiptPayload struct {
	ConversationID string `json:"conversation_id"`
	Identity       string `json:"identity"`
	UpTo           int64  `json:"up_to"`
}

// ConversationCreatedPayload carries the freshly created conversation.
type ConversationCreatedPayload struct {
	Conversation Conversation `json:"conversation"`
}

// AdminBroadcastPayload wraps the opaque JSON produced by the stats
// aggregation job; the service relays it without interpreting it.
type AdminBroadcastPayload json.RawMessage

func (MessageCreatedPayload) isEventPayload()      {}
func (ReadReceiptPayload) isEventPayload()         {}
func (ConversationCreatedPayload) isEventPayload() {}
func (AdminBroadcastPayload) isEventPayload()      {}

// MarshalJSON emits the wrapped JSON verbatim.
func (p AdminBroadcastPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return json.RawMessage(p).MarshalJSON()
}

// NewMessageCreated builds a message_created event.
func NewMessageCreated(msg Message) DeliveryEvent {
	return DeliveryEvent{
		Type: EventMessageCreated,
		Data: MessageCreatedPayload{ConversationID: msg.ConversationID, Message: msg},
	}
}

// NewReadReceipt builds a read_receipt event.
func NewReadReceipt(conversationID, identity string, upTo int64) DeliveryEvent {
	return DeliveryEvent{
		Type: EventReadReceipt,
		Data: ReadReceiptPayload{ConversationID: conversationID, Identity: identity, UpTo: upTo},
	}
}

// NewConversationCreated builds a conversation_created event.
func NewConversationCreated(conv Conversation) DeliveryEvent {
	return DeliveryEvent{
		Type: EventConversationCreated,
		Data: ConversationCreatedPayload{Conversation: conv},
	}
}

// NewAdminBroadcast builds a therapist_update or stats_update event from a
// raw payload.
func NewAdminBroadcast(kind EventKind, payload json.RawMessage) DeliveryEvent {
	return DeliveryEvent{Type: kind, Data: AdminBroadcastPayload(payload)}
}
