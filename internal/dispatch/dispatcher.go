package dispatch

import (
	"log"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/registry"
)

// Dispatcher turns store mutations into delivery events and pushes them to
// the affected identities' live channels. Pushes are best-effort and never
// block the calling write path: the store remains the source of truth and
// a missed push is repaired by the client's next poll or reconnect resync.
type Dispatcher struct {
	registry *registry.Registry
}

// New constructs a Dispatcher over the channel registry.
func New(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{registry: reg}
}

// MessageCreated pushes a message_created event to every participant
// except the sender, who already has the message locally.
func (d *Dispatcher) MessageCreated(conv models.Conversation, msg models.Message) {
	event := models.NewMessageCreated(msg)
	for _, p := range conv.Participants {
		if p.Identity == msg.SenderIdentity {
			continue
		}
		d.pushTo(p.Identity, event)
	}
}

// ReadReceipt pushes a read_receipt event to every participant other than
// the reader.
func (d *Dispatcher) ReadReceipt(conv models.Conversation, identity string, upTo int64) {
	event := models.NewReadReceipt(conv.ID, identity, upTo)
	for _, p := range conv.Participants {
		if p.Identity == identity {
			continue
		}
		d.pushTo(p.Identity, event)
	}
}

// ConversationCreated pushes a conversation_created event to all
// participants.
func (d *Dispatcher) ConversationCreated(conv models.Conversation) {
	event := models.NewConversationCreated(conv)
	for _, p := range conv.Participants {
		d.pushTo(p.Identity, event)
	}
}

// BroadcastToRole pushes an event to every channel registered under the
// given role, regardless of conversation membership. Used for the
// therapist_update and stats_update admin feeds.
func (d *Dispatcher) BroadcastToRole(role string, event models.DeliveryEvent) {
	for _, ch := range d.registry.ChannelsForRole(role) {
		d.send(ch, event)
	}
}

func (d *Dispatcher) pushTo(identity string, event models.DeliveryEvent) {
	for _, ch := range d.registry.ChannelsFor(identity) {
		d.send(ch, event)
	}
}

func (d *Dispatcher) send(ch registry.Channel, event models.DeliveryEvent) {
	if ch.TrySend(event) {
		observability.IncPushDelivered(string(event.Type))
		return
	}
	// Dropped pushes are a visibility-latency problem, not a correctness
	// problem; the client converges via the read API.
	log.Printf("push dropped conn=%s event=%s", ch.ID(), event.Type)
	observability.IncPushDropped(string(event.Type))
}
