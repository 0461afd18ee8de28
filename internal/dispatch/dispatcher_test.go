package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
	"messaging-service/internal/registry"
)

type recordingChannel struct {
	id     string
	events []models.DeliveryEvent
}

func (r *recordingChannel) ID() string { return r.id }

func (r *recordingChannel) TrySend(event models.DeliveryEvent) bool {
	r.events = append(r.events, event)
	return true
}

func (r *recordingChannel) Close() {}

// blockedChannel simulates a client whose outbound buffer is full.
type blockedChannel struct {
	id       string
	attempts int
}

func (b *blockedChannel) ID() string { return b.id }

func (b *blockedChannel) TrySend(models.DeliveryEvent) bool {
	b.attempts++
	return false
}

func (b *blockedChannel) Close() {}

func twoPartyConversation() models.Conversation {
	return models.Conversation{
		ID: "conv-1",
		Participants: []models.Participant{
			{Identity: "patient-1", Role: models.RolePatient},
			{Identity: "doctor-1", Role: models.RoleDoctor},
		},
	}
}

func TestMessageCreatedSkipsSender(t *testing.T) {
	reg := registry.New()
	sender := &recordingChannel{id: "sender"}
	receiver := &recordingChannel{id: "receiver"}
	reg.Register("patient-1", models.RolePatient, sender)
	reg.Register("doctor-1", models.RoleDoctor, receiver)

	d := New(reg)
	msg := models.Message{ID: 1, ConversationID: "conv-1", SenderIdentity: "patient-1", Content: "hi"}
	d.MessageCreated(twoPartyConversation(), msg)

	assert.Empty(t, sender.events)
	require.Len(t, receiver.events, 1)
	assert.Equal(t, models.EventMessageCreated, receiver.events[0].Type)
	payload := receiver.events[0].Data.(models.MessageCreatedPayload)
	assert.Equal(t, "hi", payload.Message.Content)
}

func TestMessageCreatedReachesAllChannelsOfAnIdentity(t *testing.T) {
	reg := registry.New()
	tab1 := &recordingChannel{id: "tab1"}
	tab2 := &recordingChannel{id: "tab2"}
	reg.Register("doctor-1", models.RoleDoctor, tab1)
	reg.Register("doctor-1", models.RoleDoctor, tab2)

	d := New(reg)
	d.MessageCreated(twoPartyConversation(), models.Message{ID: 2, ConversationID: "conv-1", SenderIdentity: "patient-1"})

	assert.Len(t, tab1.events, 1)
	assert.Len(t, tab2.events, 1)
}

func TestMessageCreatedWithNoChannelsIsSilent(t *testing.T) {
	d := New(registry.New())
	d.MessageCreated(twoPartyConversation(), models.Message{ID: 3, ConversationID: "conv-1", SenderIdentity: "patient-1"})
}

func TestReadReceiptSkipsReader(t *testing.T) {
	reg := registry.New()
	reader := &recordingChannel{id: "reader"}
	other := &recordingChannel{id: "other"}
	reg.Register("patient-1", models.RolePatient, reader)
	reg.Register("doctor-1", models.RoleDoctor, other)

	d := New(reg)
	d.ReadReceipt(twoPartyConversation(), "patient-1", 42)

	assert.Empty(t, reader.events)
	require.Len(t, other.events, 1)
	payload := other.events[0].Data.(models.ReadReceiptPayload)
	assert.Equal(t, int64(42), payload.UpTo)
	assert.Equal(t, "patient-1", payload.Identity)
}

func TestConversationCreatedTargetsAllParticipants(t *testing.T) {
	reg := registry.New()
	a := &recordingChannel{id: "a"}
	b := &recordingChannel{id: "b"}
	reg.Register("patient-1", models.RolePatient, a)
	reg.Register("doctor-1", models.RoleDoctor, b)

	d := New(reg)
	d.ConversationCreated(twoPartyConversation())

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestBroadcastToRole(t *testing.T) {
	reg := registry.New()
	admin := &recordingChannel{id: "admin"}
	patient := &recordingChannel{id: "patient"}
	reg.Register("admin-1", models.RoleAdmin, admin)
	reg.Register("patient-1", models.RolePatient, patient)

	d := New(reg)
	d.BroadcastToRole(models.RoleAdmin, models.NewAdminBroadcast(models.EventStatsUpdate, []byte(`{"active":3}`)))

	require.Len(t, admin.events, 1)
	assert.Equal(t, models.EventStatsUpdate, admin.events[0].Type)
	assert.Empty(t, patient.events)
}

func TestBlockedChannelDoesNotStallDispatch(t *testing.T) {
	reg := registry.New()
	blocked := &blockedChannel{id: "blocked"}
	healthy := &recordingChannel{id: "healthy"}
	reg.Register("doctor-1", models.RoleDoctor, blocked)
	reg.Register("doctor-1", models.RoleDoctor, healthy)

	d := New(reg)
	start := time.Now()
	d.MessageCreated(twoPartyConversation(), models.Message{ID: 9, ConversationID: "conv-1", SenderIdentity: "patient-1"})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, blocked.attempts)
	assert.Len(t, healthy.events, 1)
}
