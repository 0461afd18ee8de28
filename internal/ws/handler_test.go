package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/auth"
	"messaging-service/internal/dispatch"
	"messaging-service/internal/models"
	"messaging-service/internal/registry"
	"messaging-service/internal/telemetry"
)

type wireFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, reg *registry.Registry, resolver auth.TokenResolver) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", NewHandler(reg, resolver, nil).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestAuthenticateAndReceivePush(t *testing.T) {
	reg := registry.New()
	resolver := auth.NewJWTResolver("test-secret")
	srv := newTestServer(t, reg, resolver)

	token, err := resolver.IssueToken(auth.Identity{ID: "doctor-1", Role: models.RoleDoctor}, time.Minute)
	require.NoError(t, err)

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "authenticate", "token": token}))

	require.Eventually(t, func() bool {
		return len(reg.ChannelsFor("doctor-1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	conv := models.Conversation{
		ID: "conv-1",
		Participants: []models.Participant{
			{Identity: "patient-1", Role: models.RolePatient},
			{Identity: "doctor-1", Role: models.RoleDoctor},
		},
	}
	msg := models.Message{ID: 1, ConversationID: "conv-1", SenderIdentity: "patient-1", Content: "hi"}
	dispatch.New(reg).MessageCreated(conv, msg)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame wireFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "message_created", frame.Type)

	var payload models.MessageCreatedPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, "hi", payload.Message.Content)
	assert.Equal(t, "conv-1", payload.ConversationID)
}

func TestInvalidTokenClosesWithoutErrorFrame(t *testing.T) {
	reg := registry.New()
	srv := newTestServer(t, reg, auth.NewJWTResolver("test-secret"))

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "authenticate", "token": "garbage"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Empty(t, reg.ChannelsFor("doctor-1"))
}

func TestFirstFrameMustAuthenticate(t *testing.T) {
	reg := registry.New()
	resolver := auth.NewJWTResolver("test-secret")
	srv := newTestServer(t, reg, resolver)

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestDisconnectUnregistersChannel(t *testing.T) {
	reg := registry.New()
	resolver := auth.NewJWTResolver("test-secret")
	srv := newTestServer(t, reg, resolver)

	token, err := resolver.IssueToken(auth.Identity{ID: "patient-1", Role: models.RolePatient}, time.Minute)
	require.NoError(t, err)

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "authenticate", "token": token}))
	require.Eventually(t, func() bool {
		return len(reg.ChannelsFor("patient-1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return len(reg.ChannelsFor("patient-1")) == 0
	}, 2*time.Second, 10*time.Millisecond)

	// A push after disconnect is dropped silently; state converges over HTTP.
	dispatch.New(reg).MessageCreated(models.Conversation{
		ID:           "conv-1",
		Participants: []models.Participant{{Identity: "patient-1", Role: models.RolePatient}},
	}, models.Message{ID: 2, ConversationID: "conv-1", SenderIdentity: "doctor-1", Content: "there"})
}

func TestHeartbeatKeepsConnectionRegistered(t *testing.T) {
	reg := registry.New()
	resolver := auth.NewJWTResolver("test-secret")
	srv := newTestServer(t, reg, resolver)

	token, err := resolver.IssueToken(auth.Identity{ID: "patient-1", Role: models.RolePatient}, time.Minute)
	require.NoError(t, err)

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "authenticate", "token": token}))
	require.Eventually(t, func() bool {
		return len(reg.ChannelsFor("patient-1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "heartbeat"}))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, reg.ChannelsFor("patient-1"), 1)
}

type recordingPublisher struct {
	mu        sync.Mutex
	envelopes []telemetry.AuditEnvelope
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if env, ok := event.(telemetry.AuditEnvelope); ok {
		p.envelopes = append(p.envelopes, env)
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) byAction(action string) (telemetry.AuditEnvelope, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, env := range p.envelopes {
		if env.Payload.Action == action {
			return env, true
		}
	}
	return telemetry.AuditEnvelope{}, false
}

func TestSessionAuditCarriesClientMetadata(t *testing.T) {
	reg := registry.New()
	resolver := auth.NewJWTResolver("test-secret")
	rec := &recordingPublisher{}
	emitter := telemetry.NewAuditEmitter(rec, "audit.messaging", "messaging-service", "test")

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", NewHandler(reg, resolver, emitter).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	token, err := resolver.IssueToken(auth.Identity{ID: "patient-1", Role: models.RolePatient}, time.Minute)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("X-Device-Id", "device-42")
	header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "authenticate", "token": token}))
	require.Eventually(t, func() bool {
		return len(reg.ChannelsFor("patient-1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		_, ok := rec.byAction("ws_disconnect")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	connectEnv, ok := rec.byAction("ws_connect")
	require.True(t, ok)
	assert.Equal(t, "patient-1", connectEnv.Identity)

	var detail map[string]any
	require.NoError(t, json.Unmarshal([]byte(connectEnv.Payload.Detail), &detail))
	assert.Equal(t, "device-42", detail["device_id"])
	assert.Equal(t, "203.0.113.7", detail["ip"])
	assert.NotEmpty(t, detail["conn_id"])

	disconnectEnv, _ := rec.byAction("ws_disconnect")
	require.NoError(t, json.Unmarshal([]byte(disconnectEnv.Payload.Detail), &detail))
	assert.Equal(t, "device-42", detail["device_id"])
	assert.Contains(t, detail, "duration_ms")
}
