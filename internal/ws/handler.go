package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/auth"
	"messaging-service/internal/observability"
	"messaging-service/internal/registry"
	"messaging-service/internal/telemetry"
)

// Frame types accepted from clients. No application writes happen over
// the socket; writes go through the HTTP API and come back as pushes.
const (
	frameAuthenticate = "authenticate"
	frameSubscribe    = "subscribe"
	frameHeartbeat    = "heartbeat"
)

type clientFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler owns the per-connection lifecycle: upgrade, in-band
// authentication, registration, pumps, cleanup.
type Handler struct {
	registry *registry.Registry
	resolver auth.TokenResolver
	emitter  *telemetry.AuditEmitter
}

// NewHandler constructs a websocket Handler.
func NewHandler(reg *registry.Registry, resolver auth.TokenResolver, emitter *telemetry.AuditEmitter) *Handler {
	return &Handler{registry: reg, resolver: resolver, emitter: emitter}
}

// Handle upgrades the request and hands the socket to its own goroutine.
// Authentication happens in-band: the client's first frame must carry a
// valid credential or the socket is closed without an error frame.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.session")

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		return
	}

	meta := observability.MetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	go func() {
		defer span.End()
		h.serve(ctx, sock, info)
	}()
}

func (h *Handler) serve(ctx context.Context, sock *websocket.Conn, info ConnInfo) {
	identity, err := h.authenticate(ctx, sock)
	if err != nil {
		// Close silently: unauthenticated peers learn nothing about why.
		observability.IncWSEvent("ws_auth_failure")
		sock.Close()
		return
	}
	info.Identity = identity.ID
	info.Role = identity.Role

	cn := newConn(info.ConnID, sock)
	h.registry.Register(identity.ID, identity.Role, cn)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.emitter.Emit(ctx, "ws_connect", "", identity.ID, info.RequestID, info.sessionDetail(""))

	go cn.writePump()
	h.readPump(ctx, cn, info)
}

// authenticate covers the Authenticating state: one frame, bounded wait.
func (h *Handler) authenticate(ctx context.Context, sock *websocket.Conn) (auth.Identity, error) {
	sock.SetReadLimit(maxFrameSize)
	sock.SetReadDeadline(time.Now().Add(authWait))

	_, payload, err := sock.ReadMessage()
	if err != nil {
		return auth.Identity{}, err
	}

	var frame clientFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return auth.Identity{}, err
	}
	if frame.Type != frameAuthenticate || frame.Token == "" {
		return auth.Identity{}, errors.New("expected authenticate frame")
	}
	return h.resolver.Resolve(ctx, frame.Token)
}

// readPump consumes inbound frames until the socket dies, then performs
// cleanup exactly once. Unregister is idempotent, so a racing Close from
// the write side is harmless.
func (h *Handler) readPump(ctx context.Context, cn *conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.registry.Unregister(cn)
		cn.Close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.emitter.Emit(ctx, "ws_disconnect", "", info.Identity, info.RequestID, info.sessionDetail(closeReason))
	}()

	cn.sock.SetReadDeadline(time.Now().Add(pongWait))
	cn.sock.SetPongHandler(func(string) error {
		cn.sock.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := cn.sock.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		switch frame.Type {
		case frameSubscribe, frameHeartbeat:
			// Subscription is implicit in the identity; both frames just
			// refresh the liveness deadline.
			cn.sock.SetReadDeadline(time.Now().Add(pongWait))
		}
	}
}
