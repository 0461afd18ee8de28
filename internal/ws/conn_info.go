package ws

import (
	"encoding/json"
	"time"
)

type ConnInfo struct {
	ConnID      string
	Identity    string
	Role        string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// sessionDetail serializes the connection metadata carried on the
// ws_connect / ws_disconnect audit records.
func (i ConnInfo) sessionDetail(reason string) string {
	payload := map[string]any{
		"conn_id":     i.ConnID,
		"device_id":   i.DeviceID,
		"ip":          i.IP,
		"trace_id":    i.TraceID,
		"duration_ms": time.Since(i.ConnectedAt).Milliseconds(),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	b, _ := json.Marshal(payload)
	return string(b)
}
