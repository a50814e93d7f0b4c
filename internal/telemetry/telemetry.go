// Package telemetry defines the link to the remote collaborator and the
// event payloads exchanged over it.
package telemetry

import (
	"encoding/json"
	"time"
)

// Event type names on the wire.
const (
	TypeMotorStatus     = "motor_status"
	TypeSensorData      = "sensor_data"
	TypeSystemAlert     = "system_alert"
	TypeConnectionState = "connection_state"
	TypeHeartbeat       = "heartbeat"
	TypePing            = "ping"
	TypeRejection       = "command_rejected"
)

// Event is one outbound message.
type Event struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

func NewEvent(eventType string, at time.Time, data interface{}) Event {
	return Event{
		Type:      eventType,
		Timestamp: at.UTC().Format(time.RFC3339),
		Data:      data,
	}
}

type MotorStatus struct {
	Running        bool    `json:"running"`
	Source         string  `json:"source"`
	RuntimeSeconds float64 `json:"runtime_seconds"`
	SafetyBlocked  bool    `json:"safety_blocked"`
}

type SensorData struct {
	LevelPercent float64 `json:"level_percent"`
	VolumeLiters float64 `json:"volume_liters"`
	SensorHealth string  `json:"sensor_health"`
	SwitchState  bool    `json:"switch_state"`
}

type SystemAlert struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Cleared bool   `json:"cleared,omitempty"`
}

type ConnectionState struct {
	State             string `json:"state"`
	BackendResponsive bool   `json:"backend_responsive"`
}

type Heartbeat struct {
	UptimeSeconds float64 `json:"uptime_seconds"`
	MotorRunning  bool    `json:"motor_running"`
	LevelPercent  float64 `json:"level_percent"`
}

type Rejection struct {
	Reason string `json:"reason"`
}

// FormatEvent creates the JSON payload for an event.
func FormatEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Handlers receive link lifecycle callbacks. They may be invoked from the
// transport's own goroutines; implementations must hand off to the control
// loop rather than mutate its state directly.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func(err error)
	OnMessage    func(payload []byte)
	OnError      func(err error)
}

// Link is the transport to the remote collaborator. Connect performs one
// blocking handshake attempt; retry policy lives entirely in the
// connection manager.
type Link interface {
	SetHandlers(h Handlers)
	Connect() error
	Send(e Event) error
	Close() error
}
