// Package commands parses inbound messages from the remote channel.
// Malformed or unrecognized messages are dropped with no state change.
package commands

import (
	"encoding/json"
	"fmt"
)

type Kind string

const (
	KindMotorControl Kind = "motor_control"
	KindAutoMode     Kind = "auto_mode_control"
	KindResetManual  Kind = "reset_manual"
	KindGetStatus    Kind = "get_status"
	KindPong         Kind = "pong"
)

type Command struct {
	Kind    Kind
	Run     bool // motor_control
	Enabled bool // auto_mode_control
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type motorControlData struct {
	Run *bool `json:"run"`
}

type autoModeData struct {
	Enabled *bool `json:"enabled"`
}

// Parse decodes one inbound payload. The returned error describes why the
// message was rejected; callers drop the message and may emit a rejection.
func Parse(payload []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Command{}, fmt.Errorf("malformed message: %w", err)
	}

	switch Kind(env.Type) {
	case KindMotorControl:
		var d motorControlData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return Command{}, fmt.Errorf("malformed motor_control data: %w", err)
		}
		if d.Run == nil {
			return Command{}, fmt.Errorf("motor_control missing run field")
		}
		return Command{Kind: KindMotorControl, Run: *d.Run}, nil

	case KindAutoMode:
		var d autoModeData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return Command{}, fmt.Errorf("malformed auto_mode_control data: %w", err)
		}
		if d.Enabled == nil {
			return Command{}, fmt.Errorf("auto_mode_control missing enabled field")
		}
		return Command{Kind: KindAutoMode, Enabled: *d.Enabled}, nil

	case KindResetManual:
		return Command{Kind: KindResetManual}, nil

	case KindGetStatus:
		return Command{Kind: KindGetStatus}, nil

	case KindPong:
		return Command{Kind: KindPong}, nil

	default:
		return Command{}, fmt.Errorf("unrecognized command type: %q", env.Type)
	}
}
