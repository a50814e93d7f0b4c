package model

import "time"

type CommandSource string

const (
	SourceNone           CommandSource = ""
	SourceAuto           CommandSource = "auto"
	SourceButtonOverride CommandSource = "button_override"
	SourceSwitchOverride CommandSource = "switch_override"
	SourceRemote         CommandSource = "remote"
	SourceSafety         CommandSource = "safety"
)

type LevelSource string

const (
	LevelUltrasonic     LevelSource = "ultrasonic"
	LevelSwitchFallback LevelSource = "switch_fallback"
	LevelBlended        LevelSource = "blended"
)

// LevelReading is the fused level for one tick. Immutable once produced;
// superseded by the next tick's reading.
type LevelReading struct {
	Percent      float64
	VolumeLiters float64
	Source       LevelSource
	Valid        bool // ranging path produced a usable reading this tick
}

type MotorPhase string

const (
	MotorStopped MotorPhase = "stopped"
	MotorRunning MotorPhase = "running"
)

// MotorState is owned exclusively by the interlock; nothing else mutates it.
type MotorState struct {
	Phase         MotorPhase
	StartedAt     time.Time // zero unless Running
	LastStoppedAt time.Time
	CommandSource CommandSource
}

func (m MotorState) Running() bool { return m.Phase == MotorRunning }

// OverrideSession is a temporary suspension of automatic control. At most one
// session is open at a time. ExpiresAt is zero for sessions without a
// deadline (button, toggle switch).
type OverrideSession struct {
	Active    bool
	Source    CommandSource
	OpenedAt  time.Time
	ExpiresAt time.Time
}

func (s OverrideSession) Expired(now time.Time) bool {
	return s.Active && !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

type ConnPhase string

const (
	ConnDisconnected ConnPhase = "disconnected"
	ConnConnecting   ConnPhase = "connecting"
	ConnConnected    ConnPhase = "connected"
	ConnReconnecting ConnPhase = "reconnecting"
	ConnStable       ConnPhase = "stable"
)

type AlertKind string

const (
	AlertLow         AlertKind = "low"
	AlertCritical    AlertKind = "critical"
	AlertFull        AlertKind = "full"
	AlertMotorSafety AlertKind = "motor_safety"
)

// AlertFlags are edge-triggered: true only between the triggering crossing
// and the clearing crossing.
type AlertFlags struct {
	Low           bool
	Critical      bool
	Full          bool
	SafetyBlocked bool
}

type TankShape string

const (
	TankRectangular TankShape = "rectangular"
	TankCylindrical TankShape = "cylindrical"
)

type TankGeometry struct {
	Shape     TankShape `json:"shape"`
	HeightCM  float64   `json:"height_cm"`
	LengthCM  float64   `json:"length_cm"`
	BreadthCM float64   `json:"breadth_cm"`
	RadiusCM  float64   `json:"radius_cm"`
}
