package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/sump-controller/internal/model"
)

type GPIO struct {
	FloatSwitchPin  *int `json:"float_switch"`
	MotorRelayPin   *int `json:"motor_relay"`
	ManualButtonPin *int `json:"manual_button"`
	ToggleSwitchPin *int `json:"toggle_switch"`

	// hcsr04 variant only
	TrigPin *int `json:"trig"`
	EchoPin *int `json:"echo"`
}

type SensorConfig struct {
	Variant        string  `json:"variant"` // "hcsr04" or "uart"
	UARTDevice     string  `json:"uart_device"`
	MinRangeCM     float64 `json:"min_range_cm"`
	MaxRangeCM     float64 `json:"max_range_cm"`
	OffsetCM       float64 `json:"offset_cm"`
	SamplesPerTick int     `json:"samples_per_tick"`
	MaxInvalid     int     `json:"max_invalid_samples"`
}

type FusionConfig struct {
	FallbackWetPercent   float64 `json:"fallback_wet_percent"`
	FallbackDryPercent   float64 `json:"fallback_dry_percent"`
	ReconcileLowPercent  float64 `json:"reconcile_low_percent"`
	ReconcileHighPercent float64 `json:"reconcile_high_percent"`
	WetClampPercent      float64 `json:"wet_clamp_percent"`
	DryClampPercent      float64 `json:"dry_clamp_percent"`
}

type MotorConfig struct {
	MaxRuntimeMinutes     int     `json:"max_runtime_minutes"`
	MinRestMinutes        int     `json:"min_rest_minutes"`
	MinRunLevelPercent    float64 `json:"min_run_level_percent"`
	AutoStartLevelPercent float64 `json:"auto_start_level_percent"`
	AutoStopLevelPercent  float64 `json:"auto_stop_level_percent"`
	RelayActiveHigh       bool    `json:"relay_active_high"`
}

type AlertConfig struct {
	LowWarnPercent      float64 `json:"low_warn_percent"`
	FullWarnPercent     float64 `json:"full_warn_percent"`
	CriticalLowPercent  float64 `json:"critical_low_percent"`
	CriticalHighPercent float64 `json:"critical_high_percent"`
	HysteresisPercent   float64 `json:"hysteresis_percent"`
}

type TelemetryConfig struct {
	Broker               string `json:"broker"`
	ClientID             string `json:"client_id"`
	TopicPrefix          string `json:"topic_prefix"`
	BackoffBaseSeconds   int    `json:"backoff_base_seconds"`
	BackoffCapSeconds    int    `json:"backoff_cap_seconds"`
	StableWindowSeconds  int    `json:"stable_window_seconds"`
	PingIntervalSeconds  int    `json:"ping_interval_seconds"`
	LivenessTimeoutSecs  int    `json:"liveness_timeout_seconds"`
	MaxMissedHeartbeats  int    `json:"max_missed_heartbeats"`
	HeartbeatSeconds     int    `json:"heartbeat_seconds"`
}

type Config struct {
	ConfigFile string
	EventDB    string
	LogFile    string
	LogLevel   zerolog.Level
	SafeMode   bool

	Tank      model.TankGeometry `json:"tank"`
	Sensor    SensorConfig       `json:"sensor"`
	Fusion    FusionConfig       `json:"fusion"`
	Motor     MotorConfig        `json:"motor"`
	Alerts    AlertConfig        `json:"alerts"`
	Telemetry TelemetryConfig    `json:"telemetry"`
	GPIO      GPIO               `json:"gpio"`

	GPIOChip              string `json:"gpio_chip"`
	TickIntervalMS        int    `json:"tick_interval_ms"`
	DebounceMS            int    `json:"debounce_ms"`
	RemoteOverrideSeconds int    `json:"remote_override_seconds"`
	APIPort               int    `json:"api_port"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`

	NtfyTopic string `json:"ntfy_topic"`

	BootScriptFilePath string `json:"boot_script_file_path"`
	OSServicePath      string `json:"os_service_path"`
	InstallBootService bool   `json:"install_boot_service"`
}

func Load() *Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&cfg.EventDB, "event-db", "data/events.db", "Path to event journal database")
	flag.StringVar(&cfg.LogFile, "log-file", "/var/log/sump-controller.log", "Path to log file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.SafeMode, "safe-mode", false, "Disable all actuator writes system-wide")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.applyDefaults()
	cfg.validate()
	return &cfg
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.GPIOChip == "" {
		cfg.GPIOChip = "gpiochip0"
	}
	if cfg.TickIntervalMS == 0 {
		cfg.TickIntervalMS = 2000
	}
	if cfg.DebounceMS == 0 {
		cfg.DebounceMS = 50
	}
	if cfg.RemoteOverrideSeconds == 0 {
		cfg.RemoteOverrideSeconds = 30
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = 8080
	}
	if cfg.BootScriptFilePath == "" {
		cfg.BootScriptFilePath = "/usr/local/bin/sump-gpio-boot.sh"
	}
	if cfg.OSServicePath == "" {
		cfg.OSServicePath = "/etc/systemd/system/sump-gpio-boot.service"
	}

	s := &cfg.Sensor
	if s.Variant == "" {
		s.Variant = "hcsr04"
	}
	if s.MinRangeCM == 0 {
		s.MinRangeCM = 2.0
	}
	if s.MaxRangeCM == 0 {
		s.MaxRangeCM = 400.0
	}
	if s.SamplesPerTick == 0 {
		s.SamplesPerTick = 5
	}
	if s.MaxInvalid == 0 {
		s.MaxInvalid = s.SamplesPerTick - 2
	}

	f := &cfg.Fusion
	if f.FallbackWetPercent == 0 {
		f.FallbackWetPercent = 75.0
	}
	if f.FallbackDryPercent == 0 {
		f.FallbackDryPercent = 5.0
	}
	if f.ReconcileLowPercent == 0 {
		f.ReconcileLowPercent = 10.0
	}
	if f.ReconcileHighPercent == 0 {
		f.ReconcileHighPercent = 90.0
	}
	if f.WetClampPercent == 0 {
		f.WetClampPercent = 15.0
	}
	if f.DryClampPercent == 0 {
		f.DryClampPercent = 80.0
	}

	m := &cfg.Motor
	if m.MaxRuntimeMinutes == 0 {
		m.MaxRuntimeMinutes = 30
	}
	if m.MinRestMinutes == 0 {
		m.MinRestMinutes = 5
	}
	if m.MinRunLevelPercent == 0 {
		m.MinRunLevelPercent = 15.0
	}
	if m.AutoStartLevelPercent == 0 {
		m.AutoStartLevelPercent = 25.0
	}
	if m.AutoStopLevelPercent == 0 {
		m.AutoStopLevelPercent = 90.0
	}

	a := &cfg.Alerts
	if a.LowWarnPercent == 0 {
		a.LowWarnPercent = 20.0
	}
	if a.FullWarnPercent == 0 {
		a.FullWarnPercent = 90.0
	}
	if a.CriticalLowPercent == 0 {
		a.CriticalLowPercent = 5.0
	}
	if a.CriticalHighPercent == 0 {
		a.CriticalHighPercent = 97.0
	}
	if a.HysteresisPercent == 0 {
		a.HysteresisPercent = 5.0
	}

	t := &cfg.Telemetry
	if t.ClientID == "" {
		t.ClientID = "sump-controller"
	}
	if t.TopicPrefix == "" {
		t.TopicPrefix = "water/sump"
	}
	if t.BackoffBaseSeconds == 0 {
		t.BackoffBaseSeconds = 5
	}
	if t.BackoffCapSeconds == 0 {
		t.BackoffCapSeconds = 300
	}
	if t.StableWindowSeconds == 0 {
		t.StableWindowSeconds = 60
	}
	if t.PingIntervalSeconds == 0 {
		t.PingIntervalSeconds = 30
	}
	if t.LivenessTimeoutSecs == 0 {
		t.LivenessTimeoutSecs = 120
	}
	if t.MaxMissedHeartbeats == 0 {
		t.MaxMissedHeartbeats = 5
	}
	if t.HeartbeatSeconds == 0 {
		t.HeartbeatSeconds = 30
	}
}

func (cfg *Config) validate() {
	var (
		missingFields []string
		usedPins      = map[int]string{}
		conflicts     []string
	)

	// trig/echo are only wired for the hcsr04 variant
	optional := map[string]bool{}
	if cfg.Sensor.Variant == "uart" {
		optional["trig"] = true
		optional["echo"] = true
	}

	v := reflect.ValueOf(cfg.GPIO)
	t := reflect.TypeOf(cfg.GPIO)

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldName := t.Field(i).Tag.Get("json")

		if field.IsNil() {
			if !optional[fieldName] {
				missingFields = append(missingFields, "gpio."+fieldName)
			}
			continue
		}

		pin := int(field.Elem().Int())
		if other, exists := usedPins[pin]; exists {
			conflicts = append(conflicts, fmt.Sprintf("gpio.%s and gpio.%s both use pin %d", fieldName, other, pin))
		} else {
			usedPins[pin] = fieldName
		}
	}

	if len(missingFields) > 0 {
		panic("Missing required GPIO config fields: " + strings.Join(missingFields, ", "))
	}
	if len(conflicts) > 0 {
		panic("Conflicting GPIO pins: " + strings.Join(conflicts, ", "))
	}

	if cfg.Sensor.Variant != "hcsr04" && cfg.Sensor.Variant != "uart" {
		panic("Unknown sensor variant: " + cfg.Sensor.Variant)
	}
	if cfg.Sensor.Variant == "uart" && cfg.Sensor.UARTDevice == "" {
		panic("sensor.uart_device is required for the uart variant")
	}

	switch cfg.Tank.Shape {
	case model.TankRectangular:
		if cfg.Tank.HeightCM <= 0 || cfg.Tank.LengthCM <= 0 || cfg.Tank.BreadthCM <= 0 {
			panic("Rectangular tank requires positive height, length and breadth")
		}
	case model.TankCylindrical:
		if cfg.Tank.HeightCM <= 0 || cfg.Tank.RadiusCM <= 0 {
			panic("Cylindrical tank requires positive height and radius")
		}
	default:
		panic("Unknown tank shape: " + string(cfg.Tank.Shape))
	}

	if cfg.Motor.AutoStopLevelPercent <= cfg.Motor.AutoStartLevelPercent {
		panic("motor.auto_stop_level_percent must be above motor.auto_start_level_percent")
	}
	if cfg.Telemetry.Broker == "" {
		panic("telemetry.broker is required")
	}
}
