package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/sump-controller/internal/model"
)

func pin(n int) *int { return &n }

func validConfig() *Config {
	cfg := &Config{
		Tank: model.TankGeometry{
			Shape:     model.TankRectangular,
			HeightCM:  250,
			LengthCM:  230,
			BreadthCM: 230,
		},
		GPIO: GPIO{
			FloatSwitchPin:  pin(17),
			MotorRelayPin:   pin(27),
			ManualButtonPin: pin(22),
			ToggleSwitchPin: pin(23),
			TrigPin:         pin(5),
			EchoPin:         pin(6),
		},
		Telemetry: TelemetryConfig{Broker: "tcp://localhost:1883"},
	}
	cfg.applyDefaults()
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, "hcsr04", cfg.Sensor.Variant)
	assert.Equal(t, 2000, cfg.TickIntervalMS)
	assert.Equal(t, 30, cfg.Motor.MaxRuntimeMinutes)
	assert.Equal(t, 5, cfg.Motor.MinRestMinutes)
	assert.Equal(t, 15.0, cfg.Motor.MinRunLevelPercent)
	assert.Equal(t, 5, cfg.Telemetry.BackoffBaseSeconds)
	assert.Equal(t, 300, cfg.Telemetry.BackoffCapSeconds)
	assert.Equal(t, 5, cfg.Telemetry.MaxMissedHeartbeats)
	assert.Equal(t, 30, cfg.RemoteOverrideSeconds)
	// MaxInvalid derives from the sample count
	assert.Equal(t, 3, cfg.Sensor.MaxInvalid)
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	require.NotPanics(t, func() { cfg.validate() })
}

func TestValidateMissingPin(t *testing.T) {
	cfg := validConfig()
	cfg.GPIO.MotorRelayPin = nil

	assert.PanicsWithValue(t, "Missing required GPIO config fields: gpio.motor_relay", func() {
		cfg.validate()
	})
}

func TestValidatePinConflict(t *testing.T) {
	cfg := validConfig()
	cfg.GPIO.ManualButtonPin = pin(17)

	assert.Panics(t, func() { cfg.validate() })
}

func TestValidateTrigEchoOptionalForUART(t *testing.T) {
	cfg := validConfig()
	cfg.Sensor.Variant = "uart"
	cfg.Sensor.UARTDevice = "/dev/ttyAMA0"
	cfg.GPIO.TrigPin = nil
	cfg.GPIO.EchoPin = nil

	require.NotPanics(t, func() { cfg.validate() })
}

func TestValidateUARTRequiresDevice(t *testing.T) {
	cfg := validConfig()
	cfg.Sensor.Variant = "uart"
	cfg.Sensor.UARTDevice = ""

	assert.Panics(t, func() { cfg.validate() })
}

func TestValidateTankGeometry(t *testing.T) {
	cfg := validConfig()
	cfg.Tank = model.TankGeometry{Shape: model.TankCylindrical, HeightCM: 200}

	// cylindrical without a radius
	assert.Panics(t, func() { cfg.validate() })

	cfg.Tank.RadiusCM = 50
	require.NotPanics(t, func() { cfg.validate() })
}

func TestValidateThresholdOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.Motor.AutoStartLevelPercent = 90
	cfg.Motor.AutoStopLevelPercent = 25

	assert.Panics(t, func() { cfg.validate() })
}

func TestValidateRequiresBroker(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.Broker = ""

	assert.Panics(t, func() { cfg.validate() })
}
