package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sump-controller/db"
	"github.com/thatsimonsguy/sump-controller/internal/alerts"
	"github.com/thatsimonsguy/sump-controller/internal/api"
	"github.com/thatsimonsguy/sump-controller/internal/arbiter"
	"github.com/thatsimonsguy/sump-controller/internal/config"
	"github.com/thatsimonsguy/sump-controller/internal/connmgr"
	"github.com/thatsimonsguy/sump-controller/internal/controlloop"
	"github.com/thatsimonsguy/sump-controller/internal/datadog"
	"github.com/thatsimonsguy/sump-controller/internal/env"
	"github.com/thatsimonsguy/sump-controller/internal/fusion"
	"github.com/thatsimonsguy/sump-controller/internal/hardware"
	"github.com/thatsimonsguy/sump-controller/internal/interlock"
	"github.com/thatsimonsguy/sump-controller/internal/logging"
	"github.com/thatsimonsguy/sump-controller/internal/notifications"
	"github.com/thatsimonsguy/sump-controller/internal/telemetry"
	"github.com/thatsimonsguy/sump-controller/system/shutdown"
	"github.com/thatsimonsguy/sump-controller/system/startup"
)

func main() {
	cfg := config.Load()
	env.Cfg = cfg
	logging.Init(cfg.LogFile, cfg.LogLevel)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("event_db", cfg.EventDB).
		Msg("Starting sump controller")

	hardware.SetSafeMode(cfg.SafeMode)
	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED — actuator writes are disabled system-wide")
	}

	if cfg.InstallBootService {
		if err := startup.WriteBootScript(); err != nil {
			log.Fatal().Err(err).Msg("Failed to write boot script")
		}
		if err := startup.InstallBootService(); err != nil {
			log.Fatal().Err(err).Msg("Failed to install boot service")
		}
		log.Info().Str("script", cfg.BootScriptFilePath).Msg("Boot pin configuration installed")
	}

	chip, err := hardware.OpenChip(cfg.GPIOChip)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open GPIO chip")
	}

	relay, err := chip.NewRelay(*cfg.GPIO.MotorRelayPin, cfg.Motor.RelayActiveHigh)
	if err != nil {
		if errors.Is(err, hardware.ErrUnsafeBootState) {
			log.Fatal().Err(err).Msg("Refusing to start with the pump relay energized")
		}
		log.Fatal().Err(err).Msg("Failed to take ownership of the pump relay")
	}
	shutdown.Register(func() { relay.Close() })

	floatSwitch, err := chip.NewFloatSwitch(*cfg.GPIO.FloatSwitchPin)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to request float switch pin")
	}
	button, err := chip.NewInput(*cfg.GPIO.ManualButtonPin)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to request manual button pin")
	}
	toggle, err := chip.NewInput(*cfg.GPIO.ToggleSwitchPin)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to request toggle switch pin")
	}

	sensor, err := newDistanceSensor(chip, cfg)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to initialize ranging sensor")
	}

	journal, err := db.Open(cfg.EventDB)
	if err != nil {
		log.Warn().Err(err).Msg("Event journal unavailable, continuing without it")
		journal = nil
	}

	datadog.InitMetrics()
	notifications.Init()

	now := time.Now()
	link := telemetry.NewMQTTLink(cfg.Telemetry.Broker, cfg.Telemetry.ClientID, cfg.Telemetry.TopicPrefix)
	mgr := connmgr.New(link, connmgr.Config{
		BackoffBase:         time.Duration(cfg.Telemetry.BackoffBaseSeconds) * time.Second,
		BackoffCap:          time.Duration(cfg.Telemetry.BackoffCapSeconds) * time.Second,
		StableWindow:        time.Duration(cfg.Telemetry.StableWindowSeconds) * time.Second,
		PingInterval:        time.Duration(cfg.Telemetry.PingIntervalSeconds) * time.Second,
		LivenessTimeout:     time.Duration(cfg.Telemetry.LivenessTimeoutSecs) * time.Second,
		MaxMissedHeartbeats: cfg.Telemetry.MaxMissedHeartbeats,
	}, now)

	loop := controlloop.New(
		cfg,
		floatSwitch,
		button,
		toggle,
		fusion.New(sensor, cfg),
		arbiter.New(time.Duration(cfg.RemoteOverrideSeconds)*time.Second),
		interlock.New(relay, interlock.Config{
			MaxRuntime:  time.Duration(cfg.Motor.MaxRuntimeMinutes) * time.Minute,
			MinRest:     time.Duration(cfg.Motor.MinRestMinutes) * time.Minute,
			MinRunLevel: cfg.Motor.MinRunLevelPercent,
			AutoStart:   cfg.Motor.AutoStartLevelPercent,
			AutoStop:    cfg.Motor.AutoStopLevelPercent,
		}),
		alerts.New(cfg.Alerts),
		mgr,
		link,
		journal,
		now,
	)

	go func() {
		if err := api.NewServer(journal, loop).Start(cfg.APIPort); err != nil {
			log.Error().Err(err).Msg("REST API server stopped")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		log.Info().Str("signal", s.String()).Msg("Shutting down")
		cancel()
	}()

	loop.Run(ctx)

	link.Close()
	sensor.Close()
	floatSwitch.Close()
	button.Close()
	toggle.Close()
	shutdown.Shutdown()
}

func newDistanceSensor(chip *hardware.Chip, cfg *config.Config) (hardware.DistanceSensor, error) {
	switch cfg.Sensor.Variant {
	case "uart":
		return hardware.NewUARTSensor(cfg.Sensor.UARTDevice, cfg.Sensor.OffsetCM)
	default:
		return chip.NewHCSR04(*cfg.GPIO.TrigPin, *cfg.GPIO.EchoPin, cfg.Sensor.OffsetCM)
	}
}
