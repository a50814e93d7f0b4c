package startup

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/thatsimonsguy/sump-controller/internal/env"
)

// WriteBootScript generates the boot-time pin configuration script. It
// drives the motor relay pin to its de-energized level so a power cycle can
// never leave the pump running before the controller service starts.
func WriteBootScript() error {
	cfg := env.Cfg

	drive := "dh"
	if cfg.Motor.RelayActiveHigh {
		drive = "dl"
	}

	lines := []string{
		"#!/bin/bash",
		"",
		"# Sump controller GPIO pin configuration at boot",
		"",
		"# motor_relay (de-energized)",
		fmt.Sprintf("pinctrl set %d op pn %s", *cfg.GPIO.MotorRelayPin, drive),
		"",
	}

	contents := strings.Join(lines, "\n") + "\n"
	return os.WriteFile(cfg.BootScriptFilePath, []byte(contents), 0755)
}

// InstallBootService writes a systemd oneshot unit that runs the boot
// script before the controller service comes up.
func InstallBootService() error {
	unitContents := fmt.Sprintf(`[Unit]
Description=Configure sump controller GPIO pins at boot
Before=sump-controller.service

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, env.Cfg.BootScriptFilePath)

	return os.WriteFile(env.Cfg.OSServicePath, []byte(unitContents), 0644)
}

// RunBootScript executes the generated script immediately. Used when the
// service starts outside of systemd.
func RunBootScript() error {
	cmd := exec.Command("/bin/bash", env.Cfg.BootScriptFilePath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
