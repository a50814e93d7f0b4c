package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/thatsimonsguy/sump-controller/db"
	"github.com/thatsimonsguy/sump-controller/internal/config"
	"github.com/thatsimonsguy/sump-controller/internal/hardware"
)

// One-shot hardware and journal inspection, meant to be run on the device
// while the main service is stopped.
func main() {
	var command string
	var samples, limit int
	flag.StringVar(&command, "cmd", "", "Command to run: read-sensor, read-switch, read-inputs, events")
	flag.IntVar(&samples, "samples", 5, "Number of sensor samples for read-sensor")
	flag.IntVar(&limit, "limit", 20, "Number of journal rows for events")
	help := flag.Bool("help", false, "Show help")

	// config.Load registers and parses the shared flags (config-file,
	// event-db, ...) along with the ones above.
	cfg := config.Load()

	if *help || command == "" {
		fmt.Println("\nUsage of sump-debug:")
		fmt.Println("  -cmd string\tCommand to run: read-sensor, read-switch, read-inputs, events")
		fmt.Println("  -samples int\tNumber of sensor samples for read-sensor (default 5)")
		fmt.Println("  -limit int\tNumber of journal rows for events (default 20)")
		fmt.Println("  -config-file string\tPath to controller config file")
		fmt.Println("  -event-db string\tPath to event journal database")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "read-sensor":
		err = readSensor(cfg, samples)
	case "read-switch":
		err = readSwitch(cfg)
	case "read-inputs":
		err = readInputs(cfg)
	case "events":
		err = dumpEvents(cfg, limit)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
}

func readSensor(cfg *config.Config, samples int) error {
	sensor, err := openSensor(cfg)
	if err != nil {
		return err
	}
	defer sensor.Close()

	for i := 0; i < samples; i++ {
		d, err := sensor.Sample()
		if err != nil {
			fmt.Printf("sample %d: error: %v\n", i+1, err)
			continue
		}
		fmt.Printf("sample %d: %.1f cm\n", i+1, d)
	}
	return nil
}

func readSwitch(cfg *config.Config) error {
	chip, err := hardware.OpenChip(cfg.GPIOChip)
	if err != nil {
		return err
	}
	defer chip.Close()

	sw, err := chip.NewFloatSwitch(*cfg.GPIO.FloatSwitchPin)
	if err != nil {
		return err
	}
	defer sw.Close()

	wet, err := sw.Read()
	if err != nil {
		return err
	}
	if wet {
		fmt.Println("float switch: wet")
	} else {
		fmt.Println("float switch: dry")
	}
	return nil
}

func readInputs(cfg *config.Config) error {
	chip, err := hardware.OpenChip(cfg.GPIOChip)
	if err != nil {
		return err
	}
	defer chip.Close()

	for _, in := range []struct {
		name string
		pin  int
	}{
		{"manual button", *cfg.GPIO.ManualButtonPin},
		{"toggle switch", *cfg.GPIO.ToggleSwitchPin},
	} {
		line, err := chip.NewInput(in.pin)
		if err != nil {
			return err
		}
		active, err := line.Read()
		line.Close()
		if err != nil {
			return err
		}
		fmt.Printf("%s (pin %d): active=%v\n", in.name, in.pin, active)
	}
	return nil
}

func dumpEvents(cfg *config.Config, limit int) error {
	conn, err := db.Open(cfg.EventDB)
	if err != nil {
		return err
	}
	defer conn.Close()

	rows, err := db.RecentEvents(conn, limit)
	if err != nil {
		return err
	}
	for _, r := range rows {
		fmt.Printf("%s  %-12s %s\n", r.At.Format("2006-01-02 15:04:05"), r.Kind, r.Detail)
	}
	return nil
}

func openSensor(cfg *config.Config) (hardware.DistanceSensor, error) {
	if cfg.Sensor.Variant == "uart" {
		return hardware.NewUARTSensor(cfg.Sensor.UARTDevice, cfg.Sensor.OffsetCM)
	}
	chip, err := hardware.OpenChip(cfg.GPIOChip)
	if err != nil {
		return nil, err
	}
	return chip.NewHCSR04(*cfg.GPIO.TrigPin, *cfg.GPIO.EchoPin, cfg.Sensor.OffsetCM)
}
