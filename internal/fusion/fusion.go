// Package fusion turns raw ranging samples and the float switch into one
// trusted level reading per tick.
package fusion

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sump-controller/internal/config"
	"github.com/thatsimonsguy/sump-controller/internal/hardware"
	"github.com/thatsimonsguy/sump-controller/internal/model"
)

type Engine struct {
	sensor hardware.DistanceSensor
	tank   model.TankGeometry
	scfg   config.SensorConfig
	fcfg   config.FusionConfig
}

func New(sensor hardware.DistanceSensor, cfg *config.Config) *Engine {
	return &Engine{
		sensor: sensor,
		tank:   cfg.Tank,
		scfg:   cfg.Sensor,
		fcfg:   cfg.Fusion,
	}
}

// Read samples the ranging sensor and fuses the result with the switch
// state. The returned reading always carries a usable percent; Valid is
// false when the ranging path failed and the switch fallback was used.
func (e *Engine) Read(wet bool) model.LevelReading {
	distance, ok := e.sampleDistance()
	if !ok {
		percent := e.fcfg.FallbackDryPercent
		if wet {
			percent = e.fcfg.FallbackWetPercent
		}
		log.Warn().
			Bool("wet", wet).
			Float64("fallback_percent", percent).
			Msg("Ranging sensor invalid, using switch fallback band")
		return model.LevelReading{
			Percent:      percent,
			VolumeLiters: e.volumeLiters(percent),
			Source:       model.LevelSwitchFallback,
			Valid:        false,
		}
	}

	percent := clamp((e.tank.HeightCM-distance)/e.tank.HeightCM*100.0, 0, 100)
	source := model.LevelUltrasonic

	// The switch is the safety-of-record signal: when the two disagree at
	// the extremes, pull the reported percent toward the switch.
	if wet && percent < e.fcfg.ReconcileLowPercent {
		log.Warn().
			Float64("ranging_percent", percent).
			Float64("clamped_percent", e.fcfg.WetClampPercent).
			Msg("Switch wet but ranging near-empty, clamping toward wet")
		percent = e.fcfg.WetClampPercent
		source = model.LevelBlended
	} else if !wet && percent > e.fcfg.ReconcileHighPercent {
		log.Warn().
			Float64("ranging_percent", percent).
			Float64("clamped_percent", e.fcfg.DryClampPercent).
			Msg("Switch dry but ranging near-full, clamping toward dry")
		percent = e.fcfg.DryClampPercent
		source = model.LevelBlended
	}

	return model.LevelReading{
		Percent:      percent,
		VolumeLiters: e.volumeLiters(percent),
		Source:       source,
		Valid:        true,
	}
}

// sampleDistance takes N independent samples, discards invalid ones and
// averages the rest. The mean is re-validated against the reliable range.
func (e *Engine) sampleDistance() (float64, bool) {
	n := e.scfg.SamplesPerTick
	needed := n - e.scfg.MaxInvalid

	var valid []float64
	for i := 0; i < n; i++ {
		d, err := e.sensor.Sample()
		if err != nil {
			continue
		}
		if !e.inRange(d) {
			continue
		}
		valid = append(valid, d)
	}

	if len(valid) < needed {
		log.Debug().
			Int("valid", len(valid)).
			Int("needed", needed).
			Msg("Too few valid ranging samples this tick")
		return 0, false
	}

	var sum float64
	for _, v := range valid {
		sum += v
	}
	mean := sum / float64(len(valid))

	if !e.inRange(mean) {
		return 0, false
	}
	return mean, true
}

func (e *Engine) inRange(d float64) bool {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return false
	}
	return d >= e.scfg.MinRangeCM && d <= e.scfg.MaxRangeCM
}

func (e *Engine) volumeLiters(percent float64) float64 {
	waterHeight := percent / 100.0 * e.tank.HeightCM

	var cm3 float64
	switch e.tank.Shape {
	case model.TankCylindrical:
		cm3 = math.Pi * e.tank.RadiusCM * e.tank.RadiusCM * waterHeight
	default:
		cm3 = e.tank.LengthCM * e.tank.BreadthCM * waterHeight
	}
	return cm3 / 1000.0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
