package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventWireShape(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	e := NewEvent(TypeSensorData, at, SensorData{
		LevelPercent: 42.5,
		VolumeLiters: 2248.1,
		SensorHealth: "good",
		SwitchState:  true,
	})

	payload, err := FormatEvent(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "sensor_data",
		"timestamp": "2025-03-14T09:26:53Z",
		"data": {
			"level_percent": 42.5,
			"volume_liters": 2248.1,
			"sensor_health": "good",
			"switch_state": true
		}
	}`, string(payload))
}

func TestPingCarriesNoData(t *testing.T) {
	e := NewEvent(TypePing, time.Now(), nil)
	payload, err := FormatEvent(e)
	require.NoError(t, err)
	assert.NotContains(t, string(payload), `"data"`)
}
