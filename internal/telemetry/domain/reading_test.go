package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReading_DefaultsDeviceID(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	reading, err := NewReading(at, 450, 1, "", "10.0.0.7")
	require.NoError(t, err)
	assert.Equal(t, UnknownDeviceID, reading.DeviceID)
	assert.Equal(t, time.UTC, reading.Timestamp.Location())
	assert.True(t, reading.Timestamp.Equal(at))
}

func TestNewReading_RejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name    string
		analog  int
		digital int
	}{
		{"analog negative", -1, 0},
		{"analog above adc range", 1024, 0},
		{"digital not a flag", 500, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewReading(time.Now(), tc.analog, tc.digital, "s1", "")
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestNewReading_AcceptsBounds(t *testing.T) {
	for _, analog := range []int{AnalogMin, AnalogMax} {
		_, err := NewReading(time.Now(), analog, 0, "s1", "")
		require.NoError(t, err)
	}
}
