package telemetry

import "time"

const (
	// UnknownDeviceID labels readings and errors without a usable device id.
	UnknownDeviceID = "unknown"

	// AnalogMin and AnalogMax bound the 10-bit ADC range of the humidity sensor.
	AnalogMin = 0
	AnalogMax = 1023
)

// Reading is a validated humidity sample. It is a value type and is never
// modified after construction.
type Reading struct {
	Timestamp     time.Time
	AnalogValue   int
	DigitalValue  int
	DeviceID      string
	SourceAddress string
}

// NewReading validates the sample values and builds a Reading.
func NewReading(at time.Time, analog, digital int, deviceID, sourceAddress string) (Reading, error) {
	if analog < AnalogMin || analog > AnalogMax {
		return Reading{}, ValidationError("umidade_analogica out of range [0, 1023]")
	}
	if digital != 0 && digital != 1 {
		return Reading{}, ValidationError("umidade_digital must be 0 or 1")
	}
	if deviceID == "" {
		deviceID = UnknownDeviceID
	}
	return Reading{
		Timestamp:     at.UTC(),
		AnalogValue:   analog,
		DigitalValue:  digital,
		DeviceID:      deviceID,
		SourceAddress: sourceAddress,
	}, nil
}

// ReadingHistory keeps the most recent readings in arrival order.
type ReadingHistory interface {
	Append(reading Reading)
	Recent(limit int) []Reading
	Size() int
}
