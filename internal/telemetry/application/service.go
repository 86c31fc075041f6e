package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"sensor-gateway/internal/observability/metrics"
	telemetry "sensor-gateway/internal/telemetry/domain"
)

const (
	// DefaultRecentLimit is the number of readings returned by ListRecent when no limit is given.
	DefaultRecentLimit = 20

	fieldAnalog   = "umidade_analogica"
	fieldDigital  = "umidade_digital"
	fieldDeviceID = "device_id"

	statusHealthy = "healthy"
)

// IngestResult describes a recorded reading.
type IngestResult struct {
	Reading        telemetry.Reading
	ProcessingTime time.Duration
}

// RecentResult is a window over the reading history.
type RecentResult struct {
	TotalStored int
	Returned    int
	Readings    []telemetry.Reading
}

// HealthResult reports liveness and buffer occupancy.
type HealthResult struct {
	Status      string
	TotalStored int
	Timestamp   time.Time
}

// Service validates incoming readings and records them in the history and metrics.
type Service struct {
	history telemetry.ReadingHistory
	metrics *metrics.Registry
	logger  *zap.Logger
	now     func() time.Time

	recentLimit           int
	coercionAsClientError bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the receipt clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRecentLimit sets the default window for ListRecent.
func WithRecentLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.recentLimit = limit
		}
	}
}

// WithCoercionAsClientError reports non-integer values as validation errors
// instead of internal errors.
func WithCoercionAsClientError(enabled bool) Option {
	return func(s *Service) {
		s.coercionAsClientError = enabled
	}
}

// NewService constructs an ingestion service.
func NewService(history telemetry.ReadingHistory, registry *metrics.Registry, opts ...Option) (*Service, error) {
	if history == nil {
		return nil, errors.New("ingest service: nil history")
	}
	if registry == nil {
		return nil, errors.New("ingest service: nil metrics registry")
	}
	s := &Service{
		history:     history,
		metrics:     registry,
		logger:      zap.NewNop(),
		now:         func() time.Time { return time.Now().UTC() },
		recentLimit: DefaultRecentLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ingest decodes, validates and records a raw reading payload.
// Every failure increments the error counter before returning.
func (s *Service) Ingest(_ context.Context, payload []byte, sourceAddress string) (result IngestResult, err error) {
	started := time.Now()
	timer := s.metrics.Time()
	defer timer.ObserveDuration()
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("ingest panic recovered", zap.Any("panic", rec))
			s.metrics.ObserveError(telemetry.UnknownDeviceID)
			result = IngestResult{}
			err = fmt.Errorf("%w: %v", telemetry.ErrInternal, rec)
		}
	}()

	fields, err := decodePayload(payload)
	if err != nil {
		return s.reject(err)
	}

	analog, err := coerceInt(fieldAnalog, fields[fieldAnalog])
	if err != nil {
		return s.reject(s.classifyCoercion(err))
	}
	digital, err := coerceInt(fieldDigital, fields[fieldDigital])
	if err != nil {
		return s.reject(s.classifyCoercion(err))
	}
	deviceID, err := resolveDeviceID(fields)
	if err != nil {
		return s.reject(s.classifyCoercion(err))
	}

	reading, err := telemetry.NewReading(s.now(), analog, digital, deviceID, sourceAddress)
	if err != nil {
		return s.reject(err)
	}

	// Append cannot fail; metrics go second so a fault leaves neither half observable as success.
	s.history.Append(reading)
	s.metrics.ObserveReading(reading.DeviceID, reading.AnalogValue, reading.DigitalValue)

	s.logger.Debug("reading recorded",
		zap.String("device_id", reading.DeviceID),
		zap.Int("analog", reading.AnalogValue),
		zap.Int("digital", reading.DigitalValue),
		zap.String("source", sourceAddress))

	return IngestResult{Reading: reading, ProcessingTime: time.Since(started)}, nil
}

// RejectUnreadable counts and times a request whose body could not be read as a validation failure.
func (s *Service) RejectUnreadable(cause error) error {
	defer s.metrics.Time().ObserveDuration()
	_, err := s.reject(fmt.Errorf("%w: read body: %w", telemetry.ErrValidation, cause))
	return err
}

// ListRecent returns up to limit readings, oldest first. Non-positive limit uses the default window.
func (s *Service) ListRecent(limit int) RecentResult {
	if limit <= 0 {
		limit = s.recentLimit
	}
	readings := s.history.Recent(limit)
	return RecentResult{
		TotalStored: s.history.Size(),
		Returned:    len(readings),
		Readings:    readings,
	}
}

// Health reports service status.
func (s *Service) Health() HealthResult {
	return HealthResult{
		Status:      statusHealthy,
		TotalStored: s.history.Size(),
		Timestamp:   s.now(),
	}
}

// RenderMetrics returns the exposition snapshot of the metrics registry.
func (s *Service) RenderMetrics() ([]byte, error) {
	return s.metrics.Render()
}

// reject labels every failure with the unknown device id; the payload's id is not trusted here.
func (s *Service) reject(err error) (IngestResult, error) {
	s.metrics.ObserveError(telemetry.UnknownDeviceID)
	s.logger.Warn("reading rejected", zap.Error(err))
	return IngestResult{}, err
}

func (s *Service) classifyCoercion(err error) error {
	if s.coercionAsClientError {
		return fmt.Errorf("%w: %w", telemetry.ErrValidation, err)
	}
	return err
}

func decodePayload(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, telemetry.ValidationError("malformed json")
	}
	if dec.More() {
		return nil, telemetry.ValidationError("trailing data after json object")
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		return nil, telemetry.ValidationError("payload is not a json object")
	}
	if _, ok := fields[fieldAnalog]; !ok {
		return nil, telemetry.ValidationError("missing " + fieldAnalog)
	}
	if _, ok := fields[fieldDigital]; !ok {
		return nil, telemetry.ValidationError("missing " + fieldDigital)
	}
	return fields, nil
}

// coerceInt accepts integral and fractional numbers (truncated), numeric strings and booleans.
func coerceInt(field string, value any) (int, error) {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return clampInt64(field, n)
		}
		f, err := v.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, telemetry.CoercionError(field, value)
		}
		f = math.Trunc(f)
		if f > math.MaxInt32 || f < math.MinInt32 {
			return 0, outOfRange(field)
		}
		return int(f), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if errors.Is(err, strconv.ErrRange) {
			return 0, outOfRange(field)
		}
		if err != nil {
			return 0, telemetry.CoercionError(field, value)
		}
		return clampInt64(field, n)
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, telemetry.CoercionError(field, value)
	}
}

// clampInt64 narrows n to int. Values that do not fit are out of the sensor
// range anyway and are rejected as invalid input, like any other bad reading.
func clampInt64(field string, n int64) (int, error) {
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, outOfRange(field)
	}
	return int(n), nil
}

func outOfRange(field string) error {
	if field == fieldDigital {
		return telemetry.ValidationError(field + " must be 0 or 1")
	}
	return telemetry.ValidationError(field + " out of range [0, 1023]")
}

func resolveDeviceID(fields map[string]any) (string, error) {
	switch v := fields[fieldDeviceID].(type) {
	case nil:
		return telemetry.UnknownDeviceID, nil
	case string:
		if v == "" {
			return telemetry.UnknownDeviceID, nil
		}
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", telemetry.CoercionError(fieldDeviceID, v)
	}
}
