package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensor-gateway/internal/observability/metrics"
	telemetry "sensor-gateway/internal/telemetry/domain"
	"sensor-gateway/internal/telemetry/infrastructure/memory"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts ...Option) (*Service, *memory.HistoryBuffer, *metrics.Registry) {
	t.Helper()
	history := memory.NewHistoryBuffer(memory.DefaultCapacity)
	registry := metrics.NewRegistry()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	svc, err := NewService(history, registry, opts...)
	require.NoError(t, err)
	return svc, history, registry
}

func renderText(t *testing.T, svc *Service) string {
	t.Helper()
	out, err := svc.RenderMetrics()
	require.NoError(t, err)
	return string(out)
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(nil, metrics.NewRegistry())
	require.Error(t, err)
	_, err = NewService(memory.NewHistoryBuffer(1), nil)
	require.Error(t, err)
}

func TestIngest_Success(t *testing.T) {
	svc, history, _ := newTestService(t)

	result, err := svc.Ingest(context.Background(), []byte(`{"umidade_analogica":450,"umidade_digital":1,"device_id":"s1"}`), "10.0.0.2")
	require.NoError(t, err)

	assert.Equal(t, telemetry.Reading{
		Timestamp:     fixedNow,
		AnalogValue:   450,
		DigitalValue:  1,
		DeviceID:      "s1",
		SourceAddress: "10.0.0.2",
	}, result.Reading)
	assert.GreaterOrEqual(t, result.ProcessingTime, time.Duration(0))
	assert.Equal(t, 1, history.Size())

	text := renderText(t, svc)
	assert.Contains(t, text, `sensor_umidade_analogica{device_id="s1"} 450`)
	assert.Contains(t, text, `sensor_umidade_digital{device_id="s1"} 1`)
	assert.Contains(t, text, `sensor_requests_total{device_id="s1",status="success"} 1`)
}

func TestIngest_MissingDigitalIsRejected(t *testing.T) {
	svc, history, _ := newTestService(t)

	_, err := svc.Ingest(context.Background(), []byte(`{"umidade_analogica":450}`), "")
	require.ErrorIs(t, err, telemetry.ErrValidation)
	assert.Equal(t, 0, history.Size())
	assert.Contains(t, renderText(t, svc), `sensor_requests_total{device_id="unknown",status="error"} 1`)
}

func TestIngest_RejectionIgnoresSuppliedDeviceID(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Ingest(context.Background(), []byte(`{"umidade_digital":1,"device_id":"s9"}`), "")
	require.ErrorIs(t, err, telemetry.ErrValidation)

	text := renderText(t, svc)
	assert.Contains(t, text, `sensor_requests_total{device_id="unknown",status="error"} 1`)
	assert.NotContains(t, text, `device_id="s9"`)
}

func TestIngest_ValidationFailures(t *testing.T) {
	payloads := map[string]string{
		"empty body":                 ``,
		"malformed json":             `{"umidade_analogica":`,
		"array payload":              `[1,2]`,
		"null payload":               `null`,
		"trailing data":              `{"umidade_analogica":1,"umidade_digital":0} {}`,
		"missing analog":             `{"umidade_digital":0}`,
		"analog too high":            `{"umidade_analogica":2048,"umidade_digital":0}`,
		"digital not 0/1":            `{"umidade_analogica":10,"umidade_digital":3}`,
		"analog beyond int32":        `{"umidade_analogica":5000000000,"umidade_digital":0}`,
		"analog string beyond int32": `{"umidade_analogica":"5000000000","umidade_digital":0}`,
		"analog string beyond int64": `{"umidade_analogica":"99999999999999999999","umidade_digital":0}`,
		"analog exponent":            `{"umidade_analogica":1e10,"umidade_digital":0}`,
		"digital beyond int32":       `{"umidade_analogica":10,"umidade_digital":-1e12}`,
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			svc, history, _ := newTestService(t)
			_, err := svc.Ingest(context.Background(), []byte(payload), "")
			require.ErrorIs(t, err, telemetry.ErrValidation)
			assert.NotErrorIs(t, err, telemetry.ErrCoercion)
			assert.Equal(t, 0, history.Size())
		})
	}
}

func TestIngest_CoercionFailureIsInternalByDefault(t *testing.T) {
	svc, history, _ := newTestService(t)

	_, err := svc.Ingest(context.Background(), []byte(`{"umidade_analogica":"wet","umidade_digital":1}`), "")
	require.ErrorIs(t, err, telemetry.ErrCoercion)
	assert.False(t, errors.Is(err, telemetry.ErrValidation))
	assert.Equal(t, 0, history.Size())
	assert.Contains(t, renderText(t, svc), `sensor_requests_total{device_id="unknown",status="error"} 1`)
}

func TestIngest_CoercionFailureAsClientError(t *testing.T) {
	svc, _, _ := newTestService(t, WithCoercionAsClientError(true))

	_, err := svc.Ingest(context.Background(), []byte(`{"umidade_analogica":null,"umidade_digital":1}`), "")
	require.ErrorIs(t, err, telemetry.ErrValidation)
	require.ErrorIs(t, err, telemetry.ErrCoercion)
}

func TestIngest_CoercesLooseNumbers(t *testing.T) {
	svc, _, _ := newTestService(t)

	result, err := svc.Ingest(context.Background(), []byte(`{"umidade_analogica":" 512 ","umidade_digital":true,"device_id":42}`), "")
	require.NoError(t, err)
	assert.Equal(t, 512, result.Reading.AnalogValue)
	assert.Equal(t, 1, result.Reading.DigitalValue)
	assert.Equal(t, "42", result.Reading.DeviceID)

	result, err = svc.Ingest(context.Background(), []byte(`{"umidade_analogica":450.9,"umidade_digital":0.2}`), "")
	require.NoError(t, err)
	assert.Equal(t, 450, result.Reading.AnalogValue)
	assert.Equal(t, 0, result.Reading.DigitalValue)
	assert.Equal(t, telemetry.UnknownDeviceID, result.Reading.DeviceID)
}

func TestIngest_ObjectDeviceIDIsCoercionError(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Ingest(context.Background(), []byte(`{"umidade_analogica":1,"umidade_digital":1,"device_id":{"id":1}}`), "")
	require.ErrorIs(t, err, telemetry.ErrCoercion)
}

func TestIngest_TimesEveryAttempt(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, _ = svc.Ingest(ctx, []byte(`{"umidade_analogica":1,"umidade_digital":1}`), "")
	_, _ = svc.Ingest(ctx, []byte(`{"umidade_analogica":1}`), "")
	_, _ = svc.Ingest(ctx, []byte(`{"umidade_analogica":"x","umidade_digital":1}`), "")

	assert.Contains(t, renderText(t, svc), "sensor_request_duration_seconds_count 3\n")
}

type panickingHistory struct{}

func (panickingHistory) Append(telemetry.Reading)       { panic("disk on fire") }
func (panickingHistory) Recent(int) []telemetry.Reading { return nil }
func (panickingHistory) Size() int                      { return 0 }

func TestIngest_RecoversInternalFault(t *testing.T) {
	registry := metrics.NewRegistry()
	svc, err := NewService(panickingHistory{}, registry)
	require.NoError(t, err)

	_, err = svc.Ingest(context.Background(), []byte(`{"umidade_analogica":1,"umidade_digital":1,"device_id":"s1"}`), "")
	require.ErrorIs(t, err, telemetry.ErrInternal)

	text := renderText(t, svc)
	assert.Contains(t, text, `sensor_requests_total{device_id="unknown",status="error"} 1`)
	assert.NotContains(t, text, `status="success"`)
	assert.Contains(t, text, "sensor_request_duration_seconds_count 1\n")
}

func TestListRecent_WindowAndEviction(t *testing.T) {
	history := memory.NewHistoryBuffer(memory.DefaultCapacity)
	var tick int64
	svc, err := NewService(history, metrics.NewRegistry(), WithClock(func() time.Time {
		tick++
		return time.Unix(1_700_000_000+tick, 0).UTC()
	}))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 1; i <= 1005; i++ {
		payload := fmt.Sprintf(`{"umidade_analogica":%d,"umidade_digital":%d,"device_id":"s1"}`, i%1024, i%2)
		_, err := svc.Ingest(ctx, []byte(payload), "")
		require.NoError(t, err)
		if i >= 1000 {
			require.Equal(t, 1000, history.Size())
		}
	}

	recent := svc.ListRecent(0)
	assert.Equal(t, 1000, recent.TotalStored)
	assert.Equal(t, DefaultRecentLimit, recent.Returned)
	for i, reading := range recent.Readings {
		n := 986 + i
		assert.Equal(t, n%1024, reading.AnalogValue)
		assert.Equal(t, time.Unix(1_700_000_000+int64(n), 0).UTC(), reading.Timestamp)
	}

	assert.Equal(t, 5, svc.ListRecent(5).Returned)
}

func TestHealth(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Ingest(context.Background(), []byte(`{"umidade_analogica":1,"umidade_digital":0}`), "")
	require.NoError(t, err)

	health := svc.Health()
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 1, health.TotalStored)
	assert.Equal(t, fixedNow, health.Timestamp)
}

func TestIngest_ConcurrentDevicesDoNotInterleave(t *testing.T) {
	svc, history, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, dev := range []struct {
		id      string
		analog  int
		digital int
	}{{"s1", 111, 0}, {"s2", 999, 1}} {
		wg.Add(1)
		go func(id string, analog, digital int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				payload := fmt.Sprintf(`{"umidade_analogica":%d,"umidade_digital":%d,"device_id":%q}`, analog, digital, id)
				_, err := svc.Ingest(ctx, []byte(payload), "")
				assert.NoError(t, err)
			}
		}(dev.id, dev.analog, dev.digital)
	}
	wg.Wait()

	assert.Equal(t, 200, history.Size())
	text := renderText(t, svc)
	assert.Contains(t, text, `sensor_umidade_analogica{device_id="s1"} 111`)
	assert.Contains(t, text, `sensor_umidade_analogica{device_id="s2"} 999`)
	assert.Contains(t, text, `sensor_umidade_digital{device_id="s1"} 0`)
	assert.Contains(t, text, `sensor_umidade_digital{device_id="s2"} 1`)
	assert.Equal(t, 1, strings.Count(text, `sensor_requests_total{device_id="s1",status="success"} 100`))
}

func TestRejectUnreadable_CountsAndTimes(t *testing.T) {
	svc, history, _ := newTestService(t)

	err := svc.RejectUnreadable(errors.New("connection reset"))
	require.ErrorIs(t, err, telemetry.ErrValidation)
	assert.Equal(t, 0, history.Size())

	text := renderText(t, svc)
	assert.Contains(t, text, `sensor_requests_total{device_id="unknown",status="error"} 1`)
	assert.Contains(t, text, "sensor_request_duration_seconds_count 1\n")
}
