package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	modeContinuous = "continuous"
	modeBatch      = "batch"
	modeOnce       = "once"
)

type config struct {
	baseURL  string
	mode     string
	device   string
	devices  int
	interval time.Duration
	count    int
	timeout  time.Duration
	analog   int
	digital  int
}

// sample is one reading as posted to the gateway.
type sample struct {
	analog   int
	digital  int
	deviceID string
}

// batchSamples walks the humidity bands from dry to very wet.
var batchSamples = []sample{
	{analog: 250, digital: 0, deviceID: "sensor_seco"},
	{analog: 350, digital: 0, deviceID: "sensor_medio_seco"},
	{analog: 450, digital: 1, deviceID: "sensor_medio_umido"},
	{analog: 650, digital: 1, deviceID: "sensor_umido"},
	{analog: 800, digital: 1, deviceID: "sensor_muito_umido"},
}

func main() {
	cfg := parseConfig()
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.validate(); err != nil {
		logger.Fatal("invalid flags", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("sensor simulation starting",
		zap.String("base_url", cfg.baseURL),
		zap.String("mode", cfg.mode),
		zap.Int("devices", cfg.devices),
		zap.Duration("interval", cfg.interval),
		zap.Int("count", cfg.count))

	client := newClient(cfg.baseURL, cfg.timeout)
	sim := newSimulator(rand.New(rand.NewSource(time.Now().UnixNano())))
	st := execute(ctx, cfg, client, sim, logger)

	sent, succeeded := st.totals()
	logger.Info("sensor simulation finished",
		zap.Int64("sent", sent),
		zap.Int64("succeeded", succeeded),
		zap.Float64("success_rate_pct", st.rate()))
}

func (c config) validate() error {
	switch c.mode {
	case modeContinuous:
		if c.devices <= 0 {
			return errors.New("devices must be > 0")
		}
	case modeBatch:
	case modeOnce:
		if c.analog < analogMin || c.analog > analogMax {
			return fmt.Errorf("analog must be in [%d, %d]", analogMin, analogMax)
		}
		if c.digital != 0 && c.digital != 1 {
			return errors.New("digital must be 0 or 1")
		}
	default:
		return fmt.Errorf("unknown mode %q", c.mode)
	}
	if c.interval <= 0 {
		return errors.New("interval must be > 0")
	}
	return nil
}

// execute sends readings according to cfg.mode and returns the send statistics.
func execute(ctx context.Context, cfg config, c *client, sim *simulator, logger *zap.Logger) *stats {
	st := newStats(logger)
	post := func(ctx context.Context, s sample) {
		err := c.send(ctx, s.analog, s.digital, s.deviceID)
		st.record(err == nil)
		if err != nil {
			logger.Warn("send failed", zap.String("device_id", s.deviceID), zap.Error(err))
			return
		}
		logger.Info("sent",
			zap.String("device_id", s.deviceID),
			zap.Int("analog", s.analog),
			zap.Int("digital", s.digital))
	}

	switch cfg.mode {
	case modeOnce:
		post(ctx, sample{analog: cfg.analog, digital: cfg.digital, deviceID: cfg.device})
	case modeBatch:
		runBatch(ctx, cfg.interval, post)
	default:
		run(ctx, cfg, func(ctx context.Context, deviceID string) {
			analog, digital := sim.next()
			post(ctx, sample{analog: analog, digital: digital, deviceID: deviceID})
		})
	}
	return st
}

// run calls send once per device per tick until ctx ends or count ticks elapse.
func run(ctx context.Context, cfg config, send func(ctx context.Context, deviceID string)) {
	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	for tick := 1; cfg.count <= 0 || tick <= cfg.count; tick++ {
		for d := 1; d <= cfg.devices; d++ {
			send(ctx, deviceName(cfg.device, d, cfg.devices))
		}
		if cfg.count > 0 && tick == cfg.count {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runBatch sends the fixed batch samples in order, pausing between sends.
func runBatch(ctx context.Context, pause time.Duration, send func(ctx context.Context, s sample)) {
	for i, s := range batchSamples {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pause):
			}
		}
		send(ctx, s)
	}
}

func deviceName(prefix string, index, total int) string {
	if total == 1 {
		return prefix
	}
	return fmt.Sprintf("%s_%03d", prefix, index)
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.baseURL, "base-url", envOrDefault("BASE_URL", "http://localhost:5000"), "sensor gateway base URL")
	flag.StringVar(&cfg.mode, "mode", envOrDefault("MODE", modeContinuous), "continuous, batch or once")
	flag.StringVar(&cfg.device, "device", envOrDefault("DEVICE_ID", "sensor_001"), "device id (prefix when devices > 1)")
	flag.IntVar(&cfg.devices, "devices", envOrInt("DEVICES", 1), "number of simulated devices")
	flag.DurationVar(&cfg.interval, "interval", envOrDuration("INTERVAL", 2*time.Second), "delay between rounds or batch sends")
	flag.IntVar(&cfg.count, "count", envOrInt("COUNT", 0), "rounds to send (0 = until interrupted)")
	flag.DurationVar(&cfg.timeout, "timeout", envOrDuration("TIMEOUT", 5*time.Second), "per-request timeout")
	flag.IntVar(&cfg.analog, "analog", envOrInt("ANALOG", 500), "analog value sent in once mode")
	flag.IntVar(&cfg.digital, "digital", envOrInt("DIGITAL", 1), "digital value sent in once mode")
	flag.Parse()
	return cfg
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
