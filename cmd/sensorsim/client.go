package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	analogMin = 0
	analogMax = 1023

	digitalThreshold = 400
)

type sensorPayload struct {
	AnalogValue  int    `json:"umidade_analogica"`
	DigitalValue int    `json:"umidade_digital"`
	DeviceID     string `json:"device_id"`
}

type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *client) send(ctx context.Context, analog, digital int, deviceID string) error {
	body, err := json.Marshal(sensorPayload{AnalogValue: analog, DigitalValue: digital, DeviceID: deviceID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sensor", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// simulator produces humidity readings that drift around a random base.
type simulator struct {
	rng *rand.Rand
}

func newSimulator(rng *rand.Rand) *simulator {
	return &simulator{rng: rng}
}

// next returns an analog value in [0, 1023] and the digital flag derived
// from the 400 threshold.
func (s *simulator) next() (int, int) {
	base := 300 + s.rng.Intn(301)
	variation := s.rng.Intn(101) - 50
	analog := base + variation
	if analog < analogMin {
		analog = analogMin
	}
	if analog > analogMax {
		analog = analogMax
	}
	digital := 0
	if analog > digitalThreshold {
		digital = 1
	}
	return analog, digital
}
