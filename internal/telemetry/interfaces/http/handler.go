package http

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"sensor-gateway/internal/observability/metrics"
	"sensor-gateway/internal/telemetry/application"
	telemetry "sensor-gateway/internal/telemetry/domain"
	"sensor-gateway/internal/telemetry/interfaces/export"
)

const (
	maxBodyBytes = 1 << 20

	msgInvalidData = "Dados inválidos"
	msgInternal    = "Erro interno"
	msgSaved       = "Dados salvos e métricas atualizadas"
)

// Handler serves the sensor ingest, query and scrape endpoints.
type Handler struct {
	service *application.Service
	logger  *zap.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *application.Service, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("sensor handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}, nil
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", h.handleIndex)
	mux.HandleFunc("/sensor", h.handleSensor)
	mux.HandleFunc("/dados", h.handleRecent)
	mux.HandleFunc("/dados/export", h.handleExport)
	mux.HandleFunc("/metrics", h.handleMetrics)
	mux.HandleFunc("/health", h.handleHealth)
}

type readingDTO struct {
	Timestamp    string `json:"timestamp"`
	AnalogValue  int    `json:"umidade_analogica"`
	DigitalValue int    `json:"umidade_digital"`
	DeviceID     string `json:"device_id"`
	IP           string `json:"ip"`
}

func toReadingDTO(reading telemetry.Reading) readingDTO {
	return readingDTO{
		Timestamp:    reading.Timestamp.Format(time.RFC3339Nano),
		AnalogValue:  reading.AnalogValue,
		DigitalValue: reading.DigitalValue,
		DeviceID:     reading.DeviceID,
		IP:           reading.SourceAddress,
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "online",
		"message": "Sensor API com Prometheus",
		"endpoints": map[string]string{
			"POST /sensor":      "Enviar dados do sensor",
			"GET /dados":        "Listar dados recentes",
			"GET /dados/export": "Exportar dados recentes (xlsx, pdf)",
			"GET /metrics":      "Métricas Prometheus",
			"GET /health":       "Health check",
		},
	})
}

func (h *Handler) handleSensor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	defer r.Body.Close()
	if err != nil {
		h.logger.Warn("sensor ingest: read body error", zap.Error(err))
		_ = h.service.RejectUnreadable(err)
		writeError(w, http.StatusBadRequest, msgInvalidData)
		return
	}

	result, err := h.service.Ingest(r.Context(), body, remoteHost(r.RemoteAddr))
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("sensor ingest failed", zap.Error(err))
			writeError(w, status, msgInternal)
			return
		}
		writeError(w, status, msgInvalidData)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message":         msgSaved,
		"timestamp":       result.Reading.Timestamp.Format(time.RFC3339Nano),
		"processing_time": math.Round(result.ProcessingTime.Seconds()*1000) / 1000,
	})
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recent := h.service.ListRecent(limit)
	dados := make([]readingDTO, 0, len(recent.Readings))
	for _, reading := range recent.Readings {
		dados = append(dados, toReadingDTO(reading))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"total_in_memory": recent.TotalStored,
		"showing":         recent.Returned,
		"dados":           dados,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatXLSX
	}
	if format != export.FormatXLSX && format != export.FormatPDF {
		writeError(w, http.StatusBadRequest, "format must be xlsx or pdf")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recent := h.service.ListRecent(limit)
	data, err := export.Build(format, recent.Readings, time.Now())
	if err != nil {
		h.logger.Error("sensor export failed", zap.String("format", format), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", "attachment; filename=leituras."+format)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	out, err := h.service.RenderMetrics()
	if err != nil {
		h.logger.Error("metrics render failed", zap.Error(err))
		http.Error(w, "metrics render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", metrics.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	health := h.service.Health()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        health.Status,
		"timestamp":     health.Timestamp.Format(time.RFC3339Nano),
		"total_samples": health.TotalStored,
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, telemetry.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseLimit(r *http.Request) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return limit, nil
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
