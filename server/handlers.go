package server

import (
	"net/http"

	"github.com/nvr-ai/go-detect/inference/detectors"
	"github.com/nvr-ai/go-detect/logger"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	ModelLoaded bool   `json:"model_loaded"`
	Version     string `json:"version"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Microservice string           `json:"microservice"`
	AIEngine     string           `json:"ai_engine"`
	Status       string           `json:"status"`
	Model        detectors.Status `json:"model"`
	Endpoints    []string         `json:"endpoints"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	metrics := s.pipeline.Metrics()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	req, err := readDetectRequest(r, s.cfg.MaxBodyBytes, s.pipeline.DefaultOptions())
	if err != nil {
		metrics.RecordRequest(fail(w, r, err))
		return
	}
	req.SourceID = logger.RequestID(r.Context())

	payload, err := s.pipeline.Detect(r.Context(), req)
	if err != nil {
		metrics.RecordRequest(fail(w, r, err))
		return
	}
	if !reply(w, r, http.StatusOK, payload) {
		metrics.RecordRequest(CodeInternal)
		return
	}
	metrics.RecordRequest("ok")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	loaded := s.pipeline.Detector().Available()
	if !loaded {
		status = "degraded"
	}
	reply(w, r, http.StatusOK, HealthResponse{
		Status:      status,
		Service:     ServiceName,
		ModelLoaded: loaded,
		Version:     Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.pipeline.Detector().Status()
	engine, status := "YOLO", "production"
	if !st.Loaded {
		engine, status = "unavailable", "degraded"
	}
	reply(w, r, http.StatusOK, StatusResponse{
		Microservice: "vision-processing",
		AIEngine:     engine,
		Status:       status,
		Model:        st,
		Endpoints:    []string{"/detect", "/health", "/api/status", "/metrics"},
	})
}
