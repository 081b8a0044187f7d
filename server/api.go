package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lexcodex/reactchat/agents/react"
	"github.com/lexcodex/reactchat/framework"
)

// Version is reported by the health endpoints.
const Version = "0.1.0"

// APIServer exposes the chat loop over HTTP, SSE and WebSocket.
type APIServer struct {
	Driver *react.Driver
	Tools  *framework.ToolRegistry
	Logger *slog.Logger
	// CORSOrigins lists allowed browser origins; "*" allows any.
	CORSOrigins []string
	// Transcript, when set, receives a copy of every chat event.
	Transcript *framework.JSONFileSink
}

// Serve starts listening on the provided address.
func (s *APIServer) Serve(addr string) error {
	return s.ServeContext(context.Background(), addr)
}

// ServeContext allows the caller to control shutdown via context cancellation.
func (s *APIServer) ServeContext(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	s.logger().Info("API listening", "addr", addr, "version", Version)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Handler builds the routed handler with middleware applied.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth("healthy"))
	mux.HandleFunc("GET /api/v1/health", s.handleHealth("healthy"))
	mux.HandleFunc("GET /api/v1/ready", s.handleHealth("ready"))
	mux.HandleFunc("POST /api/v1/chat", s.handleChat)
	mux.HandleFunc("GET /api/v1/chat/ws", s.handleChatSocket)
	mux.HandleFunc("GET /api/v1/tools", s.handleListTools)
	mux.HandleFunc("POST /api/v1/tools/execute", s.handleExecuteTool)
	return s.withRequestID(s.withLogging(s.withCORS(mux)))
}

func (s *APIServer) handleHealth(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: status, Version: Version})
	}
}

func (s *APIServer) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sink, err := newSSESink(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	id := requestIDFrom(r.Context())
	logger := s.logger().With("request_id", id)
	outcome := s.driver(logger).Run(r.Context(), req, s.observe(id, logger, sink))
	logger.Info("chat finished", "outcome", outcome.String(), "transport", "sse")
}

func (s *APIServer) handleListTools(w http.ResponseWriter, r *http.Request) {
	infos := []ToolInfo{}
	if s.Tools != nil {
		for _, schema := range s.Tools.Schemas() {
			infos = append(infos, ToolInfo{
				Name:        schema.Function.Name,
				Description: schema.Function.Description,
				Parameters:  schema.Function.Parameters,
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": infos})
}

func (s *APIServer) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	var req ToolExecuteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid tool request: "+err.Error())
		return
	}
	if req.ToolName == "" {
		writeError(w, http.StatusBadRequest, "tool_name is required")
		return
	}
	var tool framework.Tool
	ok := false
	if s.Tools != nil {
		tool, ok = s.Tools.Get(req.ToolName)
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, framework.Fail("Tool '%s' not found", req.ToolName))
		return
	}
	if req.Parameters == nil {
		req.Parameters = map[string]interface{}{}
	}
	s.logger().Info("direct tool execution", "tool", req.ToolName, "request_id", requestIDFrom(r.Context()))
	writeJSON(w, http.StatusOK, tool.Execute(r.Context(), req.Parameters))
}

// driver returns a copy of the configured driver logging with logger.
func (s *APIServer) driver(logger *slog.Logger) *react.Driver {
	d := *s.Driver
	d.Logger = logger
	if d.Tools == nil {
		d.Tools = s.Tools
	}
	return &d
}

// observe tees events to the debug log and, when configured, the transcript.
func (s *APIServer) observe(requestID string, logger *slog.Logger, sink framework.EventSink) framework.EventSink {
	sinks := []framework.EventSink{sink, framework.LoggerSink{Logger: logger}}
	if s.Transcript != nil {
		sinks = append(sinks, s.Transcript.WithRequest(requestID))
	}
	return framework.MultiplexSink{Sinks: sinks}
}

func (s *APIServer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Warn("write json response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}
