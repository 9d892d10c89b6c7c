// Package server exposes the orchestrator over HTTP: a small JSON API for
// driving tasks and managing tools, plus a websocket that streams task
// snapshots and status updates to connected frontends.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/taskpilot/internal/ident"
	"github.com/codefionn/taskpilot/internal/logger"
	"github.com/codefionn/taskpilot/internal/orchestrator"
	"github.com/codefionn/taskpilot/internal/store"
	"github.com/codefionn/taskpilot/internal/tools"
)

// Server provides the HTTP interface for the orchestrator
type Server struct {
	addr     string
	orch     *orchestrator.Orchestrator
	registry *tools.Registry
	history  *store.Store
	hub      *Hub
	router   *httprouter.Router
	server   *http.Server

	unsubTask   func()
	unsubStatus func()
}

// NewServer creates a new server. history may be nil to disable task
// persistence.
func NewServer(addr string, orch *orchestrator.Orchestrator, registry *tools.Registry, history *store.Store) *Server {
	s := &Server{
		addr:     addr,
		orch:     orch,
		registry: registry,
		history:  history,
		hub:      NewHub(),
		router:   httprouter.New(),
	}

	s.setupRoutes()
	return s
}

// Start starts the HTTP server and begins relaying orchestrator events to
// websocket clients.
func (s *Server) Start() error {
	go s.hub.Run()

	s.unsubTask = s.orch.Subscribe(func(task *orchestrator.Task) {
		s.hub.Broadcast(NewTaskEvent(task))
		if task != nil && task.Status.Terminal() {
			s.recordTask(task)
		}
	})
	s.unsubStatus = s.orch.SubscribeStatusUpdate(func(update orchestrator.StatusUpdate) {
		s.hub.Broadcast(NewStatusEvent(update))
	})

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("Server listening on %s", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	logger.Info("Stopping server...")

	if s.unsubTask != nil {
		s.unsubTask()
	}
	if s.unsubStatus != nil {
		s.unsubStatus()
	}
	s.hub.Stop()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// Router returns the underlying router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) recordTask(task *orchestrator.Task) {
	if s.history == nil {
		return
	}
	if err := s.history.RecordTask(task); err != nil {
		logger.Warn("Failed to record task %s: %v", task.ID, err)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	// Task lifecycle
	s.router.POST("/api/tasks", s.handleStartTask)
	s.router.GET("/api/tasks/current", s.handleCurrentTask)
	s.router.POST("/api/tasks/current/confirm", s.handleConfirm)
	s.router.POST("/api/tasks/current/pause", s.handlePause)
	s.router.POST("/api/tasks/current/resume", s.handleResume)
	s.router.POST("/api/tasks/current/cancel", s.handleCancel)
	s.router.DELETE("/api/tasks/current", s.handleClear)
	s.router.GET("/api/tasks/history", s.handleHistory)

	// Tool management
	s.router.GET("/api/tools", s.handleListTools)
	s.router.POST("/api/tools", s.handleRegisterTool)
	s.router.DELETE("/api/tools/:id", s.handleRemoveTool)
	s.router.POST("/api/tools/:id/enable", s.handleEnableTool)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

// handleWebSocket upgrades the connection and attaches it to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // server binds to loopback by default
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade WebSocket: %v", err)
		return
	}

	client := NewClient(s.hub, conn)
	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	// New clients immediately get the current snapshot.
	client.send <- NewTaskEvent(s.orch.CurrentTask())
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req startTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	task, err := s.orch.StartTask(r.Context(), req.SessionID, req.MessageID, req.Description)
	if err != nil {
		if errors.Is(err, orchestrator.ErrTaskSuperseded) || errors.Is(err, orchestrator.ErrTaskCancelled) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleCurrentTask(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	task := s.orch.CurrentTask()
	if task == nil {
		writeError(w, http.StatusNotFound, "no current task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleConfirm kicks off execution. Plans can run for minutes, so the
// request returns as soon as execution starts; progress arrives over the
// websocket.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	task := s.orch.CurrentTask()
	if task == nil || task.Status != orchestrator.StatusConfirming {
		writeError(w, http.StatusConflict, "no task awaiting confirmation")
		return
	}

	go func() {
		if err := s.orch.ConfirmAndExecute(context.Background()); err != nil {
			logger.Warn("Task execution ended with error: %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "executing"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.orch.PauseTask()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	task := s.orch.CurrentTask()
	if task == nil || task.Status != orchestrator.StatusPaused {
		writeError(w, http.StatusConflict, "no paused task to resume")
		return
	}

	go func() {
		if err := s.orch.ResumeTask(context.Background()); err != nil {
			logger.Warn("Task resume ended with error: %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "executing"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.orch.CancelTask()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.orch.ClearTask()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "task history is disabled")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	records, err := s.history.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []*store.TaskRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": records})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if r.URL.Query().Get("format") == "openai" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"tools": s.registry.ToOpenAITools(true),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": s.registry.List()})
}

func (s *Server) handleRegisterTool(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req registerToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required for remote tools")
		return
	}

	id := req.ID
	if id == "" {
		id = ident.New("tool")
	}

	params := make(map[string]tools.Parameter, len(req.Parameters))
	for name, p := range req.Parameters {
		params[name] = tools.Parameter{Type: p.Type, Description: p.Description}
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	def := tools.Definition{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Parameters:  params,
		Required:    req.Required,
		Endpoint:    req.Endpoint,
		Enabled:     enabled,
	}
	s.registry.UpsertUserTool(def)

	// A registration over a builtin id is silently ignored; report what the
	// registry actually holds.
	stored := s.registry.Get(id)
	if stored == nil {
		writeError(w, http.StatusInternalServerError, "tool registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleRemoveTool(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if !s.registry.Remove(id) {
		writeError(w, http.StatusConflict, "tool cannot be removed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleEnableTool(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if s.registry.Get(id) == nil {
		writeError(w, http.StatusNotFound, "tool not found")
		return
	}

	var req enableToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	s.registry.SetToolEnabled(id, req.Enabled)
	writeJSON(w, http.StatusOK, s.registry.Get(id))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
