// Package api provides the HTTP surface of the daemon: the platform
// webhook routes, the management REST endpoints, and SSE event
// streaming.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"botweave/internal/adapter"
	"botweave/internal/cachemanager"
	"botweave/internal/domain"
	"botweave/internal/kv"
	"botweave/internal/log"
	"botweave/internal/orchestration"
	"botweave/internal/orchestration/metrics"
	"botweave/internal/workflow"
)

// heartbeatInterval is how often SSE streams emit a keep-alive comment.
const heartbeatInterval = 30 * time.Second

// Webhook route-table cache settings. Entries map app id to bot id and
// age out so renamed or deleted bots stop receiving traffic.
const (
	routeCacheTTL     = 5 * time.Minute
	routeCacheCleanup = 10 * time.Minute
)

// JobSource lists the schedule entries currently installed.
type JobSource interface {
	Jobs() []orchestration.JobInfo
}

// Handler provides the HTTP endpoints for bot lifecycle, workflow
// management, and inbound webhooks.
type Handler struct {
	bots      domain.BotRepository
	workflows domain.WorkflowRepository
	adapters  *adapter.Manager
	cache     *workflow.Cache
	registry  *workflow.Registry
	dispatch  adapter.Handler
	kv        kv.Store
	debug     *workflow.DebugStore
	jobs      JobSource
	counters  *metrics.Counters
	tracer    trace.Tracer

	routes *cachemanager.ReadThrough[string, int64]
}

// HandlerConfig configures the API handler.
type HandlerConfig struct {
	// Bots resolves and persists bot records (required).
	Bots domain.BotRepository
	// Workflows lists stored workflow rows (required).
	Workflows domain.WorkflowRepository
	// Adapters manages the per-bot protocol adapters (required).
	Adapters *adapter.Manager
	// Cache holds compiled workflows; reloads go through it (required).
	Cache *workflow.Cache
	// Registry describes the installed node kinds (required).
	Registry *workflow.Registry
	// Dispatch is attached as the event handler when a bot starts.
	Dispatch adapter.Handler
	// KV backs webhook dedup keys (required for the webhook route).
	KV kv.Store
	// Debug loads per-workflow execution traces (optional).
	Debug *workflow.DebugStore
	// Jobs lists installed schedule entries for /health (optional).
	Jobs JobSource
	// Counters surfaces pipeline totals on /health (optional).
	Counters *metrics.Counters
	// Tracer records webhook receive spans (optional).
	Tracer trace.Tracer
}

// NewHandler creates the API handler from its dependencies.
func NewHandler(cfg HandlerConfig) *Handler {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("api")
	}
	h := &Handler{
		bots:      cfg.Bots,
		workflows: cfg.Workflows,
		adapters:  cfg.Adapters,
		cache:     cfg.Cache,
		registry:  cfg.Registry,
		dispatch:  cfg.Dispatch,
		kv:        cfg.KV,
		debug:     cfg.Debug,
		jobs:      cfg.Jobs,
		counters:  cfg.Counters,
		tracer:    tracer,
	}
	h.routes = cachemanager.NewReadThrough[string, int64](
		cachemanager.NewInMemory[string, int64]("webhook_routes", routeCacheTTL, routeCacheCleanup),
		h.lookupBotByAppID,
		false,
	)
	return h
}

// Routes returns an http.Handler with all routes registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Platform webhooks
	mux.HandleFunc("POST /webhook/qq", h.QQWebhook)

	// Bot lifecycle
	mux.HandleFunc("GET /api/bots", h.ListBots)
	mux.HandleFunc("GET /api/bots/{id}/status", h.BotStatus)
	mux.HandleFunc("POST /api/bots/{id}/start", h.StartBot)
	mux.HandleFunc("POST /api/bots/{id}/stop", h.StopBot)
	mux.HandleFunc("POST /api/bots/{id}/restart", h.RestartBot)
	mux.HandleFunc("POST /api/bots/{id}/recall", h.RecallMessage)

	// Workflows
	mux.HandleFunc("GET /api/workflows", h.ListWorkflows)
	mux.HandleFunc("POST /api/workflows/reload", h.ReloadWorkflows)
	mux.HandleFunc("GET /api/workflows/{id}/debug", h.WorkflowDebug)

	// Node registry
	mux.HandleFunc("GET /api/nodes", h.ListNodes)

	// Event streaming
	mux.HandleFunc("GET /api/events", h.StreamEvents)

	// Health check
	mux.HandleFunc("GET /health", h.Health)

	return mux
}

// === Request/Response Types ===

// BotResponse is the response body for a single bot. Credential values
// in the config are masked.
type BotResponse struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Protocol  string         `json:"protocol"`
	OwnerID   int64          `json:"owner_id"`
	Enabled   bool           `json:"enabled"`
	Running   bool           `json:"running"`
	Config    map[string]any `json:"config,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListBotsResponse is the response body for listing bots.
type ListBotsResponse struct {
	Bots  []BotResponse `json:"bots"`
	Total int           `json:"total"`
}

// BotStatusResponse couples the stored bot record with the live adapter
// view. Status is absent while the adapter is stopped.
type BotStatusResponse struct {
	Bot    BotResponse     `json:"bot"`
	Status *adapter.Status `json:"status,omitempty"`
}

// RecallRequest is the request body for recalling a sent message.
type RecallRequest struct {
	MessageID string `json:"message_id"`
}

// WorkflowResponse is the response body for a single workflow row.
// Cached reports whether the row passed validation on the last reload;
// TriggerType is only known for cached workflows.
type WorkflowResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	Priority    int       `json:"priority"`
	TriggerType string    `json:"trigger_type,omitempty"`
	Cached      bool      `json:"cached"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListWorkflowsResponse is the response body for listing workflows.
type ListWorkflowsResponse struct {
	Workflows []WorkflowResponse `json:"workflows"`
	Total     int                `json:"total"`
}

// ReloadResponse is the response body for a cache reload.
type ReloadResponse struct {
	Loaded    int `json:"loaded"`
	Scheduled int `json:"scheduled"`
}

// ListNodesResponse is the response body for listing node kinds.
type ListNodesResponse struct {
	Nodes []workflow.Meta `json:"nodes"`
	Total int             `json:"total"`
}

// HealthResponse is the response body for the health endpoint.
type HealthResponse struct {
	Status          string            `json:"status"`
	RunningBots     int               `json:"running_bots"`
	CachedWorkflows int               `json:"cached_workflows"`
	ScheduledJobs   int               `json:"scheduled_jobs"`
	Pipeline        *metrics.Snapshot `json:"pipeline,omitempty"`
}

// ErrorResponse is the response body for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// === Bot Handlers ===

// ListBots returns all bots matching optional filters.
// GET /api/bots?protocol=qq&enabled=true
func (h *Handler) ListBots(w http.ResponseWriter, r *http.Request) {
	filter := domain.BotFilter{}
	if proto := r.URL.Query().Get("protocol"); proto != "" {
		filter.Protocol = domain.Protocol(proto)
	}
	if v := r.URL.Query().Get("enabled"); v != "" {
		enabled := v == "true" || v == "1"
		filter.Enabled = &enabled
	}

	bots, err := h.bots.List(filter)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "list_failed", "Failed to list bots", err.Error())
		return
	}

	resp := ListBotsResponse{
		Bots:  make([]BotResponse, 0, len(bots)),
		Total: len(bots),
	}
	for _, b := range bots {
		resp.Bots = append(resp.Bots, h.botToResponse(b))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// BotStatus returns the stored record plus the live adapter status.
// GET /api/bots/{id}/status
func (h *Handler) BotStatus(w http.ResponseWriter, r *http.Request) {
	bot, ok := h.loadBot(w, r)
	if !ok {
		return
	}

	resp := BotStatusResponse{Bot: h.botToResponse(bot)}
	if st, live := h.adapters.StatusOf(bot.ID); live {
		resp.Status = &st
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// StartBot starts the bot's adapter and persists the running flag.
// POST /api/bots/{id}/start
func (h *Handler) StartBot(w http.ResponseWriter, r *http.Request) {
	bot, ok := h.loadBot(w, r)
	if !ok {
		return
	}
	if !bot.Enabled {
		h.writeError(w, http.StatusBadRequest, "bot_disabled", "Bot is disabled", "")
		return
	}

	if err := h.adapters.Start(r.Context(), bot.ID, string(bot.Protocol), bot.Config, h.dispatch); err != nil {
		h.writeError(w, http.StatusBadRequest, "start_failed", "Failed to start bot", err.Error())
		return
	}
	h.persistRunning(bot.ID, true)

	w.WriteHeader(http.StatusNoContent)
}

// StopBot stops the bot's adapter and persists the running flag.
// Stopping an already-stopped bot succeeds.
// POST /api/bots/{id}/stop
func (h *Handler) StopBot(w http.ResponseWriter, r *http.Request) {
	bot, ok := h.loadBot(w, r)
	if !ok {
		return
	}

	if err := h.adapters.Stop(bot.ID); err != nil {
		h.writeError(w, http.StatusInternalServerError, "stop_failed", "Failed to stop bot", err.Error())
		return
	}
	h.persistRunning(bot.ID, false)

	w.WriteHeader(http.StatusNoContent)
}

// RestartBot stops and starts the bot's adapter. The fresh adapter
// re-reads the stored config, so restart is how config edits take
// effect.
// POST /api/bots/{id}/restart
func (h *Handler) RestartBot(w http.ResponseWriter, r *http.Request) {
	bot, ok := h.loadBot(w, r)
	if !ok {
		return
	}
	if !bot.Enabled {
		h.writeError(w, http.StatusBadRequest, "bot_disabled", "Bot is disabled", "")
		return
	}

	if err := h.adapters.Stop(bot.ID); err != nil {
		log.ErrorErr(log.CatAPI, "stop before restart failed", err, "bot_id", bot.ID)
	}
	if err := h.adapters.Start(r.Context(), bot.ID, string(bot.Protocol), bot.Config, h.dispatch); err != nil {
		h.persistRunning(bot.ID, false)
		h.writeError(w, http.StatusBadRequest, "start_failed", "Failed to restart bot", err.Error())
		return
	}
	h.persistRunning(bot.ID, true)

	w.WriteHeader(http.StatusNoContent)
}

// RecallMessage withdraws a previously sent message through the bot's
// running adapter.
// POST /api/bots/{id}/recall
func (h *Handler) RecallMessage(w http.ResponseWriter, r *http.Request) {
	bot, ok := h.loadBot(w, r)
	if !ok {
		return
	}

	var req RecallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
		return
	}
	if req.MessageID == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "message_id is required", "")
		return
	}

	ad, running := h.adapters.Get(bot.ID)
	if !running {
		h.writeError(w, http.StatusBadRequest, "bot_not_running", "Bot adapter is not running", "")
		return
	}

	result, err := ad.CallAPI(r.Context(), "recall_message", map[string]any{"message_id": req.MessageID})
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "recall_failed", "Failed to recall message", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// === Workflow Handlers ===

// ListWorkflows returns all stored workflows with their cache state.
// GET /api/workflows?enabled=true
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	filter := domain.WorkflowFilter{}
	if v := r.URL.Query().Get("enabled"); v != "" {
		enabled := v == "true" || v == "1"
		filter.Enabled = &enabled
	}

	rows, err := h.workflows.List(filter)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "list_failed", "Failed to list workflows", err.Error())
		return
	}

	resp := ListWorkflowsResponse{
		Workflows: make([]WorkflowResponse, 0, len(rows)),
		Total:     len(rows),
	}
	for _, wf := range rows {
		item := WorkflowResponse{
			ID:        wf.ID,
			Name:      wf.Name,
			Enabled:   wf.Enabled,
			Priority:  wf.Priority,
			UpdatedAt: wf.UpdatedAt,
		}
		if cw, cached := h.cache.ByID(wf.ID); cached {
			item.TriggerType = cw.TriggerType
			item.Cached = true
		}
		resp.Workflows = append(resp.Workflows, item)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ReloadWorkflows rebuilds the workflow cache from the store. The
// reload hook re-syncs schedule entries as a side effect.
// POST /api/workflows/reload
func (h *Handler) ReloadWorkflows(w http.ResponseWriter, r *http.Request) {
	loaded, err := h.cache.Reload()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "reload_failed", "Failed to reload workflows", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, ReloadResponse{
		Loaded:    loaded,
		Scheduled: len(h.cache.Scheduled()),
	})
}

// WorkflowDebug returns the last recorded execution trace.
// GET /api/workflows/{id}/debug
func (h *Handler) WorkflowDebug(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_id", "Invalid workflow id", "")
		return
	}
	if h.debug == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "No debug trace recorded", "")
		return
	}

	rec, found, err := h.debug.Load(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "debug_load_failed", "Failed to load debug trace", err.Error())
		return
	}
	if !found {
		h.writeError(w, http.StatusNotFound, "not_found", "No debug trace recorded", "")
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// === Registry / Health Handlers ===

// ListNodes returns the descriptors of every registered node kind.
// GET /api/nodes
func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	metas := h.registry.Describe()
	h.writeJSON(w, http.StatusOK, ListNodesResponse{Nodes: metas, Total: len(metas)})
}

// Health returns the daemon health summary.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:          "ok",
		RunningBots:     len(h.adapters.Running()),
		CachedWorkflows: len(h.cache.All()),
	}
	if h.jobs != nil {
		resp.ScheduledJobs = len(h.jobs.Jobs())
	}
	if h.counters != nil {
		snap := h.counters.Snapshot()
		resp.Pipeline = &snap
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// StreamEvents streams structured log entries via SSE. A category
// query narrows the feed to one log category.
// GET /api/events?category=dispatch
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported", "")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	category := r.URL.Query().Get("category")
	entries := log.Subscribe(r.Context())

	// Send initial connection event
	_, _ = fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	// Heartbeat ticker to keep connection alive
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Comment frame, keeps proxies from closing the stream
			_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case entry, open := <-entries:
			if !open {
				return
			}
			if category != "" && entry.Category != category {
				continue
			}

			data, err := json.Marshal(entry)
			if err != nil {
				log.Error(log.CatAPI, "failed to encode log entry", "error", err)
				continue
			}

			_, _ = fmt.Fprintf(w, "event: log\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// === Helpers ===

// loadBot resolves the {id} path value to a bot record, writing the
// error response itself when the bot cannot be served.
func (h *Handler) loadBot(w http.ResponseWriter, r *http.Request) (*domain.Bot, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_id", "Invalid bot id", "")
		return nil, false
	}

	bot, err := h.bots.FindByID(id)
	if err != nil {
		var notFound *domain.BotNotFoundError
		if errors.As(err, &notFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Bot not found", "")
			return nil, false
		}
		h.writeError(w, http.StatusInternalServerError, "lookup_failed", "Failed to load bot", err.Error())
		return nil, false
	}
	return bot, true
}

// persistRunning records the bot's running flag so boot can restore it.
// A persistence failure never fails the lifecycle call itself.
func (h *Handler) persistRunning(botID int64, running bool) {
	if err := h.bots.SetRunning(botID, running); err != nil {
		log.ErrorErr(log.CatAPI, "failed to persist running flag", err, "bot_id", botID, "running", running)
	}
}

func (h *Handler) botToResponse(b *domain.Bot) BotResponse {
	return BotResponse{
		ID:        b.ID,
		Name:      b.Name,
		Protocol:  string(b.Protocol),
		OwnerID:   b.OwnerID,
		Enabled:   b.Enabled,
		Running:   h.adapters.IsRunning(b.ID),
		Config:    maskConfig(b.Config),
		CreatedAt: b.CreatedAt,
	}
}

// maskConfig copies a bot config with credential values replaced, so
// secrets never leave the process through list or status responses.
func maskConfig(config map[string]any) map[string]any {
	if config == nil {
		return nil
	}
	masked := make(map[string]any, len(config))
	for k, v := range config {
		if isSecretKey(k) {
			masked[k] = domain.SecretMask
			continue
		}
		masked[k] = v
	}
	return masked
}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "secret") || strings.Contains(k, "token") || strings.Contains(k, "password")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error(log.CatAPI, "failed to encode JSON response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, details string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
