// Package gateway is the management plane: a small authenticated HTTP API
// for pushing messages, activating dialogs and maintaining the blacklist,
// plus health and status probes.
package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/camibot/camibot/pkg/bus"
	"github.com/camibot/camibot/pkg/journal"
	"github.com/camibot/camibot/pkg/logger"
	"github.com/camibot/camibot/pkg/security"
)

// FlowTrigger activates a named dialog for a chat.
type FlowTrigger interface {
	TriggerFlow(channel, chatID, name string) bool
}

type Server struct {
	apiKey    string
	bus       *bus.MessageBus
	trigger   FlowTrigger
	blacklist *security.Blacklist
	journal   *journal.Store
	channels  []string
	startedAt time.Time
}

func NewServer(apiKey string, msgBus *bus.MessageBus, trigger FlowTrigger, blacklist *security.Blacklist, jnl *journal.Store, channels []string) *Server {
	return &Server{
		apiKey:    apiKey,
		bus:       msgBus,
		trigger:   trigger,
		blacklist: blacklist,
		journal:   jnl,
		channels:  channels,
		startedAt: time.Now(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/healthz"))

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/messages", s.handleSendMessage)
		r.Post("/flows/dispatch", s.handleDispatchFlow)
		r.Post("/blacklist", s.handleBlacklist)
		r.Get("/status", s.handleStatus)
	})

	return r
}

// authMiddleware requires a Bearer token matching the configured API key.
// An empty configured key locks the API rather than opening it.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if s.apiKey == "" || token != s.apiKey {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type sendMessageRequest struct {
	Channel string `json:"channel"`
	Number  string `json:"number"`
	Message string `json:"message"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Number == "" || req.Message == "" {
		http.Error(w, "number and message are required", http.StatusBadRequest)
		return
	}
	if req.Channel == "" {
		req.Channel = "whatsapp"
	}

	s.bus.PublishOutbound(bus.OutboundMessage{
		Channel: req.Channel,
		ChatID:  req.Number,
		Content: req.Message,
	})

	logger.InfoCF("gateway", "Message pushed", map[string]interface{}{
		"channel": req.Channel,
		"number":  req.Number,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type dispatchFlowRequest struct {
	Channel string `json:"channel"`
	Number  string `json:"number"`
	Flow    string `json:"flow"`
}

func (s *Server) handleDispatchFlow(w http.ResponseWriter, r *http.Request) {
	var req dispatchFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Number == "" || req.Flow == "" {
		http.Error(w, "number and flow are required", http.StatusBadRequest)
		return
	}
	if req.Channel == "" {
		req.Channel = "whatsapp"
	}

	if !s.trigger.TriggerFlow(req.Channel, req.Number, req.Flow) {
		http.Error(w, fmt.Sprintf("unknown flow %q", req.Flow), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "trigger", "flow": req.Flow})
}

type blacklistRequest struct {
	Number string `json:"number"`
	Intent string `json:"intent"`
}

func (s *Server) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	var req blacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Number == "" {
		http.Error(w, "number is required", http.StatusBadRequest)
		return
	}

	switch req.Intent {
	case "add":
		s.blacklist.Add(req.Number)
	case "remove":
		s.blacklist.Remove(req.Number)
	default:
		http.Error(w, `intent must be "add" or "remove"`, http.StatusBadRequest)
		return
	}

	logger.InfoCF("gateway", "Blacklist updated", map[string]interface{}{
		"number": req.Number,
		"intent": req.Intent,
	})
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"number": req.Number,
		"intent": req.Intent,
	})
}

type statusResponse struct {
	Status     string            `json:"status"`
	Uptime     string            `json:"uptime"`
	Goroutines int               `json:"goroutines"`
	Channels   []string          `json:"channels"`
	Orders     journal.Aggregate `json:"orders"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:     "ok",
		Uptime:     time.Since(s.startedAt).String(),
		Goroutines: runtime.NumGoroutine(),
		Channels:   s.channels,
	}
	if s.journal != nil {
		resp.Orders = journal.AggregateRecords(s.journal.Query(journal.Filter{}))
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ErrorCF("gateway", "Failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
