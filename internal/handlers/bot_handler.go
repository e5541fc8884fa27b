package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vikasavnish/signalrelay/internal/models"
	"github.com/vikasavnish/signalrelay/internal/services"
	"github.com/vikasavnish/signalrelay/internal/supervisor"
	"github.com/vikasavnish/signalrelay/internal/utils"
)

// BotManager is the part of the supervisor the HTTP layer drives
type BotManager interface {
	Register(ctx context.Context, cfg supervisor.BotConfig) (supervisor.Status, error)
	Toggle(ctx context.Context, name string) (bool, error)
	List(owner string) []supervisor.Status
	Get(name string) (supervisor.Status, error)
}

// HistoryReader returns stored log lines of a bot
type HistoryReader interface {
	History(ctx context.Context, bot string, limit int) ([]string, error)
}

// BotHandler handles bot provisioning requests
type BotHandler struct {
	bots    BotManager
	history HistoryReader
}

// NewBotHandler creates a new bot handler
func NewBotHandler(bots BotManager, history HistoryReader) *BotHandler {
	return &BotHandler{
		bots:    bots,
		history: history,
	}
}

// RegisterRoutes registers bot routes
func (h *BotHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bots", h.ListBots).Methods("GET")
	router.HandleFunc("/bots", h.CreateBot).Methods("POST")
	router.HandleFunc("/bots/{name}", h.GetBot).Methods("GET")
	router.HandleFunc("/bots/{name}/toggle", h.ToggleBot).Methods("POST")
	router.HandleFunc("/bots/{name}/logs/history", h.GetLogHistory).Methods("GET")
}

// CreateBot validates, probes and registers a new bot
func (h *BotHandler) CreateBot(w http.ResponseWriter, r *http.Request) {
	username, err := utils.GetUsernameFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.CreateBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	status, err := h.bots.Register(r.Context(), services.ConfigFromRequest(username, req))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(status)
}

// ListBots returns the caller's bots
func (h *BotHandler) ListBots(w http.ResponseWriter, r *http.Request) {
	username, err := utils.GetUsernameFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	bots := h.bots.List(username)
	if bots == nil {
		bots = []supervisor.Status{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"bots": bots,
	})
}

// GetBot returns one bot
func (h *BotHandler) GetBot(w http.ResponseWriter, r *http.Request) {
	status, ok := h.owned(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// ToggleBot pauses a running bot or resumes a paused one
func (h *BotHandler) ToggleBot(w http.ResponseWriter, r *http.Request) {
	status, ok := h.owned(w, r)
	if !ok {
		return
	}

	paused, err := h.bots.Toggle(r.Context(), status.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"botName": status.Name,
		"paused":  paused,
	})
}

// GetLogHistory returns the stored log lines of a bot, oldest first
func (h *BotHandler) GetLogHistory(w http.ResponseWriter, r *http.Request) {
	status, ok := h.owned(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	lines, err := h.history.History(r.Context(), status.Name, limit)
	if errors.Is(err, services.ErrHistoryUnavailable) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"botName": status.Name,
		"logs":    lines,
	})
}

// owned resolves the {name} route variable to a bot the caller owns
func (h *BotHandler) owned(w http.ResponseWriter, r *http.Request) (supervisor.Status, bool) {
	username, err := utils.GetUsernameFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return supervisor.Status{}, false
	}

	status, err := h.bots.Get(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return supervisor.Status{}, false
	}
	if status.Owner != "" && status.Owner != username {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return supervisor.Status{}, false
	}
	return status, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, supervisor.ErrValidation),
		errors.Is(err, supervisor.ErrDuplicate),
		errors.Is(err, supervisor.ErrProbeFailed):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, supervisor.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		log.Printf("Internal error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
