package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vikasavnish/signalrelay/internal/config"
	"github.com/vikasavnish/signalrelay/internal/handlers"
	"github.com/vikasavnish/signalrelay/internal/middleware"
	"github.com/vikasavnish/signalrelay/internal/websocket"
)

// SetupRouter configures all routes and returns the router
func SetupRouter(
	bots handlers.BotManager,
	history handlers.HistoryReader,
	streamer *websocket.Streamer,
	cfg *config.Config,
) *mux.Router {
	// Create a new router
	router := mux.NewRouter()

	// Add health check endpoint
	router.HandleFunc("/api/health", HealthHandler(bots, streamer)).Methods("GET")

	// Prometheus scrape endpoint
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	auth := middleware.AuthMiddleware(cfg.JWT.SecretKey)

	// Log streaming, authenticated by header or ?token=
	wsRouter := router.PathPrefix("/ws").Subrouter()
	wsRouter.Use(auth)
	wsRouter.HandleFunc("/logs/{name}", streamer.HandleLogs)

	// Create the API router for authenticated endpoints
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(auth)

	// Create handlers
	botHandler := handlers.NewBotHandler(bots, history)

	// Register routes
	botHandler.RegisterRoutes(apiRouter)
	apiRouter.HandleFunc("/routes", PrintRoutesHandler(router)).Methods("GET")

	return router
}
