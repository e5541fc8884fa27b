package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/vikasavnish/signalrelay/internal/api"
	"github.com/vikasavnish/signalrelay/internal/config"
	"github.com/vikasavnish/signalrelay/internal/db"
	"github.com/vikasavnish/signalrelay/internal/logstream"
	"github.com/vikasavnish/signalrelay/internal/mailbox"
	"github.com/vikasavnish/signalrelay/internal/services"
	"github.com/vikasavnish/signalrelay/internal/supervisor"
	"github.com/vikasavnish/signalrelay/internal/tasks"
	"github.com/vikasavnish/signalrelay/internal/venue"
	"github.com/vikasavnish/signalrelay/internal/websocket"
)

func main() {
	printRoutes := flag.Bool("routes", false, "print the route table and exit")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	if *printRoutes {
		sup := supervisor.New(supervisor.Options{})
		api.PrintRoutes(api.SetupRouter(sup, services.NewLogHistory(nil, 0), websocket.NewStreamer(sup), cfg))
		return
	}

	// Initialize database connection
	database, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Initialize Redis client
	redisClient, err := db.ConnectRedis(cfg.Redis)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis, log history disabled: %v", err)
	}
	history := services.NewLogHistory(redisClient, cfg.Redis.LogHistorySize)

	// Initialize the bot supervisor
	sup := supervisor.New(supervisor.Options{
		Dialer: mailbox.IMAPDialer{Timeout: cfg.Mailbox.DialTimeout},
		Venues: venueOptions(cfg.Venues),
		Store:  services.NewBotService(database),
		Logs:   logstream.NewRegistry(history),
		Folder: cfg.Mailbox.Folder,
		Backoff: mailbox.Backoff{
			Min:    cfg.Mailbox.ReconnectMin,
			Max:    cfg.Mailbox.ReconnectMax,
			Factor: 2,
			Jitter: 0.2,
		},
	})

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 2*time.Minute)
	loaded, err := sup.LoadFromStore(loadCtx)
	cancelLoad()
	if err != nil {
		log.Printf("Warning: Failed to load bots: %v", err)
	}
	log.Printf("Loaded %d bots", loaded)

	// Initialize scheduled tasks
	taskManager := tasks.NewManager(sup, cfg.Mailbox)
	taskManager.StartScheduledTasks()

	// Initialize router
	streamer := websocket.NewStreamer(sup)
	router := api.SetupRouter(sup, history, streamer, cfg)

	// Set up CORS
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: corsMiddleware.Handler(router),
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Println("Shutting down")

	taskManager.StopAllTasks()
	streamer.CloseAll()
	sup.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}
}

func venueOptions(cfg config.VenueConfig) venue.Options {
	urls := map[venue.Kind]string{}
	for kind, url := range map[venue.Kind]string{
		venue.Binance:     cfg.BinanceURL,
		venue.Bybit:       cfg.BybitURL,
		venue.KuCoin:      cfg.KuCoinURL,
		venue.Bitget:      cfg.BitgetURL,
		venue.OANDA:       cfg.OANDAURL,
		venue.MetaTrader5: cfg.MT5BridgeURL,
	} {
		if url != "" {
			urls[kind] = url
		}
	}
	return venue.Options{
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		BaseURLs:   urls,
	}
}
