package api

import (
	"encoding/json"
	"net/http"

	"github.com/vikasavnish/signalrelay/internal/handlers"
)

// ClientCounter reports connected log stream consumers.
type ClientCounter interface {
	Clients() int
}

// HealthHandler responds to health check requests with registry counts
func HealthHandler(bots handlers.BotManager, streams ClientCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var running, paused, disconnected int
		for _, st := range bots.List("") {
			switch st.Status {
			case "running":
				running++
			case "paused":
				paused++
			default:
				disconnected++
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "ok",
			"version": "1.0.0",
			"bots": map[string]int{
				"running":      running,
				"paused":       paused,
				"disconnected": disconnected,
			},
			"logClients": streams.Clients(),
		})
	}
}
