package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrHistoryUnavailable is returned when no Redis client is configured
var ErrHistoryUnavailable = errors.New("log history unavailable")

const historyWriteTimeout = 2 * time.Second

// LogHistory keeps the most recent log lines of every bot in Redis
type LogHistory struct {
	client *redis.Client
	size   int64
}

// NewLogHistory creates a log history capped at size lines per bot.
// A nil client disables it.
func NewLogHistory(client *redis.Client, size int) *LogHistory {
	if size <= 0 {
		size = 500
	}
	return &LogHistory{client: client, size: int64(size)}
}

func historyKey(bot string) string {
	return "bot:logs:" + bot
}

// Push appends a line and trims the list to the newest entries
func (h *LogHistory) Push(bot, line string) {
	if h == nil || h.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()

	key := historyKey(bot)
	pipe := h.client.TxPipeline()
	pipe.RPush(ctx, key, line)
	pipe.LTrim(ctx, key, -h.size, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("Error saving log line for bot %s: %v", bot, err)
	}
}

// History returns up to limit of the newest lines, oldest first
func (h *LogHistory) History(ctx context.Context, bot string, limit int) ([]string, error) {
	if h == nil || h.client == nil {
		return nil, ErrHistoryUnavailable
	}
	if limit <= 0 || int64(limit) > h.size {
		limit = int(h.size)
	}
	return h.client.LRange(ctx, historyKey(bot), -int64(limit), -1).Result()
}
