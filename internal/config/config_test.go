package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, time.Second, cfg.Mailbox.PollDelay)
	assert.Equal(t, 30*time.Second, cfg.Mailbox.KeepAliveInterval)
	assert.Equal(t, "INBOX", cfg.Mailbox.Folder)
	assert.Equal(t, 15*time.Second, cfg.Venues.HTTPTimeout)
	assert.Equal(t, 500, cfg.Redis.LogHistorySize)
	assert.Equal(t, 5*time.Second, cfg.Mailbox.ReconnectMin)
	assert.Equal(t, 5*time.Minute, cfg.Mailbox.ReconnectMax)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POLL_DELAY", "250ms")
	t.Setenv("KEEPALIVE_INTERVAL", "45")
	t.Setenv("IMAP_DIAL_TIMEOUT", "bogus")
	t.Setenv("LOG_HISTORY_SIZE", "-3")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("BINANCE_URL", "http://127.0.0.1:9000")

	cfg := Load()
	assert.Equal(t, 250*time.Millisecond, cfg.Mailbox.PollDelay)
	assert.Equal(t, 45*time.Second, cfg.Mailbox.KeepAliveInterval)
	assert.Equal(t, 30*time.Second, cfg.Mailbox.DialTimeout)
	assert.Equal(t, 500, cfg.Redis.LogHistorySize)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.Venues.BinanceURL)
}
