package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vikasavnish/signalrelay/internal/models"
	"github.com/vikasavnish/signalrelay/internal/supervisor"
	"github.com/vikasavnish/signalrelay/internal/venue"
)

func TestBotService(t *testing.T) {
	// Setup in-memory database
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	// Migrate schema
	if err := db.AutoMigrate(&models.BotRecord{}); err != nil {
		t.Fatalf("Failed to migrate schema: %v", err)
	}

	service := NewBotService(db)
	ctx := context.Background()

	cfg := ConfigFromRequest("alice", models.CreateBotRequest{
		BotName:       " kc-1 ",
		Exchange:      "KuCoin",
		Symbol:        "BTC-USDT",
		Quantity:      decimal.RequireFromString("0.25"),
		Email:         "signals@example.com",
		EmailPassword: "pw",
		IMAPServer:    "imap.example.com",
		APIKey:        "key",
		APISecret:     "secret",
		Passphrase:    "phrase",
		MT5Login:      "ignored",
	})
	if cfg.Name != "kc-1" || cfg.Venue != venue.KuCoin {
		t.Fatalf("Unexpected config: %+v", cfg)
	}
	if cfg.Credentials.Login != "" {
		t.Errorf("Expected MT5 login to be dropped for kucoin, got %q", cfg.Credentials.Login)
	}

	// Test CreateBot
	if err := service.CreateBot(ctx, cfg); err != nil {
		t.Fatalf("Failed to create bot: %v", err)
	}

	// Duplicate names are rejected by the unique index
	if err := service.CreateBot(ctx, cfg); err == nil {
		t.Errorf("Expected error creating duplicate bot, got nil")
	}

	// Test ListBots
	bots, err := service.ListBots(ctx)
	if err != nil {
		t.Fatalf("Failed to list bots: %v", err)
	}
	if len(bots) != 1 {
		t.Fatalf("Expected 1 bot, got %d", len(bots))
	}
	got := bots[0]
	if !got.Quantity.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("Expected quantity 0.25, got %s", got.Quantity)
	}
	if got.Credentials.Passphrase != "phrase" || got.Mailbox.Server != "imap.example.com" {
		t.Errorf("Round trip lost fields: %+v", got)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Stored config no longer validates: %v", err)
	}

	// Test SetPaused
	if err := service.SetPaused(ctx, "kc-1", true); err != nil {
		t.Fatalf("Failed to pause bot: %v", err)
	}
	bots, err = service.ListBots(ctx)
	if err != nil {
		t.Fatalf("Failed to list bots: %v", err)
	}
	if len(bots) != 1 || !bots[0].Paused {
		t.Errorf("Expected stored bot to be paused")
	}

	if err := service.SetPaused(ctx, "missing", true); !errors.Is(err, supervisor.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestConfigFromRequestMT5(t *testing.T) {
	cfg := ConfigFromRequest("bob", models.CreateBotRequest{
		BotName:     "mt",
		Exchange:    "metatrader5",
		Symbol:      "EURUSD",
		Quantity:    decimal.NewFromFloat(0.1),
		APIKey:      "ignored",
		MT5Login:    "123",
		MT5Password: "pw",
		MT5Server:   "Demo",
		Slippage:    3,
		Deviation:   10,
		MagicNumber: 42,
	})
	if cfg.Credentials.APIKey != "" {
		t.Errorf("Expected API key to be dropped for metatrader5")
	}
	if cfg.Credentials.Login != "123" || cfg.MT5.MagicNumber != 42 {
		t.Errorf("Unexpected MT5 config: %+v", cfg)
	}
}

func TestLogHistoryWithoutRedis(t *testing.T) {
	h := NewLogHistory(nil, 0)
	h.Push("bot", "line")
	if _, err := h.History(context.Background(), "bot", 10); !errors.Is(err, ErrHistoryUnavailable) {
		t.Errorf("Expected ErrHistoryUnavailable, got %v", err)
	}
}
