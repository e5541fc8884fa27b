package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/vikasavnish/signalrelay/internal/mailbox"
	"github.com/vikasavnish/signalrelay/internal/models"
	"github.com/vikasavnish/signalrelay/internal/supervisor"
	"github.com/vikasavnish/signalrelay/internal/venue"
)

// BotService defines the interface for bot persistence
type BotService interface {
	ListBots(ctx context.Context) ([]supervisor.BotConfig, error)
	CreateBot(ctx context.Context, cfg supervisor.BotConfig) error
	SetPaused(ctx context.Context, name string, paused bool) error
}

// botService implements the BotService interface
type botService struct {
	db *gorm.DB
}

// NewBotService creates a new bot service
func NewBotService(db *gorm.DB) BotService {
	return &botService{
		db: db,
	}
}

// ListBots returns every stored bot configuration
func (s *botService) ListBots(ctx context.Context) ([]supervisor.BotConfig, error) {
	var records []models.BotRecord
	if err := s.db.WithContext(ctx).Order("bot_name").Find(&records).Error; err != nil {
		return nil, err
	}
	cfgs := make([]supervisor.BotConfig, 0, len(records))
	for _, rec := range records {
		cfgs = append(cfgs, ConfigFromRecord(rec))
	}
	return cfgs, nil
}

// CreateBot stores a new bot configuration
func (s *botService) CreateBot(ctx context.Context, cfg supervisor.BotConfig) error {
	rec := RecordFromConfig(cfg)
	return s.db.WithContext(ctx).Create(&rec).Error
}

// SetPaused updates the persisted paused flag
func (s *botService) SetPaused(ctx context.Context, name string, paused bool) error {
	result := s.db.WithContext(ctx).Model(&models.BotRecord{}).
		Where("bot_name = ?", name).
		Update("paused", paused)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return supervisor.ErrNotFound
	}
	return nil
}

// ConfigFromRequest builds a bot configuration from a registration request.
// Only the credential fields of the requested venue are kept.
func ConfigFromRequest(owner string, req models.CreateBotRequest) supervisor.BotConfig {
	kind := venue.Kind(strings.ToLower(strings.TrimSpace(req.Exchange)))
	cfg := supervisor.BotConfig{
		Name:     strings.TrimSpace(req.BotName),
		Owner:    owner,
		Venue:    kind,
		Symbol:   strings.TrimSpace(req.Symbol),
		Quantity: req.Quantity,
		Mailbox: mailbox.Account{
			Address:  strings.TrimSpace(req.Email),
			Password: req.EmailPassword,
			Server:   strings.TrimSpace(req.IMAPServer),
		},
		SubjectFilter: strings.TrimSpace(req.SubjectFilter),
	}
	switch kind {
	case venue.MetaTrader5:
		cfg.Credentials = venue.Credentials{Login: req.MT5Login, Password: req.MT5Password, Server: req.MT5Server}
		cfg.MT5 = venue.MT5Options{Slippage: req.Slippage, Deviation: req.Deviation, MagicNumber: req.MagicNumber}
	case venue.OANDA:
		cfg.Credentials = venue.Credentials{APIKey: req.APIKey, AccountID: req.AccountID}
	case venue.KuCoin, venue.Bitget:
		cfg.Credentials = venue.Credentials{APIKey: req.APIKey, APISecret: req.APISecret, Passphrase: req.Passphrase}
	default:
		cfg.Credentials = venue.Credentials{APIKey: req.APIKey, APISecret: req.APISecret}
	}
	return cfg
}

// RecordFromConfig maps a bot configuration onto its table row
func RecordFromConfig(cfg supervisor.BotConfig) models.BotRecord {
	return models.BotRecord{
		BotName:       cfg.Name,
		Owner:         cfg.Owner,
		Exchange:      string(cfg.Venue),
		Symbol:        cfg.Symbol,
		Quantity:      cfg.Quantity,
		Email:         cfg.Mailbox.Address,
		EmailPassword: cfg.Mailbox.Password,
		IMAPServer:    cfg.Mailbox.Server,
		SubjectFilter: cfg.SubjectFilter,
		APIKey:        cfg.Credentials.APIKey,
		APISecret:     cfg.Credentials.APISecret,
		Passphrase:    cfg.Credentials.Passphrase,
		AccountID:     cfg.Credentials.AccountID,
		MT5Login:      cfg.Credentials.Login,
		MT5Password:   cfg.Credentials.Password,
		MT5Server:     cfg.Credentials.Server,
		Slippage:      cfg.MT5.Slippage,
		Deviation:     cfg.MT5.Deviation,
		MagicNumber:   cfg.MT5.MagicNumber,
		Paused:        cfg.Paused,
	}
}

// ConfigFromRecord is the inverse of RecordFromConfig
func ConfigFromRecord(rec models.BotRecord) supervisor.BotConfig {
	return supervisor.BotConfig{
		Name:     rec.BotName,
		Owner:    rec.Owner,
		Venue:    venue.Kind(rec.Exchange),
		Symbol:   rec.Symbol,
		Quantity: rec.Quantity,
		Mailbox: mailbox.Account{
			Address:  rec.Email,
			Password: rec.EmailPassword,
			Server:   rec.IMAPServer,
		},
		SubjectFilter: rec.SubjectFilter,
		Credentials: venue.Credentials{
			APIKey:     rec.APIKey,
			APISecret:  rec.APISecret,
			Passphrase: rec.Passphrase,
			AccountID:  rec.AccountID,
			Login:      rec.MT5Login,
			Password:   rec.MT5Password,
			Server:     rec.MT5Server,
		},
		MT5: venue.MT5Options{
			Slippage:    rec.Slippage,
			Deviation:   rec.Deviation,
			MagicNumber: rec.MagicNumber,
		},
		Paused: rec.Paused,
	}
}
