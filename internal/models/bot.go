package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BotRecord is the persisted configuration of a bot
type BotRecord struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	BotName       string          `gorm:"uniqueIndex;not null" json:"botName"`
	Owner         string          `gorm:"index" json:"owner"`
	Exchange      string          `gorm:"not null" json:"exchange"`
	Symbol        string          `gorm:"not null" json:"symbol"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,8)" json:"quantity"`
	Email         string          `json:"email"`
	EmailPassword string          `json:"-"`
	IMAPServer    string          `gorm:"column:imap_server" json:"imapServer"`
	SubjectFilter string          `json:"subjectFilter"`

	APIKey     string `json:"-"`
	APISecret  string `json:"-"`
	Passphrase string `json:"-"`
	AccountID  string `json:"accountId"`

	MT5Login    string `gorm:"column:mt5_login" json:"mt5Login"`
	MT5Password string `gorm:"column:mt5_password" json:"-"`
	MT5Server   string `gorm:"column:mt5_server" json:"mt5Server"`
	Slippage    int    `json:"slippage"`
	Deviation   int    `json:"deviation"`
	MagicNumber int    `json:"magicNumber"`

	Paused    bool      `gorm:"default:false" json:"paused"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName keeps the table name short
func (BotRecord) TableName() string {
	return "bots"
}

// CreateBotRequest is the request body for registering a bot
type CreateBotRequest struct {
	BotName       string          `json:"botName"`
	Exchange      string          `json:"exchange"`
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	Email         string          `json:"email"`
	EmailPassword string          `json:"emailPassword"`
	IMAPServer    string          `json:"imapServer"`
	SubjectFilter string          `json:"subjectFilter"`

	APIKey     string `json:"apiKey"`
	APISecret  string `json:"apiSecret"`
	Passphrase string `json:"passphrase"`
	AccountID  string `json:"accountId"`

	MT5Login    string `json:"mt5Login"`
	MT5Password string `json:"mt5Password"`
	MT5Server   string `json:"mt5Server"`
	Slippage    int    `json:"slippage"`
	Deviation   int    `json:"deviation"`
	MagicNumber int    `json:"magicNumber"`
}
