package models

import (
	"github.com/dgrijalva/jwt-go"
)

// Message represents a WebSocket message
type Message struct {
	Type    string      `json:"type"`
	Content interface{} `json:"content"`
}

// Claims for JWT authentication. Tokens are issued elsewhere; this service
// only verifies them.
type Claims struct {
	Username string `json:"username"`
	jwt.StandardClaims
}
