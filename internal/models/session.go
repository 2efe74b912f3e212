package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is a revocable bearer credential issued by the identity provider.
// Its ID is the jti of the signed token.
type Session struct {
	ID        string    `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
