// models/account.go
package models

import "time"

// Account is a local snapshot of the account service's player data.
// Populated by the account sync worker; the only field this service ever
// writes is TokenCount, and only during game settlement.
type Account struct {
	Nickname   string    `json:"nickname" gorm:"primaryKey;type:varchar(64)"`
	ExternalID string    `json:"external_id" gorm:"uniqueIndex;not null"` // id in the upstream account service
	TokenCount int       `json:"token_count" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
