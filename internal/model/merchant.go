package model

import "time"

type Merchant struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	ExternalID   string    `db:"external_id"` // id used in webhook payloads
	APIKey       string    `db:"api_key"`
	Status       string    `db:"status"`         // active|suspended
	RateLimitRPS *int      `db:"rate_limit_rps"` // nullable
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
