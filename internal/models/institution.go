package models

import "time"

// Institution represents an issuing institution
type Institution struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Email     string    `json:"email"`
	Website   string    `json:"website,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
