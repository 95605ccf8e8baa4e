package model

import "time"

// User is an account on the platform: homeowner, contractor or admin.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`

	Version int64 `json:"-"`
}
