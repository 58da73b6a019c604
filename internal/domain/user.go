// Package domain contains core domain types for the marketplace bot.
package domain

import (
	"time"
)

// Role is the marketplace side a user registered on.
type Role string

const (
	RoleNone     Role = ""
	RoleExecutor Role = "executor"
	RoleClient   Role = "client"
)

// User represents a chat participant known to the bot.
type User struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasRole returns true if the user completed a registration.
func (u *User) HasRole() bool {
	return u.Role != RoleNone
}
