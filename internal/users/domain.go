package users

import (
	"time"

	"github.com/odyssey-erp/payables/internal/shared"
)

// Account statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// User represents a user account for management.
type User struct {
	ID           int64       `json:"user_id"`
	Username     string      `json:"username"`
	PasswordHash string      `json:"-"`
	FullName     string      `json:"full_name"`
	Email        string      `json:"email"`
	Role         shared.Role `json:"role"`
	Department   string      `json:"department"`
	Status       string      `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Actor converts the account into a request actor.
func (u User) Actor() shared.Actor {
	return shared.Actor{UserID: u.ID, Username: u.Username, FullName: u.FullName, Role: u.Role}
}

// CreateUserRequest carries the fields for a new account.
type CreateUserRequest struct {
	Username   string      `json:"username" validate:"required,max=64"`
	Password   string      `json:"password" validate:"required,min=6"`
	FullName   string      `json:"full_name" validate:"max=200"`
	Email      string      `json:"email" validate:"omitempty,email"`
	Role       shared.Role `json:"role" validate:"required"`
	Department string      `json:"department" validate:"max=100"`
}

// UpdateUserRequest changes an account. An empty Password keeps the current one.
type UpdateUserRequest struct {
	FullName   string      `json:"full_name" validate:"max=200"`
	Email      string      `json:"email" validate:"omitempty,email"`
	Role       shared.Role `json:"role" validate:"required"`
	Department string      `json:"department" validate:"max=100"`
	Status     string      `json:"status" validate:"required,oneof=active inactive"`
	Password   string      `json:"password" validate:"omitempty,min=6"`
}
