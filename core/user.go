package core

import (
	"context"
	"time"
)

type (
	User struct {
		ID           string    `json:"id"`
		Email        string    `json:"email"`
		Username     string    `json:"username"`
		PasswordHash string    `json:"-"`
		CreatedAt    time.Time `json:"createdAt"`
		UpdatedAt    time.Time `json:"updatedAt"`
	}

	// UserStore defines the persistence layer for user accounts.
	UserStore interface {
		// GetUser returns a user by id. Returns ErrNotFound when absent.
		GetUser(ctx context.Context, id string) (*User, error)

		// GetUserByEmail returns the user registered under an email address.
		GetUserByEmail(ctx context.Context, email string) (*User, error)

		// CreateUser stores a new user and assigns its id and timestamps.
		CreateUser(ctx context.Context, user *User) (*User, error)
	}
)
