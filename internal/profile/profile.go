// Package profile is the boundary to the relational user store. The
// authentication core consumes it through the [Store] interface; the schema
// and CRUD beyond these lookups belong to other services.
package profile

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate is returned when creation collides with an existing identifier.
	ErrDuplicate = errors.New("user already exists")
)

// Status is the account lifecycle state.
type Status uint8

const (
	StatusActive Status = iota
	StatusPending
	StatusSuspended
	StatusDeleted
)

// User is the stored profile as seen by the authentication core. Role and
// Verified together determine the effective token role; they are read fresh
// at every issuance and never trusted from client input.
type User struct {
	ID               int64
	Identifier       string
	Email            string
	CountryCode      string
	PhoneNumber      string
	Name             string
	PasswordHash     string
	Role             string
	Status           Status
	Verified         bool
	TwoFactorEnabled bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CreateInput is the payload for new profile rows.
type CreateInput struct {
	Identifier   string
	Email        string
	CountryCode  string
	PhoneNumber  string
	Name         string
	PasswordHash string
	Status       Status
}

// Store is the external profile collaborator.
type Store interface {
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, input CreateInput) (*User, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	FindOrCreateExternal(ctx context.Context, provider, subject, email, name string) (*User, error)
}
