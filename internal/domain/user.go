package domain

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
)

// DefaultHomeSlots is the number of home slots granted to a user the first
// time they are written to storage.
const DefaultHomeSlots = 10

// User is a player identity on the cluster. Usernames are mutable; the UUID
// is the stable key.
type User struct {
	UUID     uuid.UUID `json:"uuid"`
	Username string    `json:"username"`
}

// SavedUser is a User along with their persisted preferences.
type SavedUser struct {
	User
	HomeSlots        int  `json:"home_slots"`
	IgnoringRequests bool `json:"ignoring_requests"`
}

func NewSavedUser(user User) SavedUser {
	return SavedUser{User: user, HomeSlots: DefaultHomeSlots}
}

// Action identifies a throttled activity that a per-user cooldown can gate.
type Action string

const (
	ActionRandomTeleport Action = "random_teleport"
	ActionHomeSlot       Action = "home_slot"
	ActionMakeHomePublic Action = "make_home_public"
	ActionBackCommand    Action = "back_command"
)

type UserRepository interface {
	// EnsureUser inserts the user if unknown, otherwise syncs their username.
	EnsureUser(ctx context.Context, user User) error
	GetUserByName(ctx context.Context, username string) (SavedUser, error)
	GetUserByUUID(ctx context.Context, userID uuid.UUID) (SavedUser, error)
	SaveUser(ctx context.Context, user SavedUser) error
	// DeleteUser removes the user along with their cooldowns, stored
	// positions, teleport state and homes.
	DeleteUser(ctx context.Context, userID uuid.UUID) error

	GetCooldown(ctx context.Context, action Action, user User) (time.Time, error)
	SetCooldown(ctx context.Context, action Action, user User, expiry time.Time) error
	ClearCooldown(ctx context.Context, action Action, user User) error

	GetLastPosition(ctx context.Context, user User) (Position, error)
	SetLastPosition(ctx context.Context, user User, position Position) error
	GetOfflinePosition(ctx context.Context, user User) (Position, error)
	SetOfflinePosition(ctx context.Context, user User, position Position) error
	GetRespawnPosition(ctx context.Context, user User) (Position, error)
	// SetRespawnPosition stores the respawn point, or clears it when
	// position is nil.
	SetRespawnPosition(ctx context.Context, user User, position *Position) error
}
