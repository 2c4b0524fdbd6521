package domain

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Position is a point in game space. It is an immutable value owned by
// exactly one parent record (a home, warp, stored user position or teleport
// target) and is never shared between records.
type Position struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Yaw        float32 `json:"yaw"`
	Pitch      float32 `json:"pitch"`
	WorldName  string  `json:"world_name"`
	ServerName string  `json:"server_name"`
}

// PositionMeta is the descriptive metadata attached to a SavedPosition.
type PositionMeta struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedOn   time.Time `json:"created_on"`
}

// SavedPosition is a named, described Position. Base of Home and Warp.
type SavedPosition struct {
	Position
	Meta PositionMeta `json:"meta"`
	UUID uuid.UUID    `json:"uuid"`
}

// Home is a saved position owned by a user, optionally shared publicly.
// The (owner, case-folded name) pair is unique.
type Home struct {
	SavedPosition
	Owner  User `json:"owner"`
	Public bool `json:"public"`
}

// Warp is a globally shared saved position, unique by case-folded name.
type Warp struct {
	SavedPosition
}

type HomeRepository interface {
	GetHomes(ctx context.Context, user User) ([]Home, error)
	GetPublicHomes(ctx context.Context) ([]Home, error)
	// GetLocalPublicHomes returns the public homes set on one server.
	GetLocalPublicHomes(ctx context.Context, serverName string) ([]Home, error)
	// GetPublicHomesByName uses the configured case sensitivity policy,
	// GetPublicHomesByNameWithCase takes it explicitly.
	GetPublicHomesByName(ctx context.Context, name string) ([]Home, error)
	GetPublicHomesByNameWithCase(ctx context.Context, name string, caseInsensitive bool) ([]Home, error)
	GetHome(ctx context.Context, user User, name string) (Home, error)
	GetHomeWithCase(ctx context.Context, user User, name string, caseInsensitive bool) (Home, error)
	GetHomeByUUID(ctx context.Context, homeID uuid.UUID) (Home, error)
	// SaveHome inserts the home, or updates it in place when the owner
	// already has a home of that name.
	SaveHome(ctx context.Context, home *Home) error
	DeleteHome(ctx context.Context, homeID uuid.UUID) error
	DeleteHomes(ctx context.Context, user User) (int64, error)
	DeleteWorldHomes(ctx context.Context, worldName string, serverName string) (int64, error)
}

type WarpRepository interface {
	GetWarps(ctx context.Context) ([]Warp, error)
	// GetLocalWarps returns the warps set on one server.
	GetLocalWarps(ctx context.Context, serverName string) ([]Warp, error)
	GetWarp(ctx context.Context, name string) (Warp, error)
	GetWarpWithCase(ctx context.Context, name string, caseInsensitive bool) (Warp, error)
	GetWarpByUUID(ctx context.Context, warpID uuid.UUID) (Warp, error)
	SaveWarp(ctx context.Context, warp *Warp) error
	DeleteWarp(ctx context.Context, warpID uuid.UUID) error
	DeleteWarps(ctx context.Context) (int64, error)
	DeleteWorldWarps(ctx context.Context, worldName string, serverName string) (int64, error)
}
