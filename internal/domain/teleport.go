package domain

import (
	"context"
)

// TeleportKind discriminates how an in-flight teleport should complete on
// the destination server.
type TeleportKind int

const (
	TeleportTimed TeleportKind = iota
	TeleportInstant
	TeleportBack
)

// Teleport is the transient state of a user's in-flight cross-server
// teleport. At most one exists per user at a time.
type Teleport struct {
	Executor User         `json:"executor"`
	Target   Position     `json:"target"`
	Kind     TeleportKind `json:"kind"`
}

type TeleportRepository interface {
	GetCurrentTeleport(ctx context.Context, user User) (Teleport, error)
	// SetCurrentTeleport replaces the user's teleport state; a nil teleport
	// clears it.
	SetCurrentTeleport(ctx context.Context, user User, teleport *Teleport) error
	ClearCurrentTeleport(ctx context.Context, user User) error
}
