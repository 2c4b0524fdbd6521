// Package tests provides shared fixtures for repository tests. Tests run
// against an in-memory sqlite backend so they need no external services.
package tests

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/homeward-mc/homeward/internal/database"
	"github.com/homeward-mc/homeward/internal/domain"
)

type Fixture struct {
	Database database.Database
	Close    func()
}

func NewFixture() *Fixture {
	testCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	slog.SetDefault(slog.New(slog.DiscardHandler))

	databaseConn, errStore := database.New(database.Config{
		Type: database.SQLite,
		Path: ":memory:",
	})
	if errStore != nil {
		panic(errStore)
	}

	if errConnect := databaseConn.Connect(testCtx); errConnect != nil {
		panic(errConnect)
	}

	return &Fixture{
		Database: databaseConn,
		Close: func() {
			if errClose := databaseConn.Close(); errClose != nil {
				panic(fmt.Sprintf("Failed to close test database: %v", errClose))
			}
		},
	}
}

// NewUser returns an unsaved user with a fresh random identity.
func NewUser() domain.User {
	userID := uuid.Must(uuid.NewV4())

	return domain.User{
		UUID:     userID,
		Username: "Player_" + userID.String()[:8],
	}
}

// NewPosition returns a position on the given server with distinct
// coordinate values so scan mismatches show up in assertions.
func NewPosition(serverName string) domain.Position {
	return domain.Position{
		X:          128.5,
		Y:          64,
		Z:          -256.25,
		Yaw:        90,
		Pitch:      -12.5,
		WorldName:  "world",
		ServerName: serverName,
	}
}

// NewHome returns an unsaved private home owned by the given user.
func NewHome(owner domain.User, name string, serverName string) domain.Home {
	return domain.Home{
		SavedPosition: domain.SavedPosition{
			Position: NewPosition(serverName),
			Meta: domain.PositionMeta{
				Name:        name,
				Description: "",
				CreatedOn:   time.Now(),
			},
		},
		Owner: owner,
	}
}

// NewWarp returns an unsaved warp with the given name.
func NewWarp(name string, serverName string) domain.Warp {
	return domain.Warp{
		SavedPosition: domain.SavedPosition{
			Position: NewPosition(serverName),
			Meta: domain.PositionMeta{
				Name:        name,
				Description: "",
				CreatedOn:   time.Now(),
			},
		},
	}
}
