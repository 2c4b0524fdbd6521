package user_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/homeward-mc/homeward/internal/database"
	"github.com/homeward-mc/homeward/internal/domain"
	"github.com/homeward-mc/homeward/internal/home"
	"github.com/homeward-mc/homeward/internal/teleport"
	"github.com/homeward-mc/homeward/internal/tests"
	"github.com/homeward-mc/homeward/internal/user"
)

func TestUserLifecycle(t *testing.T) {
	fixture := tests.NewFixture()
	defer fixture.Close()

	repo := user.NewRepository(fixture.Database)
	player := tests.NewUser()

	_, errMissing := repo.GetUserByUUID(t.Context(), player.UUID)
	require.ErrorIs(t, errMissing, database.ErrNoResult)

	require.NoError(t, repo.EnsureUser(t.Context(), player))

	saved, errSaved := repo.GetUserByUUID(t.Context(), player.UUID)
	require.NoError(t, errSaved)
	require.Equal(t, player, saved.User)
	require.Equal(t, domain.DefaultHomeSlots, saved.HomeSlots)
	require.False(t, saved.IgnoringRequests)

	// A second join with a changed username syncs the name, nothing else.
	renamed := player
	renamed.Username = "Renamed_" + player.Username
	require.NoError(t, repo.EnsureUser(t.Context(), renamed))

	synced, errSynced := repo.GetUserByUUID(t.Context(), player.UUID)
	require.NoError(t, errSynced)
	require.Equal(t, renamed.Username, synced.Username)
	require.Equal(t, domain.DefaultHomeSlots, synced.HomeSlots)

	synced.HomeSlots = 25
	synced.IgnoringRequests = true
	require.NoError(t, repo.SaveUser(t.Context(), synced))

	updated, errUpdated := repo.GetUserByUUID(t.Context(), player.UUID)
	require.NoError(t, errUpdated)
	require.Equal(t, 25, updated.HomeSlots)
	require.True(t, updated.IgnoringRequests)

	byName, errByName := repo.GetUserByName(t.Context(), renamed.Username)
	require.NoError(t, errByName)
	require.Equal(t, player.UUID, byName.UUID)

	// Name lookups are case-insensitive regardless of the name policy.
	byFoldedName, errFolded := repo.GetUserByName(t.Context(), "RENAMED_"+player.Username)
	require.NoError(t, errFolded)
	require.Equal(t, player.UUID, byFoldedName.UUID)
}

func TestSaveUserUnknown(t *testing.T) {
	fixture := tests.NewFixture()
	defer fixture.Close()

	repo := user.NewRepository(fixture.Database)

	errSave := repo.SaveUser(t.Context(), domain.NewSavedUser(tests.NewUser()))
	require.ErrorIs(t, errSave, database.ErrNoResult)
}

func TestCooldowns(t *testing.T) {
	fixture := tests.NewFixture()
	defer fixture.Close()

	repo := user.NewRepository(fixture.Database)
	player := tests.NewUser()
	require.NoError(t, repo.EnsureUser(t.Context(), player))

	_, errMissing := repo.GetCooldown(t.Context(), domain.ActionRandomTeleport, player)
	require.ErrorIs(t, errMissing, database.ErrNoResult)

	expiry := time.Now().Add(time.Minute)
	require.NoError(t, repo.SetCooldown(t.Context(), domain.ActionRandomTeleport, player, expiry))

	stored, errStored := repo.GetCooldown(t.Context(), domain.ActionRandomTeleport, player)
	require.NoError(t, errStored)
	require.Equal(t, expiry.UnixMilli(), stored.UnixMilli())

	// Actions are independent.
	_, errOther := repo.GetCooldown(t.Context(), domain.ActionBackCommand, player)
	require.ErrorIs(t, errOther, database.ErrNoResult)

	// Setting again replaces the expiry.
	later := expiry.Add(time.Hour)
	require.NoError(t, repo.SetCooldown(t.Context(), domain.ActionRandomTeleport, player, later))

	replaced, errReplaced := repo.GetCooldown(t.Context(), domain.ActionRandomTeleport, player)
	require.NoError(t, errReplaced)
	require.Equal(t, later.UnixMilli(), replaced.UnixMilli())

	require.NoError(t, repo.ClearCooldown(t.Context(), domain.ActionRandomTeleport, player))

	_, errCleared := repo.GetCooldown(t.Context(), domain.ActionRandomTeleport, player)
	require.ErrorIs(t, errCleared, database.ErrNoResult)
}

func TestStoredPositions(t *testing.T) {
	fixture := tests.NewFixture()
	defer fixture.Close()

	repo := user.NewRepository(fixture.Database)
	player := tests.NewUser()
	require.NoError(t, repo.EnsureUser(t.Context(), player))

	_, errMissing := repo.GetLastPosition(t.Context(), player)
	require.ErrorIs(t, errMissing, database.ErrNoResult)

	last := tests.NewPosition("alpha")
	require.NoError(t, repo.SetLastPosition(t.Context(), player, last))

	storedLast, errLast := repo.GetLastPosition(t.Context(), player)
	require.NoError(t, errLast)
	require.Equal(t, last, storedLast)

	// Each slot is independent.
	_, errOffline := repo.GetOfflinePosition(t.Context(), player)
	require.ErrorIs(t, errOffline, database.ErrNoResult)

	offline := tests.NewPosition("beta")
	require.NoError(t, repo.SetOfflinePosition(t.Context(), player, offline))

	storedOffline, errStoredOffline := repo.GetOfflinePosition(t.Context(), player)
	require.NoError(t, errStoredOffline)
	require.Equal(t, offline, storedOffline)

	// Re-setting updates the same row in place.
	moved := last
	moved.X = 1
	moved.WorldName = "world_nether"
	require.NoError(t, repo.SetLastPosition(t.Context(), player, moved))

	storedMoved, errMoved := repo.GetLastPosition(t.Context(), player)
	require.NoError(t, errMoved)
	require.Equal(t, moved, storedMoved)
}

func TestRespawnPositionClear(t *testing.T) {
	fixture := tests.NewFixture()
	defer fixture.Close()

	repo := user.NewRepository(fixture.Database)
	player := tests.NewUser()
	require.NoError(t, repo.EnsureUser(t.Context(), player))

	respawn := tests.NewPosition("alpha")
	require.NoError(t, repo.SetRespawnPosition(t.Context(), player, &respawn))

	stored, errStored := repo.GetRespawnPosition(t.Context(), player)
	require.NoError(t, errStored)
	require.Equal(t, respawn, stored)

	require.NoError(t, repo.SetRespawnPosition(t.Context(), player, nil))

	_, errCleared := repo.GetRespawnPosition(t.Context(), player)
	require.ErrorIs(t, errCleared, database.ErrNoResult)
}

func TestDeleteUserCascades(t *testing.T) {
	fixture := tests.NewFixture()
	defer fixture.Close()

	users := user.NewRepository(fixture.Database)
	homes := home.NewRepository(fixture.Database, true)
	teleports := teleport.NewRepository(fixture.Database)

	player := tests.NewUser()
	bystander := tests.NewUser()
	require.NoError(t, users.EnsureUser(t.Context(), player))
	require.NoError(t, users.EnsureUser(t.Context(), bystander))

	playerHome := tests.NewHome(player, "base", "alpha")
	require.NoError(t, homes.SaveHome(t.Context(), &playerHome))

	bystanderHome := tests.NewHome(bystander, "base", "alpha")
	require.NoError(t, homes.SaveHome(t.Context(), &bystanderHome))

	last := tests.NewPosition("alpha")
	require.NoError(t, users.SetLastPosition(t.Context(), player, last))
	require.NoError(t, users.SetCooldown(t.Context(), domain.ActionHomeSlot, player, time.Now().Add(time.Hour)))
	require.NoError(t, teleports.SetCurrentTeleport(t.Context(), player, &domain.Teleport{
		Executor: player,
		Target:   tests.NewPosition("beta"),
		Kind:     domain.TeleportTimed,
	}))

	require.NoError(t, users.DeleteUser(t.Context(), player.UUID))

	_, errUser := users.GetUserByUUID(t.Context(), player.UUID)
	require.ErrorIs(t, errUser, database.ErrNoResult)

	owned, errOwned := homes.GetHomes(t.Context(), player)
	require.NoError(t, errOwned)
	require.Empty(t, owned)

	_, errTeleport := teleports.GetCurrentTeleport(t.Context(), player)
	require.ErrorIs(t, errTeleport, database.ErrNoResult)

	// Unrelated users keep their data.
	kept, errKept := homes.GetHomes(t.Context(), bystander)
	require.NoError(t, errKept)
	require.Len(t, kept, 1)

	// No orphan satellite rows survive the cascade.
	positions, errPositions := database.GetCount(t.Context(), fixture.Database, fixture.Database.Builder().
		Select("count(*)").
		From(fixture.Database.TableName(database.TablePositionData)))
	require.NoError(t, errPositions)
	require.Equal(t, int64(1), positions)
}
