// Package user persists player identities, their preferences, per-action
// cooldowns and their stored last/offline/respawn positions.
package user

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gofrs/uuid/v5"

	"github.com/homeward-mc/homeward/internal/database"
	"github.com/homeward-mc/homeward/internal/domain"
	"github.com/homeward-mc/homeward/internal/position"
)

// Stored position slots on the user row.
const (
	columnLastPosition    = "last_position_id"
	columnOfflinePosition = "offline_position_id"
	columnRespawnPosition = "respawn_position_id"
)

var ErrScanUser = errors.New("failed to scan user result")

type repository struct {
	db database.Database
}

func NewRepository(db database.Database) domain.UserRepository {
	return &repository{db: db}
}

// EnsureUser inserts the user on first sight, otherwise keeps their mutable
// username in sync. Preferences of known users are left untouched.
func (r *repository) EnsureUser(ctx context.Context, user domain.User) error {
	return database.DBErr(database.ExecInsertBuilder(ctx, r.db, r.db.Builder().
		Insert(r.db.TableName(database.TableUserData)).
		Columns("uuid", "username", "home_slots", "ignoring_requests").
		Values(user.UUID.String(), user.Username, domain.DefaultHomeSlots, false).
		Suffix("ON CONFLICT (uuid) DO UPDATE SET username = excluded.username")))
}

func (r *repository) getUser(ctx context.Context, where any) (domain.SavedUser, error) {
	row, errRow := database.QueryRowBuilder(ctx, r.db, r.db.Builder().
		Select("uuid", "username", "home_slots", "ignoring_requests").
		From(r.db.TableName(database.TableUserData)).
		Where(where))
	if errRow != nil {
		return domain.SavedUser{}, errRow
	}

	var (
		saved   domain.SavedUser
		rawUUID string
	)

	if errScan := row.Scan(&rawUUID, &saved.Username, &saved.HomeSlots, &saved.IgnoringRequests); errScan != nil {
		return domain.SavedUser{}, database.DBErr(errScan)
	}

	userID, errParse := uuid.FromString(rawUUID)
	if errParse != nil {
		return domain.SavedUser{}, errors.Join(errParse, ErrScanUser)
	}

	saved.UUID = userID

	return saved, nil
}

// GetUserByName looks a user up by username, always case-insensitively.
func (r *repository) GetUserByName(ctx context.Context, username string) (domain.SavedUser, error) {
	return r.getUser(ctx, sq.Expr("LOWER(username) = LOWER(?)", username))
}

func (r *repository) GetUserByUUID(ctx context.Context, userID uuid.UUID) (domain.SavedUser, error) {
	return r.getUser(ctx, sq.Eq{"uuid": userID.String()})
}

// SaveUser updates the persisted preferences of an existing user.
func (r *repository) SaveUser(ctx context.Context, user domain.SavedUser) error {
	affected, errUpdate := database.ExecUpdateBuilder(ctx, r.db, r.db.Builder().
		Update(r.db.TableName(database.TableUserData)).
		SetMap(map[string]any{
			"username":          user.Username,
			"home_slots":        user.HomeSlots,
			"ignoring_requests": user.IgnoringRequests,
		}).
		Where(sq.Eq{"uuid": user.UUID.String()}))
	if errUpdate != nil {
		return database.DBErr(errUpdate)
	}

	if affected == 0 {
		return database.ErrNoResult
	}

	return nil
}

// DeleteUser removes the user and everything hanging off them: cooldowns,
// teleport state, stored positions and their homes. Position rows are
// removed explicitly rather than via referential cascades, since the
// embedded engine only enforces foreign keys per connection.
func (r *repository) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	users := r.db.TableName(database.TableUserData)
	homes := r.db.TableName(database.TableHomeData)
	saved := r.db.TableName(database.TableSavedPositionData)
	teleports := r.db.TableName(database.TableTeleportData)
	cooldowns := r.db.TableName(database.TableUserCooldownsData)

	rawUUID := userID.String()

	return r.db.WrapTx(ctx, func(exec database.Executor) error {
		// The user's own position slots, captured before the row goes away.
		var lastID, offlineID, respawnID *int64

		userRow, errUserRow := database.QueryRowBuilder(ctx, exec, r.db.Builder().
			Select(columnLastPosition, columnOfflinePosition, columnRespawnPosition).
			From(users).
			Where(sq.Eq{"uuid": rawUUID}))
		if errUserRow != nil {
			return errUserRow
		}

		if errScan := userRow.Scan(&lastID, &offlineID, &respawnID); errScan != nil {
			return database.DBErr(errScan)
		}

		if _, errCooldowns := database.ExecDeleteBuilder(ctx, exec, r.db.Builder().
			Delete(cooldowns).
			Where(sq.Eq{"user_uuid": rawUUID})); errCooldowns != nil {
			return database.DBErr(errCooldowns)
		}

		var teleportPositionID *int64

		teleportRow, errTeleportRow := database.QueryRowBuilder(ctx, exec, r.db.Builder().
			Select("position_id").
			From(teleports).
			Where(sq.Eq{"user_uuid": rawUUID}))
		if errTeleportRow != nil {
			return errTeleportRow
		}

		if errScan := teleportRow.Scan(&teleportPositionID); errScan != nil && !errors.Is(database.DBErr(errScan), database.ErrNoResult) {
			return database.DBErr(errScan)
		}

		if _, errTeleport := database.ExecDeleteBuilder(ctx, exec, r.db.Builder().
			Delete(teleports).
			Where(sq.Eq{"user_uuid": rawUUID})); errTeleport != nil {
			return database.DBErr(errTeleport)
		}

		if teleportPositionID != nil {
			if errPosition := position.Delete(ctx, r.db, exec, *teleportPositionID); errPosition != nil {
				return errPosition
			}
		}

		// Homes cascade: home rows, then their saved positions, then the
		// position rows underneath.
		savedIDs, positionIDs, errIDs := r.homeSatellites(ctx, exec, rawUUID)
		if errIDs != nil {
			return errIDs
		}

		if _, errHomes := database.ExecDeleteBuilder(ctx, exec, r.db.Builder().
			Delete(homes).
			Where(sq.Eq{"owner_uuid": rawUUID})); errHomes != nil {
			return database.DBErr(errHomes)
		}

		if len(savedIDs) > 0 {
			if _, errSaved := database.ExecDeleteBuilder(ctx, exec, r.db.Builder().
				Delete(saved).
				Where(sq.Eq{"id": savedIDs})); errSaved != nil {
				return database.DBErr(errSaved)
			}
		}

		if _, errUser := database.ExecDeleteBuilder(ctx, exec, r.db.Builder().
			Delete(users).
			Where(sq.Eq{"uuid": rawUUID})); errUser != nil {
			return database.DBErr(errUser)
		}

		for _, slotID := range []*int64{lastID, offlineID, respawnID} {
			if slotID != nil {
				positionIDs = append(positionIDs, *slotID)
			}
		}

		if len(positionIDs) > 0 {
			if _, errPositions := database.ExecDeleteBuilder(ctx, exec, r.db.Builder().
				Delete(r.db.TableName(database.TablePositionData)).
				Where(sq.Eq{"id": positionIDs})); errPositions != nil {
				return database.DBErr(errPositions)
			}
		}

		return nil
	})
}

// homeSatellites collects the saved-position and position ids backing a
// user's homes.
func (r *repository) homeSatellites(ctx context.Context, exec database.Executor, rawUUID string) ([]int64, []int64, error) {
	rows, errRows := database.QueryBuilder(ctx, exec, r.db.Builder().
		Select("h.saved_position_id", "sp.position_id").
		From(r.db.TableName(database.TableHomeData)+" h").
		Join(r.db.TableName(database.TableSavedPositionData)+" sp ON sp.id = h.saved_position_id").
		Where(sq.Eq{"h.owner_uuid": rawUUID}))
	if errRows != nil {
		return nil, nil, database.DBErr(errRows)
	}

	defer rows.Close()

	var savedIDs, positionIDs []int64

	for rows.Next() {
		var savedID, positionID int64
		if errScan := rows.Scan(&savedID, &positionID); errScan != nil {
			return nil, nil, database.DBErr(errScan)
		}

		savedIDs = append(savedIDs, savedID)
		positionIDs = append(positionIDs, positionID)
	}

	if errRows := rows.Err(); errRows != nil {
		return nil, nil, database.DBErr(errRows)
	}

	return savedIDs, positionIDs, nil
}

// GetCooldown returns the expiry of an active cooldown, or ErrNoResult when
// the user has none for the action.
func (r *repository) GetCooldown(ctx context.Context, action domain.Action, user domain.User) (time.Time, error) {
	row, errRow := database.QueryRowBuilder(ctx, r.db, r.db.Builder().
		Select("expiry_ms").
		From(r.db.TableName(database.TableUserCooldownsData)).
		Where(sq.Eq{"user_uuid": user.UUID.String(), "action": string(action)}))
	if errRow != nil {
		return time.Time{}, errRow
	}

	var expiryMs int64
	if errScan := row.Scan(&expiryMs); errScan != nil {
		return time.Time{}, database.DBErr(errScan)
	}

	return time.UnixMilli(expiryMs), nil
}

func (r *repository) SetCooldown(ctx context.Context, action domain.Action, user domain.User, expiry time.Time) error {
	return database.DBErr(database.ExecInsertBuilder(ctx, r.db, r.db.Builder().
		Insert(r.db.TableName(database.TableUserCooldownsData)).
		Columns("user_uuid", "action", "expiry_ms").
		Values(user.UUID.String(), string(action), expiry.UnixMilli()).
		Suffix("ON CONFLICT (user_uuid, action) DO UPDATE SET expiry_ms = excluded.expiry_ms")))
}

func (r *repository) ClearCooldown(ctx context.Context, action domain.Action, user domain.User) error {
	_, errDelete := database.ExecDeleteBuilder(ctx, r.db, r.db.Builder().
		Delete(r.db.TableName(database.TableUserCooldownsData)).
		Where(sq.Eq{"user_uuid": user.UUID.String(), "action": string(action)}))

	return database.DBErr(errDelete)
}

func (r *repository) GetLastPosition(ctx context.Context, user domain.User) (domain.Position, error) {
	return r.getStoredPosition(ctx, user, columnLastPosition)
}

func (r *repository) SetLastPosition(ctx context.Context, user domain.User, pos domain.Position) error {
	return r.setStoredPosition(ctx, user, columnLastPosition, &pos)
}

func (r *repository) GetOfflinePosition(ctx context.Context, user domain.User) (domain.Position, error) {
	return r.getStoredPosition(ctx, user, columnOfflinePosition)
}

func (r *repository) SetOfflinePosition(ctx context.Context, user domain.User, pos domain.Position) error {
	return r.setStoredPosition(ctx, user, columnOfflinePosition, &pos)
}

func (r *repository) GetRespawnPosition(ctx context.Context, user domain.User) (domain.Position, error) {
	return r.getStoredPosition(ctx, user, columnRespawnPosition)
}

func (r *repository) SetRespawnPosition(ctx context.Context, user domain.User, pos *domain.Position) error {
	return r.setStoredPosition(ctx, user, columnRespawnPosition, pos)
}

func (r *repository) getStoredPosition(ctx context.Context, user domain.User, column string) (domain.Position, error) {
	row, errRow := database.QueryRowBuilder(ctx, r.db, r.db.Builder().
		Select(position.Columns("p")...).
		From(r.db.TableName(database.TableUserData)+" u").
		Join(r.db.TableName(database.TablePositionData)+" p ON p.id = u."+column).
		Where(sq.Eq{"u.uuid": user.UUID.String()}))
	if errRow != nil {
		return domain.Position{}, errRow
	}

	var pos domain.Position
	if errScan := row.Scan(position.Dest(&pos)...); errScan != nil {
		return domain.Position{}, database.DBErr(errScan)
	}

	return pos, nil
}

// setStoredPosition updates the position row bound to the slot in place,
// creating or deleting it as the slot fills or clears.
func (r *repository) setStoredPosition(ctx context.Context, user domain.User, column string, pos *domain.Position) error {
	users := r.db.TableName(database.TableUserData)

	return r.db.WrapTx(ctx, func(exec database.Executor) error {
		var existingID *int64

		row, errRow := database.QueryRowBuilder(ctx, exec, r.db.Builder().
			Select(column).
			From(users).
			Where(sq.Eq{"uuid": user.UUID.String()}))
		if errRow != nil {
			return errRow
		}

		if errScan := row.Scan(&existingID); errScan != nil {
			return database.DBErr(errScan)
		}

		if pos == nil {
			if existingID == nil {
				return nil
			}

			if _, errClear := database.ExecUpdateBuilder(ctx, exec, r.db.Builder().
				Update(users).
				Set(column, nil).
				Where(sq.Eq{"uuid": user.UUID.String()})); errClear != nil {
				return database.DBErr(errClear)
			}

			return position.Delete(ctx, r.db, exec, *existingID)
		}

		if existingID != nil {
			return position.Update(ctx, r.db, exec, *existingID, *pos)
		}

		positionID, errInsert := position.Insert(ctx, r.db, exec, *pos)
		if errInsert != nil {
			return errInsert
		}

		_, errBind := database.ExecUpdateBuilder(ctx, exec, r.db.Builder().
			Update(users).
			Set(column, positionID).
			Where(sq.Eq{"uuid": user.UUID.String()}))

		return database.DBErr(errBind)
	})
}
