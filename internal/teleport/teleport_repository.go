// Package teleport persists the transient cross-server teleport state of
// online users, at most one row per user.
package teleport

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/homeward-mc/homeward/internal/database"
	"github.com/homeward-mc/homeward/internal/domain"
	"github.com/homeward-mc/homeward/internal/position"
)

type repository struct {
	db database.Database
}

func NewRepository(db database.Database) domain.TeleportRepository {
	return &repository{db: db}
}

func (r *repository) GetCurrentTeleport(ctx context.Context, user domain.User) (domain.Teleport, error) {
	row, errRow := database.QueryRowBuilder(ctx, r.db, r.db.Builder().
		Select(append([]string{"t.kind"}, position.Columns("p")...)...).
		From(r.db.TableName(database.TableTeleportData)+" t").
		Join(r.db.TableName(database.TablePositionData)+" p ON p.id = t.position_id").
		Where(sq.Eq{"t.user_uuid": user.UUID.String()}))
	if errRow != nil {
		return domain.Teleport{}, errRow
	}

	teleport := domain.Teleport{Executor: user}

	if errScan := row.Scan(append([]any{&teleport.Kind}, position.Dest(&teleport.Target)...)...); errScan != nil {
		return domain.Teleport{}, database.DBErr(errScan)
	}

	return teleport, nil
}

func (r *repository) SetCurrentTeleport(ctx context.Context, user domain.User, teleport *domain.Teleport) error {
	if teleport == nil {
		return r.ClearCurrentTeleport(ctx, user)
	}

	teleports := r.db.TableName(database.TableTeleportData)

	return r.db.WrapTx(ctx, func(exec database.Executor) error {
		var positionID int64

		row, errRow := database.QueryRowBuilder(ctx, exec, r.db.Builder().
			Select("position_id").
			From(teleports).
			Where(sq.Eq{"user_uuid": user.UUID.String()}))
		if errRow != nil {
			return errRow
		}

		errScan := database.DBErr(row.Scan(&positionID))
		if errScan != nil && !errors.Is(errScan, database.ErrNoResult) {
			return errScan
		}

		if errScan == nil {
			if errPosition := position.Update(ctx, r.db, exec, positionID, teleport.Target); errPosition != nil {
				return errPosition
			}

			_, errUpdate := database.ExecUpdateBuilder(ctx, exec, r.db.Builder().
				Update(teleports).
				Set("kind", int(teleport.Kind)).
				Where(sq.Eq{"user_uuid": user.UUID.String()}))

			return database.DBErr(errUpdate)
		}

		newPositionID, errInsert := position.Insert(ctx, r.db, exec, teleport.Target)
		if errInsert != nil {
			return errInsert
		}

		return database.DBErr(database.ExecInsertBuilder(ctx, exec, r.db.Builder().
			Insert(teleports).
			Columns("user_uuid", "position_id", "kind").
			Values(user.UUID.String(), newPositionID, int(teleport.Kind)).
			Suffix("ON CONFLICT (user_uuid) DO UPDATE SET position_id = excluded.position_id, kind = excluded.kind")))
	})
}

func (r *repository) ClearCurrentTeleport(ctx context.Context, user domain.User) error {
	teleports := r.db.TableName(database.TableTeleportData)

	return r.db.WrapTx(ctx, func(exec database.Executor) error {
		var positionID int64

		row, errRow := database.QueryRowBuilder(ctx, exec, r.db.Builder().
			Select("position_id").
			From(teleports).
			Where(sq.Eq{"user_uuid": user.UUID.String()}))
		if errRow != nil {
			return errRow
		}

		errScan := database.DBErr(row.Scan(&positionID))
		if errors.Is(errScan, database.ErrNoResult) {
			return nil
		}

		if errScan != nil {
			return errScan
		}

		if _, errDelete := database.ExecDeleteBuilder(ctx, exec, r.db.Builder().
			Delete(teleports).
			Where(sq.Eq{"user_uuid": user.UUID.String()})); errDelete != nil {
			return database.DBErr(errDelete)
		}

		_, errPosition := database.ExecDeleteBuilder(ctx, exec, r.db.Builder().
			Delete(r.db.TableName(database.TablePositionData)).
			Where(sq.Eq{"id": positionID}))

		return database.DBErr(errPosition)
	})
}
