// Package position provides the row plumbing for the position and
// saved-position tables, shared by the home, warp, user and teleport
// repositories. A position row is owned by exactly one parent record, so all
// functions here operate on ids handed over by the owning repository.
package position

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/homeward-mc/homeward/internal/database"
	"github.com/homeward-mc/homeward/internal/domain"
)

// Columns returns the position columns in scan order, qualified by alias.
func Columns(alias string) []string {
	return []string{
		alias + ".x", alias + ".y", alias + ".z",
		alias + ".yaw", alias + ".pitch",
		alias + ".world_name", alias + ".server_name",
	}
}

// Dest returns scan destinations matching Columns.
func Dest(pos *domain.Position) []any {
	return []any{&pos.X, &pos.Y, &pos.Z, &pos.Yaw, &pos.Pitch, &pos.WorldName, &pos.ServerName}
}

// Insert writes a new position row and returns the generated id.
func Insert(ctx context.Context, db database.Database, exec database.Executor, pos domain.Position) (int64, error) {
	builder := db.Builder().
		Insert(db.TableName(database.TablePositionData)).
		Columns("x", "y", "z", "yaw", "pitch", "world_name", "server_name").
		Values(pos.X, pos.Y, pos.Z, pos.Yaw, pos.Pitch, pos.WorldName, pos.ServerName).
		Suffix("RETURNING id")

	var positionID int64
	if errInsert := database.ExecInsertBuilderWithReturnValue(ctx, exec, builder, &positionID); errInsert != nil {
		return 0, database.DBErr(errInsert)
	}

	return positionID, nil
}

// Update overwrites a position row in place.
func Update(ctx context.Context, db database.Database, exec database.Executor, positionID int64, pos domain.Position) error {
	_, errUpdate := database.ExecUpdateBuilder(ctx, exec, db.Builder().
		Update(db.TableName(database.TablePositionData)).
		SetMap(map[string]any{
			"x":           pos.X,
			"y":           pos.Y,
			"z":           pos.Z,
			"yaw":         pos.Yaw,
			"pitch":       pos.Pitch,
			"world_name":  pos.WorldName,
			"server_name": pos.ServerName,
		}).
		Where(sq.Eq{"id": positionID}))

	return database.DBErr(errUpdate)
}

// Delete removes a position row once its owning record is gone.
func Delete(ctx context.Context, db database.Database, exec database.Executor, positionID int64) error {
	_, errDelete := database.ExecDeleteBuilder(ctx, exec, db.Builder().
		Delete(db.TableName(database.TablePositionData)).
		Where(sq.Eq{"id": positionID}))

	return database.DBErr(errDelete)
}

// InsertSaved writes a position row plus its saved-position metadata row and
// returns the generated saved-position id.
func InsertSaved(ctx context.Context, db database.Database, exec database.Executor, saved domain.SavedPosition) (int64, error) {
	positionID, errPosition := Insert(ctx, db, exec, saved.Position)
	if errPosition != nil {
		return 0, errPosition
	}

	builder := db.Builder().
		Insert(db.TableName(database.TableSavedPositionData)).
		Columns("position_id", "name", "description", "created_ms").
		Values(positionID, saved.Meta.Name, saved.Meta.Description, saved.Meta.CreatedOn.UnixMilli()).
		Suffix("RETURNING id")

	var savedID int64
	if errInsert := database.ExecInsertBuilderWithReturnValue(ctx, exec, builder, &savedID); errInsert != nil {
		return 0, database.DBErr(errInsert)
	}

	return savedID, nil
}

// UpdateSaved overwrites the metadata of a saved-position row.
func UpdateSaved(ctx context.Context, db database.Database, exec database.Executor, savedID int64, meta domain.PositionMeta) error {
	_, errUpdate := database.ExecUpdateBuilder(ctx, exec, db.Builder().
		Update(db.TableName(database.TableSavedPositionData)).
		SetMap(map[string]any{
			"name":        meta.Name,
			"description": meta.Description,
		}).
		Where(sq.Eq{"id": savedID}))

	return database.DBErr(errUpdate)
}

// DeleteSaved removes a saved-position row and its underlying position.
func DeleteSaved(ctx context.Context, db database.Database, exec database.Executor, savedID int64, positionID int64) error {
	_, errDelete := database.ExecDeleteBuilder(ctx, exec, db.Builder().
		Delete(db.TableName(database.TableSavedPositionData)).
		Where(sq.Eq{"id": savedID}))
	if errDelete != nil {
		return database.DBErr(errDelete)
	}

	return Delete(ctx, db, exec, positionID)
}
