// Package warp persists server warps: globally shared saved positions
// unique by case-folded name.
package warp

import (
	"context"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gofrs/uuid/v5"

	"github.com/homeward-mc/homeward/internal/database"
	"github.com/homeward-mc/homeward/internal/domain"
	"github.com/homeward-mc/homeward/internal/position"
)

var ErrScanWarp = errors.New("failed to scan warp result")

type repository struct {
	db              database.Database
	caseInsensitive bool
}

func NewRepository(db database.Database, caseInsensitive bool) domain.WarpRepository {
	return &repository{db: db, caseInsensitive: caseInsensitive}
}

func (r *repository) warpBuilder() sq.SelectBuilder {
	return r.db.Builder().
		Select(append([]string{"w.uuid", "sp.name", "sp.description", "sp.created_ms"},
			position.Columns("p")...)...).
		From(r.db.TableName(database.TableWarpData) + " w").
		Join(r.db.TableName(database.TableSavedPositionData) + " sp ON sp.id = w.saved_position_id").
		Join(r.db.TableName(database.TablePositionData) + " p ON p.id = sp.position_id")
}

func scanWarp(row database.Row) (domain.Warp, error) {
	var (
		warp      domain.Warp
		rawUUID   string
		createdMs int64
	)

	dest := append([]any{&rawUUID, &warp.Meta.Name, &warp.Meta.Description, &createdMs},
		position.Dest(&warp.Position)...)

	if errScan := row.Scan(dest...); errScan != nil {
		return domain.Warp{}, database.DBErr(errScan)
	}

	warpID, errID := uuid.FromString(rawUUID)
	if errID != nil {
		return domain.Warp{}, errors.Join(errID, ErrScanWarp)
	}

	warp.UUID = warpID
	warp.Meta.CreatedOn = time.UnixMilli(createdMs)

	return warp, nil
}

func (r *repository) collectWarps(ctx context.Context, builder sq.SelectBuilder) ([]domain.Warp, error) {
	rows, errRows := database.QueryBuilder(ctx, r.db, builder)
	if errRows != nil {
		return nil, database.DBErr(errRows)
	}

	defer rows.Close()

	var warps []domain.Warp

	for rows.Next() {
		warp, errScan := scanWarp(rows)
		if errScan != nil {
			return nil, errScan
		}

		warps = append(warps, warp)
	}

	if errIter := rows.Err(); errIter != nil {
		return nil, database.DBErr(errIter)
	}

	return warps, nil
}

func (r *repository) GetWarps(ctx context.Context) ([]domain.Warp, error) {
	return r.collectWarps(ctx, r.warpBuilder().OrderBy("sp.name"))
}

func (r *repository) GetLocalWarps(ctx context.Context, serverName string) ([]domain.Warp, error) {
	return r.collectWarps(ctx, r.warpBuilder().
		Where(sq.Eq{"p.server_name": serverName}).
		OrderBy("sp.name"))
}

func (r *repository) GetWarp(ctx context.Context, name string) (domain.Warp, error) {
	return r.GetWarpWithCase(ctx, name, r.caseInsensitive)
}

func (r *repository) GetWarpWithCase(ctx context.Context, name string, caseInsensitive bool) (domain.Warp, error) {
	row, errRow := database.QueryRowBuilder(ctx, r.db, r.warpBuilder().
		Where(nameMatch(name, caseInsensitive)))
	if errRow != nil {
		return domain.Warp{}, errRow
	}

	return scanWarp(row)
}

func (r *repository) GetWarpByUUID(ctx context.Context, warpID uuid.UUID) (domain.Warp, error) {
	row, errRow := database.QueryRowBuilder(ctx, r.db, r.warpBuilder().
		Where(sq.Eq{"w.uuid": warpID.String()}))
	if errRow != nil {
		return domain.Warp{}, errRow
	}

	return scanWarp(row)
}

func nameMatch(name string, caseInsensitive bool) sq.Sqlizer {
	if caseInsensitive {
		return sq.Expr("w.name_key = ?", strings.ToLower(name))
	}

	return sq.Eq{"sp.name": name}
}

// SaveWarp inserts the warp or updates the existing warp of the same
// case-folded name in place; concurrent saves collapse onto the unique
// name_key constraint.
func (r *repository) SaveWarp(ctx context.Context, warp *domain.Warp) error {
	if warp.UUID.IsNil() {
		warp.UUID = uuid.Must(uuid.NewV4())
	}

	if warp.Meta.CreatedOn.IsZero() {
		warp.Meta.CreatedOn = time.Now()
	}

	warps := r.db.TableName(database.TableWarpData)
	nameKey := strings.ToLower(warp.Meta.Name)

	return r.db.WrapTx(ctx, func(exec database.Executor) error {
		var (
			existingUUID string
			savedID      int64
			positionID   int64
		)

		row, errRow := database.QueryRowBuilder(ctx, exec, r.db.Builder().
			Select("w.uuid", "w.saved_position_id", "sp.position_id").
			From(warps+" w").
			Join(r.db.TableName(database.TableSavedPositionData)+" sp ON sp.id = w.saved_position_id").
			Where(sq.Eq{"w.name_key": nameKey}))
		if errRow != nil {
			return errRow
		}

		errScan := database.DBErr(row.Scan(&existingUUID, &savedID, &positionID))
		if errScan != nil && !errors.Is(errScan, database.ErrNoResult) {
			return errScan
		}

		if errScan == nil {
			warp.UUID = uuid.FromStringOrNil(existingUUID)

			if errPosition := position.Update(ctx, r.db, exec, positionID, warp.Position); errPosition != nil {
				return errPosition
			}

			return position.UpdateSaved(ctx, r.db, exec, savedID, warp.Meta)
		}

		newSavedID, errInsert := position.InsertSaved(ctx, r.db, exec, warp.SavedPosition)
		if errInsert != nil {
			return errInsert
		}

		return r.upsertWarpRow(ctx, exec, warp, newSavedID)
	})
}

// upsertWarpRow inserts the warp row, deferring to the unique name_key
// constraint when a concurrent save already claimed the name. The surviving
// row's uuid is read back into warp so the caller never keeps a uuid that
// lost the race.
func (r *repository) upsertWarpRow(ctx context.Context, exec database.Executor, warp *domain.Warp, savedID int64) error {
	var storedUUID string

	errUpsert := database.ExecInsertBuilderWithReturnValue(ctx, exec, r.db.Builder().
		Insert(r.db.TableName(database.TableWarpData)).
		Columns("uuid", "saved_position_id", "name_key").
		Values(warp.UUID.String(), savedID, strings.ToLower(warp.Meta.Name)).
		Suffix("ON CONFLICT (name_key) DO UPDATE SET saved_position_id = excluded.saved_position_id "+
			"RETURNING uuid"), &storedUUID)
	if errUpsert != nil {
		return database.DBErr(errUpsert)
	}

	warp.UUID = uuid.FromStringOrNil(storedUUID)

	return nil
}

func (r *repository) DeleteWarp(ctx context.Context, warpID uuid.UUID) error {
	warps := r.db.TableName(database.TableWarpData)

	return r.db.WrapTx(ctx, func(exec database.Executor) error {
		var savedID, positionID int64

		row, errRow := database.QueryRowBuilder(ctx, exec, r.db.Builder().
			Select("w.saved_position_id", "sp.position_id").
			From(warps+" w").
			Join(r.db.TableName(database.TableSavedPositionData)+" sp ON sp.id = w.saved_position_id").
			Where(sq.Eq{"w.uuid": warpID.String()}))
		if errRow != nil {
			return errRow
		}

		if errScan := row.Scan(&savedID, &positionID); errScan != nil {
			return database.DBErr(errScan)
		}

		if _, errDelete := database.ExecDeleteBuilder(ctx, exec, r.db.Builder().
			Delete(warps).
			Where(sq.Eq{"uuid": warpID.String()})); errDelete != nil {
			return database.DBErr(errDelete)
		}

		return position.DeleteSaved(ctx, r.db, exec, savedID, positionID)
	})
}

func (r *repository) DeleteWarps(ctx context.Context) (int64, error) {
	return r.deleteMatching(ctx, nil)
}

func (r *repository) DeleteWorldWarps(ctx context.Context, worldName string, serverName string) (int64, error) {
	return r.deleteMatching(ctx, sq.Eq{"p.world_name": worldName, "p.server_name": serverName})
}

func (r *repository) deleteMatching(ctx context.Context, pred sq.Sqlizer) (int64, error) {
	var deleted int64

	errTx := r.db.WrapTx(ctx, func(exec database.Executor) error {
		builder := r.db.Builder().
			Select("w.uuid", "w.saved_position_id", "sp.position_id").
			From(r.db.TableName(database.TableWarpData)+" w").
			Join(r.db.TableName(database.TableSavedPositionData)+" sp ON sp.id = w.saved_position_id").
			Join(r.db.TableName(database.TablePositionData) + " p ON p.id = sp.position_id")

		if pred != nil {
			builder = builder.Where(pred)
		}

		rows, errRows := database.QueryBuilder(ctx, exec, builder)
		if errRows != nil {
			return database.DBErr(errRows)
		}

		defer rows.Close()

		var (
			warpIDs     []string
			savedIDs    []int64
			positionIDs []int64
		)

		for rows.Next() {
			var (
				rawUUID    string
				savedID    int64
				positionID int64
			)

			if errScan := rows.Scan(&rawUUID, &savedID, &positionID); errScan != nil {
				return database.DBErr(errScan)
			}

			warpIDs = append(warpIDs, rawUUID)
			savedIDs = append(savedIDs, savedID)
			positionIDs = append(positionIDs, positionID)
		}

		if errIter := rows.Err(); errIter != nil {
			return database.DBErr(errIter)
		}

		if len(warpIDs) == 0 {
			return nil
		}

		affected, errWarps := database.ExecDeleteBuilder(ctx, exec, r.db.Builder().
			Delete(r.db.TableName(database.TableWarpData)).
			Where(sq.Eq{"uuid": warpIDs}))
		if errWarps != nil {
			return database.DBErr(errWarps)
		}

		if _, errSaved := database.ExecDeleteBuilder(ctx, exec, r.db.Builder().
			Delete(r.db.TableName(database.TableSavedPositionData)).
			Where(sq.Eq{"id": savedIDs})); errSaved != nil {
			return database.DBErr(errSaved)
		}

		if _, errPositions := database.ExecDeleteBuilder(ctx, exec, r.db.Builder().
			Delete(r.db.TableName(database.TablePositionData)).
			Where(sq.Eq{"id": positionIDs})); errPositions != nil {
			return database.DBErr(errPositions)
		}

		deleted = affected

		return nil
	})

	return deleted, errTx
}
