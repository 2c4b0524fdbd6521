// Package home persists player homes: named, optionally public saved
// positions unique per (owner, case-folded name).
package home

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

var ErrScanHome = errors.New("failed to scan home result")

type repository struct {
	db              database.Database
	caseInsensitive bool
}

// NewRepository builds the home repository. caseInsensitive is the
// cluster-wide name matching policy used by the convenience lookups.
func NewRepository(db database.Database, caseInsensitive bool) domain.HomeRepository {
	return &repository{db: db, caseInsensitive: caseInsensitive}
}

func (r *repository) homeBuilder() sq.SelectBuilder {
	return r.db.Builder().
		Select(append([]string{"h.uuid", "h.public", "sp.name", "sp.description", "sp.created_ms"},
			append(position.Columns("p"), "u.uuid", "u.username")...)...).
		From(r.db.TableName(database.TableHomeData) + " h").
		Join(r.db.TableName(database.TableSavedPositionData) + " sp ON sp.id = h.saved_position_id").
		Join(r.db.TableName(database.TablePositionData) + " p ON p.id = sp.position_id").
		Join(r.db.TableName(database.TableUserData) + " u ON u.uuid = h.owner_uuid")
}

func scanHome(row database.Row) (domain.Home, error) {
	var (
		home      domain.Home
		rawUUID   string
		rawOwner  string
		createdMs int64
	)

	dest := append([]any{&rawUUID, &home.Public, &home.Meta.Name, &home.Meta.Description, &createdMs},
		append(position.Dest(&home.Position), &rawOwner, &home.Owner.Username)...)

	if errScan := row.Scan(dest...); errScan != nil {
		return domain.Home{}, database.DBErr(errScan)
	}

	homeID, errID := uuid.FromString(rawUUID)
	if errID != nil {
		return domain.Home{}, errors.Join(errID, ErrScanHome)
	}

	ownerID, errOwner := uuid.FromString(rawOwner)
	if errOwner != nil {
		return domain.Home{}, errors.Join(errOwner, ErrScanHome)
	}

	home.UUID = homeID
	home.Owner.UUID = ownerID
	home.Meta.CreatedOn = time.UnixMilli(createdMs)

	return home, nil
}

func (r *repository) collectHomes(ctx context.Context, builder sq.SelectBuilder) ([]domain.Home, error) {
	rows, errRows := database.QueryBuilder(ctx, r.db, builder)
	if errRows != nil {
		return nil, database.DBErr(errRows)
	}

	defer rows.Close()

	var homes []domain.Home

	for rows.Next() {
		home, errScan := scanHome(rows)
		if errScan != nil {
			return nil, errScan
		}

		homes = append(homes, home)
	}

	if errIter := rows.Err(); errIter != nil {
		return nil, database.DBErr(errIter)
	}

	return homes, nil
}

func (r *repository) GetHomes(ctx context.Context, user domain.User) ([]domain.Home, error) {
	return r.collectHomes(ctx, r.homeBuilder().
		Where(sq.Eq{"h.owner_uuid": user.UUID.String()}).
		OrderBy("sp.name"))
}

func (r *repository) GetPublicHomes(ctx context.Context) ([]domain.Home, error) {
	return r.collectHomes(ctx, r.homeBuilder().
		Where(sq.Eq{"h.public": true}).
		OrderBy("sp.name"))
}

func (r *repository) GetLocalPublicHomes(ctx context.Context, serverName string) ([]domain.Home, error) {
	return r.collectHomes(ctx, r.homeBuilder().
		Where(sq.And{sq.Eq{"h.public": true}, sq.Eq{"p.server_name": serverName}}).
		OrderBy("sp.name"))
}

func (r *repository) GetPublicHomesByName(ctx context.Context, name string) ([]domain.Home, error) {
	return r.GetPublicHomesByNameWithCase(ctx, name, r.caseInsensitive)
}

func (r *repository) GetPublicHomesByNameWithCase(ctx context.Context, name string, caseInsensitive bool) ([]domain.Home, error) {
	return r.collectHomes(ctx, r.homeBuilder().
		Where(sq.And{sq.Eq{"h.public": true}, nameMatch(name, caseInsensitive)}).
		OrderBy("u.username"))
}

func (r *repository) GetHome(ctx context.Context, user domain.User, name string) (domain.Home, error) {
	return r.GetHomeWithCase(ctx, user, name, r.caseInsensitive)
}

func (r *repository) GetHomeWithCase(ctx context.Context, user domain.User, name string, caseInsensitive bool) (domain.Home, error) {
	row, errRow := database.QueryRowBuilder(ctx, r.db, r.homeBuilder().
		Where(sq.And{sq.Eq{"h.owner_uuid": user.UUID.String()}, nameMatch(name, caseInsensitive)}))
	if errRow != nil {
		return domain.Home{}, errRow
	}

	return scanHome(row)
}

func (r *repository) GetHomeByUUID(ctx context.Context, homeID uuid.UUID) (domain.Home, error) {
	row, errRow := database.QueryRowBuilder(ctx, r.db, r.homeBuilder().
		Where(sq.Eq{"h.uuid": homeID.String()}))
	if errRow != nil {
		return domain.Home{}, errRow
	}

	return scanHome(row)
}

// nameMatch builds the name predicate for the active case policy. The
// case-folded name is materialised in name_key, backing both the insensitive
// lookups and the uniqueness constraints.
func nameMatch(name string, caseInsensitive bool) sq.Sqlizer {
	if caseInsensitive {
		return sq.Expr("h.name_key = ?", strings.ToLower(name))
	}

	return sq.Eq{"sp.name": name}
}

// SaveHome inserts the home or updates the owner's existing home of the same
// case-folded name in place. Races between two saves of the same name are
// resolved by the unique (owner_uuid, name_key) constraint rather than any
// in-process lock.
func (r *repository) SaveHome(ctx context.Context, home *domain.Home) error {
	if home.UUID.IsNil() {
		home.UUID = uuid.Must(uuid.NewV4())
	}

	if home.Meta.CreatedOn.IsZero() {
		home.Meta.CreatedOn = time.Now()
	}

	homes := r.db.TableName(database.TableHomeData)
	nameKey := strings.ToLower(home.Meta.Name)
	rawOwner := home.Owner.UUID.String()

	return r.db.WrapTx(ctx, func(exec database.Executor) error {
		var (
			existingUUID string
			savedID      int64
			positionID   int64
		)

		row, errRow := database.QueryRowBuilder(ctx, exec, r.db.Builder().
			Select("h.uuid", "h.saved_position_id", "sp.position_id").
			From(homes+" h").
			Join(r.db.TableName(database.TableSavedPositionData)+" sp ON sp.id = h.saved_position_id").
			Where(sq.Eq{"h.owner_uuid": rawOwner, "h.name_key": nameKey}))
		if errRow != nil {
			return errRow
		}

		errScan := database.DBErr(row.Scan(&existingUUID, &savedID, &positionID))
		if errScan != nil && !errors.Is(errScan, database.ErrNoResult) {
			return errScan
		}

		if errScan == nil {
			home.UUID = uuid.FromStringOrNil(existingUUID)

			if errPosition := position.Update(ctx, r.db, exec, positionID, home.Position); errPosition != nil {
				return errPosition
			}

			if errSaved := position.UpdateSaved(ctx, r.db, exec, savedID, home.Meta); errSaved != nil {
				return errSaved
			}

			_, errHome := database.ExecUpdateBuilder(ctx, exec, r.db.Builder().
				Update(homes).
				Set("public", home.Public).
				Where(sq.Eq{"uuid": home.UUID.String()}))

			return database.DBErr(errHome)
		}

		newSavedID, errInsert := position.InsertSaved(ctx, r.db, exec, home.SavedPosition)
		if errInsert != nil {
			return errInsert
		}

		return r.upsertHomeRow(ctx, exec, home, newSavedID)
	})
}

// upsertHomeRow inserts the home row, deferring to the unique
// (owner_uuid, name_key) constraint when a concurrent save already claimed the
// name. The surviving row's uuid is read back into home so the caller never
// keeps a uuid that lost the race.
func (r *repository) upsertHomeRow(ctx context.Context, exec database.Executor, home *domain.Home, savedID int64) error {
	var storedUUID string

	errUpsert := database.ExecInsertBuilderWithReturnValue(ctx, exec, r.db.Builder().
		Insert(r.db.TableName(database.TableHomeData)).
		Columns("uuid", "saved_position_id", "owner_uuid", "name_key", "public").
		Values(home.UUID.String(), savedID, home.Owner.UUID.String(), strings.ToLower(home.Meta.Name), home.Public).
		Suffix("ON CONFLICT (owner_uuid, name_key) DO UPDATE SET "+
			"saved_position_id = excluded.saved_position_id, public = excluded.public "+
			"RETURNING uuid"), &storedUUID)
	if errUpsert != nil {
		return database.DBErr(errUpsert)
	}

	home.UUID = uuid.FromStringOrNil(storedUUID)

	return nil
}

func (r *repository) DeleteHome(ctx context.Context, homeID uuid.UUID) error {
	homes := r.db.TableName(database.TableHomeData)

	return r.db.WrapTx(ctx, func(exec database.Executor) error {
		var savedID, positionID int64

		row, errRow := database.QueryRowBuilder(ctx, exec, r.db.Builder().
			Select("h.saved_position_id", "sp.position_id").
			From(homes+" h").
			Join(r.db.TableName(database.TableSavedPositionData)+" sp ON sp.id = h.saved_position_id").
			Where(sq.Eq{"h.uuid": homeID.String()}))
		if errRow != nil {
			return errRow
		}

		if errScan := row.Scan(&savedID, &positionID); errScan != nil {
			return database.DBErr(errScan)
		}

		if _, errDelete := database.ExecDeleteBuilder(ctx, exec, r.db.Builder().
			Delete(homes).
			Where(sq.Eq{"uuid": homeID.String()})); errDelete != nil {
			return database.DBErr(errDelete)
		}

		return position.DeleteSaved(ctx, r.db, exec, savedID, positionID)
	})
}

func (r *repository) DeleteHomes(ctx context.Context, user domain.User) (int64, error) {
	return r.deleteMatching(ctx, sq.Eq{"h.owner_uuid": user.UUID.String()})
}

func (r *repository) DeleteWorldHomes(ctx context.Context, worldName string, serverName string) (int64, error) {
	return r.deleteMatching(ctx, sq.Eq{"p.world_name": worldName, "p.server_name": serverName})
}

// deleteMatching removes every home matching pred along with its satellite
// rows, reporting the number of homes removed.
func (r *repository) deleteMatching(ctx context.Context, pred sq.Sqlizer) (int64, error) {
	var deleted int64

	errTx := r.db.WrapTx(ctx, func(exec database.Executor) error {
		rows, errRows := database.QueryBuilder(ctx, exec, r.db.Builder().
			Select("h.uuid", "h.saved_position_id", "sp.position_id").
			From(r.db.TableName(database.TableHomeData)+" h").
			Join(r.db.TableName(database.TableSavedPositionData)+" sp ON sp.id = h.saved_position_id").
			Join(r.db.TableName(database.TablePositionData)+" p ON p.id = sp.position_id").
			Where(pred))
		if errRows != nil {
			return database.DBErr(errRows)
		}

		defer rows.Close()

		var (
			homeIDs     []string
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

			homeIDs = append(homeIDs, rawUUID)
			savedIDs = append(savedIDs, savedID)
			positionIDs = append(positionIDs, positionID)
		}

		if errIter := rows.Err(); errIter != nil {
			return database.DBErr(errIter)
		}

		if len(homeIDs) == 0 {
			return nil
		}

		affected, errHomes := database.ExecDeleteBuilder(ctx, exec, r.db.Builder().
			Delete(r.db.TableName(database.TableHomeData)).
			Where(sq.Eq{"uuid": homeIDs}))
		if errHomes != nil {
			return database.DBErr(errHomes)
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
