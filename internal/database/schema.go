package database

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var ErrUnknownTable = errors.New("unknown table placeholder")

// Table is a logical table name. Physical names are configurable per table;
// schema scripts reference tables through `%TABLE_KEY%` placeholders that a
// Formatter resolves.
type Table string

const (
	TableMetaData          Table = "META_DATA"
	TableUserData          Table = "USER_DATA"
	TableUserCooldownsData Table = "USER_COOLDOWNS_DATA"
	TablePositionData      Table = "POSITION_DATA"
	TableSavedPositionData Table = "SAVED_POSITION_DATA"
	TableHomeData          Table = "HOME_DATA"
	TableWarpData          Table = "WARP_DATA"
	TableTeleportData      Table = "TELEPORT_DATA"
)

//nolint:gochecknoglobals
var defaultTableNames = map[Table]string{
	TableMetaData:          "homeward_metadata",
	TableUserData:          "homeward_users",
	TableUserCooldownsData: "homeward_user_cooldowns",
	TablePositionData:      "homeward_positions",
	TableSavedPositionData: "homeward_saved_positions",
	TableHomeData:          "homeward_homes",
	TableWarpData:          "homeward_warps",
	TableTeleportData:      "homeward_teleports",
}

// Tables returns the closed set of logical tables in a stable order.
func Tables() []Table {
	tables := make([]Table, 0, len(defaultTableNames))
	for table := range defaultTableNames {
		tables = append(tables, table)
	}

	sort.Slice(tables, func(i, j int) bool { return tables[i] < tables[j] })

	return tables
}

func (t Table) DefaultName() string {
	return defaultTableNames[t]
}

// MatchTable resolves a placeholder key, case-insensitively, to a Table.
func MatchTable(placeholder string) (Table, error) {
	table := Table(strings.ToUpper(placeholder))
	if _, ok := defaultTableNames[table]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTable, placeholder)
	}

	return table, nil
}

//nolint:gochecknoglobals
var placeholderPattern = regexp.MustCompile(`%(\w+)%`)

// Formatter rewrites logical table placeholders in script text into the
// configured physical names. It is a pure function of (script, overrides)
// and is idempotent on fully resolved text.
type Formatter struct {
	names map[Table]string
}

// NewFormatter builds a Formatter from configured logical to physical name
// overrides. Override keys are matched case-insensitively against the table
// set; unknown keys are rejected.
func NewFormatter(overrides map[string]string) (*Formatter, error) {
	names := make(map[Table]string, len(defaultTableNames))
	for table, name := range defaultTableNames {
		names[table] = name
	}

	for key, physical := range overrides {
		table, errMatch := MatchTable(key)
		if errMatch != nil {
			return nil, errMatch
		}

		if physical != "" {
			names[table] = physical
		}
	}

	return &Formatter{names: names}, nil
}

// Name returns the physical name of a logical table.
func (f *Formatter) Name(table Table) string {
	return f.names[table]
}

// Format resolves every `%TABLE_KEY%` placeholder in script. A placeholder
// that does not match a known table fails the whole script rather than
// emitting a partially rewritten statement.
func (f *Formatter) Format(script string) (string, error) {
	var errResolve error

	resolved := placeholderPattern.ReplaceAllStringFunc(script, func(match string) string {
		key := strings.Trim(match, "%")

		table, errMatch := MatchTable(key)
		if errMatch != nil {
			errResolve = errors.Join(errResolve, errMatch)

			return match
		}

		return f.names[table]
	})

	if errResolve != nil {
		return "", errResolve
	}

	return resolved, nil
}
