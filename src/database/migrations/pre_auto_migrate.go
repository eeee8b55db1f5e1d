package migrations

import (
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// amount columns that moved from double precision to fixed-point numerics.
var legacyAmountColumns = []string{"total_amount", "remaining_amount", "executed_amount"}

// PrepareLegacyAmountColumns normalizes schemas that previously stored
// amounts as floats so that AutoMigrate can safely create numeric columns
// without failing to cast legacy values.
func PrepareLegacyAmountColumns(db *gorm.DB) error {
	const table = "strategy_orders"

	for _, column := range legacyAmountColumns {
		columnType, exists, err := lookupColumnType(db, table, column)
		if err != nil {
			return fmt.Errorf("inspect %s.%s: %w", table, column, err)
		}

		if !exists || !isFloaty(columnType) {
			continue
		}

		// Truncate toward zero while converting: fixed-point amounts are
		// integers in base units.
		if err := db.Exec(fmt.Sprintf(
			"ALTER TABLE %s ALTER COLUMN %s TYPE numeric(40,0) USING trunc(%s)",
			table, column, column,
		)).Error; err != nil {
			return fmt.Errorf("convert %s.%s to numeric: %w", table, column, err)
		}
	}

	return nil
}

func lookupColumnType(db *gorm.DB, table, column string) (dataType string, exists bool, err error) {
	row := db.Raw(
		`SELECT data_type FROM information_schema.columns WHERE table_name = ? AND column_name = ?`,
		table,
		column,
	).Row()

	if scanErr := row.Scan(&dataType); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, scanErr
	}

	return dataType, true, nil
}

func isFloaty(dataType string) bool {
	dataType = strings.ToLower(dataType)
	return strings.Contains(dataType, "double") || strings.Contains(dataType, "real") || dataType == "float"
}
