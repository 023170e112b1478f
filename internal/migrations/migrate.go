package migrations

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/pressly/goose/v3"
)

// Up runs all pending SQL migrations for driver found under baseDir/<driver>.
func Up(db *sql.DB, driver, baseDir string) error {
	dialect, err := dialectFor(driver)
	if err != nil {
		return err
	}

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.Up(db, filepath.Join(baseDir, driver)); err != nil {
		return fmt.Errorf("run goose up migrations: %w", err)
	}

	return nil
}

func dialectFor(driver string) (string, error) {
	switch driver {
	case "sqlite":
		return "sqlite3", nil
	case "postgres":
		return "postgres", nil
	default:
		return "", fmt.Errorf("no migration dialect for driver %q", driver)
	}
}
