package sqlite

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

func dbInitSchema(d *sqlx.DB, logger *zap.Logger) error {
	schema := []string{
		// This is needed to improve concurrent reads and writes.
		`PRAGMA journal_mode = WAL;`,

		`CREATE TABLE IF NOT EXISTS plays (
videoid TEXT NOT NULL PRIMARY KEY,
plays INTEGER NOT NULL,
lastplayed DATETIME);`,

		`CREATE INDEX IF NOT EXISTS plays_lastplayed_idx ON plays (lastplayed);`,
	}

	for _, query := range schema {
		if _, err := d.Exec(query); err != nil {
			logger.Error("dbInitSchema", zap.Error(err))
			return err
		}
	}
	return nil
}
