package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// Schema creates the workouts table. The weather and calories columns were
// added after the first deployments, hence the separate ALTERs.
const Schema = `
CREATE TABLE IF NOT EXISTS workouts
(
    workout_name TEXT PRIMARY KEY,
    duration     INTEGER     NOT NULL CHECK (duration > 0),
    distance     DECIMAL     NOT NULL CHECK (distance > 0),
    heart_rate   INTEGER,
    date_time    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

ALTER TABLE workouts ADD COLUMN IF NOT EXISTS weather TEXT;
ALTER TABLE workouts ADD COLUMN IF NOT EXISTS calories_burned INTEGER;

CREATE INDEX IF NOT EXISTS ix_workouts_date_time ON workouts USING btree (date_time);
`

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	log.Debugln("workouts schema in place")
	return nil
}
