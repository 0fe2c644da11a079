package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"portalgrades/internal/results"
	"portalgrades/lib/timezone"
)

// InsertStats counts what InsertWeekly did with its results.
type InsertStats struct {
	Week    string
	Updated int
	// Skipped counts failed results and results without subjects.
	Skipped int
	// Missing counts results of students that are no longer stored.
	Missing int
}

// InsertWeekly stores the subjects of every successful result as the
// grades of the week that day falls in, replacing what was stored for that
// week. Everything happens in a single transaction.
func (s Store) InsertWeekly(ctx context.Context, day time.Time, batch []results.JobResult) (InsertStats, error) {
	stats := InsertStats{Week: timezone.WeekAnchor(day)}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	for _, result := range batch {
		if !result.Succeeded() || len(result.Subjects) == 0 {
			stats.Skipped++
			continue
		}

		var raw string
		err := tx.GetContext(ctx, &raw, tx.Rebind(`SELECT weekly_data FROM student WHERE id = ?`), result.DatabaseID)
		if errors.Is(err, sql.ErrNoRows) {
			slog.WarnContext(ctx, "student of result not found", "db_id", result.DatabaseID, "job_id", result.JobID)
			stats.Missing++
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("read weekly data of %d: %w", result.DatabaseID, err)
		}

		weekly := Student{ID: result.DatabaseID, WeeklyJSON: raw}.Weekly()
		weekly[stats.Week] = result.Subjects
		encoded, err := json.Marshal(weekly)
		if err != nil {
			return stats, fmt.Errorf("encode weekly data of %d: %w", result.DatabaseID, err)
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE student SET weekly_data = ? WHERE id = ?`), string(encoded), result.DatabaseID)
		if err != nil {
			return stats, fmt.Errorf("write weekly data of %d: %w", result.DatabaseID, err)
		}
		stats.Updated++
	}

	err = tx.Commit()
	if err != nil {
		return stats, err
	}
	return stats, nil
}
