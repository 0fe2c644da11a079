package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"portalgrades/lib/textutil"
)

// MinRosterForDelete is the smallest roster allowed to delete students.
const MinRosterForDelete = 3

// RosterEntry is one student as listed by a franchise's roster.
type RosterEntry struct {
	FirstName string
	LastName  string
	Grade     string
	Portal    string
	Username  string
	Password  string
	// nil keeps the stored pictures
	AuthImages []string
	// nil keeps the stored value, new students default to good
	PasswordGood *bool
	// nil keeps the stored school year
	YearStart *string
	YearEnd   *string
}

func rosterKey(first, last string) string {
	return strings.ToLower(textutil.CollapseSpace(first)) + "\x00" + strings.ToLower(textutil.CollapseSpace(last))
}

func (e RosterEntry) key() string {
	return rosterKey(e.FirstName, e.LastName)
}

// apply returns st with the roster's values written over it.
func (e RosterEntry) apply(st Student) (Student, error) {
	st.Grade = textutil.CollapseSpace(e.Grade)
	st.Portal = textutil.CollapseSpace(e.Portal)
	st.Username = strings.TrimSpace(e.Username)
	st.Password = strings.TrimSpace(e.Password)
	if e.AuthImages != nil {
		encoded, err := json.Marshal(e.AuthImages)
		if err != nil {
			return st, err
		}
		st.AuthImages = string(encoded)
	}
	if e.PasswordGood != nil {
		st.PasswordGood = *e.PasswordGood
	}
	if e.YearStart != nil {
		st.YearStart = e.YearStart
	}
	if e.YearEnd != nil {
		st.YearEnd = e.YearEnd
	}
	return st, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func rosterChanged(a, b Student) bool {
	return a.Grade != b.Grade ||
		a.Portal != b.Portal ||
		a.Username != b.Username ||
		a.Password != b.Password ||
		a.AuthImages != b.AuthImages ||
		a.PasswordGood != b.PasswordGood ||
		deref(a.YearStart) != deref(b.YearStart) ||
		deref(a.YearEnd) != deref(b.YearEnd)
}

// RosterStats counts what SyncRoster did.
type RosterStats struct {
	Inserted  int
	Updated   int
	Unchanged int
	Deleted   int
	// Duplicates counts entries naming a student already seen earlier in
	// the roster, only the first one is used.
	Duplicates int
	// DeletesSkipped is set when the roster was too short to delete.
	DeletesSkipped bool
}

// SyncRoster makes the students of a franchise match its roster in one
// transaction. Students are matched by first and last name, ignoring case
// and extra whitespace. Students missing from the roster are only deleted
// when it has at least minForDelete entries, an empty roster changes
// nothing. Weekly grades of kept students are never touched.
func (s Store) SyncRoster(ctx context.Context, franchiseID int64, entries []RosterEntry, minForDelete int) (RosterStats, error) {
	var stats RosterStats
	if len(entries) == 0 {
		stats.DeletesSkipped = true
		return stats, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	var existing []Student
	err = tx.SelectContext(
		ctx, &existing,
		tx.Rebind(`SELECT `+studentColumns+` FROM student WHERE franchise_id = ? ORDER BY id`),
		franchiseID,
	)
	if err != nil {
		return stats, fmt.Errorf("list students of franchise %d: %w", franchiseID, err)
	}
	stored := make(map[string]Student, len(existing))
	for _, st := range existing {
		key := rosterKey(st.FirstName, st.LastName)
		if _, ok := stored[key]; !ok {
			stored[key] = st
		}
	}

	var lastID int64
	err = tx.GetContext(ctx, &lastID, `SELECT COALESCE(MAX(id), 0) FROM student`)
	if err != nil {
		return stats, fmt.Errorf("next student id: %w", err)
	}

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		key := entry.key()
		if seen[key] {
			stats.Duplicates++
			continue
		}
		seen[key] = true

		current, ok := stored[key]
		if !ok {
			lastID++
			st, err := entry.apply(Student{
				ID:           lastID,
				FranchiseID:  &franchiseID,
				FirstName:    textutil.CollapseSpace(entry.FirstName),
				LastName:     textutil.CollapseSpace(entry.LastName),
				AuthImages:   "[]",
				PasswordGood: true,
				WeeklyJSON:   "{}",
			})
			if err != nil {
				return stats, err
			}
			_, err = tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO student (`+studentColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				st.ID, st.FranchiseID, st.FirstName, st.LastName, st.Grade, st.Portal,
				st.Username, st.Password, st.AuthImages, boolInt(st.PasswordGood),
				st.YearStart, st.YearEnd, st.WeeklyJSON,
			)
			if err != nil {
				return stats, fmt.Errorf("insert %s: %w", st.DisplayName(), err)
			}
			stats.Inserted++
			continue
		}

		next, err := entry.apply(current)
		if err != nil {
			return stats, err
		}
		if !rosterChanged(current, next) {
			stats.Unchanged++
			continue
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			UPDATE student SET
				grade = ?, portal = ?, username = ?, password = ?, auth_images = ?,
				password_good = ?, year_start = ?, year_end = ?
			WHERE id = ?`),
			next.Grade, next.Portal, next.Username, next.Password, next.AuthImages,
			boolInt(next.PasswordGood), next.YearStart, next.YearEnd, next.ID,
		)
		if err != nil {
			return stats, fmt.Errorf("update student %d: %w", next.ID, err)
		}
		stats.Updated++
	}

	if len(entries) < minForDelete {
		stats.DeletesSkipped = true
		slog.WarnContext(ctx, "roster too short to delete students", "franchise_id", franchiseID, "entries", len(entries), "min", minForDelete)
	} else {
		for _, st := range existing {
			if seen[rosterKey(st.FirstName, st.LastName)] {
				continue
			}
			_, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM student WHERE id = ?`), st.ID)
			if err != nil {
				return stats, fmt.Errorf("delete student %d: %w", st.ID, err)
			}
			stats.Deleted++
		}
	}

	err = tx.Commit()
	if err != nil {
		return stats, err
	}
	return stats, nil
}
