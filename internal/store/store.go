// Package store keeps students, their portal credentials and their weekly
// grades in a SQL database (sqlite, libsql or postgres).
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"portalgrades/internal/aggregate"
	"portalgrades/internal/portal"
	"portalgrades/lib/configutil/sqlconfig"

	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var Schema string

var ErrStudentNotFound = errors.New("student not found")

type Franchise struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// WeeklyData maps the monday of a week (YYYY-MM-DD) to the grades seen
// that week.
type WeeklyData map[string]aggregate.GradeSnapshot

// Weeks returns the week keys, sorted.
func (w WeeklyData) Weeks() []string {
	out := make([]string, 0, len(w))
	for week := range w {
		out = append(out, week)
	}
	sort.Strings(out)
	return out
}

// Subjects returns every subject seen in any week, sorted.
func (w WeeklyData) Subjects() []string {
	seen := map[string]bool{}
	var out []string
	for _, snapshot := range w {
		for subject := range snapshot {
			if !seen[subject] {
				seen[subject] = true
				out = append(out, subject)
			}
		}
	}
	sort.Strings(out)
	return out
}

type Student struct {
	ID           int64   `db:"id"`
	FranchiseID  *int64  `db:"franchise_id"`
	FirstName    string  `db:"first_name"`
	LastName     string  `db:"last_name"`
	Grade        string  `db:"grade"`
	Portal       string  `db:"portal"`
	Username     string  `db:"username"`
	Password     string  `db:"password"`
	AuthImages   string  `db:"auth_images"`
	PasswordGood bool    `db:"password_good"`
	YearStart    *string `db:"year_start"`
	YearEnd      *string `db:"year_end"`
	WeeklyJSON   string  `db:"weekly_data"`
}

func (s Student) DisplayName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Pictures decodes AuthImages, malformed values decode to nothing.
func (s Student) Pictures() []string {
	var out []string
	if strings.TrimSpace(s.AuthImages) == "" {
		return nil
	}
	err := json.Unmarshal([]byte(s.AuthImages), &out)
	if err != nil {
		slog.Warn("malformed auth_images", "student", s.ID, "err", err)
		return nil
	}
	return out
}

// Weekly decodes WeeklyJSON, malformed values decode to an empty map.
func (s Student) Weekly() WeeklyData {
	out := WeeklyData{}
	if strings.TrimSpace(s.WeeklyJSON) == "" {
		return out
	}
	err := json.Unmarshal([]byte(s.WeeklyJSON), &out)
	if err != nil {
		slog.Warn("malformed weekly_data", "student", s.ID, "err", err)
		return WeeklyData{}
	}
	return out
}

func (s Student) Job() portal.StudentJob {
	return portal.StudentJob{
		DatabaseID:  s.ID,
		DisplayName: s.DisplayName(),
		Credentials: portal.Credentials{
			Username: s.Username,
			Secret:   s.Password,
		},
		PortalKey:            s.Portal,
		AuxiliaryAuthFactors: s.Pictures(),
		FranchiseID:          s.FranchiseID,
	}
}

type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Store {
	return Store{db: db}
}

// Open opens the configured database and makes sure the schema exists.
func Open(ctx context.Context, config sqlconfig.Struct) (Store, error) {
	db, err := config.OpenDB(ctx, Schema)
	if err != nil {
		return Store{}, err
	}
	return New(db), nil
}

func (s Store) DB() *sqlx.DB {
	return s.db
}

func (s Store) Close() error {
	return s.db.Close()
}

const studentColumns = `id, franchise_id, first_name, last_name, grade, portal, username, password,
	auth_images, password_good, year_start, year_end, weekly_data`

type JobFilter struct {
	// Now decides which students are within their active school year.
	Now time.Time
	// FranchiseID restricts the jobs to one franchise when set.
	FranchiseID *int64
}

// ListJobs returns a job for every student with good credentials whose
// school year includes filter.Now.
func (s Store) ListJobs(ctx context.Context, filter JobFilter) ([]portal.StudentJob, error) {
	if filter.Now.IsZero() {
		return nil, fmt.Errorf("list jobs: filter has no reference time")
	}
	today := filter.Now.Format(time.DateOnly)

	query := `SELECT ` + studentColumns + ` FROM student
		WHERE password_good = 1
		AND (year_start IS NULL OR year_start = '' OR year_start <= ?)
		AND (year_end IS NULL OR year_end = '' OR ? <= year_end)`
	args := []any{today, today}
	if filter.FranchiseID != nil {
		query += ` AND franchise_id = ?`
		args = append(args, *filter.FranchiseID)
	}
	query += ` ORDER BY id`

	var students []Student
	err := s.db.SelectContext(ctx, &students, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]portal.StudentJob, len(students))
	for i, st := range students {
		jobs[i] = st.Job()
	}
	return jobs, nil
}

// SetCredentialHealth records whether the student's credentials work.
func (s Store) SetCredentialHealth(ctx context.Context, dbID int64, healthy bool) error {
	res, err := s.db.ExecContext(
		ctx,
		s.db.Rebind(`UPDATE student SET password_good = ? WHERE id = ?`),
		boolInt(healthy), dbID,
	)
	if err != nil {
		return fmt.Errorf("set credential health of %d: %w", dbID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("set credential health of %d: %w", dbID, ErrStudentNotFound)
	}
	return nil
}

func (s Store) GetStudent(ctx context.Context, id int64) (Student, error) {
	var st Student
	err := s.db.GetContext(ctx, &st, s.db.Rebind(`SELECT `+studentColumns+` FROM student WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, fmt.Errorf("student %d: %w", id, ErrStudentNotFound)
	}
	return st, err
}

// ListStudents returns every student (of one franchise when franchiseID is
// set), ordered by first name then grade.
func (s Store) ListStudents(ctx context.Context, franchiseID *int64) ([]Student, error) {
	query := `SELECT ` + studentColumns + ` FROM student`
	var args []any
	if franchiseID != nil {
		query += ` WHERE franchise_id = ?`
		args = append(args, *franchiseID)
	}
	query += ` ORDER BY first_name ASC, grade ASC, id ASC`

	var students []Student
	err := s.db.SelectContext(ctx, &students, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// PutStudent inserts or replaces a student. Weekly data of an existing
// student is kept when st.WeeklyJSON is empty.
func (s Store) PutStudent(ctx context.Context, st Student) error {
	if st.AuthImages == "" {
		st.AuthImages = "[]"
	}
	weekly := st.WeeklyJSON
	if weekly == "" {
		weekly = "{}"
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO student (`+studentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			franchise_id = excluded.franchise_id,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			grade = excluded.grade,
			portal = excluded.portal,
			username = excluded.username,
			password = excluded.password,
			auth_images = excluded.auth_images,
			password_good = excluded.password_good,
			year_start = excluded.year_start,
			year_end = excluded.year_end`+keepWeekly(st.WeeklyJSON)),
		st.ID, st.FranchiseID, st.FirstName, st.LastName, st.Grade, st.Portal,
		st.Username, st.Password, st.AuthImages, boolInt(st.PasswordGood),
		st.YearStart, st.YearEnd, weekly,
	)
	if err != nil {
		return fmt.Errorf("put student %d: %w", st.ID, err)
	}
	return nil
}

func keepWeekly(weekly string) string {
	if weekly == "" {
		return ""
	}
	return `,
			weekly_data = excluded.weekly_data`
}

func (s Store) PutFranchise(ctx context.Context, f Franchise) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO franchise (id, name) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`),
		f.ID, f.Name,
	)
	if err != nil {
		return fmt.Errorf("put franchise %d: %w", f.ID, err)
	}
	return nil
}

func (s Store) ListFranchises(ctx context.Context) ([]Franchise, error) {
	var out []Franchise
	err := s.db.SelectContext(ctx, &out, `SELECT id, name FROM franchise ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list franchises: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
