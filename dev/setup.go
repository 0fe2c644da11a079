package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	devenv "portalgrades/dev/env"
	"portalgrades/internal/aggregate"
	"portalgrades/internal/store"
	"portalgrades/lib/configutil/sqlconfig"
	"portalgrades/lib/timezone"
)

const dbPath = "<dev_state>/portalgrades.db"

func ptr[T any](v T) *T {
	return &v
}

// CreateDB creates the dev database with the store schema, seeding it with
// demo franchises and students when asked to.
func CreateDB(seed bool) error {
	ctx := context.Background()

	s, err := store.Open(ctx, sqlconfig.Struct{Driver: sqlconfig.DriverSqlite, Dsn: dbPath})
	if err != nil {
		return err
	}
	defer s.Close()

	resolved, err := devenv.ResolvePath(dbPath)
	if err != nil {
		return err
	}
	fmt.Println("database ready at", resolved)

	if !seed {
		return nil
	}
	return seedDemo(ctx, s)
}

func seedDemo(ctx context.Context, s store.Store) error {
	franchises := []store.Franchise{
		{ID: 1, Name: "Gilbert"},
		{ID: 2, Name: "Henderson"},
	}
	for _, f := range franchises {
		err := s.PutFranchise(ctx, f)
		if err != nil {
			return err
		}
	}

	week := timezone.WeekAnchor(timezone.Now().AddDate(0, 0, -7))
	weekly, err := json.Marshal(store.WeeklyData{
		week: {
			"ALGEBRA I": aggregate.Percentage(84.5),
			"ENGLISH 9": aggregate.Letter("B+"),
		},
	})
	if err != nil {
		return err
	}

	students := []store.Student{
		{
			ID: 1, FranchiseID: ptr[int64](1), FirstName: "Demo", LastName: "Student", Grade: "9",
			Portal: "gps", Username: "demo.student", Password: "not-a-real-password",
			AuthImages: `["cat","tree","boat"]`, PasswordGood: true, WeeklyJSON: string(weekly),
		},
		{
			ID: 2, FranchiseID: ptr[int64](1), FirstName: "Second", LastName: "Student", Grade: "7",
			Portal: "infinite_campus_parent_gilbert", Username: "parent@example.com", Password: "not-a-real-password",
			PasswordGood: false,
		},
		{
			ID: 3, FranchiseID: ptr[int64](2), FirstName: "Third", LastName: "Student", Grade: "10",
			Portal: "studentvue_husd", Username: "123456", Password: "not-a-real-password",
			PasswordGood: true,
		},
	}
	for _, st := range students {
		err := s.PutStudent(ctx, st)
		if err != nil {
			return err
		}
	}
	slog.Info("seeded demo data", "franchises", len(franchises), "students", len(students))
	return nil
}

const localConfig = `{
  // written by 'go run ./dev', edit freely
  database: { driver: "sqlite", dsn: "<dev_state>/portalgrades.db" },
  output: { dir: "dev/.state/results" },
  browser: { dump_dir: "dev/.state/dumps" },
}
`

// WriteLocalConfig points the cli at the dev database unless a local
// config already exists.
func WriteLocalConfig() error {
	root, err := devenv.GetWorkspaceRoot()
	if err != nil {
		return err
	}
	path := filepath.Join(root, "config.local.json5")
	_, err = os.Stat(path)
	if err == nil {
		fmt.Println("local config already exists at", path)
		return nil
	}
	return os.WriteFile(path, []byte(localConfig), 0644)
}

func PrintConfigLocations() {
	slog.Info("the cli reads config.json5 and config.local.json5 from the repository root, PORTALGRADES_* environment variables override them.")
	slog.Info("set PORTALGRADES_IT=1 to run the integration tests that need docker.")
}
