package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	devenv "portalgrades/dev/env"
	"portalgrades/internal/aggregate"
	"portalgrades/internal/results"
	"portalgrades/lib/timezone"

	"github.com/google/uuid"
)

const sampleResultsPath = "<dev_state>/results/sample.jsonl"

var actions = map[string]func() error{
	"apply-schema":   applySchema,
	"sample-results": writeSampleResults,
}

func actionNames() []string {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runAction(name string) error {
	fn, ok := actions[name]
	if !ok {
		return fmt.Errorf("'%s' is not an action, expected one of: %s", name, strings.Join(actionNames(), ", "))
	}
	return fn()
}

// applySchema diffs the dev database against internal/store/schema.sql
// with atlas and applies the difference.
func applySchema() error {
	db, err := devenv.ResolvePath(dbPath)
	if err != nil {
		return err
	}
	root, err := devenv.GetWorkspaceRoot()
	if err != nil {
		return err
	}
	schema := filepath.Join(root, "internal", "store", "schema.sql")

	cmd := exec.Command(
		"atlas", "schema", "apply",
		"-u", "sqlite://"+filepath.ToSlash(db),
		"--to", "file://"+filepath.ToSlash(schema),
		"--dev-url", "sqlite://dev?mode=memory",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	fmt.Printf("$ %s\n", strings.Join(cmd.Args, " "))

	err = cmd.Run()
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("atlas is not installed, see https://atlasgo.io/getting-started")
	}
	return err
}

// sampleResults mirrors a run over the seeded students: one success, one
// rejected login and one success.
func sampleResults(runID string, now time.Time) []results.JobResult {
	base := []results.JobResult{
		{DatabaseID: 1, Portal: "gps"},
		{DatabaseID: 2, Portal: "infinite_campus_parent_gilbert"},
		{DatabaseID: 3, Portal: "studentvue_husd"},
	}
	for i := range base {
		r := &base[i]
		r.RunID = runID
		r.JobID = fmt.Sprintf("%s/%d", r.Portal, r.DatabaseID)
		r.Attempts = 2
		r.StartedAt = now.Add(time.Duration(i) * time.Minute)
		r.FinishedAt = r.StartedAt.Add(20 * time.Second)
	}

	base[0].Succeed(aggregate.GradeSnapshot{
		"ALGEBRA I": aggregate.Percentage(86),
		"ENGLISH 9": aggregate.Letter("A-"),
	})
	base[1].Attempts = 1
	base[1].Fail(results.KindAuthentication, errors.New("incorrect username or password"))
	base[2].Succeed(aggregate.GradeSnapshot{
		"Chemistry":     aggregate.Percentage(91.2),
		"World History": aggregate.Letter("B"),
	})
	return base
}

// writeSampleResults writes a results file that 'portalgrades insert' can
// load into the seeded dev database.
func writeSampleResults() error {
	path, err := devenv.ResolvePath(sampleResultsPath)
	if err != nil {
		return err
	}
	sink, err := results.Create(path)
	if err != nil {
		return err
	}
	defer sink.Close()

	for _, r := range sampleResults(uuid.NewString(), timezone.Now()) {
		err := sink.Write(r)
		if err != nil {
			return err
		}
	}
	slog.Info("wrote sample results", "path", path)
	return sink.Close()
}
