// Package export renders stored weekly grades into an XLSX workbook with
// one sheet per franchise.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"portalgrades/internal/aggregate"
	"portalgrades/internal/store"

	"github.com/xuri/excelize/v2"
)

const (
	// UnassignedSheet holds students without a franchise.
	UnassignedSheet = "Unassigned"
	InvalidEntry    = "invalid entry, check credentials"
)

// Source is the part of the store the exporter reads.
type Source interface {
	ListFranchises(ctx context.Context) ([]store.Franchise, error)
	ListStudents(ctx context.Context, franchiseID *int64) ([]store.Student, error)
}

// Weeks returns every week any of the students has grades for, sorted.
func Weeks(students []store.Student) []string {
	seen := map[string]bool{}
	var out []string
	for _, st := range students {
		for week := range st.Weekly() {
			if !seen[week] {
				seen[week] = true
				out = append(out, week)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Header is the first row of every sheet.
func Header(weeks []string) []any {
	row := []any{"StudentID", "Field", "Value"}
	for _, w := range weeks {
		row = append(row, w)
	}
	return row
}

func cellValue(v aggregate.GradeValue) any {
	if pct, ok := v.Percentage(); ok {
		return pct
	}
	if letter, ok := v.Letter(); ok {
		return letter
	}
	return ""
}

// Block returns the rows of one student: the meta rows, two blank rows and
// one row per subject with a column per week. Students with bad
// credentials get an error row instead of their grades.
func Block(st store.Student, weeks []string) [][]any {
	id := st.ID
	row := func(field string, value any) []any {
		return []any{id, field, value}
	}

	rows := [][]any{
		row("Name", st.DisplayName()),
		row("Grade", st.Grade),
		row("Portal", st.Portal),
		row("Username", st.Username),
	}

	if !st.PasswordGood {
		return append(rows,
			row("Error", InvalidEntry),
			row("", ""),
			row("", ""),
		)
	}
	rows = append(rows, row("", ""), row("", ""))

	weekly := st.Weekly()
	for i, subject := range weekly.Subjects() {
		r := row(fmt.Sprintf("Subject%d", i+1), subject)
		for _, week := range weeks {
			value, ok := weekly[week][subject]
			if !ok {
				r = append(r, "")
				continue
			}
			r = append(r, cellValue(value))
		}
		rows = append(rows, r)
	}
	return rows
}

var sheetNameReplacer = strings.NewReplacer(
	"[", "(", "]", ")", ":", "-", "*", "-", "?", "", "/", "-", "\\", "-",
)

// SheetName makes a franchise name usable as a worksheet name.
func SheetName(f store.Franchise) string {
	name := strings.TrimSpace(sheetNameReplacer.Replace(f.Name))
	if name == "" {
		name = fmt.Sprintf("Franchise %d", f.ID)
	}
	if runes := []rune(name); len(runes) > excelize.MaxSheetNameLength {
		name = string(runes[:excelize.MaxSheetNameLength])
	}
	return name
}

type sheet struct {
	name     string
	students []store.Student
}

func writeSheet(f *excelize.File, s sheet) error {
	_, err := f.NewSheet(s.name)
	if err != nil {
		return fmt.Errorf("new sheet '%s': %w", s.name, err)
	}

	weeks := Weeks(s.students)
	rows := [][]any{Header(weeks)}
	for _, st := range s.students {
		rows = append(rows, Block(st, weeks)...)
	}

	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		err := f.SetSheetRow(s.name, cell, &r)
		if err != nil {
			return fmt.Errorf("write row %d of '%s': %w", i+1, s.name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	_ = f.SetRowStyle(s.name, 1, 1, bold)
	_ = f.SetColWidth(s.name, "A", "B", 12)
	_ = f.SetColWidth(s.name, "C", "C", 28)
	return nil
}

// Workbook builds the workbook from the given students, grouped by
// franchise in the order of franchises. Students of unknown franchises end
// up on the unassigned sheet.
func Workbook(franchises []store.Franchise, students []store.Student) (*excelize.File, error) {
	var sheets []*sheet
	byID := map[int64]*sheet{}
	used := map[string]int{}
	for _, fr := range franchises {
		name := SheetName(fr)
		used[name]++
		if n := used[name]; n > 1 {
			name = fmt.Sprintf("%s (%d)", name, n)
		}
		s := &sheet{name: name}
		byID[fr.ID] = s
		sheets = append(sheets, s)
	}
	unassigned := &sheet{name: UnassignedSheet}

	for _, st := range students {
		if st.FranchiseID != nil {
			if s, ok := byID[*st.FranchiseID]; ok {
				s.students = append(s.students, st)
				continue
			}
		}
		unassigned.students = append(unassigned.students, st)
	}
	if len(unassigned.students) > 0 {
		sheets = append(sheets, unassigned)
	}

	f := excelize.NewFile()
	for _, s := range sheets {
		err := writeSheet(f, *s)
		if err != nil {
			f.Close()
			return nil, err
		}
	}

	if len(sheets) > 0 {
		err := f.DeleteSheet("Sheet1")
		if err != nil {
			f.Close()
			return nil, err
		}
		index, _ := f.GetSheetIndex(sheets[0].name)
		f.SetActiveSheet(index)
	}
	return f, nil
}

type Options struct {
	// FranchiseID limits the export to a single franchise when set.
	FranchiseID *int64
}

// Write reads everything from src and writes the workbook to w.
func Write(ctx context.Context, src Source, w io.Writer, opts Options) error {
	start := time.Now()

	franchises, err := src.ListFranchises(ctx)
	if err != nil {
		return err
	}
	if opts.FranchiseID != nil {
		var kept []store.Franchise
		for _, fr := range franchises {
			if fr.ID == *opts.FranchiseID {
				kept = append(kept, fr)
			}
		}
		if len(kept) == 0 {
			return fmt.Errorf("franchise %d does not exist", *opts.FranchiseID)
		}
		franchises = kept
	}

	students, err := src.ListStudents(ctx, opts.FranchiseID)
	if err != nil {
		return err
	}

	f, err := Workbook(franchises, students)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteTo(w)
	if err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}

	slog.InfoContext(ctx, "export.xlsx.ok",
		"franchises", len(franchises),
		"students", len(students),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
