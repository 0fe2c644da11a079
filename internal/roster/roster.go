// Package roster reads the LoginMaster sheet franchises keep their students
// and portal credentials in.
package roster

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"portalgrades/internal/store"
	"portalgrades/lib/textutil"

	"github.com/xuri/excelize/v2"
)

const SheetName = "LoginMaster"

var ErrNoSheet = errors.New("workbook has no " + SheetName + " sheet")

const (
	colFirst     = "first"
	colLast      = "last"
	colGrade     = "grade"
	colPortal    = "portal"
	colUsername  = "username"
	colPassword  = "password"
	colPortal2   = "portal2"
	colUsername2 = "username2"
	colPassword2 = "password2"
	colGood      = "good"
	colImages    = "images"
	colYearStart = "year_start"
	colYearEnd   = "year_end"
)

// headers maps normalized header cells to columns.
var headers = map[string]string{
	"firstname":    colFirst,
	"first":        colFirst,
	"lastname":     colLast,
	"last":         colLast,
	"grade":        colGrade,
	"portal":       colPortal,
	"portal1":      colPortal,
	"username":     colUsername,
	"p1username":   colUsername,
	"password":     colPassword,
	"p1password":   colPassword,
	"portal2":      colPortal2,
	"p2username":   colUsername2,
	"p2password":   colPassword2,
	"passwordgood": colGood,
	"authimages":   colImages,
	"pictures":     colImages,
	"yearstart":    colYearStart,
	"yearend":      colYearEnd,
}

var required = []string{colFirst, colPortal, colUsername, colPassword}

var dateLayouts = []string{time.DateOnly, "1/2/2006", "1/2/06", "01-02-06", "2006/01/02"}

func normalizeHeader(cell string) string {
	cell = strings.ToLower(strings.TrimSpace(cell))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(cell)
}

// Read parses the LoginMaster sheet of an xlsx workbook.
func Read(r io.Reader) ([]store.RosterEntry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := ""
	for _, name := range f.GetSheetList() {
		if strings.EqualFold(strings.TrimSpace(name), SheetName) {
			sheet = name
			break
		}
	}
	if sheet == "" {
		return nil, ErrNoSheet
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	return Parse(rows)
}

type row struct {
	cells   []string
	columns map[string]int
}

func (r row) has(col string) bool {
	_, ok := r.columns[col]
	return ok
}

func (r row) get(col string) string {
	i, ok := r.columns[col]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

// Parse turns sheet rows, header first, into roster entries. Rows without
// a name are skipped. A student without a first portal falls back to the
// second one.
func Parse(rows [][]string) ([]store.RosterEntry, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	columns := map[string]int{}
	for i, cell := range rows[0] {
		col, ok := headers[normalizeHeader(cell)]
		if !ok {
			continue
		}
		if _, dup := columns[col]; !dup {
			columns[col] = i
		}
	}
	for _, col := range required {
		if _, ok := columns[col]; !ok {
			return nil, fmt.Errorf("%s header has no %s column", SheetName, col)
		}
	}

	var out []store.RosterEntry
	for i, cells := range rows[1:] {
		r := row{cells: cells, columns: columns}
		entry, ok, err := parseRow(r)
		if err != nil {
			// sheet rows are 1-based and the header is row 1
			return nil, fmt.Errorf("%s row %d: %w", SheetName, i+2, err)
		}
		if ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

func parseRow(r row) (store.RosterEntry, bool, error) {
	entry := store.RosterEntry{
		FirstName: textutil.CollapseSpace(r.get(colFirst)),
		LastName:  textutil.CollapseSpace(r.get(colLast)),
		Grade:     r.get(colGrade),
		Portal:    r.get(colPortal),
		Username:  r.get(colUsername),
		Password:  r.get(colPassword),
	}
	if entry.FirstName == "" && entry.LastName == "" {
		return entry, false, nil
	}
	if entry.Portal == "" && r.get(colPortal2) != "" {
		entry.Portal = r.get(colPortal2)
		entry.Username = r.get(colUsername2)
		entry.Password = r.get(colPassword2)
	}

	if r.has(colGood) {
		good, err := parseGood(r.get(colGood))
		if err != nil {
			return entry, false, err
		}
		entry.PasswordGood = good
	}
	if r.has(colImages) {
		entry.AuthImages = parseImages(r.get(colImages))
	}
	dates := []struct {
		col string
		dst **string
	}{
		{colYearStart, &entry.YearStart},
		{colYearEnd, &entry.YearEnd},
	}
	for _, d := range dates {
		if !r.has(d.col) {
			continue
		}
		date, err := parseDate(r.get(d.col))
		if err != nil {
			return entry, false, fmt.Errorf("%s: %w", d.col, err)
		}
		*d.dst = &date
	}
	return entry, true, nil
}

// parseGood returns nil for a blank cell, the stored health is kept then.
func parseGood(cell string) (*bool, error) {
	var good bool
	switch strings.ToLower(cell) {
	case "":
		return nil, nil
	case "1", "true", "yes", "y", "x":
		good = true
	case "0", "false", "no", "n":
		good = false
	default:
		return nil, fmt.Errorf("PasswordGood '%s' is not a yes or no", cell)
	}
	return &good, nil
}

func parseImages(cell string) []string {
	out := []string{}
	for _, part := range strings.FieldsFunc(cell, func(r rune) bool { return r == ',' || r == ';' }) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDate normalizes a date cell to YYYY-MM-DD, a blank cell clears the
// date.
func parseDate(cell string) (string, error) {
	if cell == "" {
		return "", nil
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, cell)
		if err == nil {
			return t.Format(time.DateOnly), nil
		}
	}
	return "", fmt.Errorf("'%s' is not a date", cell)
}
