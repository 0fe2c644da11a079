package main

import (
	"context"
	"path/filepath"
	"testing"

	"portalgrades/internal/store"
	"portalgrades/lib/testutil"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeRoster(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "LoginMaster"))
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("LoginMaster", cell, &r))
	}
	path := filepath.Join(t.TempDir(), "roster.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestImportRoster(t *testing.T) {
	res := testutil.SetupService(t, testutil.ServiceParams{Name: "import", DbSchema: store.Schema})
	db := store.New(res.DB)
	ctx := context.Background()

	path := writeRoster(t, [][]any{
		{"FirstName", "LastName", "Grade", "Portal1", "P1Username", "P1Password"},
		{"Jane", "Doe", "9", "gps", "jdoe", "pw"},
		{"Marcus", "Doe", "7", "studentvue_husd", "123", "pw"},
	})

	err := importRoster(ctx, db, 4, path, importOptions{minDelete: store.MinRosterForDelete})
	require.ErrorContains(t, err, "franchise 4 does not exist")

	err = importRoster(ctx, db, 4, path, importOptions{name: "Chandler", minDelete: store.MinRosterForDelete})
	require.NoError(t, err)

	franchises, err := db.ListFranchises(ctx)
	require.NoError(t, err)
	require.Equal(t, []store.Franchise{{ID: 4, Name: "Chandler"}}, franchises)

	id := int64(4)
	students, err := db.ListStudents(ctx, &id)
	require.NoError(t, err)
	require.Len(t, students, 2)
	require.Equal(t, "Jane Doe", students[0].DisplayName())
	require.Equal(t, "studentvue_husd", students[1].Portal)
}
