package testutil

import (
	"context"
	"fmt"
	"testing"

	"portalgrades/lib/configutil/sqlconfig"
	"portalgrades/lib/telemetry"

	"github.com/jmoiron/sqlx"
)

type ServiceParams struct {
	Name string
	// if unspecified, it will skip setting up a db
	DbSchema string
	// if unspecified, it will use `:memory:`
	DbPath string
}

type ServiceResult struct {
	DB *sqlx.DB
}

// SetupService initializes telemetry for the test and, when a schema is
// given, a fresh sqlite database with that schema applied.
func SetupService(t testing.TB, params ServiceParams) ServiceResult {
	t.Helper()

	cleanup := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", params.Name))
	t.Cleanup(cleanup)

	if params.DbSchema == "" {
		return ServiceResult{}
	}

	dbpath := params.DbPath
	if dbpath == "" {
		dbpath = ":memory:"
	}
	db, err := sqlconfig.Struct{
		Driver: sqlconfig.DriverSqlite,
		Dsn:    dbpath,
	}.OpenDB(context.Background(), params.DbSchema)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	return ServiceResult{DB: db}
}
