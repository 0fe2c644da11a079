package store

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"portalgrades/internal/aggregate"
	"portalgrades/internal/results"
	"portalgrades/lib/configutil/sqlconfig"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestPostgres runs the store against a real postgres, it needs docker and
// PORTALGRADES_IT=1.
func TestPostgres(t *testing.T) {
	if os.Getenv("PORTALGRADES_IT") != "1" {
		t.Skip("set PORTALGRADES_IT=1 to run integration tests")
	}
	ctx := context.Background()

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "portalgrades",
				"POSTGRES_PASSWORD": "portalgrades",
				"POSTGRES_DB":       "portalgrades",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		err := pg.Terminate(context.Background())
		if err != nil {
			t.Log("terminate postgres:", err)
		}
	})

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432")
	require.NoError(t, err)

	s, err := Open(ctx, sqlconfig.Struct{
		Driver: sqlconfig.DriverPgx,
		Dsn:    fmt.Sprintf("postgres://portalgrades:portalgrades@%s:%s/portalgrades?sslmode=disable", host, port.Port()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	seed(t, s)

	jobs, err := s.ListJobs(ctx, JobFilter{Now: today})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	require.NoError(t, s.SetCredentialHealth(ctx, 1, false))
	stats, err := s.InsertWeekly(ctx, today, []results.JobResult{
		success(3, aggregate.GradeSnapshot{"MATH": aggregate.Percentage(88)}),
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Updated)

	st, err := s.GetStudent(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"MATH"}, st.Weekly().Subjects())
}
