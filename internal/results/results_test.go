package results

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"portalgrades/internal/aggregate"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestWriterLineFormat(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	started := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	result := JobResult{
		RunID:      "run",
		JobID:      "gps/12",
		DatabaseID: 12,
		Portal:     "gps",
		Attempts:   1,
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
	}
	result.Succeed(aggregate.GradeSnapshot{
		"MATH": aggregate.Percentage(88),
		"ART":  aggregate.Letter("B"),
	})
	require.NoError(t, w.Write(result))

	require.Equal(t,
		`{"run_id":"run","job_id":"gps/12","db_id":12,"portal":"gps","outcome":"success",`+
			`"subjects":{"ART":"B","MATH":88},"attempts":1,`+
			`"started_at":"2024-03-11T09:00:00Z","finished_at":"2024-03-11T09:00:01Z"}`+"\n",
		buf.String(),
	)
}

func TestFailureOmitsSubjects(t *testing.T) {
	var buf bytes.Buffer
	result := JobResult{JobID: "gps/1", Subjects: aggregate.GradeSnapshot{"A": aggregate.Letter("A")}}
	result.Fail(KindAuthentication, errors.New("rejected"))
	require.NoError(t, NewWriter(&buf).Write(result))

	line := buf.String()
	require.NotContains(t, line, "subjects")
	require.Contains(t, line, `"failure":{"kind":"authentication","message":"rejected"}`)
}

func TestConcurrentWritesKeepLinesWhole(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result := JobResult{JobID: strings.Repeat("x", i+1), DatabaseID: int64(i)}
			result.Succeed(aggregate.GradeSnapshot{"S": aggregate.Percentage(float64(i))})
			require.NoError(t, w.Write(result))
		}(i)
	}
	wg.Wait()

	read, err := Read(&buf, func(line int, err error) {
		t.Errorf("line %d: %v", line, err)
	})
	require.NoError(t, err)
	require.Len(t, read, 50)
}

func TestRoundTripThroughFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "grades.jsonl")
	sink, err := Create(path)
	require.NoError(t, err)

	ok := JobResult{JobID: "a/1", DatabaseID: 1, Portal: "a"}
	ok.Succeed(aggregate.GradeSnapshot{"MATH": aggregate.Percentage(91.5)})
	failed := JobResult{JobID: "a/2", DatabaseID: 2, Portal: "a"}
	failed.Fail(KindTransient, errors.New("timeout"))

	require.NoError(t, sink.Write(ok))
	require.NoError(t, sink.Write(failed))
	require.NoError(t, sink.Close())

	read, err := ReadFile(path, nil)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff([]JobResult{ok, failed}, read))
}

func TestReadSkipsBadLines(t *testing.T) {
	input := strings.Join([]string{
		`{"job_id":"a/1","db_id":1,"outcome":"success","subjects":{"MATH":90}}`,
		``,
		`not json`,
		`{"student_id":"legacy","error":"boom"}`,
		`{"job_id":"a/2","db_id":2,"outcome":"failure","failure":{"kind":"transient","message":"x"}}`,
	}, "\n")

	var skipped []int
	read, err := Read(strings.NewReader(input), func(line int, err error) {
		skipped = append(skipped, line)
	})
	require.NoError(t, err)
	require.Equal(t, []int{3, 4}, skipped)
	require.Len(t, read, 2)
	require.True(t, read[0].Succeeded())
	require.False(t, read[1].Succeeded())
}
