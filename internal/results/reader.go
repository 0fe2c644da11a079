package results

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// SkipFunc is told about every line Read could not decode.
type SkipFunc func(line int, err error)

// Read decodes a results file. Blank lines are ignored, lines that aren't
// valid results are passed to onSkip (when non-nil) and left out.
func Read(r io.Reader, onSkip SkipFunc) ([]JobResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []JobResult
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var result JobResult
		err := json.Unmarshal(raw, &result)
		if err == nil && result.Outcome != Success && result.Outcome != Failure {
			err = fmt.Errorf("unknown outcome %q", result.Outcome)
		}
		if err != nil {
			if onSkip != nil {
				onSkip(line, err)
			}
			continue
		}
		out = append(out, result)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("read results: %w", err)
	}
	return out, nil
}

func ReadFile(path string, onSkip SkipFunc) ([]JobResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, onSkip)
}
