package results

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Sink receives results as jobs finish.
type Sink interface {
	Write(result JobResult) error
}

// Writer writes one JSON object per line, each line is flushed before
// Write returns. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	buf *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{buf: bufio.NewWriter(w)}
}

func (w *Writer) Write(result JobResult) error {
	line, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", result.JobID, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	_, err = w.buf.Write(append(line, '\n'))
	if err != nil {
		return err
	}
	return w.buf.Flush()
}

// FileSink is a Writer over a file it owns.
type FileSink struct {
	*Writer
	file *os.File
}

// Create truncates (or creates) the results file at path, creating its
// parent directories.
func Create(path string) (*FileSink, error) {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileSink{Writer: NewWriter(f), file: f}, nil
}

func (s *FileSink) Path() string {
	return s.file.Name()
}

func (s *FileSink) Close() error {
	return s.file.Close()
}

// Collector keeps results in memory.
type Collector struct {
	mu      sync.Mutex
	results []JobResult
}

func (c *Collector) Write(result JobResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
	return nil
}

func (c *Collector) Results() []JobResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]JobResult, len(c.results))
	copy(out, c.results)
	return out
}
