package telemetry

import "sync"

type Report struct {
	Kind   string
	ID     string
	Params []any
}

// MemoryAPI records every report, tests use it to assert that something
// was (or wasn't) reported.
type MemoryAPI struct {
	mu      sync.Mutex
	reports []Report
}

func (m *MemoryAPI) add(kind, id string, params []any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, Report{Kind: kind, ID: id, Params: params})
}

func (m *MemoryAPI) ReportBroken(id string, params ...any) {
	m.add("broken", id, params)
}

func (m *MemoryAPI) ReportWarning(id string, params ...any) {
	m.add("warning", id, params)
}

func (m *MemoryAPI) ReportDebug(msg string, params ...any) {
	m.add("debug", msg, params)
}

func (m *MemoryAPI) ReportCount(id string, count int64) {
	m.add("count", id, []any{count})
}

// Find returns the reports of the given kind with the given id.
func (m *MemoryAPI) Find(kind, id string) []Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Report
	for _, r := range m.reports {
		if r.Kind == kind && r.ID == id {
			out = append(out, r)
		}
	}
	return out
}
