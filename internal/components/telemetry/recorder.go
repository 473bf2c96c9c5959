package telemetry

import (
	"strings"
	"sync"
)

// Report is a single call made against a Recorder.
type Report struct {
	Kind   string
	Id     string
	Params []any
}

// Recorder is an API that keeps every report in memory, it is used to assert
// that components report the things they are supposed to.
type Recorder struct {
	lock    sync.Mutex
	reports []Report
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(kind, id string, params []any) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.reports = append(r.reports, Report{Kind: kind, Id: id, Params: params})
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.add("broken", id, params)
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.add("warning", id, params)
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.add("debug", msg, params)
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.add("count", id, []any{count})
}

// Reports returns the reports of the given kind ("broken", "warning", "debug",
// "count"), or all of them when kind is empty.
func (r *Recorder) Reports(kind string) []Report {
	r.lock.Lock()
	defer r.lock.Unlock()

	var out []Report
	for _, report := range r.reports {
		if kind == "" || report.Kind == kind {
			out = append(out, report)
		}
	}
	return out
}

// Broken returns the ids of every ReportBroken call containing `substr`.
func (r *Recorder) Broken(substr string) []string {
	return r.ids("broken", substr)
}

// Warnings returns the ids of every ReportWarning call containing `substr`.
func (r *Recorder) Warnings(substr string) []string {
	return r.ids("warning", substr)
}

func (r *Recorder) ids(kind, substr string) []string {
	var ids []string
	for _, report := range r.Reports(kind) {
		if strings.Contains(report.Id, substr) {
			ids = append(ids, report.Id)
		}
	}
	return ids
}
