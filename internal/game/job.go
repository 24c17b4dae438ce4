package game

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Job is one input file waiting to be scraped. A job is handled by exactly one
// worker, so the trace needs no locking.
type Job struct {
	Path  string // Absolute path of the ROM
	Name  string // Base filename including extension
	trace []string
}

// NewJob creates a job for the file at path.
func NewJob(path string) *Job {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Job{Path: path, Name: filepath.Base(path)}
}

// BaseName returns the filename without its final extension.
func (j *Job) BaseName() string {
	return strings.TrimSuffix(j.Name, filepath.Ext(j.Name))
}

// Tracef appends a diagnostic note to the job trace.
func (j *Job) Tracef(format string, args ...any) {
	j.trace = append(j.trace, fmt.Sprintf(format, args...))
}

// Trace returns the notes collected so far, in order.
func (j *Job) Trace() []string {
	out := make([]string, len(j.trace))
	copy(out, j.trace)
	return out
}

// TraceText joins the trace into one newline separated block.
func (j *Job) TraceText() string {
	return strings.Join(j.trace, "\n")
}
