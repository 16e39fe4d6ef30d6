// Package model defines the rows, results and run records shared by the
// annotation pipeline.
package model

import "time"

// Row is one unit of input: an identifier (typically a meeting date) and the
// minutes text to annotate.
type Row struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Usage tracks token consumption for a single provider call.
type Usage struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheWriteTokens int64 `json:"cache_write_tokens,omitempty"`
	CacheReadTokens  int64 `json:"cache_read_tokens,omitempty"`
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:      u.InputTokens + o.InputTokens,
		OutputTokens:     u.OutputTokens + o.OutputTokens,
		CacheWriteTokens: u.CacheWriteTokens + o.CacheWriteTokens,
		CacheReadTokens:  u.CacheReadTokens + o.CacheReadTokens,
	}
}

// Total returns all tokens billed for the call.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheWriteTokens + u.CacheReadTokens
}

// Result is the outcome for one row. Exactly one of Annotation and Error is
// non-nil.
type Result struct {
	ID         string  `json:"id"`
	Annotation *string `json:"annotation"`
	Error      *string `json:"error"`
	Kind       string  `json:"kind,omitempty"` // failure class; empty on success
	StopReason string  `json:"stop_reason,omitempty"`
	Usage      Usage   `json:"usage"`
}

// Succeeded reports whether the row produced an annotation.
func (r Result) Succeeded() bool {
	return r.Annotation != nil
}

// Success builds a successful result.
func Success(id, annotation string, usage Usage) Result {
	return Result{ID: id, Annotation: &annotation, Usage: usage}
}

// Failure builds a failed result carrying the given detail.
func Failure(id, detail string, usage Usage) Result {
	return Result{ID: id, Error: &detail, Usage: usage}
}

// Table is the ordered result set of a run; index i corresponds to input row i.
type Table []Result

// Counts returns the number of succeeded and failed rows.
func (t Table) Counts() (succeeded, failed int) {
	for _, r := range t {
		if r.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Usage sums token usage across all rows.
func (t Table) Usage() Usage {
	var u Usage
	for _, r := range t {
		u = u.Add(r.Usage)
	}
	return u
}

// Run summarizes one invocation of the pipeline.
type Run struct {
	ID         string    `json:"id"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	InputPath  string    `json:"input_path"`
	OutputPath string    `json:"output_path"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Usage      Usage     `json:"usage"`
	Cost       float64   `json:"cost"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
