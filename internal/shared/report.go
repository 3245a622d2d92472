package shared

import "sync"

// BatchFailure describes one sub-batch that could not be written.
type BatchFailure struct {
	Op     string `json:"op"`
	Batch  int    `json:"batch"`
	Rows   int    `json:"rows"`
	Reason string `json:"reason"`
}

// BatchReport collects the outcome of chunked writes. A report with failures is a
// valid terminal state; callers decide whether to retry the failed subset.
type BatchReport struct {
	mu        sync.Mutex
	Succeeded int            `json:"succeeded"`
	Failures  []BatchFailure `json:"failures"`
}

// Success records rows written by a successful sub-batch.
func (r *BatchReport) Success(rows int) {
	r.mu.Lock()
	r.Succeeded += rows
	r.mu.Unlock()
}

// Fail records a failed sub-batch.
func (r *BatchReport) Fail(op string, batch, rows int, err error) {
	r.mu.Lock()
	r.Failures = append(r.Failures, BatchFailure{Op: op, Batch: batch, Rows: rows, Reason: err.Error()})
	r.mu.Unlock()
}

// OK reports whether every sub-batch succeeded.
func (r *BatchReport) OK() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Failures) == 0
}

// ImportReport is returned by bulk imports and pick-list generation.
type ImportReport struct {
	OK            bool     `json:"ok"`
	ImportedCount int      `json:"imported_count"`
	TotalCount    int      `json:"total_count"`
	Errors        []string `json:"errors"`
}

// Chunk splits n items into [start,end) windows of at most size.
func Chunk(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// SyncReport summarises one reconciliation pass over production rows.
type SyncReport struct {
	Inserted int            `json:"inserted"`
	Updated  int            `json:"updated"`
	Deleted  int            `json:"deleted"`
	Logged   int            `json:"logged"`
	Failures []BatchFailure `json:"failures,omitempty"`
}

// OK reports whether every batch of the pass succeeded.
func (r SyncReport) OK() bool { return len(r.Failures) == 0 }
