package resilience

import (
	"sync"
	"time"
)

// ErrorRecord captures one classified failure for the rolling log.
type ErrorRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Category  Category       `json:"category"`
	Severity  Severity       `json:"severity"`
	Retryable bool           `json:"retryable"`
	Source    string         `json:"source"`
	Operation string         `json:"operation"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ErrorLog is a bounded rolling log of classified failures plus
// aggregate counters. Records past the cap evict oldest-first; the
// counters keep the full totals.
type ErrorLog struct {
	mu       sync.Mutex
	capacity int
	records  []ErrorRecord
	start    int
	count    int

	byCategory map[Category]int
	bySource   map[string]int
}

// NewErrorLog creates a log holding at most capacity records.
func NewErrorLog(capacity int) *ErrorLog {
	if capacity <= 0 {
		capacity = 500
	}
	return &ErrorLog{
		capacity:   capacity,
		records:    make([]ErrorRecord, capacity),
		byCategory: make(map[Category]int),
		bySource:   make(map[string]int),
	}
}

// Record classifies err and appends a record for it.
func (l *ErrorLog) Record(source, op string, err error) ErrorRecord {
	cls := Classify(err)
	rec := ErrorRecord{
		Timestamp: time.Now().UTC(),
		Category:  cls.Category,
		Severity:  cls.Severity,
		Retryable: cls.Retryable,
		Source:    source,
		Operation: op,
		Message:   err.Error(),
	}
	l.Append(rec)
	return rec
}

// Append adds a record, evicting the oldest if the log is full.
func (l *ErrorLog) Append(rec ErrorRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := (l.start + l.count) % l.capacity
	if l.count == l.capacity {
		l.start = (l.start + 1) % l.capacity
	} else {
		l.count++
	}
	l.records[idx] = rec
	l.byCategory[rec.Category]++
	l.bySource[rec.Source]++
}

// Recent returns up to n records, newest last.
func (l *ErrorLog) Recent(n int) []ErrorRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > l.count {
		n = l.count
	}
	out := make([]ErrorRecord, 0, n)
	for i := l.count - n; i < l.count; i++ {
		out = append(out, l.records[(l.start+i)%l.capacity])
	}
	return out
}

// Counts returns total failures seen per category and per source.
func (l *ErrorLog) Counts() (byCategory map[Category]int, bySource map[string]int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	byCategory = make(map[Category]int, len(l.byCategory))
	for k, v := range l.byCategory {
		byCategory[k] = v
	}
	bySource = make(map[string]int, len(l.bySource))
	for k, v := range l.bySource {
		bySource[k] = v
	}
	return byCategory, bySource
}
