package confirm

// LogEntry records one confirmed gesture.
type LogEntry struct {
	Timestamp  string  `json:"timestamp"` // local wall clock, HH:MM:SS
	Gesture    string  `json:"gesture"`
	Confidence float64 `json:"confidence"` // rounded to two decimals
}

// AuditLog keeps the most recent confirmations, evicting the oldest first.
// It is not safe for concurrent use; the Engine guards it.
type AuditLog struct {
	entries []LogEntry
	maxSize int
}

// NewAuditLog creates an AuditLog holding at most maxSize entries.
func NewAuditLog(maxSize int) *AuditLog {
	if maxSize < 1 {
		maxSize = DefaultMaxLogSize
	}
	return &AuditLog{
		entries: make([]LogEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add appends an entry, dropping the oldest one when full.
func (l *AuditLog) Add(e LogEntry) {
	if len(l.entries) >= l.maxSize {
		// Shift left by 1, removing the oldest entry
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:l.maxSize-1]
	}
	l.entries = append(l.entries, e)
}

// Len returns the number of entries.
func (l *AuditLog) Len() int {
	return len(l.entries)
}

// NewestFirst returns a copy of the entries in reverse insertion order.
func (l *AuditLog) NewestFirst() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}
