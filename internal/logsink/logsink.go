package logsink

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const defaultMaxRecent = 500

// Sink is the append-only log every component writes through. Each line is
// "[timestamp] message" with the timestamp rendered in the configured
// timezone. A bounded ring of recent lines is kept in memory for the
// operator dashboard.
type Sink struct {
	mu     sync.Mutex
	w      io.Writer
	loc    *time.Location
	recent []string
	max    int
}

func New(w io.Writer, loc *time.Location) *Sink {
	if loc == nil {
		loc = time.UTC
	}
	return &Sink{w: w, loc: loc, max: defaultMaxRecent}
}

// Open appends to the file at path, creating it if needed.
func Open(path string, loc *time.Location) (*Sink, func() error, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return New(f, loc), f.Close, nil
}

func (s *Sink) Printf(format string, args ...any) {
	line := fmt.Sprintf("[%s] %s", time.Now().In(s.loc).Format("2006-01-02 15:04:05"), fmt.Sprintf(format, args...))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w != nil {
		_, _ = fmt.Fprintln(s.w, line)
	}
	s.recent = append(s.recent, line)
	if len(s.recent) > s.max {
		s.recent = s.recent[len(s.recent)-s.max:]
	}
}

// Recent returns up to n lines, most recent first.
func (s *Sink) Recent(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.recent) {
		n = len(s.recent)
	}
	out := make([]string, 0, n)
	for i := len(s.recent) - 1; i >= len(s.recent)-n; i-- {
		out = append(out, s.recent[i])
	}
	return out
}
