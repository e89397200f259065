package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/andresmejia3/feelcam/internal/types"
)

// FileLayout is the time layout for session file names (DD_MM_YYYY HHhMMmSSs).
const FileLayout = "02_01_2006 15h04m05s"

// Ext is the session file extension.
const Ext = ".csv"

// Delimiter separates the fields of a row.
const Delimiter = ';'

// ErrScoreCount is returned when a row does not carry exactly one score per emotion.
var ErrScoreCount = errors.New("score vector must have one entry per emotion")

// maxNameAttempts bounds the suffix search when several sessions start within the same second.
const maxNameAttempts = 100

// Session is one open emotion log. It is owned by a single goroutine.
type Session struct {
	mu        sync.Mutex
	file      *os.File
	w         *bufio.Writer
	path      string
	startedAt time.Time
	rows      int
	closed    bool
}

// FileName returns the base name of the session file started at t.
func FileName(t time.Time) string {
	return t.Format(FileLayout) + Ext
}

// Create opens a new session file in dir named after t.
// An existing file is never truncated: a " (n)" suffix is added instead.
func Create(dir string, t time.Time) (*Session, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	base := t.Format(FileLayout)
	for i := 1; i <= maxNameAttempts; i++ {
		name := base + Ext
		if i > 1 {
			name = fmt.Sprintf("%s (%d)%s", base, i, Ext)
		}
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open session log: %w", err)
		}
		return &Session{
			file:      f,
			w:         bufio.NewWriter(f),
			path:      path,
			startedAt: t,
		}, nil
	}
	return nil, fmt.Errorf("failed to open session log: too many sessions named %q", base)
}

// Path returns the file path of the session.
func (s *Session) Path() string { return s.path }

// StartedAt returns the wall-clock time the session was created for.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Rows returns the number of rows written so far.
func (s *Session) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Append writes one row "<unix ts>;<score_1>;...;<score_8>" and flushes it.
func (s *Session) Append(ts time.Time, scores []float64) error {
	if len(scores) != types.NumEmotions {
		return fmt.Errorf("%w: got %d", ErrScoreCount, len(scores))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return os.ErrClosed
	}

	s.w.WriteString(FormatRow(ts, scores))
	s.w.WriteByte('\n')
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("failed to write session row: %w", err)
	}
	s.rows++
	return nil
}

// Close flushes and closes the file. Calling it again is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush session log: %w", flushErr)
	}
	return closeErr
}

// FormatRow renders a row without the trailing newline.
func FormatRow(ts time.Time, scores []float64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatFloat(UnixSeconds(ts), 'f', -1, 64))
	for _, v := range scores {
		b.WriteByte(Delimiter)
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	return b.String()
}

// UnixSeconds converts t to fractional seconds since the epoch.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// IsSessionFile reports whether name looks like a file produced by Create,
// including the " (n)" collision suffix.
func IsSessionFile(name string) bool {
	base, ok := strings.CutSuffix(name, Ext)
	if !ok {
		return false
	}
	if i := strings.LastIndex(base, " ("); i >= 0 && strings.HasSuffix(base, ")") {
		if _, err := strconv.Atoi(base[i+2 : len(base)-1]); err == nil {
			base = base[:i]
		}
	}
	_, err := time.Parse(FileLayout, base)
	return err == nil
}
