// Package logstream keeps one ordered queue of log lines per bot. Producers
// append, a single external consumer drains at its own pace.
package logstream

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// PauseNotice is the line appended when a tick finds a bot paused.
const PauseNotice = "Bot is paused"

// TimeFormat prefixes every line.
const TimeFormat = "2006-01-02 15:04:05"

// Mirror receives a copy of every appended line (history storage).
type Mirror interface {
	Push(bot, line string)
}

// Stream is one bot's FIFO of log lines.
type Stream struct {
	name   string
	mirror Mirror
	now    func() time.Time

	mu        sync.Mutex
	lines     []entry
	seq       uint64
	lastPause bool // last delivered line was a pause notice
	ready     chan struct{}
}

type entry struct {
	seq   uint64
	text  string
	pause bool
}

func newStream(name string, mirror Mirror, now func() time.Time) *Stream {
	return &Stream{name: name, mirror: mirror, now: now, ready: make(chan struct{}, 1)}
}

// Append queues text with a timestamp and mirrors it to the process log.
func (s *Stream) Append(text string) {
	s.append(text, false)
}

// Appendf is Append with formatting.
func (s *Stream) Appendf(format string, args ...interface{}) {
	s.append(fmt.Sprintf(format, args...), false)
}

// AppendPauseNotice queues a pause notice unless the line before it, queued
// or already delivered, was one too.
func (s *Stream) AppendPauseNotice() bool {
	return s.append(PauseNotice, true)
}

func (s *Stream) append(text string, pause bool) bool {
	line := fmt.Sprintf("[%s] %s", s.now().Format(TimeFormat), text)

	s.mu.Lock()
	if pause {
		var prev bool
		if n := len(s.lines); n > 0 {
			prev = s.lines[n-1].pause
		} else {
			prev = s.lastPause
		}
		if prev {
			s.mu.Unlock()
			return false
		}
	}
	s.seq++
	s.lines = append(s.lines, entry{seq: s.seq, text: line, pause: pause})
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}

	log.Printf("Bot %s: %s", s.name, text)
	if s.mirror != nil {
		s.mirror.Push(s.name, line)
	}
	return true
}

// Peek returns the oldest queued line without removing it. The line stays
// queued until Ack is called with its seq.
func (s *Stream) Peek() (line string, seq uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 {
		return "", 0, false
	}
	return s.lines[0].text, s.lines[0].seq, true
}

// Ack removes the oldest line if it is still the one identified by seq.
func (s *Stream) Ack(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 || s.lines[0].seq != seq {
		return false
	}
	e := s.lines[0]
	s.lines[0] = entry{}
	s.lines = s.lines[1:]
	s.lastPause = e.pause
	return true
}

// Ready is signalled after an append. Consumers drain with Peek and Ack
// until Peek reports false, then wait on Ready again.
func (s *Stream) Ready() <-chan struct{} {
	return s.ready
}

// Len is the number of undelivered lines.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// Registry maps bot names to streams.
type Registry struct {
	mirror Mirror
	now    func() time.Time

	mu      sync.RWMutex
	streams map[string]*Stream
}

// NewRegistry creates an empty registry. mirror may be nil.
func NewRegistry(mirror Mirror) *Registry {
	return &Registry{mirror: mirror, now: time.Now, streams: make(map[string]*Stream)}
}

// Stream returns the stream for name, creating it on first use.
func (r *Registry) Stream(name string) *Stream {
	r.mu.RLock()
	s, ok := r.streams[name]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.streams[name]; !ok {
		s = newStream(name, r.mirror, r.now)
		r.streams[name] = s
	}
	return s
}

// Truncate shortens s to max runes, adding "..." when cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "..."
}
