package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/wa-mentor/backend/internal/model/chat"
)

var (
	ErrSenderRequired = errors.New("sender id is required")
	ErrInvalidRole    = errors.New("invalid turn role")
)

const maskFiller = "*"

// Options bounds the memory held by the store.
type Options struct {
	MaxMessages    int
	MaxSessions    int
	TTL            time.Duration
	SweepHighWater int
}

// DefaultOptions mirrors the defaults of the configuration layer.
func DefaultOptions() Options {
	return Options{
		MaxMessages:    10,
		MaxSessions:    1000,
		TTL:            24 * time.Hour,
		SweepHighWater: 800,
	}
}

type session struct {
	turns      []chat.Turn
	lastActive time.Time
}

// Service keeps per-sender conversation state in process memory.
// A single lock serializes every mutation; reads copy under the same lock.
type Service struct {
	mu       sync.Mutex
	sessions map[string]*session
	opts     Options
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates an empty store. Non-positive limits fall back to the
// defaults.
func NewService(opts Options, options ...Option) *Service {
	def := DefaultOptions()
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = def.MaxMessages
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = def.MaxSessions
	}
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	if opts.SweepHighWater <= 0 || opts.SweepHighWater > opts.MaxSessions {
		opts.SweepHighWater = opts.MaxSessions
	}

	s := &Service{
		sessions: make(map[string]*session),
		opts:     opts,
		now:      time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Append records a turn for sender, creating the session on first use.
func (s *Service) Append(_ context.Context, sender string, role chat.Role, content string) error {
	if strings.TrimSpace(sender) == "" {
		return ErrSenderRequired
	}
	if !role.Valid() {
		return ErrInvalidRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.sessions[sender]
	if !ok {
		sess = &session{turns: make([]chat.Turn, 0, s.opts.MaxMessages)}
		s.sessions[sender] = sess
	}

	sess.turns = append(sess.turns, chat.Turn{Role: role, Content: content, CreatedAt: now})
	if overflow := len(sess.turns) - s.opts.MaxMessages; overflow > 0 {
		kept := copy(sess.turns, sess.turns[overflow:])
		clear(sess.turns[kept:])
		sess.turns = sess.turns[:kept]
	}
	sess.lastActive = now

	// Sessions only grow here, so maintenance runs when a new session crosses
	// the high-water mark or pushes the store past capacity.
	if !ok {
		if n := len(s.sessions); n == s.opts.SweepHighWater+1 || n > s.opts.MaxSessions {
			s.sweepLocked(now, s.opts.TTL)
			s.enforceCapacityLocked(s.opts.MaxSessions, sender)
		}
	}
	return nil
}

// Recent returns up to n of the newest turns for sender, oldest first.
func (s *Service) Recent(_ context.Context, sender string, n int) []chat.Turn {
	if n <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sender]
	if !ok {
		return nil
	}

	start := 0
	if len(sess.turns) > n {
		start = len(sess.turns) - n
	}
	copied := make([]chat.Turn, len(sess.turns)-start)
	copy(copied, sess.turns[start:])
	return copied
}

// Sweep drops every session idle for longer than ttl at now and returns how
// many were removed.
func (s *Service) Sweep(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now, ttl)
}

// EnforceCapacity evicts the least recently active sessions until at most
// max remain.
func (s *Service) EnforceCapacity(max int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enforceCapacityLocked(max, "")
}

// Maintain runs a sweep with the configured TTL followed by capacity
// enforcement.
func (s *Service) Maintain(_ context.Context) chat.SweepReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := s.sweepLocked(s.now(), s.opts.TTL)
	evicted := s.enforceCapacityLocked(s.opts.MaxSessions, "")
	return chat.SweepReport{
		Expired:   expired,
		Evicted:   evicted,
		Remaining: len(s.sessions),
	}
}

// Stats counts sessions and stored turns.
func (s *Service) Stats(_ context.Context) chat.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := chat.Stats{Sessions: len(s.sessions)}
	for _, sess := range s.sessions {
		stats.Turns += len(sess.turns)
	}
	return stats
}

// Summaries lists the most recently active sessions first. A non-positive
// limit returns all of them.
func (s *Service) Summaries(_ context.Context, limit int) []chat.SessionSummary {
	s.mu.Lock()
	summaries := make([]chat.SessionSummary, 0, len(s.sessions))
	for sender, sess := range s.sessions {
		summaries = append(summaries, chat.SessionSummary{
			Sender:       MaskSender(sender),
			LastActive:   sess.lastActive,
			MessageCount: len(sess.turns),
		})
	}
	s.mu.Unlock()

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastActive.After(summaries[j].LastActive)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

// Options returns the effective limits.
func (s *Service) Options() Options {
	return s.opts
}

func (s *Service) sweepLocked(now time.Time, ttl time.Duration) int {
	cutoff := now.Add(-ttl)
	removed := 0
	for sender, sess := range s.sessions {
		if sess.lastActive.Before(cutoff) {
			delete(s.sessions, sender)
			removed++
		}
	}
	return removed
}

// enforceCapacityLocked never evicts keep, the sender currently being written.
func (s *Service) enforceCapacityLocked(max int, keep string) int {
	if max < 0 {
		max = 0
	}
	excess := len(s.sessions) - max
	if excess <= 0 {
		return 0
	}

	type entry struct {
		sender     string
		lastActive time.Time
	}
	entries := make([]entry, 0, len(s.sessions))
	for sender, sess := range s.sessions {
		if keep != "" && sender == keep {
			continue
		}
		entries = append(entries, entry{sender: sender, lastActive: sess.lastActive})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].lastActive.Equal(entries[j].lastActive) {
			return entries[i].sender < entries[j].sender
		}
		return entries[i].lastActive.Before(entries[j].lastActive)
	})
	excess = min(excess, len(entries))

	for _, e := range entries[:excess] {
		delete(s.sessions, e.sender)
	}
	return excess
}

// MaskSender hides the middle of a sender id, keeping three characters on
// each side. Ids of six characters or fewer are fully masked.
func MaskSender(sender string) string {
	runes := []rune(sender)
	if len(runes) <= 6 {
		return strings.Repeat(maskFiller, len(runes))
	}
	return string(runes[:3]) + strings.Repeat(maskFiller, len(runes)-6) + string(runes[len(runes)-3:])
}
