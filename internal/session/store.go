// Package session implements the conversation session store: a keyed
// collection of bounded message histories with idle TTL, swept periodically
// in the background.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/ngoclaw/toolorch/pkg/safego"
	"go.uber.org/zap"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string // "user" | "assistant"
	Content string
}

type record struct {
	id             string
	history        []Message
	createdAt      time.Time
	lastAccessedAt time.Time
}

// Store holds sessions keyed by id, guarded by a single mutex following the
// gateway's session-map pattern (session_manager.go's sync.RWMutex map).
type Store struct {
	mu            sync.Mutex
	sessions      map[string]*record
	maxHistory    int
	sessionTTL    time.Duration
	logger        *zap.Logger

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New creates a Store and starts its background sweeper.
func New(maxHistory int, sessionTTL time.Duration, logger *zap.Logger) *Store {
	s := &Store{
		sessions:   make(map[string]*record),
		maxHistory: maxHistory,
		sessionTTL: sessionTTL,
		logger:     logger,
		stopSweep:  make(chan struct{}),
	}
	safego.Go(logger, "session-sweeper", s.sweepLoop)
	return s
}

// Create allocates a new session and returns its id: a 128-bit random value,
// hex-encoded (spec §3/§4.2). Collisions are treated as impossible.
func (s *Store) Create() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read failing means the platform CSPRNG is broken;
		// there is no safe fallback, so panic rather than hand out a
		// predictable session id.
		panic("session: crypto/rand unavailable: " + err.Error())
	}
	id := hex.EncodeToString(buf)

	now := time.Now()
	s.mu.Lock()
	s.sessions[id] = &record{id: id, createdAt: now, lastAccessedAt: now}
	s.mu.Unlock()
	return id
}

// History returns the session's messages, oldest-first, touching
// last_accessed_at. Returns an empty slice for an unknown or expired id.
func (s *Store) History(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if time.Since(rec.lastAccessedAt) >= s.sessionTTL {
		delete(s.sessions, id)
		return nil
	}
	rec.lastAccessedAt = time.Now()

	out := make([]Message, len(rec.history))
	copy(out, rec.history)
	return out
}

// Append adds a message to the session's history, trimming to the most
// recent maxHistory entries. No-op for an unknown id.
func (s *Store) Append(id string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return
	}
	rec.lastAccessedAt = time.Now()
	rec.history = append(rec.history, msg)
	if over := len(rec.history) - s.maxHistory; over > 0 {
		rec.history = rec.history[over:]
	}
}

// sweepLoop runs on a fixed ~60s cadence, removing any session whose idle
// time exceeds sessionTTL. Each removal holds the store lock for only the
// duration of a single map delete, never across the whole sweep.
func (s *Store) sweepLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnceNow()
		case <-s.stopSweep:
			return
		}
	}
}

func (s *Store) sweepOnceNow() {
	now := time.Now()

	s.mu.Lock()
	expired := make([]string, 0)
	for id, rec := range s.sessions {
		if now.Sub(rec.lastAccessedAt) >= s.sessionTTL {
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.Debug("session expired", zap.String("sessionId", id))
		}
	}
}

// Close stops the background sweeper. Idempotent.
func (s *Store) Close() {
	s.sweepOnce.Do(func() { close(s.stopSweep) })
}
