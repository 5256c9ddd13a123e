// Package upload implements chunked upload intake: session admission and
// bookkeeping, chunk assembly on disk, and handoff to the transcoding
// dispatcher on completion.
package upload

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmylchreest/vidarr/internal/models"
)

// nowFunc is swapped in tests exercising staleness.
var nowFunc = time.Now

// Session tracks one in-flight chunked upload. Chunk writes within a
// session are serialized by the session mutex; the byte-layout protocol
// (chunk 0 truncates, later chunks append) requires clients to submit
// chunks sequentially.
type Session struct {
	ID           string
	VideoID      models.ULID
	Filename     string
	DeclaredSize int64
	TotalChunks  int
	TempPath     string
	CreatedAt    time.Time

	mu           sync.Mutex
	lastActivity time.Time
	received     []bool
	bytesWritten int64
}

// NewSession creates a session for one upload.
func NewSession(videoID models.ULID, filename string, declaredSize int64, totalChunks int, tempPath string) *Session {
	now := nowFunc()
	return &Session{
		ID:           uuid.New().String(),
		VideoID:      videoID,
		Filename:     filename,
		DeclaredSize: declaredSize,
		TotalChunks:  totalChunks,
		TempPath:     tempPath,
		CreatedAt:    now,
		lastActivity: now,
		received:     make([]bool, totalChunks),
	}
}

// Progress returns the fraction of chunks marked complete, in [0,1].
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.completedLocked()) / float64(s.TotalChunks)
}

// BytesWritten returns the total bytes appended so far.
func (s *Session) BytesWritten() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesWritten
}

// LastActivity returns when the session last received a chunk.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// MissingChunks returns the indexes never written.
func (s *Session) MissingChunks() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []int
	for i, ok := range s.received {
		if !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

func (s *Session) completedLocked() int {
	n := 0
	for _, ok := range s.received {
		if ok {
			n++
		}
	}
	return n
}

// Registry is the concurrent session map with a one-active-upload-per-video
// invariant.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byVideo  map[models.ULID]string
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byVideo:  make(map[models.ULID]string),
	}
}

// Register adds a session, failing with ErrUploadInProgress when the video
// already has an active session.
func (r *Registry) Register(session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byVideo[session.VideoID]; exists {
		return models.ErrUploadInProgress
	}
	r.sessions[session.ID] = session
	r.byVideo[session.VideoID] = session.ID
	return nil
}

// Get retrieves a session by ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return session, nil
}

// GetByVideo retrieves the active session for a video, if any.
func (r *Registry) GetByVideo(videoID models.ULID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byVideo[videoID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return r.sessions[id], nil
}

// Remove deletes a session. Idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[id]; ok {
		delete(r.byVideo, session.VideoID)
		delete(r.sessions, id)
	}
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stale returns sessions whose last activity is older than ttl.
func (r *Registry) Stale(ttl time.Duration) []*Session {
	cutoff := time.Now().Add(-ttl)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var stale []*Session
	for _, session := range r.sessions {
		if session.LastActivity().Before(cutoff) {
			stale = append(stale, session)
		}
	}
	return stale
}
