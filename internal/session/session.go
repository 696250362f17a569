// Package session keeps the per-principal conversation state used to
// interpret free-form follow-up messages of the upload and download flows.
// State lives in memory only and is lost on restart.
package session

import (
	"errors"
	"sync"

	"adminbot/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrMissingAttachment = errors.New("attachment id or file name missing")
)

type State int

const (
	Idle State = iota
	AwaitingFile
	AwaitingSavePath
	AwaitingDownloadPath
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingFile:
		return "awaiting_file"
	case AwaitingSavePath:
		return "awaiting_save_path"
	case AwaitingDownloadPath:
		return "awaiting_download_path"
	default:
		return "unknown"
	}
}

// Session is a snapshot of one principal's flow. Pending is set only in
// AwaitingSavePath.
type Session struct {
	State   State
	Pending *models.Attachment
}

// Store maps principals to sessions. Sessions of different principals never
// share data; Get returns copies.
type Store struct {
	mu       sync.RWMutex
	sessions map[models.Principal]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[models.Principal]*Session)}
}

// Get returns the principal's session, or an Idle session when none exists.
func (s *Store) Get(p models.Principal) Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	se, ok := s.sessions[p]
	if !ok {
		return Session{State: Idle}
	}
	out := Session{State: se.State}
	if se.Pending != nil {
		att := *se.Pending
		out.Pending = &att
	}
	return out
}

// BeginUpload starts (or restarts) the upload flow.
func (s *Store) BeginUpload(p models.Principal) {
	s.put(p, &Session{State: AwaitingFile})
}

// BeginDownload starts (or restarts) the download flow.
func (s *Store) BeginDownload(p models.Principal) {
	s.put(p, &Session{State: AwaitingDownloadPath})
}

// AttachFile records the received attachment and moves to AwaitingSavePath.
func (s *Store) AttachFile(p models.Principal, att models.Attachment) error {
	if !att.Valid() {
		return ErrMissingAttachment
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	se, ok := s.sessions[p]
	if !ok || se.State != AwaitingFile {
		return ErrInvalidTransition
	}
	s.sessions[p] = &Session{State: AwaitingSavePath, Pending: &att}
	return nil
}

// Clear destroys the principal's session and returns the state it was in.
func (s *Store) Clear(p models.Principal) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	se, ok := s.sessions[p]
	if !ok {
		return Idle
	}
	delete(s.sessions, p)
	return se.State
}

// Len reports the number of active sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) put(p models.Principal, se *Session) {
	s.mu.Lock()
	s.sessions[p] = se
	s.mu.Unlock()
}
