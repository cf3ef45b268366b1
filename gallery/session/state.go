// Package session holds per-browser editor state.
package session

import (
	"time"

	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/auth"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/dataset"
)

// Level classifies a flash message.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Flash is a one-shot message shown on the next page render.
type Flash struct {
	Level   Level
	Message string
}

// Draft is a generated question/answer pair awaiting save or discard.
type Draft struct {
	Question string
	Answer   string

	// Appended is set once the pair is in the record but persisting it
	// failed; a retry then updates pair AppendedPos instead of appending.
	Appended    bool
	AppendedPos int
}

// State is everything one editor session remembers between requests.
// Access is serialized by the Manager; State itself is not safe for
// concurrent use.
type State struct {
	ID          string
	User        *auth.User
	Index       int
	Draft       *Draft
	Temperature float32

	// Store is loaded when the session starts and only re-read on Reload.
	Store *dataset.Store
	// SeenChanges is the watcher count observed when Store was loaded.
	SeenChanges uint64

	CreatedAt time.Time
	LastSeen  time.Time

	flashes []Flash
}

// LoggedIn reports whether a user is authenticated.
func (s *State) LoggedIn() bool {
	return s.User != nil
}

// Username returns the authenticated username or "".
func (s *State) Username() string {
	if s.User == nil {
		return ""
	}
	return s.User.Username
}

// AddFlash queues a message for the next render.
func (s *State) AddFlash(level Level, msg string) {
	s.flashes = append(s.flashes, Flash{Level: level, Message: msg})
}

// TakeFlashes returns and clears the queued messages.
func (s *State) TakeFlashes() []Flash {
	out := s.flashes
	s.flashes = nil
	return out
}
