// Package editor implements the annotation actions a user performs on a
// session: navigation, login, drafting a generated pair and editing the
// persisted conversation.
package editor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/auth"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/dataset"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/session"
	"github.com/rs/zerolog"
)

var (
	ErrNotLoggedIn        = errors.New("login required")
	ErrDraftPending       = errors.New("a draft is already pending")
	ErrNoDraft            = errors.New("no draft to save")
	ErrNoGenerator        = errors.New("generation is not configured")
	ErrEmptyDraft         = errors.New("question and answer must not be empty")
	ErrNoRecords          = errors.New("dataset is empty")
	ErrPairNotFound       = errors.New("conversation pair not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrRecordChanged      = errors.New("record no longer under the cursor")
	ErrIndexOutOfRange    = dataset.ErrIndexOutOfRange
	errPersistenceFailed  = errors.New("failed to write dataset")
)

// Generator drafts question/answer pairs.
type Generator interface {
	Available() bool
	Model() string
	Question(ctx context.Context, rec dataset.Record, temperature float32) string
	Answer(ctx context.Context, rec dataset.Record, question string, temperature float32) string
}

// Options configures an Editor.
type Options struct {
	Users       *auth.Directory
	Throttle    *auth.Throttle
	Generator   Generator
	Temperature func() float32
	// Changes reports the data file watcher count; nil means no watcher.
	Changes func() uint64
}

// Editor performs actions on a session. It holds no per-session state and
// is safe for concurrent use across sessions.
type Editor struct {
	opts   Options
	intn   func(n int) int
	logger zerolog.Logger
}

// New creates an editor.
func New(opts Options, logger zerolog.Logger) *Editor {
	return &Editor{
		opts:   opts,
		intn:   rand.IntN,
		logger: logger,
	}
}

// GenerationAvailable reports whether Generate can be used.
func (e *Editor) GenerationAvailable() bool {
	return e.opts.Generator != nil && e.opts.Generator.Available()
}

// Current returns the record under the cursor. It reports false for an
// empty dataset.
func (e *Editor) Current(s *session.State) (dataset.Record, bool) {
	e.clamp(s)
	rec, err := s.Store.Get(s.Index)
	if err != nil {
		return dataset.Record{}, false
	}
	return rec, true
}

// Goto moves the cursor to i and drops any draft.
func (e *Editor) Goto(s *session.State, i int) error {
	if i < 0 || i >= s.Store.Len() {
		return ErrIndexOutOfRange
	}
	if i != s.Index {
		s.Draft = nil
	}
	s.Index = i
	return nil
}

// CheckRecord reports ErrRecordChanged unless i is the record under the
// cursor. Forms carry the record they were rendered for, and tabs sharing a
// session can move the cursor in between.
func (e *Editor) CheckRecord(s *session.State, i int) error {
	e.clamp(s)
	if i != s.Index {
		return ErrRecordChanged
	}
	return nil
}

// Next moves to the following record, wrapping at the end.
func (e *Editor) Next(s *session.State) error {
	return e.step(s, 1)
}

// Prev moves to the preceding record, wrapping at the start.
func (e *Editor) Prev(s *session.State) error {
	return e.step(s, -1)
}

func (e *Editor) step(s *session.State, delta int) error {
	n := s.Store.Len()
	if n == 0 {
		return ErrNoRecords
	}
	return e.Goto(s, ((s.Index+delta)%n+n)%n)
}

// RandomEmpty jumps to a random record without a conversation. It reports
// false, leaving the cursor alone, when every record has one.
func (e *Editor) RandomEmpty(s *session.State) bool {
	empty := s.Store.EmptyIndices()
	if len(empty) == 0 {
		return false
	}
	s.Index = empty[e.intn(len(empty))]
	s.Draft = nil
	return true
}

// Login authenticates the session.
func (e *Editor) Login(s *session.State, username, password string) error {
	username = strings.TrimSpace(username)
	if e.opts.Throttle != nil && !e.opts.Throttle.Allow(username) {
		e.logger.Warn().Str("username", username).Msg("login throttled")
		return ErrTooManyAttempts
	}
	if e.opts.Users == nil {
		return ErrInvalidCredentials
	}

	user, ok := e.opts.Users.Authenticate(username, password)
	if !ok {
		e.logger.Info().Str("username", username).Msg("login failed")
		return ErrInvalidCredentials
	}
	if e.opts.Throttle != nil {
		e.opts.Throttle.Reset(username)
	}

	s.User = &user
	e.logger.Info().Str("username", username).Str("session", s.ID).Msg("logged in")
	return nil
}

// Logout clears the authenticated user.
func (e *Editor) Logout(s *session.State) {
	s.User = nil
}

// Generate drafts a question and answer for the current record with a
// freshly drawn temperature.
func (e *Editor) Generate(ctx context.Context, s *session.State) (*session.Draft, error) {
	if !s.LoggedIn() {
		return nil, ErrNotLoggedIn
	}
	if s.Draft != nil {
		return nil, ErrDraftPending
	}
	if !e.GenerationAvailable() {
		return nil, ErrNoGenerator
	}
	rec, ok := e.Current(s)
	if !ok {
		return nil, ErrNoRecords
	}

	if e.opts.Temperature != nil {
		s.Temperature = e.opts.Temperature()
	}

	g := e.opts.Generator
	q := g.Question(ctx, rec, s.Temperature)
	a := g.Answer(ctx, rec, q, s.Temperature)

	s.Draft = &session.Draft{Question: q, Answer: a}
	e.logger.Debug().
		Str("session", s.ID).
		Int("index", s.Index).
		Float32("temperature", s.Temperature).
		Msg("draft generated")
	return s.Draft, nil
}

// SaveDraft appends the edited draft to the current record and persists the
// dataset. When persisting fails the pair stays in memory and the draft is
// kept so the user can retry; the retry updates the pair instead of adding a
// second one.
func (e *Editor) SaveDraft(s *session.State, question, answer string) error {
	if !s.LoggedIn() {
		return ErrNotLoggedIn
	}
	if s.Draft == nil {
		return ErrNoDraft
	}
	question, answer = strings.TrimSpace(question), strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return ErrEmptyDraft
	}
	rec, ok := e.Current(s)
	if !ok {
		return ErrNoRecords
	}

	d := s.Draft
	if !d.Appended || !rec.EditPair(d.AppendedPos, question, answer) {
		rec.AppendPair(question, answer)
		d.AppendedPos = rec.PairCount() - 1
	}
	if e.opts.Generator != nil {
		rec.StampModel(e.opts.Generator.Model())
	}
	rec.StampContributor(s.Username())
	if err := s.Store.Set(s.Index, rec); err != nil {
		return err
	}

	d.Question, d.Answer = question, answer
	d.Appended = true
	if err := e.persist(s); err != nil {
		return err
	}
	s.Draft = nil
	return nil
}

// DiscardDraft drops the pending draft.
func (e *Editor) DiscardDraft(s *session.State) {
	s.Draft = nil
}

// EditPair rewrites pair pos of the current record and persists.
func (e *Editor) EditPair(s *session.State, pos int, question, answer string) error {
	return e.mutate(s, func(rec *dataset.Record) bool {
		return rec.EditPair(pos, strings.TrimSpace(question), strings.TrimSpace(answer))
	})
}

// DeletePair removes pair pos of the current record and persists. A draft
// whose pair is already in the record follows the shift.
func (e *Editor) DeletePair(s *session.State, pos int) error {
	return e.mutate(s, func(rec *dataset.Record) bool {
		if !rec.DeletePair(pos) {
			return false
		}
		shiftAppended(s.Draft, pos)
		return true
	})
}

func shiftAppended(d *session.Draft, deleted int) {
	if d == nil || !d.Appended {
		return
	}
	switch {
	case deleted < d.AppendedPos:
		d.AppendedPos--
	case deleted == d.AppendedPos:
		d.Appended = false
	}
}

func (e *Editor) mutate(s *session.State, fn func(rec *dataset.Record) bool) error {
	if !s.LoggedIn() {
		return ErrNotLoggedIn
	}
	rec, ok := e.Current(s)
	if !ok {
		return ErrNoRecords
	}
	if !fn(&rec) {
		return ErrPairNotFound
	}
	if err := s.Store.Set(s.Index, rec); err != nil {
		return err
	}
	return e.persist(s)
}

// Reload re-reads the dataset, discarding unsaved in-memory changes.
func (e *Editor) Reload(s *session.State) error {
	if err := s.Store.Reload(); err != nil {
		return fmt.Errorf("failed to reload dataset: %w", err)
	}
	s.SeenChanges = e.changes()
	if s.Draft != nil {
		s.Draft.Appended = false
	}
	e.clamp(s)
	return nil
}

// Rewrite persists the collection even when nothing changed.
func (e *Editor) Rewrite(s *session.State) error {
	if !s.LoggedIn() {
		return ErrNotLoggedIn
	}
	return e.persist(s)
}

// Progress returns completion of the session's copy of the dataset.
func (e *Editor) Progress(s *session.State) dataset.Progress {
	return s.Store.Progress()
}

// Stale reports whether another writer changed the file since the session
// loaded or last saved it.
func (e *Editor) Stale(s *session.State) bool {
	seen := e.changes()
	if seen == s.SeenChanges {
		return false
	}
	if !s.Store.ChangedOnDisk() {
		s.SeenChanges = seen
		return false
	}
	return true
}

func (e *Editor) persist(s *session.State) error {
	if err := s.Store.Persist(); err != nil {
		return fmt.Errorf("%w: %w", errPersistenceFailed, err)
	}
	s.SeenChanges = e.changes()
	return nil
}

func (e *Editor) changes() uint64 {
	if e.opts.Changes == nil {
		return 0
	}
	return e.opts.Changes()
}

func (e *Editor) clamp(s *session.State) {
	n := s.Store.Len()
	switch {
	case n == 0:
		s.Index = 0
	case s.Index >= n:
		s.Index = n - 1
	case s.Index < 0:
		s.Index = 0
	}
}

// IsPersistenceError reports whether err came from writing the dataset.
func IsPersistenceError(err error) bool {
	return errors.Is(err, errPersistenceFailed)
}
