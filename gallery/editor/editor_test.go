package editor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/auth"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/config"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/dataset"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/session"
)

// stubGenerator implements Generator for testing.
type stubGenerator struct {
	available bool
	questions int
	temps     []float32
}

func (g *stubGenerator) Available() bool { return g.available }
func (g *stubGenerator) Model() string   { return "stub-model" }

func (g *stubGenerator) Question(_ context.Context, rec dataset.Record, temperature float32) string {
	g.questions++
	g.temps = append(g.temps, temperature)
	return "Q about " + rec.ImagePath
}

func (g *stubGenerator) Answer(_ context.Context, rec dataset.Record, question string, temperature float32) string {
	return "A for " + rec.Text
}

type fixture struct {
	path    string
	editor  *Editor
	gen     *stubGenerator
	state   *session.State
	changes uint64
}

func newFixture(t *testing.T, records []dataset.Record) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "data.jsonl")
	require.NoError(t, dataset.Save(path, records))

	store, err := dataset.Open(path, zerolog.Nop())
	require.NoError(t, err)

	f := &fixture{path: path, gen: &stubGenerator{available: true}}
	users := auth.NewDirectory([]config.UserConfig{{Username: "alice", Password: "pw"}}, zerolog.Nop())
	f.editor = New(Options{
		Users:       users,
		Throttle:    auth.NewThrottle(3, time.Hour),
		Generator:   f.gen,
		Temperature: func() float32 { return 0.55 },
		Changes:     func() uint64 { return f.changes },
	}, zerolog.Nop())
	f.state = &session.State{ID: "s1", Store: store}
	return f
}

func twoRecords() []dataset.Record {
	return []dataset.Record{
		{ImagePath: "a.jpg", Text: "T1", Messages: []dataset.Turn{}},
		{ImagePath: "b.jpg", Text: "T2", Messages: []dataset.Turn{
			{Role: dataset.RoleUser, Content: "Q"},
			{Role: dataset.RoleAssistant, Content: "A"},
		}},
	}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.editor.Login(f.state, "alice", "pw"))
}

func TestEditor_GenerateRequirements(t *testing.T) {
	f := newFixture(t, twoRecords())
	ctx := context.Background()

	_, err := f.editor.Generate(ctx, f.state)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	f.login(t)
	f.gen.available = false
	_, err = f.editor.Generate(ctx, f.state)
	assert.ErrorIs(t, err, ErrNoGenerator)

	f.gen.available = true
	d, err := f.editor.Generate(ctx, f.state)
	require.NoError(t, err)
	assert.Equal(t, "Q about a.jpg", d.Question)
	assert.Equal(t, "A for T1", d.Answer)
	assert.Equal(t, float32(0.55), f.state.Temperature)
	assert.Equal(t, []float32{0.55}, f.gen.temps)

	_, err = f.editor.Generate(ctx, f.state)
	assert.ErrorIs(t, err, ErrDraftPending)
	assert.Equal(t, 1, f.gen.questions)
}

func TestEditor_SaveDraftAppendsAndPersists(t *testing.T) {
	f := newFixture(t, twoRecords())
	f.login(t)
	require.NoError(t, f.editor.Goto(f.state, 1))

	_, err := f.editor.Generate(context.Background(), f.state)
	require.NoError(t, err)

	assert.ErrorIs(t, f.editor.SaveDraft(f.state, "  ", "a"), ErrEmptyDraft)
	require.NoError(t, f.editor.SaveDraft(f.state, " Q2 ", " A2\n"))
	assert.Nil(t, f.state.Draft)

	loaded, err := dataset.Load(f.path)
	require.NoError(t, err)
	rec := loaded[1]
	assert.Equal(t, []dataset.Turn{
		{Role: dataset.RoleUser, Content: "Q"},
		{Role: dataset.RoleAssistant, Content: "A"},
		{Role: dataset.RoleUser, Content: "Q2"},
		{Role: dataset.RoleAssistant, Content: "A2"},
	}, rec.Messages)
	assert.Equal(t, "stub-model", rec.Model)
	assert.Equal(t, "alice", rec.Contributor)
	assert.Equal(t, twoRecords()[0], loaded[0])

	assert.ErrorIs(t, f.editor.SaveDraft(f.state, "x", "y"), ErrNoDraft)
}

func TestEditor_SaveDraftKeepsExistingModel(t *testing.T) {
	records := twoRecords()
	records[0].Model = "older-model"
	f := newFixture(t, records)
	f.login(t)

	_, err := f.editor.Generate(context.Background(), f.state)
	require.NoError(t, err)
	require.NoError(t, f.editor.SaveDraft(f.state, "q", "a"))

	rec, _ := f.editor.Current(f.state)
	assert.Equal(t, "older-model", rec.Model)
}

func TestEditor_SaveDraftPersistFailureThenRetry(t *testing.T) {
	f := newFixture(t, twoRecords())
	f.login(t)
	_, err := f.editor.Generate(context.Background(), f.state)
	require.NoError(t, err)

	// Replace the data directory with a plain file so the save cannot
	// create its temp file.
	dir := filepath.Dir(f.path)
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("blocker"), 0o644))

	err = f.editor.SaveDraft(f.state, "q", "a")
	require.Error(t, err)
	assert.True(t, IsPersistenceError(err))
	require.NotNil(t, f.state.Draft, "draft kept for retry")

	rec, _ := f.editor.Current(f.state)
	assert.Len(t, rec.Messages, 2, "mutation kept in memory")

	require.NoError(t, os.Remove(dir))
	require.NoError(t, f.editor.SaveDraft(f.state, "q edited", "a"))

	loaded, err := dataset.Load(f.path)
	require.NoError(t, err)
	assert.Equal(t, []dataset.Turn{
		{Role: dataset.RoleUser, Content: "q edited"},
		{Role: dataset.RoleAssistant, Content: "a"},
	}, loaded[0].Messages)
}

func TestEditor_RetryAfterDeletingEarlierPair(t *testing.T) {
	f := newFixture(t, twoRecords())
	f.login(t)
	require.NoError(t, f.editor.Goto(f.state, 1))
	_, err := f.editor.Generate(context.Background(), f.state)
	require.NoError(t, err)

	dir := filepath.Dir(f.path)
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("blocker"), 0o644))
	require.Error(t, f.editor.SaveDraft(f.state, "q", "a"))
	require.NoError(t, os.Remove(dir))

	require.NoError(t, f.editor.DeletePair(f.state, 0))
	require.NotNil(t, f.state.Draft)
	assert.True(t, f.state.Draft.Appended)
	assert.Equal(t, 0, f.state.Draft.AppendedPos)

	require.NoError(t, f.editor.SaveDraft(f.state, "q2", "a2"))

	loaded, err := dataset.Load(f.path)
	require.NoError(t, err)
	assert.Equal(t, []dataset.Turn{
		{Role: dataset.RoleUser, Content: "q2"},
		{Role: dataset.RoleAssistant, Content: "a2"},
	}, loaded[1].Messages)
}

func TestEditor_DeletingAppendedPairForgetsIt(t *testing.T) {
	f := newFixture(t, twoRecords())
	f.login(t)
	require.NoError(t, f.editor.Goto(f.state, 1))
	f.state.Draft = &session.Draft{Question: "q", Answer: "a", Appended: true, AppendedPos: 0}

	require.NoError(t, f.editor.DeletePair(f.state, 0))
	assert.False(t, f.state.Draft.Appended)
}

func TestEditor_CheckRecord(t *testing.T) {
	f := newFixture(t, twoRecords())

	assert.NoError(t, f.editor.CheckRecord(f.state, 0))
	require.NoError(t, f.editor.Goto(f.state, 1))
	assert.ErrorIs(t, f.editor.CheckRecord(f.state, 0), ErrRecordChanged)
	assert.NoError(t, f.editor.CheckRecord(f.state, 1))
}

func TestEditor_DeletePairScenario(t *testing.T) {
	f := newFixture(t, twoRecords())
	require.NoError(t, f.editor.Goto(f.state, 1))

	assert.ErrorIs(t, f.editor.DeletePair(f.state, 0), ErrNotLoggedIn)

	f.login(t)
	assert.ErrorIs(t, f.editor.DeletePair(f.state, 3), ErrPairNotFound)
	require.NoError(t, f.editor.DeletePair(f.state, 0))

	raw, err := os.ReadFile(f.path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"messages":[]`)

	loaded, err := dataset.Load(f.path)
	require.NoError(t, err)
	assert.Equal(t, []dataset.Turn{}, loaded[1].Messages)
	assert.Equal(t, twoRecords()[0], loaded[0])
}

func TestEditor_EditPair(t *testing.T) {
	f := newFixture(t, twoRecords())
	f.login(t)
	require.NoError(t, f.editor.Goto(f.state, 1))

	require.NoError(t, f.editor.EditPair(f.state, 0, " new q ", "new a"))
	assert.ErrorIs(t, f.editor.EditPair(f.state, 1, "x", "y"), ErrPairNotFound)

	loaded, err := dataset.Load(f.path)
	require.NoError(t, err)
	assert.Equal(t, []dataset.Turn{
		{Role: dataset.RoleUser, Content: "new q"},
		{Role: dataset.RoleAssistant, Content: "new a"},
	}, loaded[1].Messages)
}

func TestEditor_Navigation(t *testing.T) {
	f := newFixture(t, append(twoRecords(), dataset.Record{ImagePath: "c.jpg"}))
	s := f.state

	require.NoError(t, f.editor.Prev(s))
	assert.Equal(t, 2, s.Index)
	require.NoError(t, f.editor.Next(s))
	assert.Equal(t, 0, s.Index)

	s.Draft = &session.Draft{Question: "q"}
	require.NoError(t, f.editor.Goto(s, 0))
	assert.NotNil(t, s.Draft, "staying on the record keeps the draft")
	require.NoError(t, f.editor.Next(s))
	assert.Nil(t, s.Draft)

	assert.ErrorIs(t, f.editor.Goto(s, 3), ErrIndexOutOfRange)
	assert.ErrorIs(t, f.editor.Goto(s, -1), ErrIndexOutOfRange)
}

func TestEditor_RandomEmpty(t *testing.T) {
	f := newFixture(t, append(twoRecords(), dataset.Record{ImagePath: "c.jpg"}))
	f.editor.intn = func(n int) int { return n - 1 }
	f.state.Draft = &session.Draft{}

	require.True(t, f.editor.RandomEmpty(f.state))
	assert.Equal(t, 2, f.state.Index)
	assert.Nil(t, f.state.Draft)

	full := newFixture(t, twoRecords()[1:])
	assert.False(t, full.editor.RandomEmpty(full.state))
}

func TestEditor_EmptyDataset(t *testing.T) {
	f := newFixture(t, nil)
	f.login(t)

	_, ok := f.editor.Current(f.state)
	assert.False(t, ok)
	assert.ErrorIs(t, f.editor.Next(f.state), ErrNoRecords)
	_, err := f.editor.Generate(context.Background(), f.state)
	assert.ErrorIs(t, err, ErrNoRecords)
	assert.Equal(t, dataset.Progress{}, f.editor.Progress(f.state))
}

func TestEditor_LoginThrottle(t *testing.T) {
	f := newFixture(t, twoRecords())

	assert.ErrorIs(t, f.editor.Login(f.state, "alice", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, f.editor.Login(f.state, "alice", "wrong"), ErrInvalidCredentials)
	require.NoError(t, f.editor.Login(f.state, "alice", "pw"))
	assert.Equal(t, "alice", f.state.Username())
	assert.Equal(t, auth.DefaultRole, f.state.User.Role)

	f.editor.Logout(f.state)
	assert.False(t, f.state.LoggedIn())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, f.editor.Login(f.state, "alice", "wrong"), ErrInvalidCredentials)
	}
	assert.ErrorIs(t, f.editor.Login(f.state, "alice", "pw"), ErrTooManyAttempts)
}

func TestEditor_ReloadRewriteAndStale(t *testing.T) {
	f := newFixture(t, append(twoRecords(), dataset.Record{ImagePath: "c.jpg"}))
	require.NoError(t, f.editor.Goto(f.state, 2))

	assert.ErrorIs(t, f.editor.Rewrite(f.state), ErrNotLoggedIn)
	assert.False(t, f.editor.Stale(f.state))

	// Another editor shrinks the file.
	require.NoError(t, dataset.Save(f.path, twoRecords()[:1]))
	f.changes++
	assert.True(t, f.editor.Stale(f.state))

	require.NoError(t, f.editor.Reload(f.state))
	assert.False(t, f.editor.Stale(f.state))
	assert.Equal(t, 1, f.state.Store.Len())
	assert.Equal(t, 0, f.state.Index)

	f.login(t)
	f.changes++
	require.NoError(t, f.editor.Rewrite(f.state))
	assert.False(t, f.editor.Stale(f.state))
}

func TestEditor_StaleIgnoresOwnWrites(t *testing.T) {
	f := newFixture(t, twoRecords())
	f.login(t)

	require.NoError(t, f.editor.Rewrite(f.state))
	f.changes += 2
	assert.False(t, f.editor.Stale(f.state))
	assert.Equal(t, uint64(2), f.state.SeenChanges)
}
