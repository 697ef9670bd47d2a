package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicevault/voicevault/internal/capture"
	"github.com/voicevault/voicevault/internal/codec"
	"github.com/voicevault/voicevault/internal/session"
	"github.com/voicevault/voicevault/internal/store"
)

func testFormat() session.AudioFormat {
	return session.AudioFormat{SampleRate: 44100, Channels: 1, BitDepth: 16, Codec: codec.TagRaw}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	orch     *Orchestrator
	source   *capture.MemorySource
	store    *store.FileStore
	registry *session.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir(), codec.RawCodec{}, 5, testLogger())
	require.NoError(t, err)

	src := capture.NewMemorySource(testFormat())
	reg := session.NewRegistry()
	orch := New(Options{
		Source:   src,
		Store:    fs,
		Registry: reg,
		Logger:   testLogger(),
	})
	return &fixture{orch: orch, source: src, store: fs, registry: reg}
}

// failingStore delegates to the embedded store but fails every persist.
type failingStore struct {
	store.Store
	err error
}

func (f *failingStore) StoreAudio(context.Context, *session.Session, []float32) (store.FileInfo, error) {
	return store.FileInfo{}, f.err
}

// failingSource delegates to the embedded source but fails on Stop.
type failingSource struct {
	capture.Source
	err error
}

func (f *failingSource) Stop() ([]float32, error) {
	return nil, f.err
}

func TestOrchestrator_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.orch.Start(ctx, StartInput{
		Name: "weekly sync",
		Tags: []string{"work"},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	// The slot is exclusive: a second start fails and leaves the first
	// session untouched.
	_, err = f.orch.Start(ctx, StartInput{Name: "second"})
	assert.ErrorIs(t, err, ErrAlreadyRecording)
	activeID, ok := f.orch.ActiveSessionID()
	require.True(t, ok)
	assert.Equal(t, id, activeID)

	f.source.Feed([]float32{0.1, 0.2})

	require.NoError(t, f.orch.Pause())
	st := f.orch.Status()
	assert.False(t, st.IsRecording)
	assert.True(t, st.Paused)
	assert.Equal(t, session.StatePaused, st.Session.State)

	f.source.Feed([]float32{0.9}) // dropped while paused

	require.NoError(t, f.orch.Resume())
	st = f.orch.Status()
	assert.True(t, st.IsRecording)
	assert.False(t, st.Paused)

	f.source.Feed([]float32{0.3})

	sess, err := f.orch.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
	assert.Equal(t, session.StateStopped, sess.State)
	assert.False(t, sess.EndTime.IsZero())
	assert.Equal(t, int64(3*4), sess.FileSize)
	assert.NotEmpty(t, sess.FilePath)

	// Idle again.
	_, ok = f.orch.ActiveSessionID()
	assert.False(t, ok)
	assert.Nil(t, f.orch.Status().Session)

	// The persisted audio excludes the paused frame.
	samples, err := f.orch.RetrieveAudio(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, samples)

	// The registry reflects the final state.
	got, err := f.registry.Get(id)
	require.NoError(t, err)
	assert.Equal(t, session.StateStopped, got.State)
}

func TestOrchestrator_StartValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Start(ctx, StartInput{Name: ""})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyRecording)

	// The failed start does not occupy the slot.
	_, ok := f.orch.ActiveSessionID()
	assert.False(t, ok)
}

func TestOrchestrator_StartCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Start(ctx, StartInput{Name: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrchestrator_InvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("idle rejects pause resume stop", func(t *testing.T) {
		assert.ErrorIs(t, f.orch.Pause(), ErrNoActiveSession)
		assert.ErrorIs(t, f.orch.Resume(), ErrNoActiveSession)
		_, err := f.orch.Stop(ctx)
		assert.ErrorIs(t, err, ErrNoActiveSession)
	})

	t.Run("recording rejects resume", func(t *testing.T) {
		_, err := f.orch.Start(ctx, StartInput{Name: "take"})
		require.NoError(t, err)
		assert.ErrorIs(t, f.orch.Resume(), ErrNoActiveSession)
	})

	t.Run("paused rejects pause", func(t *testing.T) {
		require.NoError(t, f.orch.Pause())
		assert.ErrorIs(t, f.orch.Pause(), ErrNoActiveSession)
	})
}

func TestOrchestrator_StopEmptySession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.orch.Start(ctx, StartInput{Name: "silence"})
	require.NoError(t, err)

	sess, err := f.orch.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
	assert.Zero(t, sess.FileSize)
	assert.Less(t, sess.Duration, time.Second)

	samples, err := f.orch.RetrieveAudio(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestOrchestrator_StopPersistFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boom := errors.New("disk full")
	f.orch.store = &failingStore{Store: f.store, err: boom}

	id, err := f.orch.Start(ctx, StartInput{Name: "doomed"})
	require.NoError(t, err)
	f.source.Feed([]float32{0.5, 0.5})

	_, err = f.orch.Stop(ctx)
	require.Error(t, err)

	var perr *PersistError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, id, perr.Session.ID)
	assert.Equal(t, session.StateStopped, perr.Session.State)
	assert.Equal(t, []float32{0.5, 0.5}, perr.Samples)

	// The slot is free; a new recording can start immediately.
	_, ok := f.orch.ActiveSessionID()
	assert.False(t, ok)
	_, err = f.orch.Start(ctx, StartInput{Name: "retry"})
	require.NoError(t, err)

	// The failed session stays in the registry for a later retry.
	got, err := f.registry.Get(id)
	require.NoError(t, err)
	assert.Empty(t, got.FilePath)

	// The preserved samples persist fine once the store recovers.
	_, err = f.store.StoreAudio(ctx, perr.Session, perr.Samples)
	require.NoError(t, err)
}

func TestOrchestrator_StopCaptureFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boom := errors.New("device gone")
	f.orch.source = &failingSource{Source: f.source, err: boom}

	id, err := f.orch.Start(ctx, StartInput{Name: "doomed"})
	require.NoError(t, err)

	_, err = f.orch.Stop(ctx)
	assert.ErrorIs(t, err, boom)

	// The slot is released and the registry entry is finalized, not left
	// behind as a permanently active session.
	_, ok := f.orch.ActiveSessionID()
	assert.False(t, ok)

	got, err := f.registry.Get(id)
	require.NoError(t, err)
	assert.False(t, got.Active())
	assert.Equal(t, session.StateStopped, got.State)
	assert.False(t, got.EndTime.IsZero())
}

func TestOrchestrator_DeleteSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.orch.Start(ctx, StartInput{Name: "take"})
	require.NoError(t, err)

	t.Run("active session is protected", func(t *testing.T) {
		assert.ErrorIs(t, f.orch.DeleteSession(ctx, id), ErrSessionActive)
	})

	_, err = f.orch.Stop(ctx)
	require.NoError(t, err)

	t.Run("stopped session deletes", func(t *testing.T) {
		require.NoError(t, f.orch.DeleteSession(ctx, id))
		_, err := f.registry.Get(id)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("unknown session", func(t *testing.T) {
		assert.ErrorIs(t, f.orch.DeleteSession(ctx, uuid.New()), store.ErrSessionNotFound)
	})
}

func TestOrchestrator_RunCleanupProtectsActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Two finished recordings, then an active one.
	for _, name := range []string{"first", "second"} {
		_, err := f.orch.Start(ctx, StartInput{Name: name})
		require.NoError(t, err)
		f.source.Feed(make([]float32, 100))
		_, err = f.orch.Stop(ctx)
		require.NoError(t, err)
	}
	activeID, err := f.orch.Start(ctx, StartInput{Name: "live"})
	require.NoError(t, err)

	// A one-byte cap would delete everything eligible.
	result, err := f.orch.RunCleanup(ctx, store.RetentionPolicy{MaxTotalBytes: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SessionsRemoved)

	// The active session survived the pass and the registry was reconciled.
	got, ok := f.orch.ActiveSessionID()
	require.True(t, ok)
	assert.Equal(t, activeID, got)
	assert.Equal(t, 1, f.registry.Len())
}

func TestOrchestrator_CompressStored(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	rawStore, err := store.NewFileStore(dir, codec.RawCodec{}, 5, testLogger())
	require.NoError(t, err)
	src := capture.NewMemorySource(testFormat())
	reg := session.NewRegistry()
	orch := New(Options{Source: src, Store: rawStore, Registry: reg, Logger: testLogger()})

	id, err := orch.Start(ctx, StartInput{Name: "take"})
	require.NoError(t, err)
	src.Feed(make([]float32, 48000))
	_, err = orch.Stop(ctx)
	require.NoError(t, err)

	// Reopen the storage with the zstd codec and compress in place.
	zc, err := codec.NewZstdCodec(5)
	require.NoError(t, err)
	zstdStore, err := store.NewFileStore(dir, zc, 5, testLogger())
	require.NoError(t, err)
	orch2 := New(Options{Source: src, Store: zstdStore, Registry: reg, Logger: testLogger()})

	result, err := orch2.CompressStored(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesCompressed)
	assert.Less(t, result.Ratio, 1.0)

	// The registry picked up the new file size.
	got, err := reg.Get(id)
	require.NoError(t, err)
	assert.Less(t, got.FileSize, int64(48000*4))
	assert.Positive(t, got.FileSize)
}
