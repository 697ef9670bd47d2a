// Package recorder provides the recording orchestrator: the top-level
// component that owns at most one active session, drives its lifecycle
// transitions and delegates persistence to the codec and store layers.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/voicevault/voicevault/internal/capture"
	"github.com/voicevault/voicevault/internal/codec"
	"github.com/voicevault/voicevault/internal/session"
	"github.com/voicevault/voicevault/internal/store"
)

var (
	// ErrAlreadyRecording is returned by Start while a session is active.
	// It is a usage error, never retried automatically.
	ErrAlreadyRecording = errors.New("recorder: a session is already active")

	// ErrNoActiveSession is returned by Pause, Resume and Stop when no
	// session is in the required state.
	ErrNoActiveSession = errors.New("recorder: no active session")

	// ErrSessionActive is returned when deletion targets the session that
	// is currently recording or paused.
	ErrSessionActive = errors.New("recorder: session is active")
)

// PersistError reports a stop whose persistence step failed. The orchestrator
// has already transitioned to Idle and released the session slot; the
// finalized session and the raw samples are preserved so the caller can retry
// persistence without re-recording.
type PersistError struct {
	Session *session.Session
	Samples []float32
	Err     error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("recorder: persist session %s: %v", e.Session.ID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// StartInput carries the caller-supplied attributes of a new session.
type StartInput struct {
	Name        string   `validate:"required,max=200"`
	Description string   `validate:"max=2000"`
	Tags        []string `validate:"max=32,dive,max=64"`
}

// Status is a read-only snapshot of the orchestrator state.
type Status struct {
	// IsRecording is true while a session is in the Recording state.
	IsRecording bool
	// Paused is true while a session is in the Paused state.
	Paused bool
	// Session is a clone of the active session, nil when idle.
	Session *session.Session
	// Elapsed is the recorded time so far, pauses excluded.
	Elapsed time.Duration
}

// Options holds the dependencies and policy for an Orchestrator.
type Options struct {
	Source   capture.Source
	Store    store.Store
	Registry *session.Registry
	Policy   store.RetentionPolicy
	Logger   *slog.Logger
}

// Orchestrator drives the session state machine (Idle, Recording, Paused).
// At most one session is in Recording or Paused state system-wide; the
// exclusive slot is the `current` field behind a single mutex. Frame
// classification never takes this lock.
//
// All exported methods are safe for concurrent use.
type Orchestrator struct {
	mu      sync.Mutex
	current *session.Session
	paused  bool

	source   capture.Source
	store    store.Store
	registry *session.Registry
	policy   store.RetentionPolicy
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates an orchestrator in the Idle state.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		source:   opts.Source,
		store:    opts.Store,
		registry: opts.Registry,
		policy:   opts.Policy,
		validate: validator.New(),
		logger:   logger,
	}
}

// Start creates a new session and begins capture. Returns
// ErrAlreadyRecording if a session is active; the existing session is left
// untouched.
func (o *Orchestrator) Start(ctx context.Context, input StartInput) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	if err := o.validate.Struct(input); err != nil {
		return uuid.Nil, fmt.Errorf("recorder: invalid start input: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != nil {
		return uuid.Nil, ErrAlreadyRecording
	}

	sess := session.New(input.Name, input.Description, input.Tags, o.source.Format())
	if err := o.source.Start(); err != nil {
		return uuid.Nil, fmt.Errorf("recorder: start capture: %w", err)
	}

	o.current = sess
	o.paused = false
	o.registry.Put(sess)

	o.logger.Info("started recording session",
		slog.String("session_id", sess.ID.String()),
		slog.String("name", sess.Name),
	)
	return sess.ID, nil
}

// Pause suspends capture. Valid only from the Recording state.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil || o.paused {
		return ErrNoActiveSession
	}
	if err := o.source.Pause(); err != nil {
		return fmt.Errorf("recorder: pause capture: %w", err)
	}
	o.paused = true
	o.current.State = session.StatePaused
	o.registry.Put(o.current)

	o.logger.Info("paused recording session",
		slog.String("session_id", o.current.ID.String()),
	)
	return nil
}

// Resume continues capture. Valid only from the Paused state.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil || !o.paused {
		return ErrNoActiveSession
	}
	if err := o.source.Resume(); err != nil {
		return fmt.Errorf("recorder: resume capture: %w", err)
	}
	o.paused = false
	o.current.State = session.StateRecording
	o.registry.Put(o.current)

	o.logger.Info("resumed recording session",
		slog.String("session_id", o.current.ID.String()),
	)
	return nil
}

// Stop finalizes the active session: it drains the capture buffer, releases
// the exclusive session slot, then compresses and persists the samples. The
// caller observes the operation as synchronous; the slot is already free
// before the slow encode+persist runs, so a subsequent Start is never
// blocked by a flush.
//
// On persistence failure the returned error is a *PersistError carrying the
// finalized session and the unsaved samples.
func (o *Orchestrator) Stop(ctx context.Context) (*session.Session, error) {
	o.mu.Lock()
	if o.current == nil {
		o.mu.Unlock()
		return nil, ErrNoActiveSession
	}

	sess := o.current
	samples, err := o.source.Stop()
	if err != nil {
		// The slot is released regardless: a broken capture backend must
		// not wedge the recorder. The session is finalized so the registry
		// does not keep an active entry no recording backs.
		sess.Finalize(time.Now().UTC(), o.source.Elapsed())
		o.current = nil
		o.paused = false
		o.mu.Unlock()
		o.registry.Put(sess)
		return nil, fmt.Errorf("recorder: stop capture: %w", err)
	}
	elapsed := o.source.Elapsed()

	sess.Finalize(time.Now().UTC(), elapsed)
	o.current = nil
	o.paused = false
	o.mu.Unlock()

	info, err := o.store.StoreAudio(ctx, sess, samples)
	if err != nil {
		o.registry.Put(sess)
		o.logger.Error("failed to persist session audio",
			slog.String("session_id", sess.ID.String()),
			slog.String("error", err.Error()),
		)
		return nil, &PersistError{Session: sess.Clone(), Samples: samples, Err: err}
	}

	sess.FilePath = info.Path
	sess.FileSize = info.Size
	sess.ArchiveURL = info.ArchiveURL
	o.registry.Put(sess)

	o.logger.Info("stopped recording session",
		slog.String("session_id", sess.ID.String()),
		slog.Duration("duration", sess.Duration),
		slog.Int64("bytes", sess.FileSize),
	)
	return sess.Clone(), nil
}

// Status reports the current orchestrator state. Available in any state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{}
	if o.current != nil {
		st.IsRecording = !o.paused
		st.Paused = o.paused
		st.Session = o.current.Clone()
		st.Elapsed = o.source.Elapsed()
	}
	return st
}

// ActiveSessionID returns the ID of the session currently in Recording or
// Paused state, if any.
func (o *Orchestrator) ActiveSessionID() (uuid.UUID, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return uuid.Nil, false
	}
	return o.current.ID, true
}

// DeleteSession removes a stored session and its registry entry. The active
// session is never deletable.
func (o *Orchestrator) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if activeID, ok := o.ActiveSessionID(); ok && activeID == id {
		return ErrSessionActive
	}
	if err := o.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	if err := o.registry.Remove(id); err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}
	return nil
}

// ListSessions queries the store for persisted sessions.
func (o *Orchestrator) ListSessions(ctx context.Context, criteria store.Criteria) ([]*session.Session, error) {
	return o.store.ListSessions(ctx, criteria)
}

// RetrieveAudio loads and decodes the audio stored for a session.
func (o *Orchestrator) RetrieveAudio(ctx context.Context, id uuid.UUID) ([]float32, error) {
	return o.store.RetrieveAudio(ctx, id)
}

// StorageStats reports aggregate storage statistics.
func (o *Orchestrator) StorageStats(ctx context.Context) (store.Stats, error) {
	return o.store.Stats(ctx)
}

// RunCleanup applies the given retention policy, guarding the active session
// against deletion, then reconciles the registry with the store.
func (o *Orchestrator) RunCleanup(ctx context.Context, policy store.RetentionPolicy) (store.CleanupResult, error) {
	result, err := o.store.Cleanup(ctx, policy, func(id uuid.UUID) bool {
		activeID, ok := o.ActiveSessionID()
		return ok && activeID == id
	})
	if err != nil {
		return result, err
	}
	if rerr := o.reconcileRegistry(ctx); rerr != nil {
		return result, rerr
	}
	return result, nil
}

// CompressStored re-encodes raw-stored files with the configured codec and
// refreshes the registry with the updated sizes.
func (o *Orchestrator) CompressStored(ctx context.Context) (codec.Result, error) {
	result, err := o.store.CompressFiles(ctx)
	if err != nil {
		return result, err
	}
	if rerr := o.reconcileRegistry(ctx); rerr != nil {
		return result, rerr
	}
	return result, nil
}

// RunMaintenance runs retention cleanup on the given interval until the
// context is cancelled. Failures are logged and the loop keeps going.
func (o *Orchestrator) RunMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.logger.Info("maintenance loop started",
		slog.Duration("interval", interval),
	)
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("maintenance loop stopped")
			return
		case <-ticker.C:
			result, err := o.RunCleanup(ctx, o.policy)
			if err != nil {
				o.logger.Warn("retention cleanup failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if result.SessionsRemoved > 0 || result.Failures > 0 {
				o.logger.Info("retention cleanup finished",
					slog.Int("sessions_removed", result.SessionsRemoved),
					slog.Int64("bytes_freed", result.BytesFreed),
					slog.Int("failures", result.Failures),
				)
			}
		}
	}
}

// reconcileRegistry refreshes registry entries from the store and drops
// entries for sessions the store no longer has, except the active one.
func (o *Orchestrator) reconcileRegistry(ctx context.Context) error {
	stored, err := o.store.ListSessions(ctx, store.Criteria{})
	if err != nil {
		return err
	}
	known := make(map[uuid.UUID]bool, len(stored))
	for _, sess := range stored {
		known[sess.ID] = true
		o.registry.Put(sess)
	}

	activeID, hasActive := o.ActiveSessionID()
	for _, sess := range o.registry.List() {
		if known[sess.ID] {
			continue
		}
		if hasActive && sess.ID == activeID {
			continue
		}
		if sess.Active() {
			continue
		}
		// A finalized session with no storage location was never
		// persisted (failed stop); keep its metadata so the caller can
		// still retry persistence.
		if sess.FilePath == "" {
			continue
		}
		_ = o.registry.Remove(sess.ID)
	}
	return nil
}
