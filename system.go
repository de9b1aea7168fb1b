// Package resourcesystem is the top-level entry point tying together the
// hash-keyed engine (pkg/base), optional durable persistence
// (persistence/badger), configuration, and logging into one lifecycle-
// managed handle, mirroring the teacher's own OuroborosDB root type.
package resourcesystem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/project-arcana/resource-system/config"
	"github.com/project-arcana/resource-system/logging"
	"github.com/project-arcana/resource-system/persistence/badger"
	"github.com/project-arcana/resource-system/pkg/base"

	"log/slog"
)

var (
	// ErrNotStarted is returned by any operation attempted before Start.
	ErrNotStarted = errors.New("resourcesystem: not started")
	// ErrClosed is returned by any operation attempted after Close.
	ErrClosed = errors.New("resourcesystem: closed")
)

// System is the top-level handle applications construct: the engine plus
// its optional persistence adapter and background drive loop, with the
// same New/Start/Run/Close lifecycle shape as the teacher's OuroborosDB.
type System struct {
	log    *slog.Logger
	config config.Config

	engine *base.ResourceSystem

	storeMu sync.RWMutex
	store   *badger.Store
	known   map[base.InvocHash]struct{}

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once

	runCancel context.CancelFunc
	runDone   chan struct{}
}

// New constructs a System. New does not perform I/O; call Start to open the
// persistence store (if configured) and prime the engine.
func New(cfg config.Config, logger *slog.Logger) *System {
	if logger == nil {
		logger = logging.Default()
	}
	return &System{
		log:    logger,
		config: cfg,
		known:  make(map[base.InvocHash]struct{}),
	}
}

// Engine returns the underlying pkg/base.ResourceSystem for defining
// computations and resources. It fails with ErrNotStarted before Start and
// ErrClosed after Close, mirroring the teacher's own kvHandle guard.
func (s *System) Engine() (*base.ResourceSystem, error) {
	if !s.started.Load() {
		return nil, ErrNotStarted
	}
	if s.engine == nil {
		return nil, ErrClosed
	}
	return s.engine, nil
}

// Start initializes the engine and, if config.PersistenceDir is set, opens
// the badger store and loads its persisted invocation cache. Start is safe
// to call multiple times; only the first call has effect.
func (s *System) Start(ctx context.Context) error {
	var startErr error
	s.startOnce.Do(func() {
		s.engine = base.New(
			base.WithLogger(s.log),
			base.WithMaxProcessAllIterations(s.config.MaxProcessAllIterations),
		)

		if s.config.PersistenceDir != "" {
			store, err := badger.Open(badger.Config{
				Dir:                  s.config.PersistenceDir,
				MinimumFreeSpaceGB:   s.config.MinimumFreeSpaceGB,
				EnableCompression:    s.config.EnableCompression,
				EnableEncryption:     s.config.EnableEncryption,
				EncryptionPassphrase: s.config.EncryptionPassphrase,
			})
			if err != nil {
				startErr = fmt.Errorf("open persistence store: %w", err)
				return
			}
			if err := store.Load(s.engine); err != nil {
				startErr = fmt.Errorf("load persistence store: %w", err)
				return
			}
			store.Attach(s.engine)

			s.storeMu.Lock()
			s.store = store
			s.storeMu.Unlock()
		}

		s.started.Store(true)
		s.log.Info("resource system started", slog.Bool("persistent", s.store != nil))
	})
	return startErr
}

// Run starts the system, launches a background goroutine that periodically
// drives ProcessAll and, if persistent, checkpoints the store, then blocks
// until ctx is canceled and performs a bounded graceful shutdown. Mirrors
// the teacher's OuroborosDB.Run.
func (s *System) Run(ctx context.Context, tick time.Duration) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.runDone = make(chan struct{})
	go s.driveLoop(runCtx, tick)

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return s.Close(shutdownCtx)
}

// driveLoop periodically calls ProcessAll and, if persistent, checkpoints
// newly-persistable invocations to disk. Mirrors the teacher's own
// background GC goroutine pattern in OuroborosDB.go.
func (s *System) driveLoop(ctx context.Context, tick time.Duration) {
	defer close(s.runDone)
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.engine.ProcessAll()
			if err := s.checkpoint(); err != nil {
				s.log.Warn("checkpoint failed", slog.String("error", err.Error()))
			}
		}
	}
}

// checkpoint saves any newly-persistable invocations and their content to
// the badger store, if one is configured. A no-op otherwise.
func (s *System) checkpoint() error {
	s.storeMu.RLock()
	store := s.store
	s.storeMu.RUnlock()
	if store == nil {
		return nil
	}

	known, err := store.Save(s.engine, s.known)
	if err != nil {
		return err
	}
	s.known = known
	return nil
}

// Close terminates the background drive loop (if running), performs a
// final checkpoint, and closes the persistence store. Close is idempotent.
func (s *System) Close(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		if s.runCancel != nil {
			s.runCancel()
			select {
			case <-s.runDone:
			case <-ctx.Done():
			}
		}

		if err := s.checkpoint(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("final checkpoint: %w", err))
		}

		s.storeMu.Lock()
		store := s.store
		s.store = nil
		s.storeMu.Unlock()
		if store != nil {
			if err := store.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close persistence store: %w", err))
			}
		}

		s.engine = nil
		s.log.Info("resource system closed")
	})
	return closeErr
}

// CloseWithoutContext closes the system using a background context.
func (s *System) CloseWithoutContext() error {
	return s.Close(context.Background())
}
