package offlineagent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	identity "github.com/offline-agent/offline-agent/pkg/request-identity"
	snapshot "github.com/offline-agent/offline-agent/pkg/response-snapshot"
	"github.com/offline-agent/offline-agent/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the lifecycle position of an agent instance.
type State int

const (
	StateInstalling State = iota
	StateWaiting
	StateActivating
	StateActive
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateRedundant:
		return "redundant"
	}
	return "unknown"
}

type fetcher interface {
	Fetch(ctx context.Context, path string) (snapshot.Snapshot, error)
}

type lifecycleConfig struct {
	store    store.Provider
	fetcher  fetcher
	prefix   string
	version  string
	manifest []string
	log      zerolog.Logger
}

// Lifecycle governs installation, activation and retirement of one agent
// instance. All lifecycle state lives here; nothing is ambient.
type Lifecycle struct {
	store    store.Provider
	fetcher  fetcher
	prefix   string
	version  string
	manifest []string
	log      zerolog.Logger

	mu      sync.RWMutex
	state   State
	current store.Handle
}

func newLifecycle(config lifecycleConfig) *Lifecycle {
	return &Lifecycle{
		store:    config.store,
		fetcher:  config.fetcher,
		prefix:   config.prefix,
		version:  config.version,
		manifest: config.manifest,
		log:      config.log.With().Str("component", "lifecycle").Logger(),
		state:    StateInstalling,
	}
}

// Namespace returns the current namespace name, "<prefix>-<version>".
func (l *Lifecycle) Namespace() string {
	return l.prefix + "-" + l.version
}

// State returns the lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Current returns the handle serving requests, or nil before activation.
func (l *Lifecycle) Current() store.Handle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Install opens the current namespace and populates it with the manifest
// assets fetched from the origin. The operation is all-or-nothing: every
// manifest fetch must resolve with an ok status before anything is
// written, and any failure leaves the state at installing with no retry.
// On success the waiting state is skipped entirely and the instance moves
// straight to activating, trading a brief inconsistency window for
// freshness.
func (l *Lifecycle) Install(ctx context.Context) error {
	attempt := uuid.NewString()
	log := l.log.With().Str("attempt", attempt).Logger()
	log.Info().Str("namespace", l.Namespace()).Int("assets", len(l.manifest)).Msg("Installing")

	l.setState(StateInstalling)

	handle, err := l.store.Open(l.Namespace())
	if err != nil {
		log.Error().Err(err).Msg("Could not open namespace")
		return fmt.Errorf("install: open namespace: %w", err)
	}

	fetched := make(map[string][]byte, len(l.manifest))
	for _, path := range l.manifest {
		snap, err := l.fetcher.Fetch(ctx, path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Install fetch failed")
			return fmt.Errorf("install: fetch %s: %w", path, err)
		}
		if !isOK(snap.StatusCode) {
			log.Error().Int("status", snap.StatusCode).Str("path", path).Msg("Install fetch not ok")
			return fmt.Errorf("install: fetch %s: status %d", path, snap.StatusCode)
		}
		encoded, err := snapshot.Encode(snap)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Could not encode manifest snapshot")
			return fmt.Errorf("install: encode %s: %w", path, err)
		}
		fetched[identity.FromPath(path)] = encoded
	}

	// every manifest fetch resolved; only now touch the namespace
	for id, encoded := range fetched {
		if err := handle.Put(id, encoded); err != nil {
			log.Error().Err(err).Str("identity", id).Msg("Could not store manifest asset")
			return fmt.Errorf("install: store %s: %w", id, err)
		}
	}

	l.setState(StateActivating)
	log.Info().Msg("Installed, skipping waiting")
	return nil
}

// Activate deletes every namespace that shares this agent's naming prefix
// but is not the current one, then publishes the current handle so all
// open sessions are served by this instance immediately.
//
// Only an activating instance may activate: an instance whose install
// failed never gets to evict the previous generation, which stays in
// control until a future install succeeds.
func (l *Lifecycle) Activate(ctx context.Context) error {
	if state := l.State(); state != StateActivating {
		return fmt.Errorf("activate: instance is %s, not activating", state)
	}
	current := l.Namespace()
	names, err := l.store.Namespaces()
	if err != nil {
		return fmt.Errorf("activate: list namespaces: %w", err)
	}
	evictionPrefix := l.prefix + "-"
	for _, name := range names {
		if name == current || !strings.HasPrefix(name, evictionPrefix) {
			continue
		}
		existed, err := l.store.Delete(name)
		if err != nil {
			l.log.Error().Err(err).Str("namespace", name).Msg("Could not delete stale namespace")
			continue
		}
		l.log.Info().Str("namespace", name).Bool("existed", existed).Msg("Evicted stale namespace")
	}

	handle, err := l.store.Open(current)
	if err != nil {
		return fmt.Errorf("activate: open namespace: %w", err)
	}

	l.mu.Lock()
	l.current = handle
	l.state = StateActive
	l.mu.Unlock()
	l.log.Info().Str("namespace", handle.Name()).Msg("Activated, claimed open sessions")
	return nil
}

// SkipWaiting advances a waiting instance to activating. It is a no-op in
// any other state.
func (l *Lifecycle) SkipWaiting() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateWaiting {
		l.state = StateActivating
		l.log.Info().Msg("Skipping waiting on request")
	}
}

// Retire marks a superseded instance redundant and releases its handle.
func (l *Lifecycle) Retire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateRedundant
	l.current = nil
	l.log.Info().Msg("Retired")
}

func (l *Lifecycle) setState(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
}
