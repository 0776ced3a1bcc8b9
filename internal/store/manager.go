package store

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"
	"sync"
)

// Settings identifies one external store configuration.
type Settings struct {
	Driver      string // supabase | postgres | sqlite | none
	SupabaseURL string
	SupabaseKey string
	DSN         string // postgres
	Path        string // sqlite
}

// Configured reports whether the settings describe a usable store.
func (s Settings) Configured() bool {
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case "supabase":
		return s.SupabaseURL != "" && s.SupabaseKey != ""
	case "postgres":
		return s.DSN != ""
	case "sqlite":
		return s.Path != ""
	default:
		return false
	}
}

// Fingerprint is a stable digest of the settings, used to decide whether a
// reconfiguration actually changes the backing store.
func (s Settings) Fingerprint() string {
	h := sha256.New()
	for _, part := range []string{s.Driver, s.SupabaseURL, s.SupabaseKey, s.DSN, s.Path} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Factory builds a Store from settings. The manager only invokes it for
// settings that report Configured.
type Factory func(Settings) (Store, error)

// Manager owns the live Store and rebuilds it only when the configuration
// fingerprint changes. Connect/get-or-create/close in one place instead of a
// lazily cached singleton.
type Manager struct {
	mu          sync.Mutex
	factory     Factory
	logger      *log.Logger
	store       Store
	fingerprint string
}

// NewManager creates a Manager with no store attached.
func NewManager(factory Factory, logger *log.Logger) *Manager {
	return &Manager{factory: factory, logger: logger}
}

// Apply reconfigures the manager. When the fingerprint is unchanged the
// current store is kept; otherwise the old store is closed and a new one is
// built (or none, when the settings are not configured).
func (m *Manager) Apply(settings Settings) error {
	fp := settings.Fingerprint()

	m.mu.Lock()
	defer m.mu.Unlock()
	if fp == m.fingerprint && m.store != nil {
		return nil
	}

	if m.store != nil {
		if err := m.store.Close(); err != nil && m.logger != nil {
			m.logger.Printf("store manager: close previous store: %v", err)
		}
		m.store = nil
	}
	m.fingerprint = fp

	if !settings.Configured() {
		return nil
	}
	st, err := m.factory(settings)
	if err != nil {
		return err
	}
	m.store = st
	if m.logger != nil {
		m.logger.Printf("store manager: connected driver=%s", settings.Driver)
	}
	return nil
}

// Current returns the active store, or nil when unconfigured.
func (m *Manager) Current() Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store
}

// Configured reports whether a store is attached.
func (m *Manager) Configured() bool {
	return m.Current() != nil
}

// Close releases the active store.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store == nil {
		return nil
	}
	err := m.store.Close()
	m.store = nil
	m.fingerprint = ""
	return err
}
