package store

import (
	"context"
	"sync"
	"time"

	"github.com/alcaldia-digital/memoria/internal/profile"
	"github.com/alcaldia-digital/memoria/store/cache"
)

// Store provides access to the conversational memory subsystem: the
// deduplicated fact table, the per-user conversation summary, and the
// ranking used to pull facts into assistant context.
type Store struct {
	profile *profile.Profile
	driver  Driver
	now     func() time.Time

	// summaryCache keeps hot per-user summaries; the orchestration layer
	// reads the summary on every assistant turn.
	summaryCache *cache.Cache

	// summaryGens guards cache fills against purges. A read-through fill
	// captures the user's generation before touching the driver and is
	// dropped if PurgeUser bumped it in the meantime; without this, a
	// driver read started before a purge could re-cache the erased
	// summary after the purge committed.
	summaryGenMu sync.RWMutex
	summaryGens  map[string]uint64
}

// New creates a Store on top of a database driver. The store is inert until
// Migrate is called; schema setup is a deliberate startup step, never an
// import-time side effect.
func New(driver Driver, profile *profile.Profile) *Store {
	summaryTTL := 5 * time.Minute
	if profile != nil && profile.SummaryCacheTTL > 0 {
		summaryTTL = time.Duration(profile.SummaryCacheTTL) * time.Second
	}

	return &Store{
		profile: profile,
		driver:  driver,
		now:     time.Now,
		summaryCache: cache.New(cache.Config{
			DefaultTTL:      summaryTTL,
			CleanupInterval: time.Minute,
			MaxItems:        1024,
		}),
		summaryGens: make(map[string]uint64),
	}
}

// SetNowFunc overrides the store clock. Tests use it to pin time; every
// timestamp the store writes or compares comes from this clock, never from
// the database.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.now = now
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// Migrate brings the schema up to date. Call it once at process startup,
// right after constructing the store.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

// Ping reports whether the backing database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.Ping(ctx)
}

func (s *Store) Close() error {
	s.summaryCache.Close()
	return s.driver.Close()
}
