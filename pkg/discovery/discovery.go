// Package discovery maintains the cached view of the user project's test
// functions, refreshed through the runner on demand.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gooseworks/goose/pkg/models"
	"github.com/gooseworks/goose/pkg/runner"
)

// Service owns the discovery snapshot. Reads are served from the cache;
// Reload refreshes it through the runner. Concurrent Reload calls collapse
// into a single runner round-trip and all callers observe its result.
type Service struct {
	runner runner.Client
	logger *slog.Logger

	mu       sync.RWMutex
	snapshot models.DiscoverySnapshot
	loaded   bool

	reloadGroup singleflight.Group
}

// NewService creates a discovery service. The cache starts empty; the first
// List or Reload populates it.
func NewService(runnerClient runner.Client, logger *slog.Logger) *Service {
	return &Service{
		runner: runnerClient,
		logger: logger.With("component", "discovery"),
	}
}

// List returns the current snapshot, performing an initial scan if none has
// happened yet. It never re-scans on its own after that: stale-after-edit is
// resolved by Reload, which the job manager calls once per job.
func (s *Service) List(ctx context.Context) (models.DiscoverySnapshot, error) {
	s.mu.RLock()
	if s.loaded {
		snapshot := s.snapshot
		s.mu.RUnlock()
		return snapshot, nil
	}
	s.mu.RUnlock()
	return s.Reload(ctx)
}

// Reload drops the runner's module cache, re-scans the project, and replaces
// the cached snapshot. Scan failures of individual files are not an error:
// they surface as the snapshot's ErrorText with the loadable tests intact.
func (s *Service) Reload(ctx context.Context) (models.DiscoverySnapshot, error) {
	result, err, _ := s.reloadGroup.Do("reload", func() (any, error) {
		return s.reload(ctx)
	})
	if err != nil {
		return models.DiscoverySnapshot{}, err
	}
	return result.(models.DiscoverySnapshot), nil
}

func (s *Service) reload(ctx context.Context) (models.DiscoverySnapshot, error) {
	if err := s.runner.Reload(ctx); err != nil {
		return models.DiscoverySnapshot{}, fmt.Errorf("reloading runner modules: %w", err)
	}

	snapshot, err := s.runner.ListTests(ctx)
	if err != nil {
		return models.DiscoverySnapshot{}, fmt.Errorf("scanning tests: %w", err)
	}

	sort.Slice(snapshot.Tests, func(i, j int) bool {
		a, b := snapshot.Tests[i], snapshot.Tests[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		return a.Name < b.Name
	})

	s.mu.Lock()
	s.snapshot = snapshot
	s.loaded = true
	s.mu.Unlock()

	if snapshot.ErrorText != "" {
		s.logger.Warn("Test discovery completed with errors",
			"tests", len(snapshot.Tests),
			"error", snapshot.ErrorText)
	} else {
		s.logger.Info("Test discovery completed", "tests", len(snapshot.Tests))
	}
	return snapshot, nil
}

// Snapshot returns the cached snapshot without touching the runner. The
// second return value is false before the first successful scan.
func (s *Service) Snapshot() (models.DiscoverySnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, s.loaded
}
