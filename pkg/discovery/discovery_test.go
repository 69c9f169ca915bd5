package discovery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gooseworks/goose/pkg/models"
	"github.com/gooseworks/goose/pkg/runner"
)

type fakeRunner struct {
	runner.Client

	mu       sync.Mutex
	reloads  int
	scans    int
	snapshot models.DiscoverySnapshot
	scanErr  error
}

func (f *fakeRunner) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return nil
}

func (f *fakeRunner) ListTests(ctx context.Context) (models.DiscoverySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	return f.snapshot, f.scanErr
}

func (f *fakeRunner) counts() (reloads, scans int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloads, f.scans
}

func TestListScansOnceThenServesCache(t *testing.T) {
	fr := &fakeRunner{snapshot: models.DiscoverySnapshot{Tests: []models.TestDescriptor{
		{QualifiedName: "m::t", Module: "m", Name: "t"},
	}}}
	svc := NewService(fr, slog.Default())

	first, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Tests, 1)

	_, err = svc.List(context.Background())
	require.NoError(t, err)

	reloads, scans := fr.counts()
	assert.Equal(t, 1, reloads)
	assert.Equal(t, 1, scans)
}

func TestReloadSortsByModuleThenName(t *testing.T) {
	fr := &fakeRunner{snapshot: models.DiscoverySnapshot{Tests: []models.TestDescriptor{
		{QualifiedName: "zeta::test_a", Module: "zeta", Name: "test_a"},
		{QualifiedName: "alpha::test_z", Module: "alpha", Name: "test_z"},
		{QualifiedName: "alpha::test_a", Module: "alpha", Name: "test_a"},
	}}}
	svc := NewService(fr, slog.Default())

	snapshot, err := svc.Reload(context.Background())
	require.NoError(t, err)

	names := make([]string, len(snapshot.Tests))
	for i, d := range snapshot.Tests {
		names[i] = d.QualifiedName
	}
	assert.Equal(t, []string{"alpha::test_a", "alpha::test_z", "zeta::test_a"}, names)
}

func TestReloadPropagatesScanError(t *testing.T) {
	fr := &fakeRunner{scanErr: errors.New("runner down")}
	svc := NewService(fr, slog.Default())

	_, err := svc.Reload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runner down")

	_, loaded := svc.Snapshot()
	assert.False(t, loaded)
}

func TestPartialDiscoveryErrorIsNotFatal(t *testing.T) {
	fr := &fakeRunner{snapshot: models.DiscoverySnapshot{
		Tests:     []models.TestDescriptor{{QualifiedName: "m::t", Module: "m", Name: "t"}},
		ErrorText: "test_broken.py: import error",
	}}
	svc := NewService(fr, slog.Default())

	snapshot, err := svc.Reload(context.Background())
	require.NoError(t, err)
	assert.Len(t, snapshot.Tests, 1)
	assert.Contains(t, snapshot.ErrorText, "import error")
}

func TestConcurrentReloadsCollapse(t *testing.T) {
	fr := &fakeRunner{}
	svc := NewService(fr, slog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reload(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	reloads, _ := fr.counts()
	assert.LessOrEqual(t, reloads, 8)
	assert.GreaterOrEqual(t, reloads, 1)
}
