package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gooseworks/goose/pkg/models"
)

func TestJobStoreClonesAreDetached(t *testing.T) {
	store := NewJobStore()
	store.Insert(&models.Job{
		ID:           "j1",
		Status:       models.JobStatusQueued,
		Tests:        []string{"a::b"},
		TestStatuses: map[string]models.TestStatus{"a::b": models.TestStatusQueued},
	})

	clone, ok := store.Get("j1")
	require.True(t, ok)
	clone.TestStatuses["a::b"] = models.TestStatusFailed
	clone.Tests[0] = "mutated"

	fresh, _ := store.Get("j1")
	assert.Equal(t, models.TestStatusQueued, fresh.TestStatuses["a::b"])
	assert.Equal(t, "a::b", fresh.Tests[0])
}

func TestJobStoreMutateUpdatesTimestamp(t *testing.T) {
	store := NewJobStore()
	created := time.Now().UTC().Add(-time.Hour)
	store.Insert(&models.Job{ID: "j1", Status: models.JobStatusQueued, UpdatedAt: created})

	clone, ok := store.Mutate("j1", func(job *models.Job) {
		job.Status = models.JobStatusRunning
	})
	require.True(t, ok)
	assert.Equal(t, models.JobStatusRunning, clone.Status)
	assert.True(t, clone.UpdatedAt.After(created))

	_, ok = store.Mutate("missing", func(job *models.Job) {})
	assert.False(t, ok)
}

func TestJobStoreListNewestFirst(t *testing.T) {
	store := NewJobStore()
	store.Insert(&models.Job{ID: "old", Status: models.JobStatusSucceeded})
	store.Insert(&models.Job{ID: "new", Status: models.JobStatusQueued})

	jobs := store.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, "new", jobs[0].ID)
	assert.Equal(t, "old", jobs[1].ID)
	assert.Equal(t, 1, store.Count(models.JobStatusQueued))
}
