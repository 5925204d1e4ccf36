package staging

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-admin/internal/model"
	"github.com/jwalitptl/hospital-admin/internal/repository"
	"github.com/jwalitptl/hospital-admin/internal/repository/kv"
	"github.com/jwalitptl/hospital-admin/pkg/metrics"
)

func newRepo(t *testing.T) (*Repository, repository.KeyValueStore) {
	t.Helper()
	store := kv.NewMemoryStore()
	return NewRepository(store, DefaultKeys(), metrics.NewMetrics("test", prometheus.NewRegistry())), store
}

func TestListEmptyWhenKeyAbsent(t *testing.T) {
	repo, _ := newRepo(t)

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPutReplacesByID(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	require.NoError(t, repo.Put(ctx, &model.PendingDoctor{ID: "p1", Email: "a@x.com"}))
	require.NoError(t, repo.Put(ctx, &model.PendingDoctor{ID: "p2", Email: "b@x.com"}))
	require.NoError(t, repo.Put(ctx, &model.PendingDoctor{ID: "p1", Email: "c@x.com"}))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c@x.com", list[0].Email)
}

func TestRemoveOnlyTarget(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	for _, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, repo.Put(ctx, &model.PendingDoctor{ID: id}))
	}

	require.NoError(t, repo.Remove(ctx, "p2"))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p1", list[0].ID)
	assert.Equal(t, "p3", list[1].ID)

	assert.ErrorIs(t, repo.Remove(ctx, "p2"), repository.ErrNotFound)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	require.NoError(t, repo.Put(ctx, &model.PendingDoctor{ID: "p1"}))

	require.NoError(t, repo.SetStatus(ctx, "p1", model.StatusAuthCreatedOnly))

	d, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAuthCreatedOnly, d.Status)
	assert.ErrorIs(t, repo.SetStatus(ctx, "missing", model.StatusAuthCreatedOnly), repository.ErrNotFound)
}

func TestRegisterMovesRecord(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	require.NoError(t, repo.Put(ctx, &model.PendingDoctor{ID: "p1", Email: "d@x.com", Status: model.StatusProfileCreatedOnly}))

	entry, err := repo.Register(ctx, "p1", "u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRegistered, entry.Status)
	assert.Equal(t, "u1", entry.AccountID)

	_, err = repo.Get(ctx, "p1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	registered, err := repo.ListRegistered(ctx)
	require.NoError(t, err)
	require.Len(t, registered, 1)
	assert.Equal(t, "d@x.com", registered[0].Email)
}

func TestStoredShapeIsJSONArray(t *testing.T) {
	ctx := context.Background()
	repo, store := newRepo(t)
	require.NoError(t, repo.Put(ctx, &model.PendingDoctor{ID: "p1", Email: "d@x.com"}))
	require.NoError(t, repo.Remove(ctx, "p1"))

	raw, ok, err := store.Get(ctx, DefaultKeys().Pending)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", raw)
}

func TestCorruptCollection(t *testing.T) {
	ctx := context.Background()
	repo, store := newRepo(t)
	require.NoError(t, store.Set(ctx, DefaultKeys().Pending, "{not json"))

	_, err := repo.List(ctx)
	assert.Error(t, err)
}

func TestConcurrentWritesAreNotLost(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = repo.Put(ctx, &model.PendingDoctor{ID: fmt.Sprintf("p%d", i)})
		}(i)
	}
	wg.Wait()

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 20)
}

func TestSetProgressKeepsAccountUntilRegistered(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	require.NoError(t, repo.Put(ctx, &model.PendingDoctor{ID: "p1", Email: "d@x.com"}))

	require.NoError(t, repo.SetProgress(ctx, "p1", model.StatusAuthCreatedOnly, "u1", "profile"))
	d, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAuthCreatedOnly, d.Status)
	assert.Equal(t, "u1", d.RemoteAccountID)
	assert.Equal(t, "profile", d.ResumeAt)

	entry, err := repo.Register(ctx, "p1", "u1")
	require.NoError(t, err)
	assert.Empty(t, entry.RemoteAccountID)
	assert.Empty(t, entry.ResumeAt)
	assert.Equal(t, "u1", entry.AccountID)

	assert.ErrorIs(t, repo.SetProgress(ctx, "p1", model.StatusProfileCreatedOnly, "u1", "doctor_record"), repository.ErrNotFound)
}

// flakyStore fails every write to failKey.
type flakyStore struct {
	repository.KeyValueStore
	failKey string
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	if key == s.failKey {
		return fmt.Errorf("write %s: connection reset", key)
	}
	return s.KeyValueStore.Set(ctx, key, value)
}

func TestRegisterKeepsPendingWhenRegisteredWriteFails(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{KeyValueStore: kv.NewMemoryStore()}
	repo := NewRepository(store, DefaultKeys(), nil)
	require.NoError(t, repo.Put(ctx, &model.PendingDoctor{ID: "p1", Email: "d@x.com"}))

	store.failKey = DefaultKeys().Registered
	_, err := repo.Register(ctx, "p1", "u1")
	require.Error(t, err)

	d, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "d@x.com", d.Email)

	registered, err := repo.ListRegistered(ctx)
	require.NoError(t, err)
	assert.Empty(t, registered)
}

func TestRegisterRollsBackWhenPendingWriteFails(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{KeyValueStore: kv.NewMemoryStore()}
	repo := NewRepository(store, DefaultKeys(), nil)
	require.NoError(t, repo.Put(ctx, &model.PendingDoctor{ID: "p0", Email: "c@x.com"}))
	require.NoError(t, repo.Put(ctx, &model.PendingDoctor{ID: "p1", Email: "d@x.com"}))
	_, err := repo.Register(ctx, "p0", "u0")
	require.NoError(t, err)

	store.failKey = DefaultKeys().Pending
	_, err = repo.Register(ctx, "p1", "u1")
	require.Error(t, err)

	d, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "d@x.com", d.Email)

	registered, err := repo.ListRegistered(ctx)
	require.NoError(t, err)
	require.Len(t, registered, 1)
	assert.Equal(t, "p0", registered[0].ID)
}
