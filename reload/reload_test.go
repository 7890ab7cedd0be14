package reload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docutag/animescraper/db"
	"github.com/docutag/animescraper/models"
	"github.com/docutag/animescraper/repository"
)

// countingBuilder returns a catalog with one anime per build so far
type countingBuilder struct {
	builds atomic.Int32
	fail   atomic.Bool
}

func (b *countingBuilder) Build(ctx context.Context) (*models.Catalog, error) {
	if b.fail.Load() {
		return nil, errors.New("corpus unreadable")
	}
	n := b.builds.Add(1)
	c := models.NewCatalog()
	for i := int32(0); i < n; i++ {
		c.EnsureAnime(string(rune('a'+i)), "")
	}
	return c, nil
}

func animeCount(s *repository.Store) int {
	return len(s.Get().AnimeList(repository.SortTitle, ""))
}

func TestRebuildSwaps(t *testing.T) {
	b := &countingBuilder{}
	store := repository.NewStore(nil)
	var swapped atomic.Int32
	r := New(b, store, 0, func(*models.Catalog) { swapped.Add(1) }, nil)

	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, animeCount(store))
	assert.Equal(t, int32(1), swapped.Load())

	b.fail.Store(true)
	_, err = r.Rebuild(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, animeCount(store), "failed rebuild keeps the live catalog")
	assert.Equal(t, int32(1), swapped.Load())
}

type fakeSnapshots struct {
	snap *db.Snapshot
	err  error
}

func (f fakeSnapshots) LatestSnapshot(ctx context.Context) (*db.Snapshot, error) {
	return f.snap, f.err
}

func TestRestoreLatest(t *testing.T) {
	store := repository.NewStore(nil)
	var restored *models.Catalog
	r := New(&countingBuilder{}, store, 0, func(c *models.Catalog) { restored = c }, nil)

	saved := models.NewCatalog()
	saved.EnsureAnime("kept-show", "Kept Show")
	snap, err := r.RestoreLatest(context.Background(), fakeSnapshots{snap: &db.Snapshot{ID: "s1", Catalog: saved}})
	require.NoError(t, err)
	assert.Equal(t, "s1", snap.ID)
	assert.Same(t, saved, restored)
	_, err = store.Get().FindAnime("kept-show")
	assert.NoError(t, err)
}

func TestRestoreLatestWithoutSnapshot(t *testing.T) {
	store := repository.NewStore(nil)
	r := New(&countingBuilder{}, store, 0, nil, nil)
	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	_, err = r.RestoreLatest(context.Background(), fakeSnapshots{err: db.ErrNoSnapshot})
	assert.ErrorIs(t, err, db.ErrNoSnapshot)
	assert.Equal(t, 1, animeCount(store), "live catalog is kept")

	_, err = r.RestoreLatest(context.Background(), fakeSnapshots{snap: &db.Snapshot{ID: "empty"}})
	assert.Error(t, err)
	assert.Equal(t, 1, animeCount(store))
}

func TestWatchDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	b := &countingBuilder{}
	store := repository.NewStore(nil)

	ctx, cancel := context.WithCancel(context.Background())
	r := New(b, store, 100*time.Millisecond, nil, nil)
	require.NoError(t, r.Watch(ctx, dir))

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "page.html"), []byte{byte(i)}, 0o644))
	}

	require.Eventually(t, func() bool { return b.builds.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), b.builds.Load(), "a burst of writes triggers one rebuild")
	assert.Equal(t, 1, animeCount(store))

	cancel()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not stop")
	}
}

func TestWatchNewSubdirectories(t *testing.T) {
	dir := t.TempDir()
	b := &countingBuilder{}
	store := repository.NewStore(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(b, store, 50*time.Millisecond, nil, nil)
	require.NoError(t, r.Watch(ctx, dir))

	sub := filepath.Join(dir, "otakudesu.best", "00001_GET_")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.Eventually(t, func() bool { return b.builds.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	before := b.builds.Load()
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "04_res_body.html"), []byte("<html></html>"), 0o644))
	require.Eventually(t, func() bool { return b.builds.Load() > before }, 3*time.Second, 20*time.Millisecond)
}

func TestWatchMissingDir(t *testing.T) {
	r := New(&countingBuilder{}, repository.NewStore(nil), 0, nil, nil)
	assert.Error(t, r.Watch(context.Background(), filepath.Join(t.TempDir(), "missing")))
}
