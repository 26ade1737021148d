package uploader

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowvault/pkg/errors"
	"flowvault/pkg/logger"
	"flowvault/pkg/models"
	"flowvault/pkg/storage"
)

func stageFiles(t *testing.T, n int) []models.StagedFile {
	t.Helper()
	dir := t.TempDir()
	files := make([]models.StagedFile, 0, n)
	for i := 0; i < n; i++ {
		name := filepath.Join(dir, "screen_"+string(rune('a'+i))+".png")
		require.NoError(t, os.WriteFile(name, []byte("png"), 0644))
		files = append(files, models.StagedFile{
			LocalPath: name,
			Key:       storage.AssetKey("flows", "app", "flow", filepath.Base(name)),
			Kind:      models.KindScreenshot,
			AppID:     "app",
			FlowID:    "flow",
		})
	}
	return files
}

func TestUploadBatch(t *testing.T) {
	store := storage.NewMemoryStore()
	pool := NewPool(4, store, 1, logger.NewNop())
	files := stageFiles(t, 5)

	batch := pool.UploadBatch(context.Background(), files, time.Now())

	require.Len(t, batch.Results, 5)
	assert.Empty(t, batch.Failed())
	assert.Equal(t, 5, store.Len())

	obj, ok := store.Get(files[0].Key)
	require.True(t, ok)
	assert.Equal(t, "app", obj.Metadata["app_id"])
	assert.Equal(t, "flow", obj.Metadata["flow_id"])
	assert.Equal(t, "screenshot", obj.Metadata["kind"])
	assert.NotEmpty(t, obj.Metadata["scraped_at"])
	assert.Equal(t, "image/png", obj.ContentType)
}

func TestUploadBatchSkipsExisting(t *testing.T) {
	store := storage.NewMemoryStore()
	pool := NewPool(2, store, 1, logger.NewNop())
	files := stageFiles(t, 3)

	// Pre-seed one object as if a previous run uploaded it.
	f, err := os.Open(files[1].LocalPath)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), files[1].Key, f, "image/png", nil))
	f.Close()

	batch := pool.UploadBatch(context.Background(), files, time.Now())

	require.Len(t, batch.Results, 3)
	assert.Empty(t, batch.Failed())
	assert.Equal(t, 1, batch.Skipped())
}

// countingStore tracks the peak number of concurrent Put calls.
type countingStore struct {
	inner    storage.ObjectStore
	inFlight int64
	peak     int64
	mu       sync.Mutex
}

func (c *countingStore) Put(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error {
	n := atomic.AddInt64(&c.inFlight, 1)
	c.mu.Lock()
	if n > c.peak {
		c.peak = n
	}
	c.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	defer atomic.AddInt64(&c.inFlight, -1)
	return c.inner.Put(ctx, key, body, contentType, metadata)
}

func (c *countingStore) Exists(ctx context.Context, key string) (bool, error) {
	return c.inner.Exists(ctx, key)
}

func TestUploadBatchBoundsConcurrency(t *testing.T) {
	store := &countingStore{inner: storage.NewMemoryStore()}
	pool := NewPool(3, store, 1, logger.NewNop())
	files := stageFiles(t, 12)

	batch := pool.UploadBatch(context.Background(), files, time.Now())

	require.Len(t, batch.Results, 12)
	assert.Empty(t, batch.Failed())
	assert.LessOrEqual(t, store.peak, int64(3))
}

// flakyStore fails a key a fixed number of times before succeeding.
type flakyStore struct {
	inner    storage.ObjectStore
	failures map[string]*int32
	err      error
}

func (f *flakyStore) Put(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error {
	if remaining, ok := f.failures[key]; ok && atomic.AddInt32(remaining, -1) >= 0 {
		return f.err
	}
	return f.inner.Put(ctx, key, body, contentType, metadata)
}

func (f *flakyStore) Exists(ctx context.Context, key string) (bool, error) {
	return f.inner.Exists(ctx, key)
}

func TestUploadBatchRetriesTransientFailures(t *testing.T) {
	files := stageFiles(t, 2)
	two := int32(2)
	store := &flakyStore{
		inner:    storage.NewMemoryStore(),
		failures: map[string]*int32{files[0].Key: &two},
		err:      errors.Transient(nil, "connection reset"),
	}
	pool := NewPool(2, store, 3, logger.NewNop())

	batch := pool.UploadBatch(context.Background(), files, time.Now())

	require.Len(t, batch.Results, 2)
	assert.Empty(t, batch.Failed())
}

func TestUploadBatchCollectsFailures(t *testing.T) {
	files := stageFiles(t, 3)
	many := int32(100)
	store := &flakyStore{
		inner:    storage.NewMemoryStore(),
		failures: map[string]*int32{files[2].Key: &many},
		err:      errors.Transient(nil, "connection reset"),
	}
	pool := NewPool(2, store, 2, logger.NewNop())

	batch := pool.UploadBatch(context.Background(), files, time.Now())

	require.Len(t, batch.Results, 3)
	failed := batch.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, files[2].Key, failed[0].File.Key)
	assert.Nil(t, batch.FatalError())
}

func TestUploadBatchSurfacesFatal(t *testing.T) {
	files := stageFiles(t, 1)
	one := int32(100)
	store := &flakyStore{
		inner:    storage.NewMemoryStore(),
		failures: map[string]*int32{files[0].Key: &one},
		err:      errors.Fatal(nil, "invalid credentials"),
	}
	pool := NewPool(1, store, 3, logger.NewNop())

	batch := pool.UploadBatch(context.Background(), files, time.Now())

	require.Len(t, batch.Results, 1)
	require.Len(t, batch.Failed(), 1)
	assert.Error(t, batch.FatalError())
}

// haltingStore cancels the batch's context after its first stored object.
type haltingStore struct {
	inner  storage.ObjectStore
	cancel context.CancelFunc
	once   sync.Once
}

func (h *haltingStore) Put(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error {
	err := h.inner.Put(ctx, key, body, contentType, metadata)
	h.once.Do(h.cancel)
	return err
}

func (h *haltingStore) Exists(ctx context.Context, key string) (bool, error) {
	return h.inner.Exists(ctx, key)
}

func TestUploadBatchCancelledMidBatchReportsEveryFile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &haltingStore{inner: storage.NewMemoryStore(), cancel: cancel}
	pool := NewPool(1, store, 1, logger.NewNop())
	files := stageFiles(t, 4)

	batch := pool.UploadBatch(ctx, files, time.Now())

	// Files the feed never submitted still carry a result; a shorter result
	// list would make the cancelled batch look fully uploaded.
	require.Len(t, batch.Results, 4)
	assert.Equal(t, 1, batch.Succeeded())
	assert.Len(t, batch.Failed(), 3)
	for _, r := range batch.Failed() {
		assert.Error(t, r.Error)
	}
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/json", contentTypeFor(models.StagedFile{Kind: models.KindMetadata}))
	assert.Equal(t, "application/zip", contentTypeFor(models.StagedFile{Kind: models.KindArchive}))
	assert.Equal(t, "image/png", contentTypeFor(models.StagedFile{
		Kind: models.KindScreenshot, LocalPath: "/tmp/a.png",
	}))
	assert.Equal(t, "application/octet-stream", contentTypeFor(models.StagedFile{
		Kind: models.KindScreenshot, LocalPath: "/tmp/raw",
	}))
}
