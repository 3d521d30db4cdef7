package classifier_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/IANDYI/health-markers-service/internal/adapters/classifier"
	"github.com/IANDYI/health-markers-service/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelStore_NotLoaded(t *testing.T) {
	store := classifier.NewModelStore(filepath.Join(t.TempDir(), "model.json"))

	code, err := store.Predict(context.Background(), domain.FeatureVector{})
	assert.ErrorIs(t, err, domain.ErrModelNotLoaded)
	assert.Equal(t, domain.NoPrediction, code)
	assert.ErrorIs(t, store.Ready(context.Background()), domain.ErrModelNotLoaded)
	assert.Nil(t, store.Model())
}

func TestModelStore_LoadAndPredict(t *testing.T) {
	store := classifier.NewModelStore(writeModel(t, t.TempDir(), twoClassModel))
	require.NoError(t, store.Load())

	assert.NoError(t, store.Ready(context.Background()))

	code, err := store.Predict(context.Background(), domain.FeatureVector{"ldl": 200, "hdl": 50})
	require.NoError(t, err)
	assert.Equal(t, domain.CodeHighCholesterol, code)
}

func TestModelStore_FailedLoadKeepsPreviousModel(t *testing.T) {
	path := writeModel(t, t.TempDir(), twoClassModel)
	store := classifier.NewModelStore(path)
	require.NoError(t, store.Load())

	require.NoError(t, os.WriteFile(path, []byte(`{"classes": []}`), 0644))
	assert.Error(t, store.Load())

	require.NotNil(t, store.Model())
	assert.Equal(t, "test", store.Model().Name)
}

func TestModelStore_WatchReloadsOnWrite(t *testing.T) {
	path := writeModel(t, t.TempDir(), twoClassModel)
	store := classifier.NewModelStore(path)
	require.NoError(t, store.Load())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()

	updated := strings.Replace(twoClassModel, `"version": "1"`, `"version": "2"`, 1)

	// keep rewriting until the watcher is registered and has reloaded
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(updated), 0644)
		return store.Model().Version == "2"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

func TestModelStore_WatchPicksUpLateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	store := classifier.NewModelStore(path)
	assert.Error(t, store.Load())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = store.Watch(ctx) }()

	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(twoClassModel), 0644)
		return store.Ready(context.Background()) == nil
	}, 5*time.Second, 50*time.Millisecond)
}

func TestModelStore_WatchMissingDirectory(t *testing.T) {
	store := classifier.NewModelStore(filepath.Join(t.TempDir(), "absent", "model.json"))

	err := store.Watch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to watch")
}
