package classifier

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync/atomic"

	"github.com/IANDYI/health-markers-service/internal/core/domain"
	"github.com/IANDYI/health-markers-service/internal/core/ports"
	"github.com/fsnotify/fsnotify"
)

// ModelStore serves predictions from the model file at path.
// The current model is swapped atomically on reload, so in-flight
// predictions always see one complete model.
type ModelStore struct {
	path  string
	model atomic.Pointer[LinearModel]
}

// NewModelStore creates an empty store for the model at path.
// Call Load to read the file.
func NewModelStore(path string) *ModelStore {
	return &ModelStore{path: filepath.Clean(path)}
}

// Path returns the model file location
func (s *ModelStore) Path() string {
	return s.path
}

// Load reads the model file and makes it current.
// On failure the previously loaded model (if any) stays active.
func (s *ModelStore) Load() error {
	model, err := LoadLinearModel(s.path)
	if err != nil {
		return err
	}

	s.model.Store(model)
	log.Printf("Loaded model %s (version %s) from %s with %d classes", model.Name, model.Version, s.path, len(model.Classes))
	return nil
}

// Model returns the current model or nil
func (s *ModelStore) Model() *LinearModel {
	return s.model.Load()
}

// Predict implements ports.Classifier
func (s *ModelStore) Predict(ctx context.Context, features domain.FeatureVector) (domain.CategoryCode, error) {
	model := s.model.Load()
	if model == nil {
		return domain.NoPrediction, domain.ErrModelNotLoaded
	}
	return model.Predict(features)
}

// Ready implements ports.Classifier
func (s *ModelStore) Ready(ctx context.Context) error {
	if s.model.Load() == nil {
		return domain.ErrModelNotLoaded
	}
	return nil
}

// Watch reloads the model each time its file is written or created.
// The parent directory is watched so atomic saves and late-arriving
// files are picked up. It runs until ctx is cancelled.
func (s *ModelStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create model watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	log.Printf("Watching %s for model changes", s.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if err := s.Load(); err != nil {
				log.Printf("Model reload failed, keeping previous model: %v", err)
				continue
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Model watcher error: %v", err)
		}
	}
}

// Ensure ModelStore implements the interface
var _ ports.Classifier = (*ModelStore)(nil)
