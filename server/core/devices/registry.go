package devices

import (
	"context"
	"strconv"
	"sync"

	"github.com/webcampics/webcampics/server/core/ccc/logging"
	"github.com/webcampics/webcampics/server/core/identity"
)

// Registry maps device identifiers to camera configuration.
// Identifiers are matched by their normalized form, so "AA:BB:CC:DD:EE:FF"
// and "aabbccddeeff" name the same camera.
type Registry interface {
	// FindByIdentifier returns the first stored camera matching id.
	FindByIdentifier(ctx context.Context, id string) (*CameraConfig, error)
	// EnsureProvisioned returns the camera for id, creating a default one if none exists.
	// The bool reports whether the camera was created by this call.
	EnsureProvisioned(ctx context.Context, id string) (*CameraConfig, bool, error)
	// Upsert applies an administrative update, creating the camera if needed.
	Upsert(ctx context.Context, id string, update CameraUpdate) (*CameraConfig, error)
	// Remove deletes the camera for id. It reports false if there was nothing to delete.
	Remove(ctx context.Context, id string) (bool, error)
	// List returns every camera in stored order.
	List(ctx context.Context) ([]*CameraConfig, error)
}

type registry struct {
	logger logging.Logger
	store  ConfigStore

	// serializes every load-modify-save cycle on the collection
	mu sync.Mutex
}

func NewRegistry(logger logging.Logger, store ConfigStore) Registry {
	if logger == nil {
		logger = logging.NopLogger
	}
	return &registry{
		logger: logger,
		store:  store,
	}
}

func (r *registry) load(ctx context.Context) (*Collection, error) {
	collection, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	for key, problem := range collection.Invalid {
		r.logger.Warn("Skipping unreadable camera entry, kept as is", "key", key, "error", problem)
	}

	seen := make(map[string]string, len(collection.Cameras))
	for _, cam := range collection.Cameras {
		norm := identity.NormalizeForComparison(cam.Identifier)
		if first, ok := seen[norm]; ok {
			r.logger.Warn("Duplicate camera identifier in configuration, first entry wins",
				"device_id", cam.Identifier, "key", cam.Key, "first_key", first)
			continue
		}
		seen[norm] = cam.Key
	}
	return collection, nil
}

// save drops any later entry that duplicates an earlier identifier before writing.
func (r *registry) save(ctx context.Context, collection *Collection) error {
	seen := make(map[string]bool, len(collection.Cameras))
	unique := collection.Cameras[:0]
	for _, cam := range collection.Cameras {
		norm := identity.NormalizeForComparison(cam.Identifier)
		if seen[norm] {
			r.logger.Warn("Dropping duplicate camera entry", "device_id", cam.Identifier, "key", cam.Key)
			continue
		}
		seen[norm] = true
		unique = append(unique, cam)
	}
	collection.Cameras = unique
	return r.store.Save(ctx, collection)
}

func find(collection *Collection, id string) (int, *CameraConfig) {
	for i, cam := range collection.Cameras {
		if cam.Key == ReservedKey {
			continue
		}
		if cam.Matches(id) {
			return i, cam
		}
	}
	return -1, nil
}

// newKey derives a storage key for id that is not used by any other entry.
func newKey(collection *Collection, id string) (string, error) {
	base, err := identity.StorageKey(id)
	if err != nil {
		return "", err
	}

	taken := make(map[string]bool, len(collection.Cameras)+len(collection.Reserved))
	for _, cam := range collection.Cameras {
		taken[cam.Key] = true
	}
	for key := range collection.Reserved {
		taken[key] = true
	}

	key := base
	for n := 2; taken[key]; n++ {
		key = base + "_" + strconv.Itoa(n)
	}
	return key, nil
}

func (r *registry) FindByIdentifier(ctx context.Context, id string) (*CameraConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	collection, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	_, cam := find(collection, id)
	if cam == nil {
		return nil, NewCameraNotFoundError(id)
	}
	return cam, nil
}

func (r *registry) EnsureProvisioned(ctx context.Context, id string) (*CameraConfig, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	collection, err := r.load(ctx)
	if err != nil {
		return nil, false, err
	}
	if _, cam := find(collection, id); cam != nil {
		return cam, false, nil
	}

	key, err := newKey(collection, id)
	if err != nil {
		return nil, false, err
	}
	cam := NewDefaultCameraConfig(id)
	cam.Key = key
	collection.Cameras = append(collection.Cameras, cam)

	if err := r.save(ctx, collection); err != nil {
		r.logger.Error("Failed to save new camera", "error", err, "device_id", id)
		return nil, false, err
	}

	r.logger.Info("Provisioned new camera", "device_id", id, "key", key, "status", cam.Status.String())
	return cam.Clone(), true, nil
}

func (r *registry) Upsert(ctx context.Context, id string, update CameraUpdate) (*CameraConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	collection, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	_, cam := find(collection, id)
	created := cam == nil
	if created {
		key, err := newKey(collection, id)
		if err != nil {
			return nil, err
		}
		cam = NewDefaultCameraConfig(id)
		cam.Key = key
	}

	if err := update.apply(cam); err != nil {
		return nil, err
	}
	if created {
		collection.Cameras = append(collection.Cameras, cam)
	}

	if err := r.save(ctx, collection); err != nil {
		r.logger.Error("Failed to save camera", "error", err, "device_id", id)
		return nil, err
	}

	r.logger.Info("Updated camera", "device_id", cam.Identifier, "key", cam.Key, "created", created, "status", cam.Status.String())
	return cam.Clone(), nil
}

func (r *registry) Remove(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	collection, err := r.load(ctx)
	if err != nil {
		return false, err
	}

	kept := make([]*CameraConfig, 0, len(collection.Cameras))
	removed := 0
	for _, cam := range collection.Cameras {
		if cam.Matches(id) {
			removed++
			continue
		}
		kept = append(kept, cam)
	}
	if removed == 0 {
		return false, nil
	}

	collection.Cameras = kept
	if err := r.save(ctx, collection); err != nil {
		r.logger.Error("Failed to save camera removal", "error", err, "device_id", id)
		return false, err
	}

	r.logger.Info("Removed camera", "device_id", id, "entries", removed)
	return true, nil
}

func (r *registry) List(ctx context.Context) ([]*CameraConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	collection, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return collection.Cameras, nil
}
