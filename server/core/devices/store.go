package devices

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/webcampics/webcampics/server/core/identity"
)

// Collection is the full set of camera records as one backend stores them.
type Collection struct {
	// Cameras in stored order.
	Cameras []*CameraConfig
	// Reserved holds entries that are not devices (such as ReservedKey), kept verbatim.
	Reserved map[string][]byte
	// Invalid names the Reserved entries that looked like cameras but could not be read.
	Invalid map[string]error
}

func (c *Collection) clone() *Collection {
	out := &Collection{
		Cameras:  make([]*CameraConfig, 0, len(c.Cameras)),
		Reserved: make(map[string][]byte, len(c.Reserved)),
	}
	for _, cam := range c.Cameras {
		out.Cameras = append(out.Cameras, cam.Clone())
	}
	for k, v := range c.Reserved {
		out.Reserved[k] = append([]byte(nil), v...)
	}
	if len(c.Invalid) > 0 {
		out.Invalid = make(map[string]error, len(c.Invalid))
		for k, v := range c.Invalid {
			out.Invalid[k] = v
		}
	}
	return out
}

// ConfigStore persists the whole camera collection at once.
type ConfigStore interface {
	// Load returns a fresh copy of the stored collection.
	Load(ctx context.Context) (*Collection, error)
	// Save replaces the stored collection.
	Save(ctx context.Context, collection *Collection) error
}

// cameraRecord is the on-disk shape of one cameras.json entry. Older files
// identify a camera by "mac" and name the rotation "rotate"; fromRecord folds
// those into CameraConfig.
type cameraRecord struct {
	DeviceID     string `json:"device_id,omitempty"`
	Mac          string `json:"mac,omitempty"`
	Location     string `json:"location"`
	Title        string `json:"title"`
	Status       string `json:"status,omitempty"`
	Rotation     *int   `json:"rotation,omitempty"`
	Rotate       *int   `json:"rotate,omitempty"`
	AddTitle     *bool  `json:"add_title,omitempty"`
	AddTimestamp *bool  `json:"add_timestamp,omitempty"`
	FontSize     int    `json:"font_size,omitempty"`
	FontColor    string `json:"font_color,omitempty"`
	FontOutline  *bool  `json:"font_outline,omitempty"`
}

func fromRecord(key string, rec cameraRecord) (*CameraConfig, error) {
	id := rec.DeviceID
	if id == "" {
		id = rec.Mac
	}
	if id == "" {
		return nil, fmt.Errorf("entry %q has neither device_id nor mac", key)
	}

	cfg := NewDefaultCameraConfig(id)
	cfg.Key = key
	if rec.Title != "" {
		cfg.Title = rec.Title
	}
	if rec.Location != "" {
		cfg.Location = rec.Location
	}

	// entries written before status existed were always shown
	cfg.Status = StatusEnabled
	if rec.Status != "" {
		status, err := ParseStatus(rec.Status)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", key, err)
		}
		cfg.Status = status
	}

	switch {
	case rec.Rotation != nil:
		cfg.Rotation = Rotation(*rec.Rotation)
	case rec.Rotate != nil:
		cfg.Rotation = Rotation(*rec.Rotate)
	}
	if !cfg.Rotation.Valid() {
		return nil, fmt.Errorf("entry %q: invalid rotation %d", key, cfg.Rotation)
	}

	if rec.AddTitle != nil {
		cfg.AddTitle = *rec.AddTitle
	}
	if rec.AddTimestamp != nil {
		cfg.AddTimestamp = *rec.AddTimestamp
	}
	if rec.FontSize > 0 {
		cfg.FontSize = rec.FontSize
	}
	if rec.FontColor != "" {
		col, err := ParseColor(rec.FontColor)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", key, err)
		}
		cfg.FontColor = col
	}
	if rec.FontOutline != nil {
		cfg.FontOutline = *rec.FontOutline
	}
	return cfg, nil
}

func toRecord(cfg *CameraConfig) cameraRecord {
	rotation := int(cfg.Rotation)
	rec := cameraRecord{
		DeviceID:     cfg.Identifier,
		Location:     cfg.Location,
		Title:        cfg.Title,
		Status:       cfg.Status.String(),
		Rotation:     &rotation,
		AddTitle:     &cfg.AddTitle,
		AddTimestamp: &cfg.AddTimestamp,
		FontSize:     cfg.FontSize,
		FontColor:    cfg.FontColor.Hex(),
		FontOutline:  &cfg.FontOutline,
	}
	if identity.LooksLikeMac(cfg.Identifier) {
		rec.Mac = cfg.Identifier
	}
	return rec
}

// FileStore keeps the collection in a single JSON object file keyed by camera key.
// Stored order is ascending key order. An entry that cannot be read is kept
// verbatim as a reserved entry and reported in Collection.Invalid.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (*Collection, error) {
	collection := &Collection{Reserved: map[string][]byte{}}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return collection, nil
		}
		return nil, NewStoreError("load", err)
	}
	if len(data) == 0 {
		return collection, nil
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, NewStoreError("load", fmt.Errorf("failed to decode %s: %w", s.path, err))
	}

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := entries[key]
		if key == ReservedKey {
			collection.Reserved[key] = []byte(raw)
			continue
		}
		cfg, err := decodeEntry(key, raw)
		if err != nil {
			collection.Reserved[key] = []byte(raw)
			if collection.Invalid == nil {
				collection.Invalid = map[string]error{}
			}
			collection.Invalid[key] = err
			continue
		}
		collection.Cameras = append(collection.Cameras, cfg)
	}
	return collection, nil
}

func decodeEntry(key string, raw json.RawMessage) (*CameraConfig, error) {
	var rec cameraRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode entry %q: %w", key, err)
	}
	return fromRecord(key, rec)
}

// Save writes the collection to a temporary file next to the target and renames it into place.
func (s *FileStore) Save(ctx context.Context, collection *Collection) error {
	entries := make(map[string]json.RawMessage, len(collection.Cameras)+len(collection.Reserved))
	for key, raw := range collection.Reserved {
		entries[key] = json.RawMessage(raw)
	}
	for _, cam := range collection.Cameras {
		raw, err := json.Marshal(toRecord(cam))
		if err != nil {
			return NewStoreError("save", err)
		}
		entries[cam.Key] = raw
	}

	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return NewStoreError("save", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return NewStoreError("save", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return NewStoreError("save", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return NewStoreError("save", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return NewStoreError("save", err)
	}
	if err := tmp.Close(); err != nil {
		return NewStoreError("save", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return NewStoreError("save", err)
	}
	return nil
}

// MemoryStore keeps the collection in memory. Used by tests and as a throwaway registry.
type MemoryStore struct {
	mu         sync.Mutex
	collection *Collection
	saves      int
}

func NewMemoryStore(cameras ...*CameraConfig) *MemoryStore {
	collection := &Collection{Reserved: map[string][]byte{}}
	for _, cam := range cameras {
		collection.Cameras = append(collection.Cameras, cam.Clone())
	}
	return &MemoryStore{collection: collection}
}

func (s *MemoryStore) Load(ctx context.Context) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection.clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, collection *Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection = collection.clone()
	s.saves++
	return nil
}

// Saves reports how many times the collection was written.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
