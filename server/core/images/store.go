package images

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/webcampics/webcampics/server/core/ccc/logging"
	"github.com/webcampics/webcampics/server/core/identity"
)

const (
	frameExt    = ".jpg"
	rawSuffix   = ".raw"
	thumbSuffix = "_thumb.jpg"
	tempSuffix  = ".tmp"

	dirMode  = 0755
	fileMode = 0644

	day = 24 * time.Hour
)

var servableName = regexp.MustCompile(`^[A-Za-z0-9_-]+\.jpg$`)

// StoredImage is a finalized frame on disk.
type StoredImage struct {
	Dir       string    `json:"dir"`
	Filename  string    `json:"filename"`
	Timestamp string    `json:"timestamp"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"modified"`
	Path      string    `json:"-"`
}

// StagedImage is an upload written to disk but not yet finalized.
type StagedImage struct {
	Dir       string
	Timestamp string
	RawPath   string
	FinalPath string
	Size      int
}

// Filename is the name the frame gets once promoted.
func (s *StagedImage) Filename() string {
	return filepath.Base(s.FinalPath)
}

// ImageStore owns the per-camera directories under the images root.
type ImageStore interface {
	// StageRaw writes data as <dir>/<timestamp>.jpg.raw. An empty captureTime means now.
	StageRaw(identifier string, data []byte, captureTime string) (*StagedImage, error)
	// Promote writes the processed frame and removes the raw file, whatever the outcome.
	Promote(staged *StagedImage, processed []byte) (string, error)
	// Discard removes the raw file.
	Discard(staged *StagedImage) error
	// Latest returns the frame with the greatest filename.
	Latest(identifier string) (*StoredImage, error)
	// ListWithinWindow returns frames modified in the last days days, newest first.
	ListWithinWindow(identifier string, days int) ([]*StoredImage, error)
	// ListAllLatest returns the latest frame of every camera directory, keyed by directory name.
	ListAllLatest() (map[string]*StoredImage, error)
	// PurgeOlderThan deletes every file older than days days and reports how many went.
	PurgeOlderThan(days int) (int, error)
	// Resolve returns the path of a finalized frame or thumbnail.
	Resolve(dir, name string) (string, error)
	// DirFor returns the directory name used for identifier.
	DirFor(identifier string) (string, error)
}

type fileStore struct {
	logger logging.Logger
	root   string
	now    func() time.Time
}

func NewFileStore(logger logging.Logger, root string) ImageStore {
	if logger == nil {
		logger = logging.NopLogger
	}
	return &fileStore{
		logger: logger,
		root:   root,
		now:    time.Now,
	}
}

// IsFrameName reports whether name is a finalized frame, not a thumbnail or staged file.
func IsFrameName(name string) bool {
	return strings.HasSuffix(name, frameExt) && !strings.HasSuffix(name, thumbSuffix)
}

// ThumbnailName returns the thumbnail filename belonging to a frame.
func ThumbnailName(frame string) string {
	return strings.TrimSuffix(frame, frameExt) + thumbSuffix
}

func (s *fileStore) DirFor(identifier string) (string, error) {
	return identity.SanitizeForStorage(identifier)
}

func (s *fileStore) StageRaw(identifier string, data []byte, captureTime string) (*StagedImage, error) {
	dir, err := s.DirFor(identifier)
	if err != nil {
		return nil, err
	}

	stamp := FormatTimestamp(s.now())
	if captureTime != "" {
		if stamp, err = NormalizeCaptureTime(captureTime); err != nil {
			return nil, err
		}
	}

	dirPath := filepath.Join(s.root, dir)
	if err := os.MkdirAll(dirPath, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	finalPath := filepath.Join(dirPath, stamp+frameExt)
	rawPath := finalPath + rawSuffix
	if err := os.WriteFile(rawPath, data, fileMode); err != nil {
		os.Remove(rawPath)
		return nil, fmt.Errorf("failed to write raw image: %w", err)
	}

	return &StagedImage{
		Dir:       dir,
		Timestamp: stamp,
		RawPath:   rawPath,
		FinalPath: finalPath,
		Size:      len(data),
	}, nil
}

func (s *fileStore) Promote(staged *StagedImage, processed []byte) (string, error) {
	defer s.removeRaw(staged)

	if err := writeFileAtomic(staged.FinalPath, processed); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	// a frame re-uploaded for the same second needs a fresh thumbnail
	os.Remove(filepath.Join(filepath.Dir(staged.FinalPath), ThumbnailName(staged.Filename())))

	return staged.FinalPath, nil
}

func (s *fileStore) Discard(staged *StagedImage) error {
	if err := os.Remove(staged.RawPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove raw image: %w", err)
	}
	return nil
}

func (s *fileStore) removeRaw(staged *StagedImage) {
	if err := s.Discard(staged); err != nil {
		s.logger.Error("Failed to remove raw image", "error", err, "path", staged.RawPath)
	}
}

// frames lists the finalized frames of one directory. A missing directory has none.
func (s *fileStore) frames(dir string) ([]*StoredImage, error) {
	dirPath := filepath.Join(s.root, dir)
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	frames := make([]*StoredImage, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !IsFrameName(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed by a concurrent purge
			continue
		}
		frames = append(frames, &StoredImage{
			Dir:       dir,
			Filename:  name,
			Timestamp: strings.TrimSuffix(name, frameExt),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Path:      filepath.Join(dirPath, name),
		})
	}
	return frames, nil
}

func latestOf(frames []*StoredImage) *StoredImage {
	var latest *StoredImage
	for _, f := range frames {
		if latest == nil || f.Filename > latest.Filename {
			latest = f
		}
	}
	return latest
}

func (s *fileStore) Latest(identifier string) (*StoredImage, error) {
	dir, err := s.DirFor(identifier)
	if err != nil {
		return nil, err
	}
	frames, err := s.frames(dir)
	if err != nil {
		return nil, err
	}
	latest := latestOf(frames)
	if latest == nil {
		return nil, NewImageNotFoundError(dir, "")
	}
	return latest, nil
}

func (s *fileStore) ListWithinWindow(identifier string, days int) ([]*StoredImage, error) {
	dir, err := s.DirFor(identifier)
	if err != nil {
		return nil, err
	}
	frames, err := s.frames(dir)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-time.Duration(days) * day)
	within := make([]*StoredImage, 0, len(frames))
	for _, f := range frames {
		if !f.ModTime.Before(cutoff) {
			within = append(within, f)
		}
	}

	sort.Slice(within, func(i, j int) bool {
		if !within[i].ModTime.Equal(within[j].ModTime) {
			return within[i].ModTime.After(within[j].ModTime)
		}
		return within[i].Filename > within[j].Filename
	})
	return within, nil
}

func (s *fileStore) deviceDirs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list image directories: %w", err)
	}

	dirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			dirs = append(dirs, entry.Name())
		}
	}
	return dirs, nil
}

func (s *fileStore) ListAllLatest() (map[string]*StoredImage, error) {
	dirs, err := s.deviceDirs()
	if err != nil {
		return nil, err
	}

	latest := make(map[string]*StoredImage, len(dirs))
	for _, dir := range dirs {
		frames, err := s.frames(dir)
		if err != nil {
			return nil, err
		}
		if l := latestOf(frames); l != nil {
			latest[dir] = l
		}
	}
	return latest, nil
}

func (s *fileStore) PurgeOlderThan(days int) (int, error) {
	dirs, err := s.deviceDirs()
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-time.Duration(days) * day)
	removed := 0
	var errs []error
	for _, dir := range dirs {
		dirPath := filepath.Join(s.root, dir)
		entries, err := os.ReadDir(dirPath)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					errs = append(errs, err)
				}
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}

			path := filepath.Join(dirPath, entry.Name())
			if err := os.Remove(path); err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					errs = append(errs, err)
				}
				continue
			}
			removed++
		}
	}

	if len(errs) > 0 {
		s.logger.Warn("Purge finished with errors", "removed", removed, "errors", len(errs))
	}
	return removed, errors.Join(errs...)
}

func (s *fileStore) Resolve(dir, name string) (string, error) {
	if sanitized, err := identity.SanitizeForStorage(dir); err != nil || sanitized != dir {
		return "", NewInvalidNameError(dir)
	}
	if !servableName.MatchString(name) {
		return "", NewInvalidNameError(name)
	}

	path := filepath.Join(s.root, dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", NewImageNotFoundError(dir, name)
	}
	return path, nil
}
