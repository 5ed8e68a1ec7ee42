package devices

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/webcampics/webcampics/server/core/ccc/db"
)

// SQLiteStore keeps the camera collection in a SQLite table. Save swaps the
// whole table inside one transaction. Reserved entries are not stored.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(database *sql.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: database, now: time.Now}
	if err := store.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) createTables() error {
	createCamerasTable := `
	CREATE TABLE IF NOT EXISTS cameras (
		key TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		location TEXT NOT NULL,
		title TEXT NOT NULL,
		status TEXT NOT NULL,
		rotation INTEGER NOT NULL,
		add_title INTEGER NOT NULL,
		add_timestamp INTEGER NOT NULL,
		font_size INTEGER NOT NULL,
		font_color TEXT NOT NULL,
		font_outline INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);`

	_, err := s.db.Exec(createCamerasTable)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context) (*Collection, error) {
	query := `
	SELECT key, device_id, location, title, status, rotation, add_title, add_timestamp, font_size, font_color, font_outline
	FROM cameras ORDER BY key`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, NewStoreError("load", fmt.Errorf("failed to query cameras: %w", err))
	}
	defer rows.Close()

	collection := &Collection{Reserved: map[string][]byte{}}
	for rows.Next() {
		cfg := &CameraConfig{}
		var status, color string
		var rotation, addTitle, addTimestamp, outline int
		err := rows.Scan(
			&cfg.Key, &cfg.Identifier, &cfg.Location, &cfg.Title, &status, &rotation,
			&addTitle, &addTimestamp, &cfg.FontSize, &color, &outline,
		)
		if err != nil {
			return nil, NewStoreError("load", fmt.Errorf("failed to scan camera: %w", err))
		}

		if cfg.Status, err = ParseStatus(status); err != nil {
			return nil, NewStoreError("load", fmt.Errorf("camera %q: %w", cfg.Key, err))
		}
		if cfg.FontColor, err = ParseColor(color); err != nil {
			return nil, NewStoreError("load", fmt.Errorf("camera %q: %w", cfg.Key, err))
		}
		cfg.Rotation = Rotation(rotation)
		cfg.AddTitle = db.IntToBool(addTitle)
		cfg.AddTimestamp = db.IntToBool(addTimestamp)
		cfg.FontOutline = db.IntToBool(outline)

		collection.Cameras = append(collection.Cameras, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStoreError("load", err)
	}
	return collection, nil
}

func (s *SQLiteStore) Save(ctx context.Context, collection *Collection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStoreError("save", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cameras`); err != nil {
		return NewStoreError("save", fmt.Errorf("failed to clear cameras: %w", err))
	}

	insert := `
	INSERT INTO cameras (key, device_id, location, title, status, rotation, add_title, add_timestamp, font_size, font_color, font_outline, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	updatedAt := db.TimeToString(s.now())
	for _, cam := range collection.Cameras {
		_, err := tx.ExecContext(ctx, insert,
			cam.Key, cam.Identifier, cam.Location, cam.Title, cam.Status.String(), int(cam.Rotation),
			db.BoolToInt(cam.AddTitle), db.BoolToInt(cam.AddTimestamp), cam.FontSize, cam.FontColor.Hex(),
			db.BoolToInt(cam.FontOutline), updatedAt,
		)
		if err != nil {
			return NewStoreError("save", fmt.Errorf("failed to insert camera %q: %w", cam.Key, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("save", err)
	}
	return nil
}
