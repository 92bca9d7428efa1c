package scene

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS scene_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS objects (
	position INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	data TEXT NOT NULL
);
`

// digestObjects hashes the serialized objects in order
func digestObjects(objects []*Object) (uint64, error) {
	h := xxhash.New()
	enc := json.NewEncoder(h)
	for _, o := range objects {
		if err := enc.Encode(o); err != nil {
			return 0, err
		}
	}
	return h.Sum64(), nil
}

// Digest hashes the current object state
func (s *Scene) Digest() (uint64, error) {
	return digestObjects(s.Objects())
}

// Dirty reports whether the scene changed since it was last saved or opened
func (s *Scene) Dirty() bool {
	digest, err := s.Digest()
	if err != nil {
		return true
	}
	return s.path == "" || digest != s.savedDigest
}

func openStore(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scene database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize scene schema: %w", err)
	}
	return db, nil
}

// Save writes the scene to the file it was opened from or last saved to.
// An unchanged scene is not rewritten.
func (s *Scene) Save() error {
	if s.path == "" {
		return ErrNoScenePath
	}
	digest, err := s.Digest()
	if err != nil {
		return fmt.Errorf("failed to digest scene: %w", err)
	}
	if digest == s.savedDigest {
		if _, err := os.Stat(s.path); err == nil {
			s.log.Debug("Scene %s unchanged, skipping save", s.Name())
			return nil
		}
	}
	return s.write(s.path, digest)
}

// SaveAs writes the scene to path and makes it the scene file
func (s *Scene) SaveAs(path string) error {
	digest, err := s.Digest()
	if err != nil {
		return fmt.Errorf("failed to digest scene: %w", err)
	}
	if err := s.write(path, digest); err != nil {
		return err
	}
	s.path = path
	return nil
}

func (s *Scene) write(path string, digest uint64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create scene directory: %w", err)
	}

	db, err := openStore(path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM objects"); err != nil {
		return fmt.Errorf("failed to clear objects: %w", err)
	}
	for i, o := range s.Objects() {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to encode object %s: %w", o.Name, err)
		}
		if _, err := tx.Exec("INSERT INTO objects (position, name, data) VALUES (?, ?, ?)", i, o.Name, string(data)); err != nil {
			return fmt.Errorf("failed to store object %s: %w", o.Name, err)
		}
	}

	camera, err := json.Marshal(s.camera)
	if err != nil {
		return fmt.Errorf("failed to encode camera: %w", err)
	}
	meta := map[string]string{
		"camera":   string(camera),
		"active":   s.active,
		"snapping": strconv.FormatBool(s.snapping),
		"digest":   strconv.FormatUint(digest, 16),
	}
	for key, value := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO scene_meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scene: %w", err)
	}

	s.savedDigest = digest
	s.log.Info("Saved scene %s (%d objects)", path, len(s.order))
	return nil
}

// Open replaces the scene contents with the scene stored at path. The undo
// stack and any simulation state are discarded.
func (s *Scene) Open(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("failed to open scene %s: %w", path, err)
	}

	db, err := openStore(path)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query("SELECT data FROM objects ORDER BY position")
	if err != nil {
		return fmt.Errorf("failed to query objects: %w", err)
	}
	defer rows.Close()

	var objects []*Object
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("failed to scan object: %w", err)
		}
		var o Object
		if err := json.Unmarshal([]byte(data), &o); err != nil {
			return fmt.Errorf("failed to decode object: %w", err)
		}
		objects = append(objects, &o)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read objects: %w", err)
	}

	meta := make(map[string]string)
	metaRows, err := db.Query("SELECT key, value FROM scene_meta")
	if err != nil {
		return fmt.Errorf("failed to query scene metadata: %w", err)
	}
	defer metaRows.Close()
	for metaRows.Next() {
		var key, value string
		if err := metaRows.Scan(&key, &value); err != nil {
			return fmt.Errorf("failed to scan scene metadata: %w", err)
		}
		meta[key] = value
	}

	camera := DefaultCamera()
	if raw, ok := meta["camera"]; ok {
		if err := json.Unmarshal([]byte(raw), &camera); err != nil {
			return fmt.Errorf("failed to decode camera: %w", err)
		}
	}

	s.restore(objects, meta["active"])
	s.camera = camera
	s.snapping = meta["snapping"] == "true"
	s.undo = nil
	s.sim = simulation{}
	s.path = path

	digest, err := s.Digest()
	if err != nil {
		return fmt.Errorf("failed to digest scene: %w", err)
	}
	s.savedDigest = digest
	s.log.Info("Opened scene %s (%d objects)", path, len(s.order))
	return nil
}
