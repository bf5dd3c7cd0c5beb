// Package cache keeps compiled program images in a SQLite database keyed by
// the SHA-256 of their source text.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/ember/compiler"
	"github.com/chazu/ember/vm"
)

var log = commonlog.GetLogger("ember.cache")

// ErrNotFound indicates the source has no cached image.
var ErrNotFound = errors.New("cache: image not found")

// Cache stores program images.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS images (
		hash TEXT PRIMARY KEY,
		image BLOB NOT NULL,
		created INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Cache{db: db, path: path}, nil
}

// Close closes the database connection. Closing a nil Cache is a no-op.
func (c *Cache) Close() error {
	if c != nil && c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Path returns the database file.
func (c *Cache) Path() string {
	return c.path
}

// Key returns the cache key for src.
func Key(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}

// Get returns the program cached for src.
func (c *Cache) Get(src string) (*vm.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	err := c.db.QueryRow("SELECT image FROM images WHERE hash = ?", Key(src)).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying image: %w", err)
	}
	return vm.DecodeProgram(data)
}

// Put stores the image of prog under src.
func (c *Cache) Put(src string, prog *vm.Program) error {
	data, err := vm.EncodeProgram(prog)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO images (hash, image, created) VALUES (?, ?, ?)",
		Key(src), data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving image: %w", err)
	}
	return nil
}

// Compile returns the cached program for src, compiling and storing it on
// a miss. An unreadable entry counts as a miss and is replaced.
func (c *Cache) Compile(src string) (*vm.Program, error) {
	prog, err := c.Get(src)
	switch {
	case err == nil:
		log.Debugf("cache hit %s", Key(src)[:12])
		return prog, nil
	case !errors.Is(err, ErrNotFound):
		log.Warningf("discarding cached image: %s", err)
	}

	prog, err = compiler.CompileSource(src)
	if err != nil {
		return nil, err
	}
	if err := c.Put(src, prog); err != nil {
		return nil, err
	}
	return prog, nil
}

// Len returns the number of cached images.
func (c *Cache) Len() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM images").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting images: %w", err)
	}
	return n, nil
}

// Prune removes images older than age and returns how many were dropped.
func (c *Cache) Prune(age time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec("DELETE FROM images WHERE created < ?", time.Now().Add(-age).Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning images: %w", err)
	}
	return res.RowsAffected()
}
