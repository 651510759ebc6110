// Package storage persists sensor readings and node records in a bbolt database.
package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/logger"
	bolt "go.etcd.io/bbolt"
)

// Top-level buckets. readings and node_status_history hold one nested bucket per device.
const (
	bucketReadings      = "readings"
	bucketNodes         = "nodes"
	bucketMetadata      = "node_metadata"
	bucketZones         = "zones"
	bucketStatus        = "node_status"
	bucketStatusHistory = "node_status_history"
)

var allBuckets = []string{
	bucketReadings, bucketNodes, bucketMetadata, bucketZones, bucketStatus, bucketStatusHistory,
}

// DB is the sensor database
type DB struct {
	bolt *bolt.DB
	path string
	now  func() time.Time
	log  logger.ILogger
}

// Open opens (creating if needed) the database at path
func Open(path string, log logger.ILogger) (*DB, error) {
	if log == nil {
		log = logger.NewComponentLogger("storage")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.NewStorageError("open", err, "")
		}
	}

	b, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.NewStorageError("open", err, "")
	}

	if err := b.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("could not create %s bucket: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		_ = b.Close()
		return nil, errors.NewStorageError("init buckets", err, "")
	}

	log.LogInfo("💾 Sensor database opened at %s", path)
	return &DB{bolt: b, path: path, now: time.Now, log: log}, nil
}

// Close closes the database
func (db *DB) Close() error {
	if err := db.bolt.Close(); err != nil {
		return errors.NewStorageError("close", err, "")
	}
	return nil
}

// Bolt exposes the underlying handle so other stores can share the file
func (db *DB) Bolt() *bolt.DB {
	return db.bolt
}

// WriteBackup streams a consistent snapshot of the whole database to w
func (db *DB) WriteBackup(w io.Writer) (int64, error) {
	var n int64
	err := db.bolt.View(func(tx *bolt.Tx) error {
		var err error
		n, err = tx.WriteTo(w)
		return err
	})
	if err != nil {
		return n, errors.NewStorageError("backup", err, "")
	}
	return n, nil
}

// Path returns the database file location
func (db *DB) Path() string {
	return db.path
}

func u64Key(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func keyU64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func deviceKey(deviceID uint64) []byte { return u64Key(deviceID) }

func tsKey(ts int64) []byte { return u64Key(uint64(ts)) }
